package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-stereotrack/camera"
)

var (
	black = color.Gray{Y: 0}
)

func TestLetterBoxResize(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		resizeWidth   int
		resizeHeight  int
		expectedXPad  int
		expectedYPad  int
		expectedScale float64
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
	}

	for _, tc := range tests {
		img := image.NewGray(image.Rect(0, 0, tc.srcWidth, tc.srcHeight))

		for i := range img.Pix {
			img.Pix[i] = 200
		}

		resizer := NewResizer(tc.srcWidth, tc.srcHeight, tc.resizeWidth, tc.resizeHeight)
		resized := resizer.LetterBoxResize(img, black)

		assert.Equal(t, tc.expectedXPad, resizer.XPad())
		assert.Equal(t, tc.expectedYPad, resizer.YPad())
		assert.InDelta(t, tc.expectedScale, resizer.ScaleFactor(), 1e-9)
		assert.Equal(t, image.Rect(0, 0, tc.resizeWidth, tc.resizeHeight), resized.Bounds())

		// padding stays black, the image area is filled
		assert.Equal(t, uint8(200), resized.GrayAt(tc.resizeWidth/2, tc.resizeHeight/2).Y)

		if tc.expectedXPad > 0 || tc.expectedYPad > 0 {
			assert.Equal(t, uint8(0), resized.GrayAt(0, 0).Y)
		}
	}
}

func TestResizerPointMapping(t *testing.T) {

	r := NewResizer(1280, 720, 640, 640)

	src := r2.Point{X: 300, Y: 100}
	dst := r.ToDest(src)
	assert.InDelta(t, 150, dst.X, 1e-9)
	assert.InDelta(t, 190, dst.Y, 1e-9)
	assert.Equal(t, src, r.ToSource(dst))

	k := camera.Pinhole{Width: 1280, Height: 720, Fx: 800, Fy: 800, Ppx: 640, Ppy: 360}
	sk := r.ScaleIntrinsics(k)
	assert.Equal(t, 640, sk.Width)
	assert.InDelta(t, 400, sk.Fx, 1e-9)
	assert.InDelta(t, 320, sk.Ppx, 1e-9)
	assert.InDelta(t, 320, sk.Ppy, 1e-9)

	// a ray projects to the mapped pixel in the scaled camera
	ray := k.Undistort(src)
	got, ok := sk.Project(ray)
	assert.True(t, ok)
	assert.InDelta(t, dst.X, got.X, 1e-9)
	assert.InDelta(t, dst.Y, got.Y, 1e-9)
}

func TestLetterBoxResizeNewImage(t *testing.T) {

	r := NewResizer(64, 48, 32, 24)
	assert.True(t, r.Scales())
	assert.False(t, NewResizer(64, 48, 64, 48).Scales())

	first := r.LetterBoxResize(image.NewGray(image.Rect(0, 0, 64, 48)), black)

	white := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range white.Pix {
		white.Pix[i] = 255
	}

	second := r.LetterBoxResize(white, black)

	// a previous result is not overwritten by the next frame
	assert.Equal(t, uint8(0), first.GrayAt(16, 12).Y)
	assert.Equal(t, uint8(255), second.GrayAt(16, 12).Y)
}

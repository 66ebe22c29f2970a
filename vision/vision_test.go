package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {

	m := image.NewGray(image.Rect(0, 0, 4, 4))
	m.SetGray(1, 2, color.Gray{Y: 255})

	assert.True(t, Mask(nil, image.Pt(100, 100)))
	assert.True(t, Mask(m, image.Pt(1, 2)))
	assert.False(t, Mask(m, image.Pt(2, 1)))
	assert.False(t, Mask(m, image.Pt(-1, 0)))
}

func TestKeyPointPt(t *testing.T) {
	kp := KeyPoint{X: 3.5, Y: 7}
	assert.Equal(t, 3.5, kp.Pt().X)
	assert.Equal(t, 7.0, kp.Pt().Y)
}

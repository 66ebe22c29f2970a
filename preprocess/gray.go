package preprocess

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// ErrSizeMismatch is returned when images that must share a size do not
var ErrSizeMismatch = errors.New("image size mismatch")

// ToGray returns img as a grayscale image with its origin at (0, 0).  A gray
// image already at the origin is returned as is
func ToGray(img image.Image) *image.Gray {

	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}

	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	return out
}

// MatToGray converts a BGR or single channel gocv Mat, as read from a
// VideoCapture, into a grayscale image
func MatToGray(m gocv.Mat) (*image.Gray, error) {

	if m.Empty() {
		return nil, errors.New("empty frame")
	}

	src := m

	switch m.Channels() {
	case 1:
	case 3:
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
		src = gray
	case 4:
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(m, &gray, gocv.ColorBGRAToGray)
		src = gray
	default:
		return nil, fmt.Errorf("unsupported channel count %d", m.Channels())
	}

	img, err := src.ToImage()

	if err != nil {
		return nil, fmt.Errorf("error converting frame: %w", err)
	}

	return ToGray(img), nil
}

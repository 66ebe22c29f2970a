package preprocess

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ConcatSide places equally sized side views next to each other, left to
// right, matching the layout of camera.SideStrip
func ConcatSide(views []*image.Gray) (*image.Gray, error) {

	if len(views) == 0 {
		return nil, fmt.Errorf("%w: no views given", ErrSizeMismatch)
	}

	size := views[0].Bounds().Size()

	for i, v := range views {
		if v.Bounds().Size() != size {
			return nil, fmt.Errorf("%w: view %d is %v, expected %v",
				ErrSizeMismatch, i, v.Bounds().Size(), size)
		}
	}

	out := image.NewGray(image.Rect(0, 0, size.X*len(views), size.Y))

	for i, v := range views {
		r := image.Rect(i*size.X, 0, (i+1)*size.X, size.Y)
		draw.Draw(out, r, v, v.Bounds().Min, draw.Src)
	}

	return out, nil
}

package preprocess

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/swdee/go-stereotrack/camera"
)

// ViewMap resamples a source camera image into a virtual view, such as the
// top and side views of a fisheye camera.  The lookup table is computed once
// and reused for every frame
type ViewMap struct {
	width  int
	height int
	// lookup holds the source pixel of every view pixel in row order
	lookup []r2.Point
	valid  []bool
}

// NewViewMap builds the lookup from the pixels of a width x height view to
// the pixels of the source camera
func NewViewMap(view camera.Model, width, height int, src camera.Projector) *ViewMap {

	m := &ViewMap{
		width:  width,
		height: height,
		lookup: make([]r2.Point, width*height),
		valid:  make([]bool, width*height),
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			m.lookup[i], m.valid[i] = src.Project(view.Undistort(r2.Point{
				X: float64(x),
				Y: float64(y),
			}))
		}
	}

	return m
}

// Size returns the view size
func (m *ViewMap) Size() image.Point {
	return image.Pt(m.width, m.height)
}

// Apply returns the view of src sampled bilinearly.  Pixels that map
// outside of src are black
func (m *ViewMap) Apply(src *image.Gray) *image.Gray {

	out := image.NewGray(image.Rect(0, 0, m.width, m.height))
	b := src.Bounds()

	for i, p := range m.lookup {
		if !m.valid[i] {
			continue
		}

		// round off projection noise on integer positions
		x0 := int(math.Floor(p.X + 1e-9))
		y0 := int(math.Floor(p.Y + 1e-9))

		if x0 < b.Min.X || y0 < b.Min.Y || x0 >= b.Max.X || y0 >= b.Max.Y {
			continue
		}

		x1, y1 := x0+1, y0+1

		if x1 >= b.Max.X {
			x1 = x0
		}

		if y1 >= b.Max.Y {
			y1 = y0
		}

		fx := p.X - float64(x0)
		fy := p.Y - float64(y0)

		v00 := float64(src.Pix[src.PixOffset(x0, y0)])
		v10 := float64(src.Pix[src.PixOffset(x1, y0)])
		v01 := float64(src.Pix[src.PixOffset(x0, y1)])
		v11 := float64(src.Pix[src.PixOffset(x1, y1)])

		top := v00 + (v10-v00)*fx
		bottom := v01 + (v11-v01)*fx

		v := math.Round(top + (bottom-top)*fy)
		out.Pix[i] = uint8(math.Max(0, math.Min(255, v)))
	}

	return out
}

package camera

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pinhole holds the intrinsics of a pinhole camera with optional
// Brown-Conrady distortion
type Pinhole struct {
	Width      int           `yaml:"width" json:"width_px"`
	Height     int           `yaml:"height" json:"height_px"`
	Fx         float64       `yaml:"fx" json:"fx"`
	Fy         float64       `yaml:"fy" json:"fy"`
	Ppx        float64       `yaml:"ppx" json:"ppx"`
	Ppy        float64       `yaml:"ppy" json:"ppy"`
	Distortion *BrownConrady `yaml:"distortion,omitempty" json:"distortion,omitempty"`
}

// CheckValid checks the intrinsics describe a usable camera
func (p *Pinhole) CheckValid() error {

	if p == nil {
		return fmt.Errorf("%w: no intrinsics given", ErrInvalidIntrinsics)
	}

	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidIntrinsics, p.Width, p.Height)
	}

	if p.Fx <= 0 || p.Fy <= 0 {
		return fmt.Errorf("%w: focal length fx=%v fy=%v", ErrInvalidIntrinsics, p.Fx, p.Fy)
	}

	return nil
}

// Matrix returns the 3x3 camera matrix K
func (p *Pinhole) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		p.Fx, 0, p.Ppx,
		0, p.Fy, p.Ppy,
		0, 0, 1,
	})
}

// Undistort returns the ray (x, y, 1) of a pixel in normalized coordinates
func (p *Pinhole) Undistort(px r2.Point) r3.Vector {

	n := r2.Point{
		X: (px.X - p.Ppx) / p.Fx,
		Y: (px.Y - p.Ppy) / p.Fy,
	}

	n = p.Distortion.Undistort(n)

	return r3.Vector{X: n.X, Y: n.Y, Z: 1}
}

// Project maps a ray to its pixel, false if the ray points behind the camera
func (p *Pinhole) Project(ray r3.Vector) (r2.Point, bool) {

	if ray.Z <= 0 {
		return r2.Point{}, false
	}

	n := p.Distortion.Distort(r2.Point{X: ray.X / ray.Z, Y: ray.Y / ray.Z})

	return r2.Point{
		X: n.X*p.Fx + p.Ppx,
		Y: n.Y*p.Fy + p.Ppy,
	}, true
}

package camera

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Fisheye is the Kannala-Brandt equidistant model,
// theta_d = theta*(1 + k1*theta^2 + k2*theta^4 + k3*theta^6 + k4*theta^8)
type Fisheye struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Fx     float64 `yaml:"fx"`
	Fy     float64 `yaml:"fy"`
	Ppx    float64 `yaml:"ppx"`
	Ppy    float64 `yaml:"ppy"`
	K1     float64 `yaml:"k1"`
	K2     float64 `yaml:"k2"`
	K3     float64 `yaml:"k3"`
	K4     float64 `yaml:"k4"`
}

// CheckValid checks the intrinsics describe a usable camera
func (f *Fisheye) CheckValid() error {

	if f == nil {
		return fmt.Errorf("%w: no intrinsics given", ErrInvalidIntrinsics)
	}

	if f.Width <= 0 || f.Height <= 0 || f.Fx <= 0 || f.Fy <= 0 {
		return fmt.Errorf("%w: fisheye %dx%d fx=%v fy=%v", ErrInvalidIntrinsics,
			f.Width, f.Height, f.Fx, f.Fy)
	}

	return nil
}

func (f *Fisheye) distortTheta(theta float64) float64 {
	t2 := theta * theta
	return theta * (1 + t2*(f.K1+t2*(f.K2+t2*(f.K3+t2*f.K4))))
}

// Undistort returns the unit viewing ray of a pixel
func (f *Fisheye) Undistort(px r2.Point) r3.Vector {

	mx := (px.X - f.Ppx) / f.Fx
	my := (px.Y - f.Ppy) / f.Fy
	thetaD := math.Hypot(mx, my)

	if thetaD < 1e-12 {
		return r3.Vector{Z: 1}
	}

	// solve distortTheta(theta) = thetaD
	theta := thetaD

	for i := 0; i < 20; i++ {
		t2 := theta * theta
		fx := f.distortTheta(theta) - thetaD
		dfx := 1 + t2*(3*f.K1+t2*(5*f.K2+t2*(7*f.K3+t2*9*f.K4)))

		if dfx == 0 {
			break
		}

		step := fx / dfx
		theta -= step

		if math.Abs(step) < 1e-12 {
			break
		}
	}

	s := math.Sin(theta) / thetaD

	return r3.Vector{X: mx * s, Y: my * s, Z: math.Cos(theta)}
}

// Project maps a ray to its pixel, false for the zero ray
func (f *Fisheye) Project(ray r3.Vector) (r2.Point, bool) {

	if ray.Norm() == 0 {
		return r2.Point{}, false
	}

	rxy := math.Hypot(ray.X, ray.Y)

	if rxy < 1e-12 {
		return r2.Point{X: f.Ppx, Y: f.Ppy}, true
	}

	thetaD := f.distortTheta(math.Atan2(rxy, ray.Z))

	return r2.Point{
		X: f.Fx*thetaD*ray.X/rxy + f.Ppx,
		Y: f.Fy*thetaD*ray.Y/rxy + f.Ppy,
	}, true
}

package camera

import (
	"fmt"

	"github.com/golang/geo/r2"
)

// BrownConrady holds radial (K1..K3) and tangential (P1, P2) distortion
// coefficients acting on normalized image coordinates
type BrownConrady struct {
	K1 float64 `yaml:"k1" json:"k1"`
	K2 float64 `yaml:"k2" json:"k2"`
	K3 float64 `yaml:"k3" json:"k3"`
	P1 float64 `yaml:"p1" json:"p1"`
	P2 float64 `yaml:"p2" json:"p2"`
}

// NewBrownConrady takes coefficients in OpenCV order k1, k2, p1, p2, k3,
// missing trailing values are zero
func NewBrownConrady(coeffs []float64) (*BrownConrady, error) {

	if len(coeffs) > 5 {
		return nil, fmt.Errorf("expected at most 5 distortion coefficients, got %d", len(coeffs))
	}

	c := make([]float64, 5)
	copy(c, coeffs)

	return &BrownConrady{K1: c[0], K2: c[1], P1: c[2], P2: c[3], K3: c[4]}, nil
}

// Distort applies the forward model to an undistorted normalized point
func (bc *BrownConrady) Distort(p r2.Point) r2.Point {

	if bc == nil {
		return p
	}

	x, y := p.X, p.Y
	rsq := x*x + y*y
	radial := 1 + bc.K1*rsq + bc.K2*rsq*rsq + bc.K3*rsq*rsq*rsq

	return r2.Point{
		X: x*radial+2*bc.P1*x*y+bc.P2*(rsq+2*x*x),
		Y: y*radial+2*bc.P2*x*y+bc.P1*(rsq+2*y*y),
	}
}

// Undistort inverts Distort with Newton-Raphson iterations starting at the
// distorted point
func (bc *BrownConrady) Undistort(p r2.Point) r2.Point {

	if bc == nil {
		return p
	}

	const (
		maxIterations = 20
		tolerance     = 1e-10
	)

	xu, yu := p.X, p.Y

	for i := 0; i < maxIterations; i++ {
		rsq := xu*xu + yu*yu
		r4 := rsq * rsq
		radial := 1 + bc.K1*rsq + bc.K2*r4 + bc.K3*r4*rsq

		errX := xu*radial + 2*bc.P1*xu*yu + bc.P2*(rsq+2*xu*xu) - p.X
		errY := yu*radial + 2*bc.P2*xu*yu + bc.P1*(rsq+2*yu*yu) - p.Y

		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		dRadial := bc.K1 + 2*bc.K2*rsq + 3*bc.K3*r4

		jxx := radial + 2*xu*xu*dRadial + 2*bc.P1*yu + 6*bc.P2*xu
		jxy := 2*xu*yu*dRadial + 2*bc.P1*xu + 2*bc.P2*yu
		jyx := 2*xu*yu*dRadial + 2*bc.P2*yu + 2*bc.P1*xu
		jyy := radial + 2*yu*yu*dRadial + 2*bc.P2*xu + 6*bc.P1*yu

		det := jxx*jyy - jxy*jyx

		if det == 0 {
			break
		}

		xu -= (jyy*errX - jxy*errY) / det
		yu -= (-jyx*errX + jxx*errY) / det
	}

	return r2.Point{X: xu, Y: yu}
}

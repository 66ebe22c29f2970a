package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/swdee/go-stereotrack/geometry"
)

// VirtualView is a rectified pinhole view synthesised from a fisheye camera
// looking along Rotation*(0,0,1) in the fisheye camera frame
type VirtualView struct {
	Intrinsics Pinhole
	Rotation   *mat.Dense
}

// Undistort returns the ray of a view pixel in the fisheye camera frame
func (v *VirtualView) Undistort(px r2.Point) r3.Vector {
	return geometry.Rotate(v.Rotation, v.Intrinsics.Undistort(px))
}

// SideStrip is the horizontal concatenation of side views of one fisheye
// camera.  The view of a pixel is chosen by its column, x / view width.
type SideStrip struct {
	Views []VirtualView
}

// NewSideStrip creates count side views sharing the intrinsics k.  View i
// looks perpendicular to the optical axis, rotated i*90 degrees about it.
func NewSideStrip(k Pinhole, count int) *SideStrip {

	s := &SideStrip{}
	tilt := geometry.RotationFromEuler(0, math.Pi/2, 0)

	for i := 0; i < count; i++ {
		var r mat.Dense
		r.Mul(geometry.RotationFromEuler(0, 0, float64(i)*math.Pi/2), tilt)

		s.Views = append(s.Views, VirtualView{Intrinsics: k, Rotation: &r})
	}

	return s
}

// ViewIndex returns the index of the side view containing pixel column x
func (s *SideStrip) ViewIndex(x float64) int {

	w := s.Views[0].Intrinsics.Width
	idx := int(x) / w

	if idx < 0 {
		return 0
	}

	if idx >= len(s.Views) {
		return len(s.Views) - 1
	}

	return idx
}

// Width returns the total pixel width of the strip
func (s *SideStrip) Width() int {
	return len(s.Views) * s.Views[0].Intrinsics.Width
}

// Undistort returns the ray of a strip pixel in the fisheye camera frame
func (s *SideStrip) Undistort(px r2.Point) r3.Vector {

	idx := s.ViewIndex(px.X)
	local := r2.Point{
		X: px.X - float64(idx*s.Views[0].Intrinsics.Width),
		Y: px.Y,
	}

	return s.Views[idx].Undistort(local)
}

// TopView returns the virtual view looking along the fisheye optical axis
func TopView(k Pinhole) *VirtualView {
	return &VirtualView{
		Intrinsics: k,
		Rotation:   mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
	}
}

// Package camera provides the camera models used to turn tracked pixels into
// viewing rays: pinhole with Brown-Conrady distortion, Kannala-Brandt
// fisheye and the virtual pinhole views synthesised from a fisheye camera.
package camera

import (
	"errors"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// ErrInvalidIntrinsics is returned by CheckValid for unusable parameters
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// Model maps a raw pixel to a 3D viewing ray in the camera frame
type Model interface {
	Undistort(px r2.Point) r3.Vector
}

// Projector is implemented by models that can also map a ray back to a pixel
type Projector interface {
	Model
	Project(ray r3.Vector) (r2.Point, bool)
}

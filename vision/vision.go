// Package vision defines the image processing primitives the trackers and
// the calibrator are built on.  Implementations live in the cvbackend (gocv)
// and gobackend (pure Go) subpackages and are interchangeable.
package vision

import (
	"errors"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyImage is returned when a primitive is given an empty image
var ErrEmptyImage = errors.New("empty image")

// Pyramid is an image pyramid built by a Backend.  It must be closed when
// no longer needed and may only be passed back to the Backend that built it.
type Pyramid interface {
	// Levels returns the number of levels including the base image
	Levels() int
	// Size returns the size of the base image
	Size() image.Point
	Close() error
}

// KeyPoint is a detected keypoint
type KeyPoint struct {
	X, Y     float64
	Size     float64
	Angle    float64
	Response float64
	Octave   int
}

// Pt returns the keypoint position
func (k KeyPoint) Pt() r2.Point {
	return r2.Point{X: k.X, Y: k.Y}
}

// Descriptors holds one binary descriptor per keypoint
type Descriptors [][]byte

// DMatch is a descriptor match between a query and a train descriptor set
type DMatch struct {
	QueryIdx int
	TrainIdx int
	Distance float64
}

// Backend is the strategy interface over the image processing primitives
type Backend interface {
	// BuildPyramid builds an image pyramid of the given number of levels
	BuildPyramid(img *image.Gray, levels int) (Pyramid, error)

	// OpticalFlow tracks prevPts from prev into cur.  When predicted is not
	// nil it holds the initial guess for every point.  The returned flags
	// are false for points that could not be tracked.
	OpticalFlow(cur, prev Pyramid, prevPts, predicted []r2.Point) ([]r2.Point, []bool, error)

	// DetectCorners returns up to maxCount corners where mask is non zero
	// (nil mask means the whole image), strongest first
	DetectCorners(img, mask *image.Gray, maxCount int, quality, minDist float64) ([]r2.Point, error)

	// DetectAndDescribe detects keypoints and computes binary descriptors
	DetectAndDescribe(img, mask *image.Gray) ([]KeyPoint, Descriptors, error)

	// MatchDescriptors matches every query descriptor to its nearest train
	// descriptor by Hamming distance, keeping only mutual best matches
	MatchDescriptors(query, train Descriptors) ([]DMatch, error)

	// EstimateEssentialMatrix estimates E with RANSAC such that
	// b^T*E*a = 0 for normalized coordinates of the pixel pairs
	EstimateEssentialMatrix(a, b []r2.Point, k *mat.Dense, confidence, threshold float64) (*mat.Dense, []bool, error)

	// DecomposeEssential returns the two rotation candidates and the unit
	// translation direction of E
	DecomposeEssential(e *mat.Dense) (*mat.Dense, *mat.Dense, r3.Vector, error)

	Close() error
}

// Mask reports whether pixel p is usable under mask, nil masks accept all
func Mask(mask *image.Gray, p image.Point) bool {
	if mask == nil {
		return true
	}
	if !p.In(mask.Bounds()) {
		return false
	}
	return mask.GrayAt(p.X, p.Y).Y != 0
}

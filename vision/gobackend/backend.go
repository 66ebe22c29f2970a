// Package gobackend is a pure Go implementation of vision.Backend.  It is
// slower than the OpenCV backend but has no cgo dependency, which makes it
// the backend used by tests and on hosts without OpenCV.
package gobackend

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/swdee/go-stereotrack/geometry"
	"github.com/swdee/go-stereotrack/vision"
)

const (
	// describeMaxCount is the number of keypoints DetectAndDescribe keeps
	describeMaxCount = 1000
	// describeMinDist is the minimum keypoint spacing of DetectAndDescribe
	describeMinDist = 7
)

// Backend implements vision.Backend in pure Go
type Backend struct {
	pool      *bufferPool
	estimator *geometry.Estimator
	lk        lkParams
}

// New returns a pure Go backend, seed drives the RANSAC sampler
func New(seed int64) *Backend {
	return &Backend{
		pool:      newBufferPool(),
		estimator: geometry.NewEstimator(seed),
		lk:        defaultLK,
	}
}

var _ vision.Backend = (*Backend)(nil)

// BuildPyramid builds a pyramid of up to levels levels
func (b *Backend) BuildPyramid(img *image.Gray, levels int) (vision.Pyramid, error) {

	if img == nil || img.Bounds().Empty() {
		return nil, vision.ErrEmptyImage
	}

	if levels < 1 {
		levels = 1
	}

	return buildPyramid(img, levels, b.pool), nil
}

func (b *Backend) pyramidOf(p vision.Pyramid) (*pyramid, error) {
	pyr, ok := p.(*pyramid)
	if !ok || pyr == nil || len(pyr.levels) == 0 {
		return nil, fmt.Errorf("pyramid %T was not built by the go backend", p)
	}
	return pyr, nil
}

// OpticalFlow runs pyramidal Lucas-Kanade with a 21x21 window
func (b *Backend) OpticalFlow(cur, prev vision.Pyramid, prevPts,
	predicted []r2.Point) ([]r2.Point, []bool, error) {

	cp, err := b.pyramidOf(cur)

	if err != nil {
		return nil, nil, err
	}

	pp, err := b.pyramidOf(prev)

	if err != nil {
		return nil, nil, err
	}

	if predicted != nil && len(predicted) != len(prevPts) {
		return nil, nil, fmt.Errorf("got %d predictions for %d points",
			len(predicted), len(prevPts))
	}

	out := make([]r2.Point, len(prevPts))
	status := make([]bool, len(prevPts))

	for i, p := range prevPts {
		var guess *r2.Point

		if predicted != nil {
			guess = &predicted[i]
		}

		out[i], status[i] = b.lk.trackPoint(pp, cp, p, guess)
	}

	return out, status, nil
}

// DetectCorners finds Shi-Tomasi corners
func (b *Backend) DetectCorners(img, mask *image.Gray, maxCount int, quality,
	minDist float64) ([]r2.Point, error) {

	if img == nil || img.Bounds().Empty() {
		return nil, vision.ErrEmptyImage
	}

	if maxCount <= 0 {
		return nil, nil
	}

	f := fromGray(img, make([]float32, img.Bounds().Dx()*img.Bounds().Dy()))

	return cornerPoints(goodFeatures(f, mask, maxCount, quality, minDist, 1)), nil
}

// DetectAndDescribe finds Shi-Tomasi corners and computes 256 bit BRIEF
// descriptors on a smoothed copy of the image.  Descriptors are not steered,
// which suits rectified stereo pairs with little relative roll.
func (b *Backend) DetectAndDescribe(img, mask *image.Gray) ([]vision.KeyPoint, vision.Descriptors, error) {

	if img == nil || img.Bounds().Empty() {
		return nil, nil, vision.ErrEmptyImage
	}

	f := fromGray(img, make([]float32, img.Bounds().Dx()*img.Bounds().Dy()))
	cs := goodFeatures(f, mask, describeMaxCount, 0.01, describeMinDist, patchRadius+1)
	kps, desc := describe(boxBlur(f, 2), cs)

	return kps, desc, nil
}

// MatchDescriptors brute force matches with a cross check
func (b *Backend) MatchDescriptors(query, train vision.Descriptors) ([]vision.DMatch, error) {

	for _, set := range []vision.Descriptors{query, train} {
		for _, d := range set {
			if len(d) != descriptorBytes {
				return nil, fmt.Errorf("descriptor length %d, expected %d", len(d), descriptorBytes)
			}
		}
	}

	return crossCheckMatch(query, train), nil
}

// EstimateEssentialMatrix runs RANSAC with the normalized 8-point solver
func (b *Backend) EstimateEssentialMatrix(a, bp []r2.Point, k *mat.Dense, confidence,
	threshold float64) (*mat.Dense, []bool, error) {
	return b.estimator.Estimate(a, bp, k, confidence, threshold)
}

// DecomposeEssential splits E into rotation candidates and translation
func (b *Backend) DecomposeEssential(e *mat.Dense) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	return geometry.DecomposeEssential(e)
}

// Close releases the backend, pyramids stay valid until closed themselves
func (b *Backend) Close() error {
	return nil
}

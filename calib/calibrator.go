// Package calib refines the extrinsic transform of a stereo pair online from
// accumulated point correspondences.
//
// Correspondences are kept in a bounded FIFO buffer.  Once enough have been
// collected every batch re-estimates the essential matrix over the whole
// buffer, which is decomposed into rotation and translation candidates.  A
// candidate is accepted only when it lies close to the previously accepted
// estimate so a single bad batch can not make the estimate jump.
package calib

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/swdee/go-stereotrack/filter"
	"github.com/swdee/go-stereotrack/geometry"
	"github.com/swdee/go-stereotrack/logging"
	"github.com/swdee/go-stereotrack/vision"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientData is returned while too few correspondences are
	// available to estimate the essential matrix
	ErrInsufficientData = errors.New("insufficient correspondences")
	// ErrInvalidPrior is returned for an unusable initial extrinsic
	ErrInvalidPrior = errors.New("invalid initial extrinsic")
	// ErrPointCount is returned when the two sides of a batch differ in length
	ErrPointCount = errors.New("correspondence count mismatch")
	// ErrInvalidParams is returned for calibrator parameters out of range
	ErrInvalidParams = errors.New("invalid calibrator parameters")
)

// tieEpsilon is the rotation distance difference below which the two
// rotation candidates are treated as equally close
const tieEpsilon = 1e-12

// Params configures a Calibrator
type Params struct {
	// BufferSize is the maximum number of correspondences retained
	BufferSize int
	// MinBatch is the minimum number of correspondences in a batch
	MinBatch int
	// MinPoints is the minimum number of buffered correspondences before
	// the essential matrix is estimated
	MinPoints int
	// Confidence and Threshold (pixels) are passed to RANSAC
	Confidence float64
	Threshold  float64
	// MaxRotationDelta is the maximum Frobenius distance of an accepted
	// rotation from the previous one
	MaxRotationDelta float64
	// MaxTranslationDelta is the maximum distance of an accepted unit
	// translation from the previous one
	MaxTranslationDelta float64
	// Features is the number of keypoints detected per image by
	// FindCorrespondences, spread over a GridCols x GridRows grid
	Features int
	GridCols int
	GridRows int
	// MinRansacPoints is the number of filtered matches above which
	// FindCorrespondences keeps only RANSAC inliers
	MinRansacPoints int
	// Cascade filters image pair matches, nil uses filter.DefaultCascade
	Cascade filter.Filter
}

// DefaultParams returns the default calibrator parameters
func DefaultParams() Params {
	return Params{
		BufferSize:          DefaultBufferSize,
		MinBatch:            10,
		MinPoints:           50,
		Confidence:          0.99,
		Threshold:           1.0,
		MaxRotationDelta:    0.1,
		MaxTranslationDelta: 0.1,
		Features:            1000,
		GridCols:            4,
		GridRows:            3,
		MinRansacPoints:     10,
	}
}

// Validate checks the parameters are usable
func (p Params) Validate() error {

	if p.MinPoints < 8 {
		return fmt.Errorf("%w: minimum points %d below the 8 point solver",
			ErrInvalidParams, p.MinPoints)
	}

	if p.BufferSize < p.MinPoints {
		return fmt.Errorf("%w: buffer size %d below minimum points %d",
			ErrInvalidParams, p.BufferSize, p.MinPoints)
	}

	if p.MinBatch < 1 {
		return fmt.Errorf("%w: minimum batch %d", ErrInvalidParams, p.MinBatch)
	}

	if p.Confidence <= 0 || p.Confidence >= 1 {
		return fmt.Errorf("%w: confidence %v not in (0,1)", ErrInvalidParams, p.Confidence)
	}

	if p.Threshold <= 0 {
		return fmt.Errorf("%w: threshold %v", ErrInvalidParams, p.Threshold)
	}

	if p.MaxRotationDelta <= 0 || p.MaxTranslationDelta <= 0 {
		return fmt.Errorf("%w: acceptance deltas must be positive", ErrInvalidParams)
	}

	if p.Features < 1 || p.GridCols < 1 || p.GridRows < 1 {
		return fmt.Errorf("%w: region detection needs features and a grid", ErrInvalidParams)
	}

	// RANSAC runs on more than MinRansacPoints matches
	if p.MinRansacPoints < 7 {
		return fmt.Errorf("%w: minimum RANSAC points %d", ErrInvalidParams, p.MinRansacPoints)
	}

	return nil
}

// Calibrator estimates the extrinsic transform of a stereo pair.  It has a
// single writer, Estimate and State may be called from other goroutines
type Calibrator struct {
	backend    vision.Backend
	k          *mat.Dense
	params     Params
	cascade    filter.Filter
	scale      float64
	buf        *Buffer
	pending    *mat.Dense
	estimate   atomic.Pointer[Estimate]
	calibrated atomic.Bool
	logger     *zap.SugaredLogger
}

// New returns a Calibrator starting from the prior rotation r0 and
// translation t0.  The baseline length |t0| fixes the scale of every
// estimate.  K is the camera matrix shared by both cameras
func New(backend vision.Backend, r0 mat.Matrix, t0 r3.Vector, k *mat.Dense,
	params Params, logger *zap.SugaredLogger) (*Calibrator, error) {

	if rr, rc := r0.Dims(); rr != 3 || rc != 3 {
		return nil, fmt.Errorf("%w: rotation is %dx%d", ErrInvalidPrior, rr, rc)
	}

	if kr, kc := k.Dims(); kr != 3 || kc != 3 {
		return nil, fmt.Errorf("%w: camera matrix is %dx%d", ErrInvalidPrior, kr, kc)
	}

	scale := t0.Norm()

	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w: baseline length %v", ErrInvalidPrior, scale)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	c := &Calibrator{
		backend: backend,
		k:       mat.DenseCopyOf(k),
		params:  params,
		cascade: params.Cascade,
		scale:   scale,
		buf:     NewBuffer(params.BufferSize),
		logger:  logging.OrNop(logger),
	}

	if c.cascade == nil {
		c.cascade = filter.DefaultCascade()
	}

	c.estimate.Store(newEstimate(r0, t0, scale))

	return c, nil
}

// Estimate returns the current estimate, which must not be modified
func (c *Calibrator) Estimate() *Estimate {
	return c.estimate.Load()
}

// State returns the calibration state
func (c *Calibrator) State() State {
	if c.calibrated.Load() {
		return Calibrated
	}
	return Uncertain
}

// Scale returns the fixed baseline length
func (c *Calibrator) Scale() float64 {
	return c.scale
}

// Buffered returns the number of buffered correspondences
func (c *Calibrator) Buffered() int {
	return c.buf.Len()
}

// Ingest buffers the correspondences a[i] <-> b[i] and, once enough are
// buffered, estimates the essential matrix over the whole buffer.  The
// estimate is held until TryUpdate.  ErrInsufficientData is returned for
// batches that are too small, which are not buffered, and while the buffer
// holds too few correspondences
func (c *Calibrator) Ingest(a, b []r2.Point) error {

	if len(a) != len(b) {
		return fmt.Errorf("%w: %d != %d", ErrPointCount, len(a), len(b))
	}

	if len(a) < c.params.MinBatch {
		return fmt.Errorf("%w: batch of %d, need %d", ErrInsufficientData,
			len(a), c.params.MinBatch)
	}

	c.buf.Append(a, b)

	if c.buf.Len() < c.params.MinPoints {
		return fmt.Errorf("%w: buffered %d, need %d", ErrInsufficientData,
			c.buf.Len(), c.params.MinPoints)
	}

	bufA, bufB := c.buf.Points()
	e, _, err := c.backend.EstimateEssentialMatrix(bufA, bufB, c.k,
		c.params.Confidence, c.params.Threshold)

	if errors.Is(err, geometry.ErrDegenerate) {
		c.logger.Debugw("essential matrix degenerate", "buffered", c.buf.Len())
		c.pending = nil
		return nil
	}

	if err != nil {
		return fmt.Errorf("estimate essential matrix: %w", err)
	}

	c.pending = e

	return nil
}

// chooseRotation returns the candidate closest to cur and its distance.
// Ties are broken by the lexicographically smaller element sequence
func chooseRotation(cur, r1, r2 mat.Matrix) (mat.Matrix, float64) {

	d1 := geometry.RotationDistance(cur, r1)
	d2 := geometry.RotationDistance(cur, r2)

	if math.Abs(d1-d2) <= tieEpsilon {
		if geometry.LexLess(r2, r1) {
			return r2, d2
		}
		return r1, d1
	}

	if d2 < d1 {
		return r2, d2
	}

	return r1, d1
}

// TryUpdate decomposes the pending essential matrix and accepts the
// candidate when it is close to the current estimate.  Without a pending
// estimate or for degenerate geometry it returns false and no error
func (c *Calibrator) TryUpdate() (bool, error) {

	if c.pending == nil {
		return false, nil
	}

	e := c.pending
	c.pending = nil

	r1, r2, t, err := c.backend.DecomposeEssential(e)

	if errors.Is(err, geometry.ErrDegenerate) {
		c.logger.Debugw("essential matrix decomposition degenerate")
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("decompose essential matrix: %w", err)
	}

	// the second camera sits on the positive x axis of the first
	if t.X > 0 {
		t = t.Mul(-1)
	}

	cur := c.estimate.Load()
	r, dr := chooseRotation(cur.Rotation, r1, r2)
	dt := t.Sub(cur.Direction()).Norm()

	if !(dr < c.params.MaxRotationDelta && dt < c.params.MaxTranslationDelta) {
		c.logger.Debugw("rejected extrinsic candidate", "rotation_delta", dr,
			"translation_delta", dt)
		return false, nil
	}

	next := newEstimate(r, t.Mul(c.scale), c.scale)
	c.estimate.Store(next)
	c.calibrated.Store(true)

	euler := next.EulerDegrees()
	c.logger.Infow("updated extrinsic", "roll", euler.X, "pitch", euler.Y,
		"yaw", euler.Z, "translation", next.Translation,
		"rotation_delta", dr, "translation_delta", dt)

	return true, nil
}

// Calibrate ingests a batch and tries to update the estimate
func (c *Calibrator) Calibrate(a, b []r2.Point) (bool, error) {

	if err := c.Ingest(a, b); err != nil {
		return false, err
	}

	return c.TryUpdate()
}

// FindCorrespondences detects and matches keypoints between a left and a
// right image, filters the matches with the cascade and, when enough
// remain, keeps the RANSAC inliers.  A is the left and B the right pixel
func (c *Calibrator) FindCorrespondences(left, right *image.Gray) ([]filter.Correspondence, error) {

	kpL, descL, err := DetectByRegion(c.backend, left, c.params.GridCols,
		c.params.GridRows, c.params.Features)

	if err != nil {
		return nil, fmt.Errorf("left image: %w", err)
	}

	kpR, descR, err := DetectByRegion(c.backend, right, c.params.GridCols,
		c.params.GridRows, c.params.Features)

	if err != nil {
		return nil, fmt.Errorf("right image: %w", err)
	}

	matches, err := c.backend.MatchDescriptors(descL, descR)

	if err != nil {
		return nil, fmt.Errorf("match descriptors: %w", err)
	}

	cs, err := filter.FromMatches(kpL, kpR, matches)

	if err != nil {
		return nil, err
	}

	cs = c.cascade(cs)

	c.logger.Debugw("image pair matches", "left", len(kpL), "right", len(kpR),
		"matches", len(matches), "filtered", len(cs))

	// unverified matches never reach the buffer
	if len(cs) <= c.params.MinRansacPoints {
		return nil, nil
	}

	a, b := filter.Points(cs)
	_, inliers, err := c.backend.EstimateEssentialMatrix(a, b, c.k,
		c.params.Confidence, c.params.Threshold)

	if errors.Is(err, geometry.ErrDegenerate) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("estimate essential matrix: %w", err)
	}

	kept := cs[:0]

	for i, in := range inliers {
		if in {
			kept = append(kept, cs[i])
		}
	}

	return kept, nil
}

// CalibrateImages finds the correspondences of an image pair and feeds
// them to Calibrate
func (c *Calibrator) CalibrateImages(left, right *image.Gray) (bool, error) {

	cs, err := c.FindCorrespondences(left, right)

	if err != nil {
		return false, err
	}

	a, b := filter.Points(cs)

	return c.Calibrate(a, b)
}

// Reset empties the buffer and drops the pending estimate, the accepted
// estimate is kept
func (c *Calibrator) Reset() {
	c.buf.Reset()
	c.pending = nil
}

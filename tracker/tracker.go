// Package tracker maintains temporally consistent sets of tracked feature
// points across the camera sub-views of a mono, stereo or fisheye rig.
//
// Every frame each tracked sub-view propagates its points with pyramidal
// optical flow, replaces lost points by detecting new corners away from the
// surviving ones, undistorts all points to rays and derives ray velocities.
// Seeded sub-views (the right image of a stereo pair, the down side strip of
// a fisheye rig) instead take the points of their paired view and flow them
// across so the same id is observed by both cameras.
package tracker

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/logging"
	"github.com/swdee/go-stereotrack/vision"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrImageCount is returned when a tracker is given the wrong number of
// images for a frame
var ErrImageCount = errors.New("unexpected number of images")

// Observation is a feature seen by one camera in the current frame
type Observation struct {
	Camera   int
	Pixel    r2.Point
	Ray      r3.Vector
	Velocity r3.Vector
}

// FeatureFrame holds the observations of a frame keyed by feature id.  An
// id seen by both cameras of a pair has two observations
type FeatureFrame map[int][]Observation

// Tracker is implemented by the mono, stereo and fisheye trackers
type Tracker interface {
	// TrackFrame processes the images of one frame captured at ts
	TrackFrame(ts time.Time, imgs ...*image.Gray) (FeatureFrame, error)
	// RemoveOutliers drops the given ids at the next frame
	RemoveOutliers(ids []int)
	// DetectPoints returns new corners to bring cur up to require points,
	// or nothing when cur holds at least three quarters of require
	DetectPoints(img, mask *image.Gray, cur []r2.Point, require int) ([]r2.Point, error)
	// SetPrediction sets the expected pixel positions of ids in the next
	// frame, used as initial flow guess and consumed by that frame
	SetPrediction(pred map[int]r2.Point)
	// Views returns the per sub-view state
	Views() []*TrackState
	// Trail returns the pixel history, nil when disabled
	Trail() *Trail
	// Reset drops all tracked points, ids are not reused afterwards
	Reset() error
	Close() error
}

// New returns the tracker variant for mode.  The number of camera models
// depends on the mode, mono takes one, stereo takes left and right and
// fisheye takes up top, up side, down top and down side
func New(mode Mode, backend vision.Backend, models []camera.Model,
	params Params, logger *zap.SugaredLogger) (Tracker, error) {

	if err := params.Validate(mode); err != nil {
		return nil, err
	}

	want := map[Mode]int{ModeMono: 1, ModeStereo: 2, ModeFisheye: 4}[mode]

	if len(models) != want {
		return nil, fmt.Errorf("%w: %v tracker wants %d camera models, got %d",
			ErrInvalidParams, mode, want, len(models))
	}

	switch mode {
	case ModeMono:
		return NewMonoTracker(backend, models[0], params, logger), nil
	case ModeStereo:
		return NewStereoTracker(backend, models[0], models[1], params, logger), nil
	default:
		return NewFisheyeTracker(backend, [4]camera.Model{models[0], models[1],
			models[2], models[3]}, params, logger), nil
	}
}

// core holds the behaviour shared by all tracker variants
type core struct {
	backend    vision.Backend
	params     Params
	ids        *IDGenerator
	removed    map[int]struct{}
	prediction map[int]r2.Point
	trail      *Trail
	prevTime   time.Time
	frames     int
	logger     *zap.SugaredLogger
}

func newCore(backend vision.Backend, params Params, logger *zap.SugaredLogger) core {

	c := core{
		backend: backend,
		params:  params,
		ids:     NewIDGenerator(),
		removed: make(map[int]struct{}),
		logger:  logging.OrNop(logger),
	}

	if params.TrailSize > 0 {
		c.trail = NewTrail(params.TrailSize)
	}

	return c
}

// newState returns a tracked sub-view state with the predictor attached
// when enabled
func (c *core) newState(name string, cam, require int, model camera.Model,
	mask *image.Gray) *TrackState {

	s := NewTrackState(name, cam, require, model, mask)

	if c.params.Predict {
		s.predictor = NewPredictor(c.params.PredictPositionStd,
			c.params.PredictVelocityStd)
	}

	return s
}

// RemoveOutliers drops the given ids at the next frame
func (c *core) RemoveOutliers(ids []int) {
	for _, id := range ids {
		c.removed[id] = struct{}{}
	}
}

// SetPrediction sets the expected positions for the next frame
func (c *core) SetPrediction(pred map[int]r2.Point) {

	c.prediction = make(map[int]r2.Point, len(pred))

	for id, p := range pred {
		c.prediction[id] = p
	}
}

// Trail returns the pixel history, nil when disabled
func (c *core) Trail() *Trail {
	return c.trail
}

// DetectPoints returns up to require-len(cur) new corners no closer than
// the minimum distance to cur or to each other
func (c *core) DetectPoints(img, mask *image.Gray, cur []r2.Point,
	require int) ([]r2.Point, error) {

	lack := require - len(cur)

	if lack <= require/4 {
		return nil, nil
	}

	cands, err := c.backend.DetectCorners(img, mask, lack, c.params.Quality,
		c.params.MinDist)

	if err != nil {
		return nil, fmt.Errorf("detect corners: %w", err)
	}

	pts := filterByRadius(cur, cands, c.params.MinDist)

	if len(pts) > lack {
		pts = pts[:lack]
	}

	return pts, nil
}

// elapsed returns the time since the previous frame, zero for the first
func (c *core) elapsed(ts time.Time) time.Duration {

	if c.prevTime.IsZero() {
		return 0
	}

	return ts.Sub(c.prevTime)
}

// predicted returns the initial flow guess for the points of s, nil when
// no point has a prediction
func (c *core) predicted(s *TrackState) []r2.Point {

	var kalman map[int]r2.Point

	if s.predictor != nil {
		kalman = s.predictor.Predict(s.ids)
	}

	if len(c.prediction) == 0 && len(kalman) == 0 {
		return nil
	}

	out := make([]r2.Point, len(s.pts))
	found := false

	for i, id := range s.ids {
		out[i] = s.pts[i]

		if p, ok := c.prediction[id]; ok {
			out[i] = p
			found = true
		} else if p, ok := kalman[id]; ok {
			out[i] = p
			found = true
		}
	}

	if !found {
		return nil
	}

	return out
}

// buildPyramid builds the current pyramid of s from img
func (c *core) buildPyramid(s *TrackState, img *image.Gray) error {

	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("%s: %w", s.Name, vision.ErrEmptyImage)
	}

	pyr, err := c.backend.BuildPyramid(img, c.params.PyramidLevels)

	if err != nil {
		return fmt.Errorf("build pyramid of %s: %w", s.Name, err)
	}

	s.curPyr = pyr
	s.size = img.Bounds().Size()

	return nil
}

// propagate flows the points of s from the previous into the current image
// and drops the ones lost, outside the image or marked for removal
func (c *core) propagate(s *TrackState, img *image.Gray) error {

	if err := c.buildPyramid(s, img); err != nil {
		return err
	}

	if s.prevPyr == nil || len(s.pts) == 0 {
		s.clear()
		return nil
	}

	pts, status, err := c.backend.OpticalFlow(s.curPyr, s.prevPyr, s.pts,
		c.predicted(s))

	if err != nil {
		return fmt.Errorf("optical flow of %s: %w", s.Name, err)
	}

	s.pts = pts
	keep := make([]bool, len(pts))

	for i, p := range pts {
		_, removed := c.removed[s.ids[i]]
		keep[i] = status[i] && s.inside(p) && !removed
	}

	s.compact(keep)

	for i := range s.ages {
		s.ages[i]++
	}

	return nil
}

// detect tops up s with new corners from img
func (c *core) detect(s *TrackState, img *image.Gray) error {

	pts, err := c.DetectPoints(img, s.Mask, s.pts, s.Require)

	if err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}

	for _, p := range pts {
		s.add(p, c.ids.GetNext(), 0)
	}

	if s.predictor != nil {
		if err := s.predictor.Observe(s.ids, s.pts); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}

	return nil
}

// track propagates and tops up a tracked sub-view
func (c *core) track(s *TrackState, img *image.Gray) error {

	if err := c.propagate(s, img); err != nil {
		return err
	}

	return c.detect(s, img)
}

// link seeds dst with the points of src by flowing them from the current
// image of src into img, keeping the ids of src
func (c *core) link(src, dst *TrackState, img *image.Gray) error {

	if err := c.buildPyramid(dst, img); err != nil {
		return err
	}

	ages := dst.ageByID()
	dst.clear()

	if len(src.pts) == 0 {
		return nil
	}

	pts, status, err := c.backend.OpticalFlow(dst.curPyr, src.curPyr, src.pts, nil)

	if err != nil {
		return fmt.Errorf("optical flow from %s to %s: %w", src.Name, dst.Name, err)
	}

	var back []r2.Point
	var backStatus []bool

	if c.params.FlowBack {
		back, backStatus, err = c.backend.OpticalFlow(src.curPyr, dst.curPyr, pts, src.pts)

		if err != nil {
			return fmt.Errorf("back flow from %s to %s: %w", dst.Name, src.Name, err)
		}
	}

	for i, p := range pts {
		if !status[i] || !dst.inside(p) {
			continue
		}

		if back != nil && (!backStatus[i] ||
			back[i].Sub(src.pts[i]).Norm() > c.params.FlowBackThreshold) {
			continue
		}

		id := src.ids[i]
		age := 0

		if a, ok := ages[id]; ok {
			age = a + 1
		}

		dst.add(p, id, age)
	}

	return nil
}

// finish undistorts every view, builds the frame and makes the current
// frame the previous one
func (c *core) finish(ts time.Time, start time.Time, views ...*TrackState) (FeatureFrame, error) {

	dt := c.elapsed(ts)
	frame := make(FeatureFrame)

	var err error

	for _, s := range views {
		s.undistort(dt)
		s.observations(frame)
		err = multierr.Append(err, s.advance())
	}

	if c.trail != nil {
		c.trail.Add(frame)
	}

	c.prevTime = ts
	c.prediction = nil
	c.removed = make(map[int]struct{})
	c.frames++

	c.logger.Debugw("tracked frame", "frame", c.frames, "features", len(frame),
		"elapsed", time.Since(start))

	if err != nil {
		return frame, fmt.Errorf("release pyramids: %w", err)
	}

	return frame, nil
}

// abort releases the current pyramids of a frame that failed
func (c *core) abort(views ...*TrackState) {
	for _, s := range views {
		if s.curPyr != nil {
			s.curPyr.Close()
			s.curPyr = nil
		}
	}
}

// reset clears the views and the per frame inputs
func (c *core) reset(views ...*TrackState) error {

	var err error

	for _, s := range views {
		err = multierr.Append(err, s.reset())
	}

	c.prevTime = time.Time{}
	c.prediction = nil
	c.removed = make(map[int]struct{})

	if c.trail != nil {
		c.trail.Reset()
	}

	return err
}

package tracker

import (
	"fmt"
	"image"
	"time"

	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/vision"
	"go.uber.org/zap"
)

// StereoTracker tracks the left camera (camera 0) and seeds the right
// camera (camera 1) with the left points every frame
type StereoTracker struct {
	core
	left  *TrackState
	right *TrackState
}

// NewStereoTracker returns a tracker for a stereo pair
func NewStereoTracker(backend vision.Backend, left, right camera.Model,
	params Params, logger *zap.SugaredLogger) *StereoTracker {

	t := &StereoTracker{core: newCore(backend, params, logger)}
	t.left = t.newState("left", 0, params.MaxFeatures, left, params.Mask)
	t.right = NewTrackState("right", 1, params.MaxFeatures, right, nil)

	return t
}

// TrackFrame processes a left and a right image
func (t *StereoTracker) TrackFrame(ts time.Time, imgs ...*image.Gray) (FeatureFrame, error) {

	if len(imgs) != 2 {
		return nil, fmt.Errorf("%w: stereo tracker wants 2 images, got %d",
			ErrImageCount, len(imgs))
	}

	start := time.Now()

	if err := t.track(t.left, imgs[0]); err != nil {
		t.abort(t.left)
		return nil, err
	}

	if err := t.link(t.left, t.right, imgs[1]); err != nil {
		t.abort(t.left, t.right)
		return nil, err
	}

	return t.finish(ts, start, t.left, t.right)
}

// Views returns the left and right views
func (t *StereoTracker) Views() []*TrackState {
	return []*TrackState{t.left, t.right}
}

// Reset drops all tracked points
func (t *StereoTracker) Reset() error {
	return t.reset(t.left, t.right)
}

// Close releases the pyramids held by the tracker
func (t *StereoTracker) Close() error {
	return t.Reset()
}

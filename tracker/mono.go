package tracker

import (
	"fmt"
	"image"
	"time"

	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/vision"
	"go.uber.org/zap"
)

// MonoTracker tracks a single pinhole camera reported as camera 0
type MonoTracker struct {
	core
	view *TrackState
}

// NewMonoTracker returns a tracker for a single camera
func NewMonoTracker(backend vision.Backend, model camera.Model, params Params,
	logger *zap.SugaredLogger) *MonoTracker {

	t := &MonoTracker{core: newCore(backend, params, logger)}
	t.view = t.newState("mono", 0, params.MaxFeatures, model, params.Mask)

	return t
}

// TrackFrame processes one image
func (t *MonoTracker) TrackFrame(ts time.Time, imgs ...*image.Gray) (FeatureFrame, error) {

	if len(imgs) != 1 {
		return nil, fmt.Errorf("%w: mono tracker wants 1 image, got %d",
			ErrImageCount, len(imgs))
	}

	start := time.Now()

	if err := t.track(t.view, imgs[0]); err != nil {
		t.abort(t.view)
		return nil, err
	}

	return t.finish(ts, start, t.view)
}

// Views returns the tracked view
func (t *MonoTracker) Views() []*TrackState {
	return []*TrackState{t.view}
}

// Reset drops all tracked points
func (t *MonoTracker) Reset() error {
	return t.reset(t.view)
}

// Close releases the pyramids held by the tracker
func (t *MonoTracker) Close() error {
	return t.Reset()
}

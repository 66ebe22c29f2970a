package tracker

import (
	"fmt"
	"image"
	"time"

	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/vision"
	"go.uber.org/zap"
)

// fisheye sub-view indexes
const (
	UpTop = iota
	UpSide
	DownTop
	DownSide
)

// FisheyeTracker tracks the virtual sub-views of an up (camera 0) and a
// down (camera 1) facing fisheye camera.  The top views and the up side
// strip are tracked independently, the down side strip is seeded from the
// up side strip.  Side images are the horizontal concatenation of the
// virtual side views, see preprocess.ConcatSide
type FisheyeTracker struct {
	core
	views   [4]*TrackState
	enabled [4]bool
}

// NewFisheyeTracker returns a tracker for a fisheye pair.  Models are
// ordered up top, up side, down top, down side
func NewFisheyeTracker(backend vision.Backend, models [4]camera.Model,
	params Params, logger *zap.SugaredLogger) *FisheyeTracker {

	f := params.Fisheye
	t := &FisheyeTracker{
		core:    newCore(backend, params, logger),
		enabled: [4]bool{f.EnableUpTop, f.EnableUpSide, f.EnableDownTop, f.EnableDownSide},
	}

	t.views[UpTop] = t.newState("up_top", 0, f.TopFeatures, models[UpTop], f.TopMask)
	t.views[UpSide] = t.newState("up_side", 0, f.SideFeatures, models[UpSide], nil)
	t.views[DownTop] = t.newState("down_top", 1, f.TopFeatures, models[DownTop], f.TopMask)
	t.views[DownSide] = NewTrackState("down_side", 1, f.SideFeatures, models[DownSide], nil)

	return t
}

// active returns the enabled views
func (t *FisheyeTracker) active() []*TrackState {

	var out []*TrackState

	for i, s := range t.views {
		if t.enabled[i] {
			out = append(out, s)
		}
	}

	return out
}

// TrackFrame processes the up top, up side, down top and down side images.
// Images of disabled views are ignored and may be nil
func (t *FisheyeTracker) TrackFrame(ts time.Time, imgs ...*image.Gray) (FeatureFrame, error) {

	if len(imgs) != 4 {
		return nil, fmt.Errorf("%w: fisheye tracker wants 4 images, got %d",
			ErrImageCount, len(imgs))
	}

	start := time.Now()
	active := t.active()

	for _, i := range []int{UpTop, UpSide, DownTop} {
		if !t.enabled[i] {
			continue
		}

		if err := t.propagate(t.views[i], imgs[i]); err != nil {
			t.abort(active...)
			return nil, err
		}
	}

	for _, i := range []int{UpTop, DownTop, UpSide} {
		if !t.enabled[i] {
			continue
		}

		if err := t.detect(t.views[i], imgs[i]); err != nil {
			t.abort(active...)
			return nil, err
		}
	}

	if t.enabled[DownSide] {
		if err := t.link(t.views[UpSide], t.views[DownSide], imgs[DownSide]); err != nil {
			t.abort(active...)
			return nil, err
		}
	}

	return t.finish(ts, start, active...)
}

// Views returns all four sub-views, disabled ones stay empty
func (t *FisheyeTracker) Views() []*TrackState {
	return t.views[:]
}

// Reset drops all tracked points
func (t *FisheyeTracker) Reset() error {
	return t.reset(t.views[:]...)
}

// Close releases the pyramids held by the tracker
func (t *FisheyeTracker) Close() error {
	return t.Reset()
}

package tracker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/vision"
)

func testModel() *camera.Pinhole {
	return &camera.Pinhole{Width: 640, Height: 480, Fx: 400, Fy: 400, Ppx: 320, Ppy: 240}
}

func testParams() Params {
	p := DefaultParams()
	p.MaxFeatures = 100
	p.MinDist = 30
	return p
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func frameAt(i int) time.Time {
	return epoch.Add(time.Duration(i) * 100 * time.Millisecond)
}

func TestMonoTrackerDetectAndPropagate(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	model := testModel()
	tr := NewMonoTracker(fb, model, testParams(), nil)

	frame, err := tr.TrackFrame(frameAt(0), newImage(0))
	require.NoError(t, err)
	require.Len(t, frame, 100)

	view := tr.Views()[0]
	assert.Equal(t, 100, view.Len())

	for i, id := range view.IDs() {
		assert.Equal(t, i, id)
		assert.Equal(t, 0, view.Ages()[i])

		obs := frame[id]
		require.Len(t, obs, 1)
		assert.Equal(t, 0, obs[0].Camera)
		assert.Equal(t, gridCorners()[i], obs[0].Pixel)
		assert.Equal(t, model.Undistort(obs[0].Pixel), obs[0].Ray)
		assert.Equal(t, r3.Vector{}, obs[0].Velocity)
	}

	frame, err = tr.TrackFrame(frameAt(1), newImage(3))
	require.NoError(t, err)
	require.Len(t, frame, 100)

	// nothing lost so no detection
	assert.Equal(t, 1, fb.cornerCalls)

	for i, id := range view.IDs() {
		assert.Equal(t, i, id)
		assert.Equal(t, 1, view.Ages()[i])

		obs := frame[id][0]
		assert.InDelta(t, gridCorners()[i].X+3, obs.Pixel.X, 1e-9)
		assert.InDelta(t, 0.075, obs.Velocity.X, 1e-9)
		assert.InDelta(t, 0, obs.Velocity.Y, 1e-9)
	}

	require.NoError(t, tr.Close())
	assert.Equal(t, 0, fb.open)
}

func TestMonoTrackerRedetectsBelowThreeQuarters(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	tr := NewMonoTracker(fb, testModel(), testParams(), nil)
	defer tr.Close()

	_, err := tr.TrackFrame(frameAt(0), newImage(0))
	require.NoError(t, err)

	// first two columns lost, 14 points
	fb.lost = func(p r2.Point) bool { return p.X < 100 }

	_, err = tr.TrackFrame(frameAt(1), newImage(0))
	require.NoError(t, err)
	assert.Equal(t, 86, tr.Views()[0].Len())
	assert.Equal(t, 1, fb.cornerCalls)

	// first seven columns lost, far more than a quarter
	fb.lost = func(p r2.Point) bool { return p.X < 300 }

	_, err = tr.TrackFrame(frameAt(2), newImage(0))
	require.NoError(t, err)
	assert.Equal(t, 2, fb.cornerCalls)

	view := tr.Views()[0]
	assert.LessOrEqual(t, view.Len(), 100)
	assert.Greater(t, view.Len(), 86-42)

	for i, id := range view.IDs() {
		if id >= 100 {
			assert.Equal(t, 0, view.Ages()[i])
		}
	}
}

func TestTrackerIDsNeverReused(t *testing.T) {

	rng := rand.New(rand.NewSource(7))
	fb := &fakeBackend{
		corners: gridCorners(),
		lost:    func(r2.Point) bool { return rng.Float64() < 0.15 },
	}

	params := testParams()
	tr := NewMonoTracker(fb, testModel(), params, nil)
	defer tr.Close()

	seen := make(map[int]bool)
	gone := make(map[int]bool)
	prevActive := make(map[int]bool)
	maxID := -1

	for f := 0; f < 60; f++ {

		if f%10 == 5 {
			view := tr.Views()[0]
			require.GreaterOrEqual(t, view.Len(), 3)
			tr.RemoveOutliers(view.IDs()[:3])
		}

		_, err := tr.TrackFrame(frameAt(f), newImage(2*(f%2)))
		require.NoError(t, err)

		view := tr.Views()[0]
		assert.LessOrEqual(t, view.Len(), params.MaxFeatures)

		active := make(map[int]bool)
		var survivors, fresh []r2.Point
		newMax := maxID

		for i, id := range view.IDs() {
			assert.False(t, active[id], "duplicate id %d", id)
			assert.False(t, gone[id], "id %d reused", id)
			active[id] = true

			if !seen[id] {
				assert.Greater(t, id, maxID)
				fresh = append(fresh, view.Points()[i])
				if id > newMax {
					newMax = id
				}
			} else {
				survivors = append(survivors, view.Points()[i])
			}
			seen[id] = true
		}

		// fresh points keep their distance from survivors and each other
		for i, p := range fresh {
			for _, s := range survivors {
				assert.Greater(t, p.Sub(s).Norm(), params.MinDist)
			}
			for _, q := range fresh[i+1:] {
				assert.Greater(t, p.Sub(q).Norm(), params.MinDist)
			}
		}

		for id := range prevActive {
			if !active[id] {
				gone[id] = true
			}
		}

		prevActive = active
		maxID = newMax
	}

	assert.NotEmpty(t, gone)
}

func TestRemoveOutliers(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	tr := NewMonoTracker(fb, testModel(), testParams(), nil)
	defer tr.Close()

	_, err := tr.TrackFrame(frameAt(0), newImage(0))
	require.NoError(t, err)

	tr.RemoveOutliers([]int{0, 1, 2, 3, 4, 1000})

	frame, err := tr.TrackFrame(frameAt(1), newImage(0))
	require.NoError(t, err)
	assert.Len(t, frame, 95)

	for id := 0; id < 5; id++ {
		assert.NotContains(t, frame, id)
	}

	// the removal applies to one frame only
	frame, err = tr.TrackFrame(frameAt(2), newImage(0))
	require.NoError(t, err)
	assert.Len(t, frame, 95)
}

func TestSetPredictionConsumedByNextFrame(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	tr := NewMonoTracker(fb, testModel(), testParams(), nil)
	defer tr.Close()

	_, err := tr.TrackFrame(frameAt(0), newImage(0))
	require.NoError(t, err)

	prev := append([]r2.Point(nil), tr.Views()[0].Points()...)
	tr.SetPrediction(map[int]r2.Point{1: {X: 70, Y: 25}, 5000: {X: 1, Y: 1}})

	_, err = tr.TrackFrame(frameAt(1), newImage(0))
	require.NoError(t, err)
	require.Len(t, fb.predictions, 1)

	pred := fb.predictions[0]
	require.Len(t, pred, 100)
	assert.Equal(t, prev[0], pred[0])
	assert.Equal(t, r2.Point{X: 70, Y: 25}, pred[1])
	assert.Equal(t, prev[2], pred[2])

	_, err = tr.TrackFrame(frameAt(2), newImage(0))
	require.NoError(t, err)
	require.Len(t, fb.predictions, 2)
	assert.Nil(t, fb.predictions[1])
}

func TestKalmanPredictionSeedsFlow(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	params := testParams()
	params.Predict = true

	tr := NewMonoTracker(fb, testModel(), params, nil)
	defer tr.Close()

	_, err := tr.TrackFrame(frameAt(0), newImage(0))
	require.NoError(t, err)

	prev := append([]r2.Point(nil), tr.Views()[0].Points()...)

	_, err = tr.TrackFrame(frameAt(1), newImage(4))
	require.NoError(t, err)

	// points at rest are predicted where they were
	require.Len(t, fb.predictions, 1)
	assert.Equal(t, prev, fb.predictions[0])

	for f := 2; f < 12; f++ {
		_, err = tr.TrackFrame(frameAt(f), newImage(4*f))
		require.NoError(t, err)
	}

	// constant motion of 4 pixels per frame is anticipated
	last := fb.predictions[len(fb.predictions)-1]
	view := tr.Views()[0]

	for i := range view.IDs() {
		assert.InDelta(t, view.Points()[i].X, last[i].X, 1.5)
	}
}

func TestStereoTrackerLinksRightView(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	tr := NewStereoTracker(fb, testModel(), testModel(), testParams(), nil)

	frame, err := tr.TrackFrame(frameAt(0), newImage(0), newImage(-10))
	require.NoError(t, err)
	require.Len(t, frame, 100)

	left, right := tr.Views()[0], tr.Views()[1]
	assert.Equal(t, left.IDs(), right.IDs())

	for _, id := range left.IDs() {
		obs := frame[id]
		require.Len(t, obs, 2)
		assert.Equal(t, 0, obs[0].Camera)
		assert.Equal(t, 1, obs[1].Camera)
		assert.InDelta(t, obs[0].Pixel.X-10, obs[1].Pixel.X, 1e-9)
	}

	_, err = tr.TrackFrame(frameAt(1), newImage(1), newImage(-9))
	require.NoError(t, err)

	for i := range right.IDs() {
		assert.Equal(t, 1, right.Ages()[i])
	}

	// the right view adds no points of its own
	assert.LessOrEqual(t, right.Len(), left.Len())

	require.NoError(t, tr.Close())
	assert.Equal(t, 0, fb.open)
}

func TestStereoTrackerBackFlowCheck(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners(), backDrift: 1}
	tr := NewStereoTracker(fb, testModel(), testModel(), testParams(), nil)
	defer tr.Close()

	frame, err := tr.TrackFrame(frameAt(0), newImage(0), newImage(-10))
	require.NoError(t, err)
	assert.Len(t, frame, 100)
	assert.Equal(t, 0, tr.Views()[1].Len())

	params := testParams()
	params.FlowBack = false

	fb2 := &fakeBackend{corners: gridCorners(), backDrift: 1}
	tr2 := NewStereoTracker(fb2, testModel(), testModel(), params, nil)
	defer tr2.Close()

	_, err = tr2.TrackFrame(frameAt(0), newImage(0), newImage(-10))
	require.NoError(t, err)
	assert.Equal(t, 100, tr2.Views()[1].Len())
}

func TestFisheyeTracker(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	params := testParams()
	params.Fisheye.TopFeatures = 50
	params.Fisheye.SideFeatures = 60

	models := []camera.Model{testModel(), testModel(), testModel(), testModel()}
	tr, err := New(ModeFisheye, fb, models, params, nil)
	require.NoError(t, err)

	frame, err := tr.TrackFrame(frameAt(0), newImage(0), newImage(0), newImage(0), newImage(-5))
	require.NoError(t, err)

	views := tr.Views()
	require.Len(t, views, 4)
	assert.Equal(t, 50, views[UpTop].Len())
	assert.Equal(t, 60, views[UpSide].Len())
	assert.Equal(t, 50, views[DownTop].Len())
	assert.Equal(t, views[UpSide].IDs(), views[DownSide].IDs())

	// top views are detected before the side view
	assert.Equal(t, 0, views[UpTop].IDs()[0])
	assert.Equal(t, 50, views[DownTop].IDs()[0])
	assert.Equal(t, 100, views[UpSide].IDs()[0])

	assert.Len(t, frame, 160)

	for _, id := range views[UpSide].IDs() {
		obs := frame[id]
		require.Len(t, obs, 2)
		assert.Equal(t, 0, obs[0].Camera)
		assert.Equal(t, 1, obs[1].Camera)
	}

	for _, id := range views[DownTop].IDs() {
		assert.Equal(t, 1, frame[id][0].Camera)
	}

	require.NoError(t, tr.Close())
	assert.Equal(t, 0, fb.open)
}

func TestFisheyeTrackerDisabledViews(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	params := testParams()
	params.Fisheye.TopFeatures = 40
	params.Fisheye.EnableDownTop = false
	params.Fisheye.EnableDownSide = false

	models := []camera.Model{testModel(), testModel(), testModel(), testModel()}
	tr, err := New(ModeFisheye, fb, models, params, nil)
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.TrackFrame(frameAt(0), newImage(0), newImage(0), nil, nil)
	require.NoError(t, err)

	views := tr.Views()
	assert.Equal(t, 40, views[UpTop].Len())
	assert.Equal(t, 0, views[DownTop].Len())
	assert.Equal(t, 0, views[DownSide].Len())

	_, err = tr.TrackFrame(frameAt(1), nil, newImage(0), nil, nil)
	assert.ErrorIs(t, err, vision.ErrEmptyImage)
}

func TestNewValidation(t *testing.T) {

	fb := &fakeBackend{}

	_, err := New(ModeStereo, fb, []camera.Model{testModel()}, testParams(), nil)
	assert.ErrorIs(t, err, ErrInvalidParams)

	params := testParams()
	params.Fisheye.EnableUpSide = false
	models := []camera.Model{testModel(), testModel(), testModel(), testModel()}

	_, err = New(ModeFisheye, fb, models, params, nil)
	assert.ErrorIs(t, err, ErrInvalidParams)

	params = testParams()
	params.Quality = 0
	_, err = New(ModeMono, fb, []camera.Model{testModel()}, params, nil)
	assert.ErrorIs(t, err, ErrInvalidParams)

	tr, err := New(ModeMono, fb, []camera.Model{testModel()}, testParams(), nil)
	require.NoError(t, err)

	_, err = tr.TrackFrame(frameAt(0), newImage(0), newImage(0))
	assert.ErrorIs(t, err, ErrImageCount)
}

func TestParseMode(t *testing.T) {

	for _, m := range []Mode{ModeMono, ModeStereo, ModeFisheye} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("quad")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDetectPointsThreshold(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	tr := NewMonoTracker(fb, testModel(), testParams(), nil)

	cur := make([]r2.Point, 80)
	for i := range cur {
		cur[i] = r2.Point{X: -1000, Y: float64(i)}
	}

	// lack of 20 is not more than a quarter of 100
	pts, err := tr.DetectPoints(newImage(0), nil, cur, 100)
	require.NoError(t, err)
	assert.Empty(t, pts)
	assert.Equal(t, 0, fb.cornerCalls)

	pts, err = tr.DetectPoints(newImage(0), nil, cur[:70], 100)
	require.NoError(t, err)
	assert.Len(t, pts, 30)
	assert.Equal(t, 1, fb.cornerCalls)

	pts, err = tr.DetectPoints(newImage(0), nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, pts)
}

func TestFilterByRadius(t *testing.T) {

	rng := rand.New(rand.NewSource(3))

	random := func(n int) []r2.Point {
		pts := make([]r2.Point, n)
		for i := range pts {
			pts[i] = r2.Point{X: rng.Float64() * 640, Y: rng.Float64() * 480}
		}
		return pts
	}

	for trial := 0; trial < 20; trial++ {
		existing := random(40)
		cands := random(300)
		minDist := 10 + rng.Float64()*30

		got := filterByRadius(existing, cands, minDist)

		for i, p := range got {
			for _, e := range existing {
				assert.Greater(t, p.Sub(e).Norm(), minDist)
			}
			for _, q := range got[i+1:] {
				assert.Greater(t, p.Sub(q).Norm(), minDist)
			}
		}

		// a candidate is only dropped when something accepted is close
		kept := append(append([]r2.Point(nil), existing...), got...)
		for _, c := range cands {
			near := false
			for _, k := range kept {
				if c.Sub(k).Norm() <= minDist {
					near = true
					break
				}
			}
			assert.True(t, near)
		}
	}

	assert.Len(t, filterByRadius(nil, []r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}}, 0), 1)
}

func TestFilterByRadiusWithoutExisting(t *testing.T) {

	cands := []r2.Point{{X: 10, Y: 10}, {X: 100, Y: 100}, {X: 20, Y: 10}}

	got := filterByRadius(nil, cands, 30)
	assert.Equal(t, []r2.Point{{X: 10, Y: 10}, {X: 100, Y: 100}}, got)

	got = filterByRadius([]r2.Point{}, cands[:1], 30)
	assert.Equal(t, cands[:1], got)
}

func TestVelocity(t *testing.T) {

	ids := []int{1, 2, 3}
	cur := []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 0, Y: 2, Z: 1}, {X: 5, Y: 5, Z: 1}}
	prev := map[int]r3.Vector{
		1: {X: 0.5, Y: 1, Z: 1},
		3: {X: 5, Y: 4, Z: 1},
	}

	v := Velocity(ids, cur, prev, 500*time.Millisecond)
	require.Len(t, v, 3)
	assert.InDelta(t, 1.0, v[0].X, 1e-12)
	assert.Equal(t, r3.Vector{}, v[1])
	assert.InDelta(t, 2.0, v[2].Y, 1e-12)

	for _, dt := range []time.Duration{0, -time.Second} {
		for _, z := range Velocity(ids, cur, prev, dt) {
			assert.Equal(t, r3.Vector{}, z)
		}
	}
}

func TestIDGenerator(t *testing.T) {

	g := NewIDGenerator()
	assert.Equal(t, -1, g.Last())

	for i := 0; i < 5; i++ {
		assert.Equal(t, i, g.GetNext())
	}

	assert.Equal(t, 4, g.Last())
}

func TestResetKeepsIDsUnique(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	tr := NewMonoTracker(fb, testModel(), testParams(), nil)

	_, err := tr.TrackFrame(frameAt(0), newImage(0))
	require.NoError(t, err)
	require.NoError(t, tr.Reset())
	assert.Equal(t, 0, fb.open)
	assert.Equal(t, 0, tr.Views()[0].Len())

	frame, err := tr.TrackFrame(frameAt(1), newImage(0))
	require.NoError(t, err)

	for id, obs := range frame {
		assert.GreaterOrEqual(t, id, 100)
		// velocity history was dropped with the reset
		assert.Equal(t, r3.Vector{}, obs[0].Velocity)
	}

	require.NoError(t, tr.Close())
}

func TestTrail(t *testing.T) {

	fb := &fakeBackend{corners: gridCorners()}
	params := testParams()
	params.TrailSize = 3

	tr := NewMonoTracker(fb, testModel(), params, nil)
	defer tr.Close()

	for f := 0; f < 5; f++ {
		_, err := tr.TrackFrame(frameAt(f), newImage(f))
		require.NoError(t, err)
	}

	pts := tr.Trail().GetPoints(0, 0)
	require.Len(t, pts, 3)
	assert.InDelta(t, 22, pts[0].X, 1e-9)
	assert.InDelta(t, 24, pts[2].X, 1e-9)
	assert.Len(t, tr.Trail().IDs(0), 100)
	assert.Nil(t, tr.Trail().GetPoints(1, 0))

	fb.lost = func(p r2.Point) bool { return p.X < 30 }

	_, err := tr.TrackFrame(frameAt(5), newImage(5))
	require.NoError(t, err)
	assert.Nil(t, tr.Trail().GetPoints(0, 0))
}

package config

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownscale(t *testing.T) {

	cfg, err := Parse([]byte(stereoYAML))
	require.NoError(t, err)

	small, resizers, err := cfg.Downscale(0.5)
	require.NoError(t, err)
	require.Len(t, resizers, 2)
	require.Len(t, small.Cameras, 2)

	k := small.Cameras[0].Intrinsic
	assert.Equal(t, 320, k.Width)
	assert.Equal(t, 240, k.Height)
	assert.InDelta(t, 200, k.Fx, 1e-9)
	assert.InDelta(t, 160, k.Ppx, 1e-9)
	assert.InDelta(t, 120, k.Ppy, 1e-9)
	assert.Equal(t, -0.1, k.Distortion.K1)

	assert.Equal(t, [2]float64{5, 5}, small.Tracker.MaskPolygon[0])
	assert.Equal(t, [2]float64{315, 235}, small.Tracker.MaskPolygon[2])
	assert.InDelta(t, 2.5, small.Tracker.MaskInset, 1e-9)
	assert.InDelta(t, cfg.Tracker.MinDist/2, small.Tracker.MinDist, 1e-9)

	// a pixel and its ray agree between the original and resized camera
	src := r2.Point{X: 100, Y: 50}
	ray := cfg.Cameras[1].Intrinsic.Undistort(src)
	right := small.Cameras[1].Intrinsic
	got, ok := right.Project(ray)
	require.True(t, ok)
	want := resizers[1].ToDest(src)
	assert.InDelta(t, want.X, got.X, 1e-9)
	assert.InDelta(t, want.Y, got.Y, 1e-9)

	// the source configuration is untouched
	assert.Equal(t, 640, cfg.Cameras[0].Intrinsic.Width)
	assert.Equal(t, [2]float64{10, 10}, cfg.Tracker.MaskPolygon[0])

	tp := small.TrackerParams()
	require.NotNil(t, tp.Mask)
	assert.Equal(t, 320, tp.Mask.Bounds().Dx())

	identity, _, err := cfg.Downscale(1)
	require.NoError(t, err)
	assert.Equal(t, cfg.Cameras[1].Intrinsic, identity.Cameras[1].Intrinsic)
}

func TestDownscaleRejects(t *testing.T) {

	cfg, err := Parse([]byte(stereoYAML))
	require.NoError(t, err)

	for _, s := range []float64{0, -0.5, 1.5} {
		_, _, err := cfg.Downscale(s)
		assert.ErrorIs(t, err, ErrInvalidConfig, "scale %v", s)
	}

	cfg.Mode = "fisheye"
	_, _, err = cfg.Downscale(0.5)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

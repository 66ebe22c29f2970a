package config

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/swdee/go-stereotrack/preprocess"
	"github.com/swdee/go-stereotrack/tracker"
)

// Downscale returns a copy of a mono or stereo configuration for frames
// resized by scale, together with the resizer of every camera.  The
// intrinsics, the mask polygon, the mask inset and the minimum feature
// distance are expressed in resized pixels.
func (c *Config) Downscale(scale float64) (*Config, []*preprocess.Resizer, error) {

	if !(scale > 0 && scale <= 1) {
		return nil, nil, fmt.Errorf("%w: scale %v not in (0,1]", ErrInvalidConfig, scale)
	}

	mode, err := c.TrackerMode()

	if err != nil {
		return nil, nil, err
	}

	if mode == tracker.ModeFisheye {
		return nil, nil, fmt.Errorf("%w: fisheye views are sized by their intrinsics",
			ErrInvalidConfig)
	}

	if len(c.Cameras) == 0 {
		return nil, nil, fmt.Errorf("%w: no cameras to scale", ErrInvalidConfig)
	}

	out := *c
	out.Cameras = make([]Camera, len(c.Cameras))
	resizers := make([]*preprocess.Resizer, len(c.Cameras))

	for i, cam := range c.Cameras {
		k := cam.Intrinsic
		r := preprocess.NewResizer(k.Width, k.Height, scaled(k.Width, scale),
			scaled(k.Height, scale))

		resizers[i] = r
		out.Cameras[i] = Camera{Name: cam.Name, Intrinsic: r.ScaleIntrinsics(k)}
	}

	// the detection mask is built at the size of the first camera
	first := resizers[0]

	if len(c.Tracker.MaskPolygon) > 0 {
		out.Tracker.MaskPolygon = make([][2]float64, len(c.Tracker.MaskPolygon))

		for i, v := range c.Tracker.MaskPolygon {
			p := first.ToDest(r2.Point{X: v[0], Y: v[1]})
			out.Tracker.MaskPolygon[i] = [2]float64{p.X, p.Y}
		}
	}

	out.Tracker.MaskInset = c.Tracker.MaskInset * first.ScaleFactor()
	out.Tracker.MinDist = c.Tracker.MinDist * first.ScaleFactor()

	return &out, resizers, nil
}

func scaled(n int, scale float64) int {
	return max(1, int(math.Round(float64(n)*scale)))
}

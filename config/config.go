// Package config loads the YAML configuration of the trackers, the
// calibrator and the example programs.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/swdee/go-stereotrack/calib"
	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/geometry"
	"github.com/swdee/go-stereotrack/preprocess"
	"github.com/swdee/go-stereotrack/tracker"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Backend names
const (
	BackendGoCV = "gocv"
	BackendGo   = "go"
)

// Config is the root of the configuration file
type Config struct {
	// Backend selects the vision backend, gocv or go
	Backend string `yaml:"backend"`
	// Seed seeds the RANSAC sampling of the backend
	Seed        int64       `yaml:"seed"`
	Mode        string      `yaml:"mode"`
	Cameras     []Camera    `yaml:"cameras"`
	Tracker     Tracker     `yaml:"tracker"`
	Fisheye     Fisheye     `yaml:"fisheye"`
	Calibration Calibration `yaml:"calibration"`
	Log         Log         `yaml:"log"`
}

// Camera holds the intrinsics of a mono or stereo camera
type Camera struct {
	Name      string         `yaml:"name"`
	Intrinsic camera.Pinhole `yaml:"intrinsic"`
}

// Tracker holds the tracker parameters
type Tracker struct {
	MaxFeatures        int     `yaml:"max_features"`
	MinDist            float64 `yaml:"min_dist"`
	Quality            float64 `yaml:"quality"`
	PyramidLevels      int     `yaml:"pyramid_levels"`
	FlowBack           bool    `yaml:"flow_back"`
	FlowBackThreshold  float64 `yaml:"flow_back_threshold"`
	Predict            bool    `yaml:"predict"`
	PredictPositionStd float64 `yaml:"predict_position_std"`
	PredictVelocityStd float64 `yaml:"predict_velocity_std"`
	TrailSize          int     `yaml:"trail_size"`
	// MaskPolygon restricts detection to the polygon, shrunk by MaskInset
	// pixels.  Empty means the whole image
	MaskPolygon [][2]float64 `yaml:"mask_polygon"`
	MaskInset   float64      `yaml:"mask_inset"`
}

// Fisheye holds the up and down fisheye cameras and their virtual views
type Fisheye struct {
	Up   camera.Fisheye `yaml:"up"`
	Down camera.Fisheye `yaml:"down"`
	// Top and Side are the intrinsics of the virtual views
	Top       camera.Pinhole `yaml:"top"`
	Side      camera.Pinhole `yaml:"side"`
	SideViews int            `yaml:"side_views"`
	// TopMaskRadius is the radius of the top view detection disc as a
	// fraction of the shorter image side, 0 disables the mask
	TopMaskRadius  float64 `yaml:"top_mask_radius"`
	TopFeatures    int     `yaml:"top_features"`
	SideFeatures   int     `yaml:"side_features"`
	EnableUpTop    bool    `yaml:"enable_up_top"`
	EnableUpSide   bool    `yaml:"enable_up_side"`
	EnableDownTop  bool    `yaml:"enable_down_top"`
	EnableDownSide bool    `yaml:"enable_down_side"`
}

// Calibration holds the calibrator parameters and the prior extrinsic
type Calibration struct {
	Enabled bool `yaml:"enabled"`
	// Rotation is the prior roll, pitch and yaw in degrees
	Rotation [3]float64 `yaml:"rotation"`
	// Translation is the prior position of the first camera origin in the
	// second camera frame, its length fixes the baseline
	Translation         [3]float64 `yaml:"translation"`
	BufferSize          int        `yaml:"buffer_size"`
	MinBatch            int        `yaml:"min_batch"`
	MinPoints           int        `yaml:"min_points"`
	Confidence          float64    `yaml:"confidence"`
	Threshold           float64    `yaml:"threshold"`
	MaxRotationDelta    float64    `yaml:"max_rotation_delta"`
	MaxTranslationDelta float64    `yaml:"max_translation_delta"`
	Features            int        `yaml:"features"`
	GridCols            int        `yaml:"grid_cols"`
	GridRows            int        `yaml:"grid_rows"`
	// Interval is the number of frames between calibration passes
	Interval int `yaml:"interval"`
}

// Log holds the logging settings
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used for keys missing from a file
func Default() *Config {

	tp := tracker.DefaultParams()
	cp := calib.DefaultParams()

	return &Config{
		Backend: BackendGoCV,
		Seed:    1,
		Mode:    tracker.ModeStereo.String(),
		Tracker: Tracker{
			MaxFeatures:        tp.MaxFeatures,
			MinDist:            tp.MinDist,
			Quality:            tp.Quality,
			PyramidLevels:      tp.PyramidLevels,
			FlowBack:           tp.FlowBack,
			FlowBackThreshold:  tp.FlowBackThreshold,
			PredictPositionStd: tp.PredictPositionStd,
			PredictVelocityStd: tp.PredictVelocityStd,
			TrailSize:          30,
		},
		Fisheye: Fisheye{
			SideViews:      4,
			TopMaskRadius:  0.45,
			TopFeatures:    tp.Fisheye.TopFeatures,
			SideFeatures:   tp.Fisheye.SideFeatures,
			EnableUpTop:    tp.Fisheye.EnableUpTop,
			EnableUpSide:   tp.Fisheye.EnableUpSide,
			EnableDownTop:  tp.Fisheye.EnableDownTop,
			EnableDownSide: tp.Fisheye.EnableDownSide,
		},
		Calibration: Calibration{
			BufferSize:          cp.BufferSize,
			MinBatch:            cp.MinBatch,
			MinPoints:           cp.MinPoints,
			Confidence:          cp.Confidence,
			Threshold:           cp.Threshold,
			MaxRotationDelta:    cp.MaxRotationDelta,
			MaxTranslationDelta: cp.MaxTranslationDelta,
			Features:            cp.Features,
			GridCols:            cp.GridCols,
			GridRows:            cp.GridRows,
			Interval:            10,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for the selected mode, all problems
// found are returned together
func (c *Config) Validate() error {

	var err error

	switch strings.ToLower(c.Backend) {
	case BackendGoCV, BackendGo:
	default:
		err = multierr.Append(err, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend))
	}

	mode, merr := tracker.ParseMode(c.Mode)

	if merr != nil {
		return multierr.Append(err, merr)
	}

	want := map[tracker.Mode]int{tracker.ModeMono: 1, tracker.ModeStereo: 2}

	switch mode {
	case tracker.ModeMono, tracker.ModeStereo:
		if len(c.Cameras) != want[mode] {
			err = multierr.Append(err, fmt.Errorf("%w: %v mode wants %d cameras, got %d",
				ErrInvalidConfig, mode, want[mode], len(c.Cameras)))
		}

		for i := range c.Cameras {
			if cerr := c.Cameras[i].Intrinsic.CheckValid(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("camera %d: %w", i, cerr))
			}
		}

	case tracker.ModeFisheye:
		f := &c.Fisheye
		err = multierr.Append(err, wrapField("fisheye.up", f.Up.CheckValid()))
		err = multierr.Append(err, wrapField("fisheye.down", f.Down.CheckValid()))
		err = multierr.Append(err, wrapField("fisheye.top", f.Top.CheckValid()))
		err = multierr.Append(err, wrapField("fisheye.side", f.Side.CheckValid()))

		if f.SideViews < 1 {
			err = multierr.Append(err, fmt.Errorf("%w: side views %d", ErrInvalidConfig, f.SideViews))
		}
	}

	if len(c.Tracker.MaskPolygon) > 0 && len(c.Tracker.MaskPolygon) < 3 {
		err = multierr.Append(err, fmt.Errorf("%w: mask polygon needs at least 3 vertices",
			ErrInvalidConfig))
	}

	if c.Calibration.Enabled {
		if mode != tracker.ModeStereo {
			err = multierr.Append(err, fmt.Errorf("%w: calibration needs stereo mode",
				ErrInvalidConfig))
		}

		if c.prior().Norm() == 0 {
			err = multierr.Append(err, fmt.Errorf("%w: calibration translation is zero",
				ErrInvalidConfig))
		}

		if c.Calibration.Interval < 1 {
			err = multierr.Append(err, fmt.Errorf("%w: calibration interval %d",
				ErrInvalidConfig, c.Calibration.Interval))
		}

		err = multierr.Append(err, wrapField("calibration", c.CalibParams().Validate()))
	}

	return err
}

func wrapField(field string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", field, err)
}

func (c *Config) prior() r3.Vector {
	t := c.Calibration.Translation
	return r3.Vector{X: t[0], Y: t[1], Z: t[2]}
}

// TrackerMode returns the parsed tracker mode
func (c *Config) TrackerMode() (tracker.Mode, error) {
	return tracker.ParseMode(c.Mode)
}

// FisheyeRig holds the fisheye cameras and the virtual views tracked on them
type FisheyeRig struct {
	Up, Down         *camera.Fisheye
	UpTop, DownTop   *camera.VirtualView
	UpSide, DownSide *camera.SideStrip
}

// Rig returns the fisheye cameras and their virtual views
func (c *Config) Rig() *FisheyeRig {

	f := c.Fisheye
	up, down := f.Up, f.Down

	return &FisheyeRig{
		Up:       &up,
		Down:     &down,
		UpTop:    camera.TopView(f.Top),
		DownTop:  camera.TopView(f.Top),
		UpSide:   camera.NewSideStrip(f.Side, f.SideViews),
		DownSide: camera.NewSideStrip(f.Side, f.SideViews),
	}
}

// Models returns the camera models in the order tracker.New expects
func (c *Config) Models() ([]camera.Model, error) {

	mode, err := c.TrackerMode()

	if err != nil {
		return nil, err
	}

	if mode == tracker.ModeFisheye {
		rig := c.Rig()
		return []camera.Model{rig.UpTop, rig.UpSide, rig.DownTop, rig.DownSide}, nil
	}

	models := make([]camera.Model, len(c.Cameras))

	for i := range c.Cameras {
		k := c.Cameras[i].Intrinsic
		models[i] = &k
	}

	return models, nil
}

// TrackerParams returns the tracker parameters including detection masks
func (c *Config) TrackerParams() tracker.Params {

	t := c.Tracker
	f := c.Fisheye

	p := tracker.Params{
		MaxFeatures:        t.MaxFeatures,
		MinDist:            t.MinDist,
		Quality:            t.Quality,
		PyramidLevels:      t.PyramidLevels,
		FlowBack:           t.FlowBack,
		FlowBackThreshold:  t.FlowBackThreshold,
		Predict:            t.Predict,
		PredictPositionStd: t.PredictPositionStd,
		PredictVelocityStd: t.PredictVelocityStd,
		TrailSize:          t.TrailSize,
		Fisheye: tracker.FisheyeParams{
			TopFeatures:    f.TopFeatures,
			SideFeatures:   f.SideFeatures,
			EnableUpTop:    f.EnableUpTop,
			EnableUpSide:   f.EnableUpSide,
			EnableDownTop:  f.EnableDownTop,
			EnableDownSide: f.EnableDownSide,
		},
	}

	if len(t.MaskPolygon) >= 3 && len(c.Cameras) > 0 {
		poly := make([]r2.Point, len(t.MaskPolygon))
		for i, v := range t.MaskPolygon {
			poly[i] = r2.Point{X: v[0], Y: v[1]}
		}

		k := c.Cameras[0].Intrinsic
		p.Mask = preprocess.RegionMask(k.Width, k.Height, poly, t.MaskInset)
	}

	if f.TopMaskRadius > 0 && f.Top.Width > 0 && f.Top.Height > 0 {
		short := math.Min(float64(f.Top.Width), float64(f.Top.Height))
		center := r2.Point{X: float64(f.Top.Width) / 2, Y: float64(f.Top.Height) / 2}
		p.Fisheye.TopMask = preprocess.DiscMask(f.Top.Width, f.Top.Height, center,
			f.TopMaskRadius*short)
	}

	return p
}

// CalibParams returns the calibrator parameters
func (c *Config) CalibParams() calib.Params {

	cc := c.Calibration
	p := calib.DefaultParams()

	p.BufferSize = cc.BufferSize
	p.MinBatch = cc.MinBatch
	p.MinPoints = cc.MinPoints
	p.Confidence = cc.Confidence
	p.Threshold = cc.Threshold
	p.MaxRotationDelta = cc.MaxRotationDelta
	p.MaxTranslationDelta = cc.MaxTranslationDelta
	p.Features = cc.Features
	p.GridCols = cc.GridCols
	p.GridRows = cc.GridRows

	return p
}

// Prior returns the prior extrinsic rotation and translation
func (c *Config) Prior() (*mat.Dense, r3.Vector) {

	deg := c.Calibration.Rotation
	r := geometry.RotationFromEuler(deg[0]*math.Pi/180, deg[1]*math.Pi/180,
		deg[2]*math.Pi/180)

	return r, c.prior()
}

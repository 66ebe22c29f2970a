package tracker

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrInvalidParams is returned when tracker parameters can not be used
var ErrInvalidParams = errors.New("invalid tracker parameters")

// Mode selects the tracker variant
type Mode int

const (
	ModeMono Mode = iota
	ModeStereo
	ModeFisheye
)

// String returns the configuration name of the mode
func (m Mode) String() string {
	switch m {
	case ModeMono:
		return "mono"
	case ModeStereo:
		return "stereo"
	case ModeFisheye:
		return "fisheye"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the configuration name of a mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "mono":
		return ModeMono, nil
	case "stereo":
		return ModeStereo, nil
	case "fisheye":
		return ModeFisheye, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, s)
}

// FisheyeParams configures the sub-views of the fisheye tracker
type FisheyeParams struct {
	TopFeatures  int
	SideFeatures int
	// TopMask restricts detection in both top views, usually a disc
	TopMask        *image.Gray
	EnableUpTop    bool
	EnableUpSide   bool
	EnableDownTop  bool
	EnableDownSide bool
}

// Params configures a tracker
type Params struct {
	// MaxFeatures is the number of points tracked in a mono view or the
	// left view of a stereo pair
	MaxFeatures int
	// MinDist is the minimum pixel distance between tracked points
	MinDist float64
	// Quality is the corner quality level relative to the best corner
	Quality float64
	// PyramidLevels includes the base image
	PyramidLevels int
	// FlowBack enables the backward flow check of seeded views
	FlowBack          bool
	FlowBackThreshold float64
	// Predict enables the constant velocity Kalman predictor for views
	// without an externally supplied prediction
	Predict            bool
	PredictPositionStd float64
	PredictVelocityStd float64
	// TrailSize is the length of the per id pixel history, 0 disables it
	TrailSize int
	// Mask restricts detection in mono and stereo views
	Mask    *image.Gray
	Fisheye FisheyeParams
}

// DefaultParams returns the default tracker parameters
func DefaultParams() Params {
	return Params{
		MaxFeatures:        150,
		MinDist:            30,
		Quality:            0.01,
		PyramidLevels:      4,
		FlowBack:           true,
		FlowBackThreshold:  0.5,
		PredictPositionStd: 1,
		PredictVelocityStd: 1,
		Fisheye: FisheyeParams{
			TopFeatures:    150,
			SideFeatures:   200,
			EnableUpTop:    true,
			EnableUpSide:   true,
			EnableDownTop:  true,
			EnableDownSide: true,
		},
	}
}

// Validate checks the parameters for the given mode
func (p Params) Validate(mode Mode) error {

	if p.MinDist < 0 {
		return fmt.Errorf("%w: negative minimum distance %v", ErrInvalidParams, p.MinDist)
	}

	if p.Quality <= 0 || p.Quality > 1 {
		return fmt.Errorf("%w: quality %v not in (0,1]", ErrInvalidParams, p.Quality)
	}

	if p.PyramidLevels < 1 {
		return fmt.Errorf("%w: pyramid levels %d", ErrInvalidParams, p.PyramidLevels)
	}

	if p.FlowBack && p.FlowBackThreshold <= 0 {
		return fmt.Errorf("%w: flow back threshold %v", ErrInvalidParams, p.FlowBackThreshold)
	}

	if p.Predict && (p.PredictPositionStd <= 0 || p.PredictVelocityStd <= 0) {
		return fmt.Errorf("%w: predictor noise must be positive", ErrInvalidParams)
	}

	switch mode {
	case ModeMono, ModeStereo:
		if p.MaxFeatures < 0 {
			return fmt.Errorf("%w: max features %d", ErrInvalidParams, p.MaxFeatures)
		}
	case ModeFisheye:
		f := p.Fisheye
		if f.TopFeatures < 0 || f.SideFeatures < 0 {
			return fmt.Errorf("%w: negative fisheye feature count", ErrInvalidParams)
		}
		if f.EnableDownSide && !f.EnableUpSide {
			return fmt.Errorf("%w: down side view is seeded from the up side view", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidParams, mode)
	}

	return nil
}

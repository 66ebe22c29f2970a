package calib

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/swdee/go-stereotrack/geometry"
	"gonum.org/v1/gonum/mat"
)

// State is the calibration state
type State int

const (
	// Uncertain means no estimate has been accepted since construction
	Uncertain State = iota
	// Calibrated means at least one estimate has been accepted
	Calibrated
)

// String returns the name of the state
func (s State) String() string {
	switch s {
	case Uncertain:
		return "uncertain"
	case Calibrated:
		return "calibrated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Estimate is an extrinsic estimate between the two cameras.  A point X_a
// in the first camera frame maps to X_b = Rotation*X_a + Translation in the
// second.  Estimates are immutable once published
type Estimate struct {
	Rotation    *mat.Dense
	Translation r3.Vector
	// Scale is the baseline length, the norm of Translation
	Scale     float64
	Essential *mat.Dense
}

// newEstimate returns the estimate for r and t with its essential matrix
func newEstimate(r mat.Matrix, t r3.Vector, scale float64) *Estimate {
	return &Estimate{
		Rotation:    mat.DenseCopyOf(r),
		Translation: t,
		Scale:       scale,
		Essential:   geometry.ComposeEssential(r, t),
	}
}

// Direction returns the unit translation
func (e *Estimate) Direction() r3.Vector {
	return e.Translation.Mul(1 / e.Scale)
}

// EulerDegrees returns roll, pitch and yaw of the rotation in degrees
func (e *Estimate) EulerDegrees() r3.Vector {
	return geometry.Degrees(geometry.EulerAngles(e.Rotation))
}

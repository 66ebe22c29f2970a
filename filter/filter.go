// Package filter implements the cascade of correspondence filters used to
// purify two-view matches before triangulation or extrinsic calibration.
// Every filter takes a match list and returns a possibly smaller one, later
// filters estimate their statistics on the already reduced population.
package filter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/geometry"
	"github.com/swdee/go-stereotrack/vision"
)

const (
	// DefaultHammingFloor is the minimum descriptor distance threshold
	DefaultHammingFloor = 40
	// DefaultOffsetPercent is the tail trimmed off each side of the offsets
	DefaultOffsetPercent = 0.05
	// DefaultEpipolarTolerance is the maximum |fb^T*E*fa| of a match
	DefaultEpipolarTolerance = 0.01
	// DefaultPixelDistanceRatio scales the median pixel displacement
	DefaultPixelDistanceRatio = 1.5
)

// ErrMatchIndex is returned when a match references a keypoint that does
// not exist
var ErrMatchIndex = errors.New("match index out of range")

// Correspondence is a pixel in view A matched to a pixel in view B
type Correspondence struct {
	A        r2.Point
	B        r2.Point
	Distance float64
}

// Filter reduces a list of correspondences
type Filter func([]Correspondence) []Correspondence

// Axis selects the pixel coordinate an offset is measured along
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// FromMatches resolves descriptor matches into correspondences, A taken from
// the query keypoints and B from the train keypoints
func FromMatches(query, train []vision.KeyPoint, matches []vision.DMatch) ([]Correspondence, error) {

	out := make([]Correspondence, 0, len(matches))

	for _, m := range matches {
		if m.QueryIdx < 0 || m.QueryIdx >= len(query) ||
			m.TrainIdx < 0 || m.TrainIdx >= len(train) {
			return nil, fmt.Errorf("%w: query %d of %d, train %d of %d", ErrMatchIndex,
				m.QueryIdx, len(query), m.TrainIdx, len(train))
		}

		out = append(out, Correspondence{
			A:        query[m.QueryIdx].Pt(),
			B:        train[m.TrainIdx].Pt(),
			Distance: m.Distance,
		})
	}

	return out, nil
}

// Points splits correspondences into the A and B point lists
func Points(cs []Correspondence) ([]r2.Point, []r2.Point) {

	a := make([]r2.Point, len(cs))
	b := make([]r2.Point, len(cs))

	for i, c := range cs {
		a[i], b[i] = c.A, c.B
	}

	return a, b
}

// Chain applies filters in order
func Chain(filters ...Filter) Filter {
	return func(cs []Correspondence) []Correspondence {
		for _, f := range filters {
			if len(cs) == 0 {
				return nil
			}
			cs = f(cs)
		}
		return cs
	}
}

// DefaultCascade is the descriptor distance filter followed by horizontal
// and vertical offset trimming
func DefaultCascade() Filter {
	return Chain(
		ByDescriptorDistance(DefaultHammingFloor),
		ByAxisOffset(AxisX, DefaultOffsetPercent),
		ByAxisOffset(AxisY, DefaultOffsetPercent),
	)
}

// ByDescriptorDistance keeps matches with distance below
// max(2*minimum distance, floor)
func ByDescriptorDistance(floor float64) Filter {
	return func(cs []Correspondence) []Correspondence {

		if len(cs) == 0 {
			return nil
		}

		minDist := math.Inf(1)

		for _, c := range cs {
			minDist = math.Min(minDist, c.Distance)
		}

		thresh := math.Max(2*minDist, floor)

		var out []Correspondence

		for _, c := range cs {
			if c.Distance < thresh {
				out = append(out, c)
			}
		}

		return out
	}
}

func offset(c Correspondence, axis Axis) float64 {
	if axis == AxisX {
		return c.A.X - c.B.X
	}
	return c.A.Y - c.B.Y
}

// ByAxisOffset sorts the A-B offsets along axis and keeps the matches
// strictly inside the interval left after trimming percent of the offsets
// from each end.  At least the smallest and the largest offset are always
// trimmed.  When nothing remains between the bounds no match is returned.
// Percent is clamped to [0, 0.5].
func ByAxisOffset(axis Axis, percent float64) Filter {

	percent = math.Max(0, math.Min(0.5, percent))

	if math.IsNaN(percent) {
		percent = 0
	}

	return func(cs []Correspondence) []Correspondence {

		n := len(cs)
		offsets := make([]float64, n)

		for i, c := range cs {
			offsets[i] = offset(c, axis)
		}

		sort.Float64s(offsets)

		l := int(float64(n) * percent)

		if l == 0 {
			l = 1
		}

		r := int(float64(n) * (1 - percent))

		if r >= n-1 {
			r = n - 2
		}

		if r <= l {
			return nil
		}

		lv, rv := offsets[l], offsets[r]

		var out []Correspondence

		for _, c := range cs {
			if d := offset(c, axis); d > lv && d < rv {
				out = append(out, c)
			}
		}

		return out
	}
}

// ByEpipolar keeps matches whose rays satisfy |fb^T*E*fa| < tolerance, with
// fa from camera a and fb from camera b
func ByEpipolar(e mat.Matrix, a, b camera.Model, tolerance float64) Filter {
	return func(cs []Correspondence) []Correspondence {

		var out []Correspondence

		for _, c := range cs {
			res := geometry.EpipolarResidual(e, a.Undistort(c.A), b.Undistort(c.B))

			if math.Abs(res) < tolerance {
				out = append(out, c)
			}
		}

		return out
	}
}

// ByPixelDistance keeps matches whose pixel displacement between A and B is
// below ratio times the median displacement
func ByPixelDistance(ratio float64) Filter {
	return func(cs []Correspondence) []Correspondence {

		if len(cs) == 0 {
			return nil
		}

		dists := make([]float64, len(cs))

		for i, c := range cs {
			dists[i] = c.A.Sub(c.B).Norm()
		}

		sorted := append([]float64(nil), dists...)
		sort.Float64s(sorted)

		thresh := ratio * stat.Quantile(0.5, stat.Empirical, sorted, nil)

		var out []Correspondence

		for i, c := range cs {
			if dists[i] < thresh {
				out = append(out, c)
			}
		}

		return out
	}
}

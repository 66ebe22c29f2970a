package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RotationDistance returns the Frobenius norm of a-b
func RotationDistance(a, b mat.Matrix) float64 {
	var d mat.Dense
	d.Sub(a, b)
	return mat.Norm(&d, 2)
}

// LexLess reports whether the row-major elements of a are lexicographically
// smaller than those of b.  Used as the deterministic tie-break between two
// equidistant rotation candidates.
func LexLess(a, b mat.Matrix) bool {

	r, c := a.Dims()

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a.At(i, j) != b.At(i, j) {
				return a.At(i, j) < b.At(i, j)
			}
		}
	}

	return false
}

// EulerAngles returns the roll, pitch, yaw (X, Y, Z) angles in radians of a
// rotation matrix composed as Rz*Ry*Rx
func EulerAngles(r mat.Matrix) r3.Vector {

	sy := math.Hypot(r.At(0, 0), r.At(1, 0))

	if sy < 1e-6 {
		// gimbal lock, yaw is not observable
		return r3.Vector{
			X: math.Atan2(-r.At(1, 2), r.At(1, 1)),
			Y: math.Atan2(-r.At(2, 0), sy),
		}
	}

	return r3.Vector{
		X: math.Atan2(r.At(2, 1), r.At(2, 2)),
		Y: math.Atan2(-r.At(2, 0), sy),
		Z: math.Atan2(r.At(1, 0), r.At(0, 0)),
	}
}

// RotationFromEuler builds Rz(yaw)*Ry(pitch)*Rx(roll), angles in radians
func RotationFromEuler(roll, pitch, yaw float64) *mat.Dense {

	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)

	return mat.NewDense(3, 3, []float64{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr,
		-sp, cp * sr, cp * cr,
	})
}

// Rotate returns r*v
func Rotate(r mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z,
		Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z,
		Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z,
	}
}

// Degrees converts each component of v from radians to degrees
func Degrees(v r3.Vector) r3.Vector {
	return v.Mul(180 / math.Pi)
}

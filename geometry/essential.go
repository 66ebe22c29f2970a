// Package geometry implements two-view epipolar geometry on gonum matrices:
// essential matrix estimation (normalized 8-point inside RANSAC), its
// decomposition into rotation and translation candidates and the rotation
// helpers used to compare calibration estimates.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrTooFewPoints is returned when fewer than 8 correspondences are given
	ErrTooFewPoints = errors.New("at least 8 correspondences are required")
	// ErrDegenerate is returned when a point configuration does not
	// constrain the essential matrix
	ErrDegenerate = errors.New("degenerate point configuration")
)

// minSampleSize is the number of correspondences of the linear solver
const minSampleSize = 8

// Skew returns the cross product matrix [v]x so that [v]x*u = v x u
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// ComposeEssential returns E = [t]x*R for a camera B pose X_b = R*X_a + t
func ComposeEssential(r mat.Matrix, t r3.Vector) *mat.Dense {
	var e mat.Dense
	e.Mul(Skew(t), r)
	return &e
}

// NormalizePixels maps pixel coordinates to normalized image coordinates
// using the inverse of the camera matrix k
func NormalizePixels(pts []r2.Point, k mat.Matrix) ([]r2.Point, error) {

	var kinv mat.Dense

	if err := kinv.Inverse(k); err != nil {
		return nil, fmt.Errorf("camera matrix is not invertible: %w", err)
	}

	out := make([]r2.Point, len(pts))

	for i, p := range pts {
		x := kinv.At(0, 0)*p.X + kinv.At(0, 1)*p.Y + kinv.At(0, 2)
		y := kinv.At(1, 0)*p.X + kinv.At(1, 1)*p.Y + kinv.At(1, 2)
		w := kinv.At(2, 0)*p.X + kinv.At(2, 1)*p.Y + kinv.At(2, 2)
		out[i] = r2.Point{X: x / w, Y: y / w}
	}

	return out, nil
}

// EightPoint estimates the essential matrix from at least 8 correspondences
// in normalized image coordinates such that b^T*E*a = 0.  Points are
// conditioned with a similarity transform before solving and the result is
// projected onto the essential manifold (two equal singular values, one
// zero).
func EightPoint(a, b []r2.Point) (*mat.Dense, error) {

	if len(a) != len(b) {
		return nil, fmt.Errorf("point count mismatch %d != %d", len(a), len(b))
	}

	if len(a) < minSampleSize {
		return nil, ErrTooFewPoints
	}

	na, ta := conditionPoints(a)
	nb, tb := conditionPoints(b)

	if ta == nil || tb == nil {
		return nil, ErrDegenerate
	}

	// accumulate A^T*A of the linear system instead of building the n x 9
	// matrix, the null vector is the eigenvector of the smallest eigenvalue
	ata := mat.NewSymDense(9, nil)
	row := make([]float64, 9)

	for i := range na {
		pa, pb := na[i], nb[i]
		row[0] = pb.X * pa.X
		row[1] = pb.X * pa.Y
		row[2] = pb.X
		row[3] = pb.Y * pa.X
		row[4] = pb.Y * pa.Y
		row[5] = pb.Y
		row[6] = pa.X
		row[7] = pa.Y
		row[8] = 1

		for r := 0; r < 9; r++ {
			for c := r; c < 9; c++ {
				ata.SetSym(r, c, ata.At(r, c)+row[r]*row[c])
			}
		}
	}

	var eig mat.EigenSym

	if ok := eig.Factorize(ata, true); !ok {
		return nil, ErrDegenerate
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// eigenvalues are in ascending order
	en := mat.NewDense(3, 3, nil)

	for i := 0; i < 9; i++ {
		en.Set(i/3, i%3, vecs.At(i, 0))
	}

	// the conditioning transforms are not rotations so only rank 2 holds
	// in conditioned space, the equal singular values are enforced after
	// undoing it
	en, err := projectSingular(en, false)

	if err != nil {
		return nil, err
	}

	// undo conditioning, E = Tb^T * En * Ta
	var c mat.Dense
	c.Mul(tb.T(), en)
	c.Mul(&c, ta)

	e, err := projectSingular(&c, true)

	if err != nil {
		return nil, err
	}

	// fix the scale so estimates are comparable between runs
	norm := mat.Norm(e, 2)

	if norm == 0 || math.IsNaN(norm) {
		return nil, ErrDegenerate
	}

	e.Scale(1/norm, e)

	return e, nil
}

// projectSingular zeroes the smallest singular value of m.  With equal set
// the two remaining values are replaced by their mean.
func projectSingular(m *mat.Dense, equal bool) (*mat.Dense, error) {

	var svd mat.SVD

	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, ErrDegenerate
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vals := svd.Values(nil)

	s1, s2 := vals[0], vals[1]

	if equal {
		s1 = (s1 + s2) / 2
		s2 = s1
	}

	if s1 == 0 {
		return nil, ErrDegenerate
	}

	sigma := mat.NewDiagDense(3, []float64{s1, s2, 0})

	var e mat.Dense
	e.Mul(&u, sigma)
	e.Mul(&e, v.T())

	return &e, nil
}

// conditionPoints translates the points to their centroid and scales them
// so the mean distance to the origin is sqrt(2).  The returned transform is
// nil when all points coincide.
func conditionPoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {

	n := float64(len(pts))

	var mu r2.Point

	for _, p := range pts {
		mu = mu.Add(p)
	}

	mu = mu.Mul(1 / n)

	d := 0.0

	for _, p := range pts {
		d += p.Sub(mu).Norm() / n
	}

	if d < 1e-12 {
		return nil, nil
	}

	scale := math.Sqrt2 / d

	t := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})

	out := make([]r2.Point, len(pts))

	for i, p := range pts {
		out[i] = p.Sub(mu).Mul(scale)
	}

	return out, t
}

// SampsonError returns the first order geometric error of the
// correspondence (a, b) in normalized coordinates under E
func SampsonError(e mat.Matrix, a, b r2.Point) float64 {

	ea := [3]float64{
		e.At(0, 0)*a.X + e.At(0, 1)*a.Y + e.At(0, 2),
		e.At(1, 0)*a.X + e.At(1, 1)*a.Y + e.At(1, 2),
		e.At(2, 0)*a.X + e.At(2, 1)*a.Y + e.At(2, 2),
	}

	etb := [2]float64{
		e.At(0, 0)*b.X + e.At(1, 0)*b.Y + e.At(2, 0),
		e.At(0, 1)*b.X + e.At(1, 1)*b.Y + e.At(2, 1),
	}

	num := b.X*ea[0] + b.Y*ea[1] + ea[2]
	den := ea[0]*ea[0] + ea[1]*ea[1] + etb[0]*etb[0] + etb[1]*etb[1]

	if den == 0 {
		return math.Inf(1)
	}

	return num * num / den
}

// EpipolarResidual returns fb^T*E*fa for two viewing rays
func EpipolarResidual(e mat.Matrix, fa, fb r3.Vector) float64 {

	ea := r3.Vector{
		X: e.At(0, 0)*fa.X + e.At(0, 1)*fa.Y + e.At(0, 2)*fa.Z,
		Y: e.At(1, 0)*fa.X + e.At(1, 1)*fa.Y + e.At(1, 2)*fa.Z,
		Z: e.At(2, 0)*fa.X + e.At(2, 1)*fa.Y + e.At(2, 2)*fa.Z,
	}

	return fb.Dot(ea)
}

package geometry

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// DecomposeEssential splits an essential matrix into its two rotation
// candidates and the unit translation direction (defined up to sign) using
// E = U*diag(1,1,0)*V^T, R1 = U*W*V^T, R2 = U*W^T*V^T, t = U[:,2].
func DecomposeEssential(e mat.Matrix) (*mat.Dense, *mat.Dense, r3.Vector, error) {

	var svd mat.SVD

	if ok := svd.Factorize(e, mat.SVDFull); !ok {
		return nil, nil, r3.Vector{}, ErrDegenerate
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// keep U and V proper rotations
	if mat.Det(&u) < 0 {
		u.Scale(-1, &u)
	}

	if mat.Det(&v) < 0 {
		v.Scale(-1, &v)
	}

	w := mat.NewDense(3, 3, []float64{
		0, 1, 0,
		-1, 0, 0,
		0, 0, 1,
	})

	var r1, r2 mat.Dense

	r1.Mul(&u, w)
	r1.Mul(&r1, v.T())

	r2.Mul(&u, w.T())
	r2.Mul(&r2, v.T())

	t := r3.Vector{X: u.At(0, 2), Y: u.At(1, 2), Z: u.At(2, 2)}

	return &r1, &r2, t.Normalize(), nil
}

package gobackend

import (
	"math"

	"github.com/golang/geo/r2"
)

// lkParams are the pyramidal Lucas-Kanade settings
type lkParams struct {
	// halfWin is half the integration window size, 10 for a 21x21 window
	halfWin int
	// maxIter and epsilon stop the per level iterations
	maxIter int
	epsilon float64
	// minEig rejects windows whose normalized minimum eigenvalue of the
	// gradient matrix is below it
	minEig float64
}

var defaultLK = lkParams{
	halfWin: 10,
	maxIter: 30,
	epsilon: 0.01,
	minEig:  1e-3,
}

// trackPoint tracks p from prev into cur, starting from guess when given.
// Returns false if the point is lost.
func (lk lkParams) trackPoint(prev, cur *pyramid, p r2.Point, guess *r2.Point) (r2.Point, bool) {

	top := len(prev.levels) - 1

	if len(cur.levels)-1 < top {
		top = len(cur.levels) - 1
	}

	scale := math.Pow(2, float64(top))

	// displacement guess at the top level
	var g r2.Point

	if guess != nil {
		g = guess.Sub(p).Mul(1 / scale)
	}

	var d r2.Point

	for l := top; l >= 0; l-- {

		levelScale := math.Pow(2, float64(l))
		pl := p.Mul(1 / levelScale)
		prevImg := prev.levels[l]
		curImg := cur.levels[l]

		// spatial gradient matrix over the window of the previous image
		var gxx, gxy, gyy float64
		n := (2*lk.halfWin + 1) * (2*lk.halfWin + 1)
		ix := make([]float64, n)
		iy := make([]float64, n)
		iv := make([]float64, n)
		k := 0

		for wy := -lk.halfWin; wy <= lk.halfWin; wy++ {
			for wx := -lk.halfWin; wx <= lk.halfWin; wx++ {
				x := pl.X + float64(wx)
				y := pl.Y + float64(wy)

				dx := (prevImg.sample(x+1, y) - prevImg.sample(x-1, y)) / 2
				dy := (prevImg.sample(x, y+1) - prevImg.sample(x, y-1)) / 2

				ix[k], iy[k], iv[k] = dx, dy, prevImg.sample(x, y)
				gxx += dx * dx
				gxy += dx * dy
				gyy += dy * dy
				k++
			}
		}

		det := gxx*gyy - gxy*gxy
		minEig := (gxx + gyy - math.Sqrt((gxx-gyy)*(gxx-gyy)+4*gxy*gxy)) / 2

		if det < 1e-9 || minEig/float64(n) < lk.minEig {
			return r2.Point{}, false
		}

		var nu r2.Point

		for iter := 0; iter < lk.maxIter; iter++ {

			var bx, by float64
			k = 0

			for wy := -lk.halfWin; wy <= lk.halfWin; wy++ {
				for wx := -lk.halfWin; wx <= lk.halfWin; wx++ {
					x := pl.X + float64(wx) + g.X + nu.X
					y := pl.Y + float64(wy) + g.Y + nu.Y

					diff := iv[k] - curImg.sample(x, y)
					bx += diff * ix[k]
					by += diff * iy[k]
					k++
				}
			}

			eta := r2.Point{
				X: (gyy*bx - gxy*by) / det,
				Y: (gxx*by - gxy*bx) / det,
			}

			nu = nu.Add(eta)

			if eta.Norm() < lk.epsilon {
				break
			}
		}

		if l > 0 {
			g = g.Add(nu).Mul(2)
		} else {
			d = g.Add(nu)
		}
	}

	out := p.Add(d)
	base := cur.levels[0]

	if out.X < 0 || out.Y < 0 || out.X > float64(base.w-1) || out.Y > float64(base.h-1) ||
		math.IsNaN(out.X) || math.IsNaN(out.Y) {
		return out, false
	}

	return out, true
}

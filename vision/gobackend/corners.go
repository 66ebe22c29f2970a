package gobackend

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"

	"github.com/swdee/go-stereotrack/vision"
)

// corner is a Shi-Tomasi corner candidate
type corner struct {
	x, y  int
	score float32
}

// minEigenMap returns the minimum eigenvalue of the 3x3 block structure
// tensor at every pixel
func minEigenMap(f *floatImage) []float32 {

	gx, gy := sobel(f)
	out := make([]float32, len(f.pix))

	for y := 1; y < f.h-1; y++ {
		for x := 1; x < f.w-1; x++ {
			var a, b, c float32

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					i := (y+dy)*f.w + x + dx
					a += gx[i] * gx[i]
					b += gx[i] * gy[i]
					c += gy[i] * gy[i]
				}
			}

			half := (a + c) / 2
			diff := (a - c) / 2
			out[y*f.w+x] = half - float32(math.Sqrt(float64(diff*diff+b*b)))
		}
	}

	return out
}

// goodFeatures selects up to maxCount local maxima of the minimum eigenvalue
// above quality times the strongest response, at least minDist apart.  Pixels
// closer than border to the image edge are skipped.
func goodFeatures(f *floatImage, mask *image.Gray, maxCount int, quality,
	minDist float64, border int) []corner {

	eig := minEigenMap(f)

	var maxScore float32

	for _, v := range eig {
		if v > maxScore {
			maxScore = v
		}
	}

	if maxScore <= 0 {
		return nil
	}

	thresh := float32(quality) * maxScore

	if border < 1 {
		border = 1
	}

	var cands []corner

	for y := border; y < f.h-border; y++ {
		for x := border; x < f.w-border; x++ {
			v := eig[y*f.w+x]

			if v <= thresh || !vision.Mask(mask, image.Pt(x, y)) {
				continue
			}

			if isLocalMax(eig, f.w, x, y, v) {
				cands = append(cands, corner{x: x, y: y, score: v})
			}
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	// grid of accepted corners with cells of minDist for the distance check
	cell := math.Max(minDist, 1)
	gw := int(float64(f.w)/cell) + 1
	gh := int(float64(f.h)/cell) + 1
	grid := make([][]corner, gw*gh)
	minDist2 := float32(minDist * minDist)

	var out []corner

	for _, c := range cands {

		if maxCount > 0 && len(out) >= maxCount {
			break
		}

		cx := int(float64(c.x) / cell)
		cy := int(float64(c.y) / cell)
		keep := true

	neighbours:
		for ny := cy - 1; ny <= cy+1; ny++ {
			for nx := cx - 1; nx <= cx+1; nx++ {
				if nx < 0 || ny < 0 || nx >= gw || ny >= gh {
					continue
				}
				for _, o := range grid[ny*gw+nx] {
					dx := float32(c.x - o.x)
					dy := float32(c.y - o.y)
					if dx*dx+dy*dy < minDist2 {
						keep = false
						break neighbours
					}
				}
			}
		}

		if keep {
			grid[cy*gw+cx] = append(grid[cy*gw+cx], c)
			out = append(out, c)
		}
	}

	return out
}

func isLocalMax(eig []float32, w, x, y int, v float32) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && eig[(y+dy)*w+x+dx] > v {
				return false
			}
		}
	}
	return true
}

func cornerPoints(cs []corner) []r2.Point {
	pts := make([]r2.Point, len(cs))
	for i, c := range cs {
		pts[i] = r2.Point{X: float64(c.x), Y: float64(c.y)}
	}
	return pts
}

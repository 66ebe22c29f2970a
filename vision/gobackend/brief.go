package gobackend

import (
	"math/bits"
	"math/rand"

	"github.com/swdee/go-stereotrack/vision"
)

const (
	// descriptorBytes is the length of a 256 bit descriptor
	descriptorBytes = 32
	// patchRadius bounds the sampling pattern, keypoints closer than
	// patchRadius+1 to the border get no descriptor
	patchRadius = 15
)

// briefPattern holds the 256 point pairs compared by the descriptor
var briefPattern = func() [descriptorBytes * 8][4]int {

	var p [descriptorBytes * 8][4]int
	rng := rand.New(rand.NewSource(0x5eed))

	for i := range p {
		for j := range p[i] {
			// approximately gaussian around the keypoint, clipped to the patch
			v := int(rng.NormFloat64() * patchRadius / 2.5)
			if v > patchRadius {
				v = patchRadius
			} else if v < -patchRadius {
				v = -patchRadius
			}
			p[i][j] = v
		}
	}

	return p
}()

// describe computes BRIEF descriptors of the corners on the smoothed image
func describe(smooth *floatImage, cs []corner) ([]vision.KeyPoint, vision.Descriptors) {

	kps := make([]vision.KeyPoint, 0, len(cs))
	desc := make(vision.Descriptors, 0, len(cs))

	for _, c := range cs {

		if c.x <= patchRadius || c.y <= patchRadius ||
			c.x >= smooth.w-patchRadius-1 || c.y >= smooth.h-patchRadius-1 {
			continue
		}

		d := make([]byte, descriptorBytes)

		for i, pair := range briefPattern {
			a := smooth.pix[(c.y+pair[1])*smooth.w+c.x+pair[0]]
			b := smooth.pix[(c.y+pair[3])*smooth.w+c.x+pair[2]]

			if a < b {
				d[i/8] |= 1 << uint(i%8)
			}
		}

		kps = append(kps, vision.KeyPoint{
			X:        float64(c.x),
			Y:        float64(c.y),
			Size:     2*patchRadius + 1,
			Angle:    -1,
			Response: float64(c.score),
		})
		desc = append(desc, d)
	}

	return kps, desc
}

// hamming returns the number of differing bits
func hamming(a, b []byte) int {
	n := 0
	for i := range a {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return n
}

// crossCheckMatch returns the mutual nearest neighbours of query and train
func crossCheckMatch(query, train vision.Descriptors) []vision.DMatch {

	if len(query) == 0 || len(train) == 0 {
		return nil
	}

	bestTrain := make([]int, len(query))
	bestTrainDist := make([]int, len(query))
	bestQuery := make([]int, len(train))
	bestQueryDist := make([]int, len(train))

	for i := range bestQueryDist {
		bestQueryDist[i] = 1 << 30
	}

	for qi, q := range query {
		bestTrainDist[qi] = 1 << 30

		for ti, t := range train {
			d := hamming(q, t)

			if d < bestTrainDist[qi] {
				bestTrainDist[qi], bestTrain[qi] = d, ti
			}

			if d < bestQueryDist[ti] {
				bestQueryDist[ti], bestQuery[ti] = d, qi
			}
		}
	}

	var matches []vision.DMatch

	for qi, ti := range bestTrain {
		if bestQuery[ti] == qi {
			matches = append(matches, vision.DMatch{
				QueryIdx: qi,
				TrainIdx: ti,
				Distance: float64(bestTrainDist[qi]),
			})
		}
	}

	return matches
}

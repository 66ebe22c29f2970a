package tracker

import (
	"sort"

	"github.com/golang/geo/r2"
)

// StereoPairs returns the pixels of the features observed by both camera 0
// and camera 1 of frame, ordered by id.  A is the camera 0 pixel, these are
// the correspondences fed to the stereo calibrator
func StereoPairs(frame FeatureFrame) (ids []int, a, b []r2.Point) {

	for id, obs := range frame {
		if len(obs) < 2 {
			continue
		}
		ids = append(ids, id)
	}

	sort.Ints(ids)

	kept := ids[:0]

	for _, id := range ids {
		var pa, pb *r2.Point

		for i := range frame[id] {
			switch frame[id][i].Camera {
			case 0:
				pa = &frame[id][i].Pixel
			case 1:
				pb = &frame[id][i].Pixel
			}
		}

		if pa == nil || pb == nil {
			continue
		}

		kept = append(kept, id)
		a = append(a, *pa)
		b = append(b, *pb)
	}

	return kept, a, b
}

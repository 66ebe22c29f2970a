package tracker

import (
	"time"

	"github.com/golang/geo/r3"
)

// Velocity computes the per feature velocity of the undistorted rays.  Ids
// present in prev get (cur - prev) / dt, every other id and every id when
// dt is not positive gets a zero velocity
func Velocity(ids []int, cur []r3.Vector, prev map[int]r3.Vector,
	dt time.Duration) []r3.Vector {

	out := make([]r3.Vector, len(ids))

	if dt <= 0 {
		return out
	}

	secs := dt.Seconds()

	for i, id := range ids {
		p, ok := prev[id]

		if !ok {
			continue
		}

		out[i] = cur[i].Sub(p).Mul(1 / secs)
	}

	return out
}

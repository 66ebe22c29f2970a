package tracker

import (
	"sync"

	"github.com/golang/geo/r2"
)

// Track represents the pixel history of a single feature id
type Track struct {
	points []r2.Point
}

// Trail is the struct to keep a history of tracked feature positions used
// for drawing a trail
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points keyed by camera then id
	history map[int]map[int]*Track
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size is the number of
// most recent positions to keep and specifies the maximum length of the
// trail to maintain
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int]map[int]*Track),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int]map[int]*Track)
}

// Add the observations of a feature frame to the history.  Ids missing
// from the frame are dropped from the history of their camera
func (t *Trail) Add(frame FeatureFrame) {
	t.Lock()
	defer t.Unlock()

	seen := make(map[int]map[int]struct{})

	for id, obs := range frame {
		for _, o := range obs {

			cam, ok := t.history[o.Camera]

			if !ok {
				cam = make(map[int]*Track)
				t.history[o.Camera] = cam
			}

			if _, ok := seen[o.Camera]; !ok {
				seen[o.Camera] = make(map[int]struct{})
			}

			seen[o.Camera][id] = struct{}{}

			// init track if no history exists yet for id
			track, ok := cam[id]

			if !ok {
				track = &Track{}
				cam[id] = track
			}

			track.points = append(track.points, o.Pixel)

			// check if history is exceeded and drop oldest point
			if len(track.points) > t.size {
				track.points = track.points[1:]
			}
		}
	}

	for camID, cam := range t.history {
		for id := range cam {
			if _, ok := seen[camID][id]; !ok {
				delete(cam, id)
			}
		}
	}
}

// GetPoints gets the point history for a specific camera and id
func (t *Trail) GetPoints(camera, id int) []r2.Point {
	t.Lock()
	defer t.Unlock()

	if track, exists := t.history[camera][id]; exists {
		return append([]r2.Point(nil), track.points...)
	}

	// no history yet
	return nil
}

// IDs returns the ids with history on the given camera
func (t *Trail) IDs(camera int) []int {
	t.Lock()
	defer t.Unlock()

	ids := make([]int, 0, len(t.history[camera]))

	for id := range t.history[camera] {
		ids = append(ids, id)
	}

	return ids
}

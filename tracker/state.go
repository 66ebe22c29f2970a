package tracker

import (
	"image"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/vision"
	"go.uber.org/multierr"
)

// TrackState holds the tracked points of one camera sub-view.  The slices
// are parallel, index i of each describes the same feature
type TrackState struct {
	// Name identifies the sub-view in logs
	Name string
	// Camera is the camera index reported in observations
	Camera int
	// Require is the target number of tracked points
	Require int
	Model   camera.Model
	Mask    *image.Gray

	prevPyr vision.Pyramid
	curPyr  vision.Pyramid
	size    image.Point

	pts  []r2.Point
	ids  []int
	ages []int
	rays []r3.Vector
	vel  []r3.Vector

	prevRays  map[int]r3.Vector
	predictor *Predictor
}

// NewTrackState returns an empty state for a sub-view
func NewTrackState(name string, cam, require int, model camera.Model,
	mask *image.Gray) *TrackState {

	return &TrackState{
		Name:     name,
		Camera:   cam,
		Require:  require,
		Model:    model,
		Mask:     mask,
		prevRays: make(map[int]r3.Vector),
	}
}

// Len returns the number of active points
func (s *TrackState) Len() int {
	return len(s.ids)
}

// IDs returns the ids of the active points
func (s *TrackState) IDs() []int {
	return s.ids
}

// Points returns the pixel positions of the active points
func (s *TrackState) Points() []r2.Point {
	return s.pts
}

// Ages returns the number of frames each active point has been tracked
func (s *TrackState) Ages() []int {
	return s.ages
}

// Rays returns the undistorted rays of the active points
func (s *TrackState) Rays() []r3.Vector {
	return s.rays
}

// Velocities returns the ray velocities of the active points
func (s *TrackState) Velocities() []r3.Vector {
	return s.vel
}

// inside reports whether p lies within the current image
func (s *TrackState) inside(p r2.Point) bool {
	return p.X >= 0 && p.Y >= 0 &&
		p.X < float64(s.size.X) && p.Y < float64(s.size.Y)
}

// compact keeps the points whose keep flag is set
func (s *TrackState) compact(keep []bool) {

	n := 0

	for i := range s.ids {
		if !keep[i] {
			continue
		}

		s.pts[n] = s.pts[i]
		s.ids[n] = s.ids[i]
		s.ages[n] = s.ages[i]
		n++
	}

	s.pts = s.pts[:n]
	s.ids = s.ids[:n]
	s.ages = s.ages[:n]
}

// add appends a point with the given id and age
func (s *TrackState) add(p r2.Point, id, age int) {
	s.pts = append(s.pts, p)
	s.ids = append(s.ids, id)
	s.ages = append(s.ages, age)
}

// clear drops all points but keeps pyramids and ray history
func (s *TrackState) clear() {
	s.pts = s.pts[:0]
	s.ids = s.ids[:0]
	s.ages = s.ages[:0]
}

// ageByID returns the current ages keyed by id
func (s *TrackState) ageByID() map[int]int {

	m := make(map[int]int, len(s.ids))

	for i, id := range s.ids {
		m[id] = s.ages[i]
	}

	return m
}

// undistort computes the rays of the active points and their velocities
// relative to the previous frame
func (s *TrackState) undistort(dt time.Duration) {

	s.rays = make([]r3.Vector, len(s.pts))

	for i, p := range s.pts {
		s.rays[i] = s.Model.Undistort(p)
	}

	s.vel = Velocity(s.ids, s.rays, s.prevRays, dt)
}

// advance makes the current frame the previous one
func (s *TrackState) advance() error {

	var err error

	if s.prevPyr != nil {
		err = s.prevPyr.Close()
	}

	s.prevPyr = s.curPyr
	s.curPyr = nil

	s.prevRays = make(map[int]r3.Vector, len(s.ids))

	for i, id := range s.ids {
		s.prevRays[id] = s.rays[i]
	}

	return err
}

// reset drops all points and history and releases the pyramids
func (s *TrackState) reset() error {

	var err error

	if s.prevPyr != nil {
		err = multierr.Append(err, s.prevPyr.Close())
	}

	if s.curPyr != nil {
		err = multierr.Append(err, s.curPyr.Close())
	}

	s.prevPyr = nil
	s.curPyr = nil
	s.clear()
	s.rays = nil
	s.vel = nil
	s.prevRays = make(map[int]r3.Vector)

	if s.predictor != nil {
		s.predictor.Reset()
	}

	return err
}

// observations appends the active points to the frame
func (s *TrackState) observations(frame FeatureFrame) {

	for i, id := range s.ids {
		frame[id] = append(frame[id], Observation{
			Camera:   s.Camera,
			Pixel:    s.pts[i],
			Ray:      s.rays[i],
			Velocity: s.vel[i],
		})
	}
}

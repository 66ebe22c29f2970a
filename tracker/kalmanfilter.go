package tracker

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// PointState is the filter state of a single tracked point, the mean holds
// x, y, vx, vy in pixels and pixels per frame
type PointState struct {
	Mean *mat.VecDense
	Cov  *mat.Dense
}

// Position returns the position part of the state mean
func (s *PointState) Position() r2.Point {
	return r2.Point{X: s.Mean.AtVec(0), Y: s.Mean.AtVec(1)}
}

// KalmanFilter is a constant velocity filter over pixel positions
type KalmanFilter struct {
	stdWeightPosition float64
	stdWeightVelocity float64
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter.  The weights
// are the standard deviations in pixels of the position and per frame
// velocity noise
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float64) *KalmanFilter {

	ndim := 2
	dt := 1.0

	// create identity matrix for motionMat with dt coupling velocity
	motionMat := mat.NewDense(4, 4, nil)

	for i := 0; i < 4; i++ {
		motionMat.Set(i, i, 1.0)
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, dt)
	}

	// updateMat observes the position only
	updateMat := mat.NewDense(2, 4, nil)

	for i := 0; i < ndim; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// diag returns a square matrix with the squares of std on the diagonal
func diag(std ...float64) *mat.Dense {
	m := mat.NewDense(len(std), len(std), nil)

	for i, v := range std {
		m.Set(i, i, v*v)
	}

	return m
}

// Initiate creates the state of a newly observed point at rest
func (kf *KalmanFilter) Initiate(p r2.Point) *PointState {

	pos := 2 * kf.stdWeightPosition
	vel := 10 * kf.stdWeightVelocity

	return &PointState{
		Mean: mat.NewVecDense(4, []float64{p.X, p.Y, 0, 0}),
		Cov:  diag(pos, pos, vel, vel),
	}
}

// Predict advances the state by one frame
func (kf *KalmanFilter) Predict(s *PointState) {

	motionCov := diag(kf.stdWeightPosition, kf.stdWeightPosition,
		kf.stdWeightVelocity, kf.stdWeightVelocity)

	s.Mean.MulVec(kf.motionMat, s.Mean)

	cov := s.Cov
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update corrects the state with a measured position
func (kf *KalmanFilter) Update(s *PointState, measurement r2.Point) error {

	// project the state covariance to measurement space
	projected := mat.NewDense(2, 2, nil)
	temp := mat.NewDense(2, 4, nil)
	temp.Mul(kf.updateMat, s.Cov)
	projected.Mul(temp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(2, nil)

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			projectedCov.SetSym(i, j, projected.At(i, j))
		}
		projectedCov.SetSym(i, i, projectedCov.At(i, i)+
			kf.stdWeightPosition*kf.stdWeightPosition)
	}

	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// kalman gain K^T = S^-1 * H * P
	b := mat.NewDense(4, 2, nil)
	b.Mul(s.Cov, kf.updateMat.T())

	var kalmanGain mat.Dense
	err := chol.SolveTo(&kalmanGain, b.T())

	if err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(2, []float64{
		measurement.X - s.Mean.AtVec(0),
		measurement.Y - s.Mean.AtVec(1),
	})

	correction := mat.NewVecDense(4, nil)
	correction.MulVec(kalmanGain.T(), innovation)
	s.Mean.AddVec(s.Mean, correction)

	// P = P - K * S * K^T
	temp2 := mat.NewDense(4, 2, nil)
	temp2.Mul(kalmanGain.T(), projectedCov)

	temp3 := mat.NewDense(4, 4, nil)
	temp3.Mul(temp2, &kalmanGain)

	s.Cov.Sub(s.Cov, temp3)

	return nil
}

// Predictor keeps one filter state per track id and produces the expected
// pixel position of every tracked point in the next frame
type Predictor struct {
	kf     *KalmanFilter
	states map[int]*PointState
}

// NewPredictor returns a Predictor using the given noise weights
func NewPredictor(stdWeightPosition, stdWeightVelocity float64) *Predictor {
	return &Predictor{
		kf:     NewKalmanFilter(stdWeightPosition, stdWeightVelocity),
		states: make(map[int]*PointState),
	}
}

// Predict advances every known id by one frame and returns the predicted
// positions for the requested ids.  Ids without state are omitted
func (p *Predictor) Predict(ids []int) map[int]r2.Point {

	out := make(map[int]r2.Point, len(ids))

	for _, id := range ids {
		s, ok := p.states[id]

		if !ok {
			continue
		}

		p.kf.Predict(s)
		out[id] = s.Position()
	}

	return out
}

// Observe feeds the measured positions of the active ids and forgets every
// id that is no longer active
func (p *Predictor) Observe(ids []int, pts []r2.Point) error {

	active := make(map[int]struct{}, len(ids))

	for i, id := range ids {
		active[id] = struct{}{}
		s, ok := p.states[id]

		if !ok {
			p.states[id] = p.kf.Initiate(pts[i])
			continue
		}

		if err := p.kf.Update(s, pts[i]); err != nil {
			return fmt.Errorf("update of track %d: %w", id, err)
		}
	}

	for id := range p.states {
		if _, ok := active[id]; !ok {
			delete(p.states, id)
		}
	}

	return nil
}

// Reset forgets all state
func (p *Predictor) Reset() {
	p.states = make(map[int]*PointState)
}

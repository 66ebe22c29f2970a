package geometry

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultMaxIterations caps the adaptive RANSAC iteration count
	DefaultMaxIterations = 1000
	// DefaultSeed is the random seed used by NewEstimator
	DefaultSeed = 1
)

// Estimator runs RANSAC essential matrix estimation with a seeded random
// source so repeated runs over the same data give the same model
type Estimator struct {
	// MaxIterations is the upper bound of sampled hypotheses
	MaxIterations int
	rng           *rand.Rand
	sync.Mutex
}

// NewEstimator returns an Estimator using the given seed
func NewEstimator(seed int64) *Estimator {
	return &Estimator{
		MaxIterations: DefaultMaxIterations,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Estimate finds the essential matrix relating pixel correspondences a and b
// (b^T*E*a = 0 in normalized coordinates) for a camera with matrix k.
// Confidence is the probability of drawing at least one outlier free sample
// and threshold the maximum inlier distance in pixels.  The returned flags
// mark the inliers of the final model.
func (es *Estimator) Estimate(a, b []r2.Point, k mat.Matrix, confidence,
	threshold float64) (*mat.Dense, []bool, error) {

	if len(a) != len(b) {
		return nil, nil, fmt.Errorf("point count mismatch %d != %d", len(a), len(b))
	}

	if len(a) < minSampleSize {
		return nil, nil, ErrTooFewPoints
	}

	na, err := NormalizePixels(a, k)

	if err != nil {
		return nil, nil, err
	}

	nb, err := NormalizePixels(b, k)

	if err != nil {
		return nil, nil, err
	}

	// express the pixel threshold in normalized units using the mean focal
	// length, Sampson error is squared
	focal := (k.At(0, 0) + k.At(1, 1)) / 2
	thresh := threshold / focal
	thresh *= thresh

	es.Lock()
	defer es.Unlock()

	n := len(na)
	iterations := es.MaxIterations
	sample := make([]int, minSampleSize)
	sa := make([]r2.Point, minSampleSize)
	sb := make([]r2.Point, minSampleSize)

	var best *mat.Dense
	var bestInliers []bool
	bestCount := 0

	for iter := 0; iter < iterations; iter++ {

		es.sample(n, sample)

		for i, idx := range sample {
			sa[i] = na[idx]
			sb[i] = nb[idx]
		}

		e, err := EightPoint(sa, sb)

		if err != nil {
			continue
		}

		inliers, count := scoreModel(e, na, nb, thresh)

		if count > bestCount {
			best, bestInliers, bestCount = e, inliers, count
			iterations = adaptIterations(confidence, float64(count)/float64(n),
				iter+1, es.MaxIterations)
		}
	}

	if best == nil {
		return nil, nil, ErrDegenerate
	}

	// refit on all inliers of the best hypothesis
	if bestCount > minSampleSize {
		ia := make([]r2.Point, 0, bestCount)
		ib := make([]r2.Point, 0, bestCount)

		for i, in := range bestInliers {
			if in {
				ia = append(ia, na[i])
				ib = append(ib, nb[i])
			}
		}

		if e, err := EightPoint(ia, ib); err == nil {
			if inliers, count := scoreModel(e, na, nb, thresh); count >= bestCount {
				best, bestInliers = e, inliers
			}
		}
	}

	return best, bestInliers, nil
}

// sample fills idx with distinct random indices in [0, n)
func (es *Estimator) sample(n int, idx []int) {
	for i := range idx {
		for {
			v := es.rng.Intn(n)

			if !containsIndex(idx[:i], v) {
				idx[i] = v
				break
			}
		}
	}
}

func containsIndex(idx []int, v int) bool {
	for _, i := range idx {
		if i == v {
			return true
		}
	}
	return false
}

// scoreModel flags every correspondence whose Sampson error is within thresh
func scoreModel(e *mat.Dense, a, b []r2.Point, thresh float64) ([]bool, int) {

	inliers := make([]bool, len(a))
	count := 0

	for i := range a {
		if SampsonError(e, a[i], b[i]) <= thresh {
			inliers[i] = true
			count++
		}
	}

	return inliers, count
}

// adaptIterations returns the number of iterations needed to reach the
// confidence given the inlier ratio, never less than done
func adaptIterations(confidence, inlierRatio float64, done, max int) int {

	noOutliers := 1 - math.Pow(inlierRatio, minSampleSize)

	if noOutliers <= 0 {
		return done
	}

	if noOutliers >= 1 {
		return max
	}

	needed := math.Log(1-confidence) / math.Log(noOutliers)

	if needed >= float64(max) {
		return max
	}

	if int(math.Ceil(needed)) < done {
		return done
	}

	return int(math.Ceil(needed))
}

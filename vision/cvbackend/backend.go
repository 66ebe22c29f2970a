// Package cvbackend implements vision.Backend on OpenCV through gocv.
// Essential matrix estimation and decomposition are shared with the pure Go
// backend as gocv does not expose findEssentialMat.
package cvbackend

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/swdee/go-stereotrack/geometry"
	"github.com/swdee/go-stereotrack/vision"
)

// Backend implements vision.Backend with OpenCV
type Backend struct {
	orb       gocv.ORB
	matcher   gocv.BFMatcher
	estimator *geometry.Estimator
	// winSize is the Lucas-Kanade integration window
	winSize image.Point
	// criteria stops the Lucas-Kanade iterations per level
	criteria gocv.TermCriteria
}

// New returns an OpenCV backend, seed drives the RANSAC sampler
func New(seed int64) *Backend {
	return &Backend{
		orb:       gocv.NewORB(),
		matcher:   gocv.NewBFMatcherWithParams(gocv.NormHamming, true),
		estimator: geometry.NewEstimator(seed),
		winSize:   image.Pt(21, 21),
		criteria:  gocv.NewTermCriteria(gocv.Count|gocv.EPS, 30, 0.01),
	}
}

var _ vision.Backend = (*Backend)(nil)

// Close frees the OpenCV detector and matcher
func (b *Backend) Close() error {
	return multierr.Combine(b.orb.Close(), b.matcher.Close())
}

// pyramid holds the gaussian pyramid levels as Mats
type pyramid struct {
	levels []gocv.Mat
}

func (p *pyramid) Levels() int {
	return len(p.levels)
}

func (p *pyramid) Size() image.Point {
	return image.Pt(p.levels[0].Cols(), p.levels[0].Rows())
}

func (p *pyramid) Close() error {
	var err error
	for _, l := range p.levels {
		err = multierr.Append(err, l.Close())
	}
	p.levels = nil
	return err
}

// BuildPyramid builds a gaussian pyramid with PyrDown
func (b *Backend) BuildPyramid(img *image.Gray, levels int) (vision.Pyramid, error) {

	if img == nil || img.Bounds().Empty() {
		return nil, vision.ErrEmptyImage
	}

	base, err := gocv.ImageGrayToMatGray(img)

	if err != nil {
		return nil, fmt.Errorf("error converting image to Mat: %w", err)
	}

	p := &pyramid{levels: []gocv.Mat{base}}

	for l := 1; l < levels; l++ {
		prev := p.levels[l-1]

		if prev.Cols() < 32 || prev.Rows() < 32 {
			break
		}

		next := gocv.NewMat()
		gocv.PyrDown(prev, &next, image.Pt(0, 0), gocv.BorderDefault)
		p.levels = append(p.levels, next)
	}

	return p, nil
}

func pyramidOf(p vision.Pyramid) (*pyramid, error) {
	pyr, ok := p.(*pyramid)
	if !ok || pyr == nil || len(pyr.levels) == 0 {
		return nil, fmt.Errorf("pyramid %T was not built by the gocv backend", p)
	}
	return pyr, nil
}

// pointsToMat converts points to a Nx1 CV_32FC2 Mat
func pointsToMat(pts []r2.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	for i, p := range pts {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}

// matToPoints converts a Nx1 CV_32FC2 Mat to points
func matToPoints(m gocv.Mat) []r2.Point {
	pts := make([]r2.Point, m.Rows())
	for i := range pts {
		v := m.GetVecfAt(i, 0)
		pts[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return pts
}

// OpticalFlow runs OpenCV pyramidal Lucas-Kanade on the base images, the
// number of pyramid levels sets maxLevel
func (b *Backend) OpticalFlow(cur, prev vision.Pyramid, prevPts,
	predicted []r2.Point) ([]r2.Point, []bool, error) {

	cp, err := pyramidOf(cur)

	if err != nil {
		return nil, nil, err
	}

	pp, err := pyramidOf(prev)

	if err != nil {
		return nil, nil, err
	}

	if len(prevPts) == 0 {
		return nil, nil, nil
	}

	if predicted != nil && len(predicted) != len(prevPts) {
		return nil, nil, fmt.Errorf("got %d predictions for %d points",
			len(predicted), len(prevPts))
	}

	prevMat := pointsToMat(prevPts)
	defer prevMat.Close()

	var nextMat gocv.Mat
	var flags gocv.OpticalFlowFlags

	if predicted != nil {
		nextMat = pointsToMat(predicted)
		flags = gocv.OptflowUseInitialFlow
	} else {
		nextMat = gocv.NewMat()
	}

	defer nextMat.Close()

	status := gocv.NewMat()
	defer status.Close()

	errMat := gocv.NewMat()
	defer errMat.Close()

	maxLevel := pp.Levels() - 1

	if cp.Levels()-1 < maxLevel {
		maxLevel = cp.Levels() - 1
	}

	gocv.CalcOpticalFlowPyrLKWithParams(pp.levels[0], cp.levels[0], prevMat, nextMat,
		&status, &errMat, b.winSize, maxLevel, b.criteria, flags, 1e-4)

	out := matToPoints(nextMat)

	if len(out) != len(prevPts) {
		return nil, nil, fmt.Errorf("optical flow returned %d points for %d",
			len(out), len(prevPts))
	}

	ok := make([]bool, len(out))
	size := cp.Size()

	for i, p := range out {
		ok[i] = status.GetUCharAt(i, 0) != 0 &&
			p.X >= 0 && p.Y >= 0 && p.X < float64(size.X) && p.Y < float64(size.Y)
	}

	return out, ok, nil
}

// DetectCorners runs GoodFeaturesToTrack and drops corners outside mask
func (b *Backend) DetectCorners(img, mask *image.Gray, maxCount int, quality,
	minDist float64) ([]r2.Point, error) {

	if img == nil || img.Bounds().Empty() {
		return nil, vision.ErrEmptyImage
	}

	if maxCount <= 0 {
		return nil, nil
	}

	src, err := gocv.ImageGrayToMatGray(img)

	if err != nil {
		return nil, fmt.Errorf("error converting image to Mat: %w", err)
	}

	defer src.Close()

	corners := gocv.NewMat()
	defer corners.Close()

	// ask for more corners when some will be masked out
	want := maxCount

	if mask != nil {
		want *= 2
	}

	gocv.GoodFeaturesToTrack(src, &corners, want, quality, minDist)

	var pts []r2.Point

	for _, p := range matToPoints(corners) {
		if len(pts) == maxCount {
			break
		}
		if vision.Mask(mask, image.Pt(int(p.X), int(p.Y))) {
			pts = append(pts, p)
		}
	}

	return pts, nil
}

// DetectAndDescribe runs ORB
func (b *Backend) DetectAndDescribe(img, mask *image.Gray) ([]vision.KeyPoint, vision.Descriptors, error) {

	if img == nil || img.Bounds().Empty() {
		return nil, nil, vision.ErrEmptyImage
	}

	src, err := gocv.ImageGrayToMatGray(img)

	if err != nil {
		return nil, nil, fmt.Errorf("error converting image to Mat: %w", err)
	}

	defer src.Close()

	maskMat := gocv.NewMat()

	if mask != nil {
		maskMat.Close()

		if maskMat, err = gocv.ImageGrayToMatGray(mask); err != nil {
			return nil, nil, fmt.Errorf("error converting mask to Mat: %w", err)
		}
	}

	defer maskMat.Close()

	kps, desc := b.orb.DetectAndCompute(src, maskMat)
	defer desc.Close()

	out := make([]vision.KeyPoint, len(kps))

	for i, kp := range kps {
		out[i] = vision.KeyPoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
		}
	}

	if desc.Empty() {
		return out, nil, nil
	}

	data := desc.ToBytes()
	cols := desc.Cols()
	descs := make(vision.Descriptors, desc.Rows())

	for i := range descs {
		descs[i] = append([]byte(nil), data[i*cols:(i+1)*cols]...)
	}

	return out, descs, nil
}

// descriptorsToMat packs descriptors into a CV_8U Mat, one per row
func descriptorsToMat(d vision.Descriptors) (gocv.Mat, error) {

	cols := len(d[0])
	data := make([]byte, 0, len(d)*cols)

	for i, row := range d {
		if len(row) != cols {
			return gocv.NewMat(), fmt.Errorf("descriptor %d has length %d, expected %d",
				i, len(row), cols)
		}
		data = append(data, row...)
	}

	return gocv.NewMatFromBytes(len(d), cols, gocv.MatTypeCV8U, data)
}

// MatchDescriptors runs a cross checked brute force Hamming matcher
func (b *Backend) MatchDescriptors(query, train vision.Descriptors) ([]vision.DMatch, error) {

	if len(query) == 0 || len(train) == 0 {
		return nil, nil
	}

	q, err := descriptorsToMat(query)

	if err != nil {
		return nil, err
	}

	defer q.Close()

	t, err := descriptorsToMat(train)

	if err != nil {
		return nil, err
	}

	defer t.Close()

	var matches []vision.DMatch

	for _, knn := range b.matcher.KnnMatch(q, t, 1) {
		for _, m := range knn {
			matches = append(matches, vision.DMatch{
				QueryIdx: m.QueryIdx,
				TrainIdx: m.TrainIdx,
				Distance: m.Distance,
			})
		}
	}

	return matches, nil
}

// EstimateEssentialMatrix runs RANSAC with the normalized 8-point solver
func (b *Backend) EstimateEssentialMatrix(a, bp []r2.Point, k *mat.Dense, confidence,
	threshold float64) (*mat.Dense, []bool, error) {
	return b.estimator.Estimate(a, bp, k, confidence, threshold)
}

// DecomposeEssential splits E into rotation candidates and translation
func (b *Backend) DecomposeEssential(e *mat.Dense) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	return geometry.DecomposeEssential(e)
}

package tracker

import (
	"errors"
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/swdee/go-stereotrack/vision"
	"gonum.org/v1/gonum/mat"
)

// newImage returns a 640x480 test image whose scene is shifted by offset
// pixels along x.  The offset is stored in the first pixel so the fake
// backend can compute exact flow between any two images
func newImage(offset int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	img.Pix[0] = uint8(offset + 128)
	return img
}

type fakePyramid struct {
	offset  float64
	size    image.Point
	levels  int
	closed  bool
	backend *fakeBackend
}

func (p *fakePyramid) Levels() int       { return p.levels }
func (p *fakePyramid) Size() image.Point { return p.size }

func (p *fakePyramid) Close() error {
	if p.closed {
		return errors.New("pyramid closed twice")
	}
	p.closed = true
	p.backend.open--
	return nil
}

// fakeBackend is a scripted vision.Backend.  Flow moves every point by the
// difference of the image offsets, detection returns a fixed corner list
type fakeBackend struct {
	corners []r2.Point
	// lost reports points that fail to track
	lost func(p r2.Point) bool
	// backDrift is added to results of flow into an image with a lower
	// offset, used to fail the backward flow check
	backDrift float64

	open        int
	flowCalls   int
	cornerCalls int
	predictions [][]r2.Point
}

func (b *fakeBackend) BuildPyramid(img *image.Gray, levels int) (vision.Pyramid, error) {
	b.open++
	return &fakePyramid{
		offset:  float64(int(img.Pix[0]) - 128),
		size:    img.Bounds().Size(),
		levels:  levels,
		backend: b,
	}, nil
}

func (b *fakeBackend) OpticalFlow(cur, prev vision.Pyramid, prevPts,
	predicted []r2.Point) ([]r2.Point, []bool, error) {

	c, p := cur.(*fakePyramid), prev.(*fakePyramid)

	if c.closed || p.closed {
		return nil, nil, errors.New("flow on closed pyramid")
	}

	b.flowCalls++
	b.predictions = append(b.predictions, predicted)

	shift := c.offset - p.offset

	if shift < 0 {
		shift += b.backDrift
	}

	out := make([]r2.Point, len(prevPts))
	status := make([]bool, len(prevPts))

	for i, pt := range prevPts {
		out[i] = r2.Point{X: pt.X + shift, Y: pt.Y}
		status[i] = b.lost == nil || !b.lost(pt)
	}

	return out, status, nil
}

func (b *fakeBackend) DetectCorners(img, mask *image.Gray, maxCount int, quality,
	minDist float64) ([]r2.Point, error) {

	b.cornerCalls++

	var out []r2.Point

	for _, c := range b.corners {
		if len(out) == maxCount {
			break
		}
		if vision.Mask(mask, image.Pt(int(c.X), int(c.Y))) {
			out = append(out, c)
		}
	}

	return out, nil
}

func (b *fakeBackend) DetectAndDescribe(img, mask *image.Gray) ([]vision.KeyPoint, vision.Descriptors, error) {
	return nil, nil, fmt.Errorf("not scripted")
}

func (b *fakeBackend) MatchDescriptors(query, train vision.Descriptors) ([]vision.DMatch, error) {
	return nil, fmt.Errorf("not scripted")
}

func (b *fakeBackend) EstimateEssentialMatrix(a, bp []r2.Point, k *mat.Dense,
	confidence, threshold float64) (*mat.Dense, []bool, error) {
	return nil, nil, fmt.Errorf("not scripted")
}

func (b *fakeBackend) DecomposeEssential(e *mat.Dense) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	return nil, nil, r3.Vector{}, fmt.Errorf("not scripted")
}

func (b *fakeBackend) Close() error { return nil }

// gridCorners returns corners spaced 40 pixels apart over a 640x480 image
func gridCorners() []r2.Point {

	var pts []r2.Point

	for y := 20.0; y < 480; y += 40 {
		for x := 20.0; x < 640; x += 40 {
			pts = append(pts, r2.Point{X: x, Y: y})
		}
	}

	return pts
}

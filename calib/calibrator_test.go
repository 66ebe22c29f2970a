package calib

import (
	"image"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-stereotrack/geometry"
	"github.com/swdee/go-stereotrack/vision/gobackend"
	"gonum.org/v1/gonum/mat"
)

var testK = mat.NewDense(3, 3, []float64{
	400, 0, 320,
	0, 400, 240,
	0, 0, 1,
})

// rig is a synthetic stereo pair, X_b = R*X_a + T
type rig struct {
	r *mat.Dense
	t r3.Vector
}

func trueRig() rig {
	return rig{
		r: geometry.RotationFromEuler(0.01, -0.02, 0.015),
		t: r3.Vector{X: -0.12, Y: 0.002, Z: 0.001},
	}
}

func project(p r3.Vector) r2.Point {
	return r2.Point{
		X: testK.At(0, 0)*p.X/p.Z + testK.At(0, 2),
		Y: testK.At(1, 1)*p.Y/p.Z + testK.At(1, 2),
	}
}

// observe projects n random points in front of the rig into both cameras
func (rg rig) observe(rng *rand.Rand, n int) ([]r2.Point, []r2.Point) {

	a := make([]r2.Point, n)
	b := make([]r2.Point, n)

	for i := 0; i < n; i++ {
		p := r3.Vector{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*3 - 1.5,
			Z: 3 + rng.Float64()*6,
		}

		a[i] = project(p)
		b[i] = project(geometry.Rotate(rg.r, p).Add(rg.t))
	}

	return a, b
}

func newCalibrator(t *testing.T, r0 mat.Matrix, t0 r3.Vector) *Calibrator {
	c, err := New(gobackend.New(1), r0, t0, testK, DefaultParams(), nil)
	require.NoError(t, err)
	return c
}

func TestNewValidatesPrior(t *testing.T) {

	_, err := New(gobackend.New(1), geometry.RotationFromEuler(0, 0, 0),
		r3.Vector{}, testK, DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrInvalidPrior)

	_, err = New(gobackend.New(1), mat.NewDense(2, 2, nil),
		r3.Vector{X: -1}, testK, DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrInvalidPrior)

	c := newCalibrator(t, geometry.RotationFromEuler(0, 0, 0), r3.Vector{X: -0.3, Y: 0.4})
	assert.InDelta(t, 0.5, c.Scale(), 1e-12)
	assert.Equal(t, Uncertain, c.State())

	est := c.Estimate()
	assert.InDelta(t, 0.5, est.Scale, 1e-12)
	assert.True(t, mat.EqualApprox(est.Essential,
		geometry.ComposeEssential(est.Rotation, est.Translation), 1e-12))
}

func TestIngestInsufficientData(t *testing.T) {

	rng := rand.New(rand.NewSource(1))
	rg := trueRig()
	c := newCalibrator(t, rg.r, rg.t)

	a, b := rg.observe(rng, 9)
	assert.ErrorIs(t, c.Ingest(a, b), ErrInsufficientData)
	assert.Equal(t, 0, c.Buffered())

	a, b = rg.observe(rng, 20)
	assert.ErrorIs(t, c.Ingest(a, b), ErrInsufficientData)
	assert.Equal(t, 20, c.Buffered())

	ok, err := c.TryUpdate()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, c.Ingest(a, b[:5]), ErrPointCount)
}

func TestStaticScenarioAcceptedWithoutChange(t *testing.T) {

	rng := rand.New(rand.NewSource(2))
	rg := trueRig()
	c := newCalibrator(t, rg.r, rg.t)
	before := c.Estimate()

	a, b := rg.observe(rng, 60)
	ok, err := c.Calibrate(a, b)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Calibrated, c.State())

	after := c.Estimate()
	assert.NotSame(t, before, after)
	assert.Less(t, geometry.RotationDistance(before.Rotation, after.Rotation), 1e-5)
	assert.Less(t, after.Translation.Sub(before.Translation).Norm(), 1e-4)
	assert.InDelta(t, before.Scale, after.Translation.Norm(), 1e-12)
}

func TestRecoversExtrinsicFromPrior(t *testing.T) {

	rng := rand.New(rand.NewSource(3))
	rg := trueRig()

	// prior is a nominal rig, identity rotation and pure x baseline
	c := newCalibrator(t, geometry.RotationFromEuler(0, 0, 0), r3.Vector{X: -0.12})

	var accepted bool

	for i := 0; i < 5; i++ {
		a, b := rg.observe(rng, 20)
		ok, err := c.Calibrate(a, b)

		if i < 2 {
			assert.ErrorIs(t, err, ErrInsufficientData)
			continue
		}

		require.NoError(t, err)
		accepted = accepted || ok
	}

	require.True(t, accepted)

	est := c.Estimate()
	assert.Less(t, geometry.RotationDistance(est.Rotation, rg.r), 1e-5)
	assert.Less(t, est.Direction().Sub(rg.t.Normalize()).Norm(), 1e-4)
	assert.InDelta(t, 0.12, est.Translation.Norm(), 1e-12)
	assert.Equal(t, 100, c.Buffered())
}

func TestRejectsDistantCandidate(t *testing.T) {

	rng := rand.New(rand.NewSource(4))
	rg := trueRig()

	prior := geometry.RotationFromEuler(0, 0, 0.3)
	c := newCalibrator(t, prior, r3.Vector{X: -0.12})

	a, b := rg.observe(rng, 80)
	ok, err := c.Calibrate(a, b)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Uncertain, c.State())
	assert.True(t, mat.Equal(prior, c.Estimate().Rotation))

	// the pending estimate was consumed
	ok, err = c.TryUpdate()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChooseRotationTieBreak(t *testing.T) {

	id := geometry.RotationFromEuler(0, 0, 0)
	plus := geometry.RotationFromEuler(0, 0, 0.2)
	minus := geometry.RotationFromEuler(0, 0, -0.2)

	// Rz(+a) has -sin(a) at (0,1) and sorts first
	r, d := chooseRotation(id, minus, plus)
	assert.True(t, mat.Equal(plus, r))
	assert.InDelta(t, geometry.RotationDistance(id, plus), d, 1e-12)

	r, _ = chooseRotation(id, plus, minus)
	assert.True(t, mat.Equal(plus, r))

	// without a tie the closer candidate wins
	near := geometry.RotationFromEuler(0, 0, -0.1)
	r, _ = chooseRotation(id, plus, near)
	assert.True(t, mat.Equal(near, r))
}

func TestBufferFIFO(t *testing.T) {

	buf := NewBuffer(5)
	total := 0

	for batch := 1; batch <= 4; batch++ {
		a := make([]r2.Point, batch)
		b := make([]r2.Point, batch)

		for i := range a {
			a[i] = r2.Point{X: float64(total + i)}
			b[i] = r2.Point{Y: float64(total + i)}
		}

		buf.Append(a, b)
		total += batch

		want := total
		if want > buf.Cap() {
			want = buf.Cap()
		}

		require.Equal(t, want, buf.Len())

		pa, pb := buf.Points()

		// the newest pairs in insertion order
		for i := range pa {
			seq := float64(total - want + i)
			assert.Equal(t, seq, pa[i].X)
			assert.Equal(t, seq, pb[i].Y)
		}
	}

	// a batch larger than the buffer keeps its tail
	big := make([]r2.Point, 8)
	for i := range big {
		big[i] = r2.Point{X: float64(100 + i)}
	}

	buf.Append(big, big)
	pa, _ := buf.Points()
	require.Len(t, pa, 5)
	assert.Equal(t, 103.0, pa[0].X)
	assert.Equal(t, 107.0, pa[4].X)

	buf.Reset()
	assert.Equal(t, 0, buf.Len())
}

// bandImages renders a block noise texture and a second image in which
// each third of the rows is shifted by dx[band] and each third of the
// columns by dy[band], so A-B offsets take three values per axis
func bandImages(seed int64, w, h int, dx, dy [3]int) (*image.Gray, *image.Gray) {

	rng := rand.New(rand.NewSource(seed))
	left := image.NewGray(image.Rect(0, 0, w, h))

	const block = 3
	bw := (w + block - 1) / block
	vals := make([]uint8, bw*((h+block-1)/block))

	for i := range vals {
		vals[i] = uint8(rng.Intn(256))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			left.Pix[y*left.Stride+x] = vals[(y/block)*bw+x/block]
		}
	}

	right := image.NewGray(left.Bounds())

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := x + dx[y*3/h]
			sy := y + dy[x*3/w]

			if image.Pt(sx, sy).In(left.Bounds()) {
				right.Pix[y*right.Stride+x] = left.Pix[sy*left.Stride+sx]
			}
		}
	}

	return left, right
}

func TestFindCorrespondences(t *testing.T) {

	left, right := bandImages(5, 320, 240, [3]int{6, 8, 10}, [3]int{-1, 0, 1})

	k := mat.NewDense(3, 3, []float64{300, 0, 160, 0, 300, 120, 0, 0, 1})
	c, err := New(gobackend.New(1), geometry.RotationFromEuler(0, 0, 0),
		r3.Vector{X: -0.1}, k, DefaultParams(), nil)
	require.NoError(t, err)

	cs, err := c.FindCorrespondences(left, right)
	require.NoError(t, err)
	require.NotEmpty(t, cs)

	// axis trimming leaves the middle band of both offsets
	for _, m := range cs {
		assert.InDelta(t, 8, m.A.X-m.B.X, 0.5)
		assert.InDelta(t, 0, m.A.Y-m.B.Y, 0.5)
	}
}

func TestFindCorrespondencesDropsUnverified(t *testing.T) {

	left, right := bandImages(5, 320, 240, [3]int{6, 8, 10}, [3]int{-1, 0, 1})

	k := mat.NewDense(3, 3, []float64{300, 0, 160, 0, 300, 120, 0, 0, 1})
	params := DefaultParams()
	params.MinRansacPoints = params.Features * params.GridCols * params.GridRows

	c, err := New(gobackend.New(1), geometry.RotationFromEuler(0, 0, 0),
		r3.Vector{X: -0.1}, k, params, nil)
	require.NoError(t, err)

	cs, err := c.FindCorrespondences(left, right)
	require.NoError(t, err)
	assert.Empty(t, cs)

	ok, err := c.CalibrateImages(left, right)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, 0, c.Buffered())
}

func TestParamsValidate(t *testing.T) {

	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		modify func(p *Params)
	}{
		{"min points", func(p *Params) { p.MinPoints = 7 }},
		{"empty buffer", func(p *Params) { p.BufferSize = 0 }},
		{"buffer below min points", func(p *Params) { p.BufferSize = p.MinPoints - 1 }},
		{"min batch", func(p *Params) { p.MinBatch = 0 }},
		{"confidence", func(p *Params) { p.Confidence = 1 }},
		{"threshold", func(p *Params) { p.Threshold = 0 }},
		{"rotation delta", func(p *Params) { p.MaxRotationDelta = -0.1 }},
		{"translation delta", func(p *Params) { p.MaxTranslationDelta = 0 }},
		{"grid", func(p *Params) { p.GridRows = 0 }},
		{"ransac points", func(p *Params) { p.MinRansacPoints = 6 }},
	}

	for _, tc := range tests {
		p := DefaultParams()
		tc.modify(&p)

		assert.ErrorIs(t, p.Validate(), ErrInvalidParams, tc.name)

		_, err := New(gobackend.New(1), geometry.RotationFromEuler(0, 0, 0),
			r3.Vector{X: -0.1}, testK, p, nil)
		assert.ErrorIs(t, err, ErrInvalidParams, tc.name)
	}
}

func TestGridMasks(t *testing.T) {

	masks := GridMasks(image.Rect(0, 0, 40, 30), 4, 3)
	require.Len(t, masks, 12)

	for i, m := range masks {
		count := 0
		for _, v := range m.Pix {
			if v != 0 {
				count++
			}
		}
		assert.Equal(t, 100, count, "cell %d", i)
	}

	assert.NotZero(t, masks[0].GrayAt(0, 0).Y)
	assert.Zero(t, masks[0].GrayAt(10, 0).Y)
	assert.NotZero(t, masks[11].GrayAt(39, 29).Y)
}

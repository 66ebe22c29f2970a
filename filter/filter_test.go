package filter

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdee/go-stereotrack/camera"
	"github.com/swdee/go-stereotrack/geometry"
	"github.com/swdee/go-stereotrack/vision"
)

// offsets builds correspondences whose A-B offset along x is dx[i]
func offsets(dx ...float64) []Correspondence {
	cs := make([]Correspondence, len(dx))
	for i, d := range dx {
		cs[i] = Correspondence{
			A: r2.Point{X: 100 + d, Y: float64(i)},
			B: r2.Point{X: 100, Y: float64(i)},
		}
	}
	return cs
}

func distances(d ...float64) []Correspondence {
	cs := make([]Correspondence, len(d))
	for i, v := range d {
		cs[i] = Correspondence{Distance: v, A: r2.Point{X: float64(i)}}
	}
	return cs
}

func TestFromMatches(t *testing.T) {

	query := []vision.KeyPoint{{X: 1, Y: 2}, {X: 3, Y: 4}}
	train := []vision.KeyPoint{{X: 5, Y: 6}}

	cs, err := FromMatches(query, train, []vision.DMatch{
		{QueryIdx: 1, TrainIdx: 0, Distance: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, []Correspondence{
		{A: r2.Point{X: 3, Y: 4}, B: r2.Point{X: 5, Y: 6}, Distance: 12},
	}, cs)

	tests := []vision.DMatch{
		{QueryIdx: 2, TrainIdx: 0},
		{QueryIdx: 0, TrainIdx: 1},
		{QueryIdx: -1, TrainIdx: 0},
	}

	for _, m := range tests {
		_, err := FromMatches(query, train, []vision.DMatch{m})
		assert.ErrorIs(t, err, ErrMatchIndex, "match %+v", m)
	}
}

func TestPoints(t *testing.T) {
	a, b := Points(offsets(1, 2))
	assert.Equal(t, []r2.Point{{X: 101, Y: 0}, {X: 102, Y: 1}}, a)
	assert.Equal(t, []r2.Point{{X: 100, Y: 0}, {X: 100, Y: 1}}, b)
}

func TestByDescriptorDistance(t *testing.T) {

	tests := []struct {
		name     string
		input    []Correspondence
		expected int
	}{
		{"floor applies", distances(5, 20, 39, 40, 60), 3},
		{"twice minimum applies", distances(30, 45, 59, 60, 90), 3},
		{"empty", nil, 0},
		{"single", distances(100), 1},
	}

	for _, tc := range tests {
		got := ByDescriptorDistance(DefaultHammingFloor)(tc.input)
		assert.Len(t, got, tc.expected, tc.name)
	}
}

func TestByDescriptorDistanceIdempotent(t *testing.T) {

	rng := rand.New(rand.NewSource(42))
	f := ByDescriptorDistance(DefaultHammingFloor)

	for i := 0; i < 200; i++ {
		cs := make([]Correspondence, rng.Intn(50))
		for j := range cs {
			cs[j] = Correspondence{Distance: float64(rng.Intn(256)), A: r2.Point{X: float64(j)}}
		}

		once := f(cs)
		assert.Equal(t, once, f(once))
	}
}

func TestByAxisOffset(t *testing.T) {

	var seq []float64
	for i := 0; i < 20; i++ {
		seq = append(seq, float64(i))
	}

	tests := []struct {
		name     string
		input    []Correspondence
		percent  float64
		expected int
	}{
		// l=1, r=18, keeps offsets 2..17
		{"twenty distinct", offsets(seq...), 0.05, 16},
		// l=10, r=30 of 40
		{"quartiles", offsets(append(append([]float64{}, seq...), seq...)...), 0.25, 18},
		{"empty", nil, 0, 0},
		{"single with zero percent", offsets(3), 0, 0},
		{"two with zero percent", offsets(1, 2), 0, 0},
		{"collapsed interval", offsets(5, 5, 5, 5, 5, 5), 0.05, 0},
		{"four", offsets(1, 2, 3, 4), 0, 0},
		{"five", offsets(1, 2, 3, 4, 5), 0, 1},
		// clamped to zero, l=1, r=18
		{"negative percent", offsets(seq...), -0.3, 16},
		{"percent beyond half", offsets(seq...), 0.8, 0},
		{"nan percent", offsets(seq...), math.NaN(), 16},
	}

	for _, tc := range tests {
		got := ByAxisOffset(AxisX, tc.percent)(tc.input)
		assert.Len(t, got, tc.expected, tc.name)
	}
}

func TestByAxisOffsetY(t *testing.T) {

	cs := make([]Correspondence, 10)
	for i := range cs {
		cs[i] = Correspondence{
			A: r2.Point{X: 0, Y: float64(i * i)},
			B: r2.Point{X: 1000, Y: 0},
		}
	}

	got := ByAxisOffset(AxisY, 0.1)(cs)

	// l=1, r=9 -> 8, offsets strictly between 1 and 64
	require.Len(t, got, 6)
	for _, c := range got {
		assert.Greater(t, c.A.Y, 1.0)
		assert.Less(t, c.A.Y, 64.0)
	}

	assert.Equal(t, "y", AxisY.String())
	assert.Equal(t, "x", AxisX.String())
}

func TestByEpipolar(t *testing.T) {

	k := &camera.Pinhole{Width: 640, Height: 480, Fx: 400, Fy: 400, Ppx: 320, Ppy: 240}
	r := geometry.RotationFromEuler(0.01, 0.02, -0.01)
	tr := r3.Vector{X: -0.1, Y: 0, Z: 0}
	e := geometry.ComposeEssential(r, tr)

	var cs []Correspondence
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 30; i++ {
		p := r3.Vector{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: 2 + rng.Float64()*5}
		pa, _ := k.Project(p)
		pb, _ := k.Project(geometry.Rotate(r, p).Add(tr))
		cs = append(cs, Correspondence{A: pa, B: pb})
	}

	// a match moved far off its epipolar line
	bad := cs[0]
	bad.B = bad.B.Add(r2.Point{Y: 120})
	cs = append(cs, bad)

	got := ByEpipolar(e, k, k, DefaultEpipolarTolerance)(cs)

	assert.Len(t, got, 30)
	assert.NotContains(t, got, bad)
}

func TestByPixelDistance(t *testing.T) {

	// displacements 1..10, median 5 (empirical), threshold 7.5
	var d []float64
	for i := 1; i <= 10; i++ {
		d = append(d, float64(i))
	}

	got := ByPixelDistance(DefaultPixelDistanceRatio)(offsets(d...))
	assert.Len(t, got, 7)

	assert.Empty(t, ByPixelDistance(DefaultPixelDistanceRatio)(nil))
}

func TestChain(t *testing.T) {

	var calls []string

	record := func(name string) Filter {
		return func(cs []Correspondence) []Correspondence {
			calls = append(calls, name)
			return cs[1:]
		}
	}

	got := Chain(record("a"), record("b"), record("c"))(distances(1, 2))

	// the third filter is skipped once the list is empty
	assert.Empty(t, got)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestDefaultCascade(t *testing.T) {

	rng := rand.New(rand.NewSource(5))

	var cs []Correspondence

	for i := 0; i < 100; i++ {
		cs = append(cs, Correspondence{
			A:        r2.Point{X: 300 + rng.Float64()*4, Y: 200 + rng.Float64()*4},
			B:        r2.Point{X: 280, Y: 200},
			Distance: float64(10 + rng.Intn(20)),
		})
	}

	// gross descriptor mismatch and a displacement outlier
	cs = append(cs, Correspondence{A: r2.Point{X: 302, Y: 202}, B: r2.Point{X: 280, Y: 200}, Distance: 200})
	cs = append(cs, Correspondence{A: r2.Point{X: 600, Y: 202}, B: r2.Point{X: 280, Y: 200}, Distance: 12})

	got := DefaultCascade()(cs)

	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 100)

	for _, c := range got {
		assert.Less(t, c.Distance, 200.0)
		assert.Less(t, c.A.X, 600.0)
	}
}

package gobackend

import (
	"image"
	"math"
)

// floatImage is a single channel image with float32 intensities in [0,255]
type floatImage struct {
	w, h int
	pix  []float32
}

func (f *floatImage) at(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= f.w {
		x = f.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.h {
		y = f.h - 1
	}
	return f.pix[y*f.w+x]
}

// sample returns the bilinear interpolated intensity at (x, y), borders are
// replicated
func (f *floatImage) sample(x, y float64) float64 {

	x0 := math.Floor(x)
	y0 := math.Floor(y)
	ax := x - x0
	ay := y - y0
	ix, iy := int(x0), int(y0)

	p00 := float64(f.at(ix, iy))
	p10 := float64(f.at(ix+1, iy))
	p01 := float64(f.at(ix, iy+1))
	p11 := float64(f.at(ix+1, iy+1))

	return (1-ay)*((1-ax)*p00+ax*p10) + ay*((1-ax)*p01+ax*p11)
}

// fromGray copies a gray image into buf and wraps it
func fromGray(img *image.Gray, buf []float32) *floatImage {

	b := img.Bounds()
	f := &floatImage{w: b.Dx(), h: b.Dy(), pix: buf[:b.Dx()*b.Dy()]}

	for y := 0; y < f.h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+f.w]
		for x, v := range row {
			f.pix[y*f.w+x] = float32(v)
		}
	}

	return f
}

// sobel returns the horizontal and vertical Sobel derivatives of f
func sobel(f *floatImage) ([]float32, []float32) {

	gx := make([]float32, len(f.pix))
	gy := make([]float32, len(f.pix))

	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			tl, tc, tr := f.at(x-1, y-1), f.at(x, y-1), f.at(x+1, y-1)
			ml, mr := f.at(x-1, y), f.at(x+1, y)
			bl, bc, br := f.at(x-1, y+1), f.at(x, y+1), f.at(x+1, y+1)

			gx[y*f.w+x] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy[y*f.w+x] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}

	return gx, gy
}

// boxBlur returns f smoothed with a (2r+1)x(2r+1) box filter
func boxBlur(f *floatImage, r int) *floatImage {

	tmp := make([]float32, len(f.pix))
	out := &floatImage{w: f.w, h: f.h, pix: make([]float32, len(f.pix))}
	n := float32(2*r + 1)

	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			var s float32
			for k := -r; k <= r; k++ {
				s += f.at(x+k, y)
			}
			tmp[y*f.w+x] = s / n
		}
	}

	src := &floatImage{w: f.w, h: f.h, pix: tmp}

	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			var s float32
			for k := -r; k <= r; k++ {
				s += src.at(x, y+k)
			}
			out.pix[y*f.w+x] = s / n
		}
	}

	return out
}

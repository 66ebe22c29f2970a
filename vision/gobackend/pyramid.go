package gobackend

import (
	"image"

	"golang.org/x/image/draw"
)

// minLevelSize is the smallest width or height of a pyramid level
const minLevelSize = 16

// pyramid holds float copies of the base image and its downscaled levels
type pyramid struct {
	levels []*floatImage
	pool   *bufferPool
}

func (p *pyramid) Levels() int {
	return len(p.levels)
}

func (p *pyramid) Size() image.Point {
	return image.Pt(p.levels[0].w, p.levels[0].h)
}

// Close returns the level buffers to the pool
func (p *pyramid) Close() error {
	for _, l := range p.levels {
		p.pool.Put(l.pix)
	}
	p.levels = nil
	return nil
}

// buildPyramid halves img levels-1 times with a bilinear kernel, which
// widens to an area filter when downscaling
func buildPyramid(img *image.Gray, levels int, pool *bufferPool) *pyramid {

	p := &pyramid{pool: pool}
	cur := img

	for l := 0; l < levels; l++ {
		b := cur.Bounds()
		p.levels = append(p.levels, fromGray(cur, pool.Get(b.Dx()*b.Dy())))

		w, h := b.Dx()/2, b.Dy()/2

		if l == levels-1 || w < minLevelSize || h < minLevelSize {
			break
		}

		next := image.NewGray(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(next, next.Bounds(), cur, b, draw.Src, nil)
		cur = next
	}

	return p
}

package preprocess

import (
	"image"
	"image/color"

	"github.com/golang/geo/r2"
	"github.com/swdee/go-stereotrack/camera"
	"golang.org/x/image/draw"
)

// Resizer defines the struct used for scaling camera images to the
// resolution they are tracked at
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// letterbox parameters used in scaling
	xPad  int
	yPad  int
	scale float64
	// resize dimensions
	resizeW int
	resizeH int
	// interp is the interpolator used to scale
	interp draw.Interpolator
}

// NewResizer returns a resizer used for scaling an image to the needed
// dimensions whilst keeping its aspect ratio
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		interp:     draw.ApproxBiLinear,
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// preCalc the scaling factors for source and destination images
func (r *Resizer) preCalc() {

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float64(r.destWidth) / float64(r.srcWidth)
	scaleH := float64(r.destHeight) / float64(r.srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float64(r.srcHeight) * r.scale)
	} else {
		r.resizeW = int(float64(r.srcWidth) * r.scale)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2 // padding height / 2
	r.xPad = (r.destWidth - r.resizeW) / 2  // padding width / 2
}

// LetterBoxResize scales src into a new image of the destination size
// keeping its aspect, the padding is filled with pad.  Trackers keep the
// previous frame so the result is never reused
func (r *Resizer) LetterBoxResize(src *image.Gray, pad color.Gray) *image.Gray {

	dest := image.NewGray(image.Rect(0, 0, r.destWidth, r.destHeight))

	if r.xPad > 0 || r.yPad > 0 {
		draw.Draw(dest, dest.Bounds(), image.NewUniform(pad), image.Point{}, draw.Src)
	}

	inner := image.Rect(r.xPad, r.yPad, r.xPad+r.resizeW, r.yPad+r.resizeH)
	r.interp.Scale(dest, inner, src, src.Bounds(), draw.Src, nil)

	return dest
}

// Scales reports whether the resizer changes the image size
func (r *Resizer) Scales() bool {
	return r.srcWidth != r.destWidth || r.srcHeight != r.destHeight
}

// ToSource maps a pixel of the resized image back to the source image
func (r *Resizer) ToSource(p r2.Point) r2.Point {
	return r2.Point{
		X: (p.X - float64(r.xPad)) / r.scale,
		Y: (p.Y - float64(r.yPad)) / r.scale,
	}
}

// ToDest maps a pixel of the source image into the resized image
func (r *Resizer) ToDest(p r2.Point) r2.Point {
	return r2.Point{
		X: p.X*r.scale + float64(r.xPad),
		Y: p.Y*r.scale + float64(r.yPad),
	}
}

// ScaleIntrinsics returns the intrinsics of the resized image.  Lens
// distortion is expressed in normalized coordinates and unchanged
func (r *Resizer) ScaleIntrinsics(k camera.Pinhole) camera.Pinhole {
	k.Width = r.destWidth
	k.Height = r.destHeight
	k.Fx *= r.scale
	k.Fy *= r.scale
	k.Ppx = k.Ppx*r.scale + float64(r.xPad)
	k.Ppy = k.Ppy*r.scale + float64(r.yPad)
	return k
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float64 {
	return r.scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}

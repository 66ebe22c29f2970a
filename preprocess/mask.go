package preprocess

import (
	"image"
	"math"

	clipper "github.com/ctessum/go.clipper"
	"github.com/golang/geo/r2"
	"golang.org/x/image/vector"
)

// clipScale is the fixed point scale of polygon coordinates given to clipper
const clipScale = 16

// RegionMask returns a w x h detection mask that is set inside polygon.  A
// positive inset shrinks the polygon by that many pixels so features are not
// detected on the region border, a negative inset grows it
func RegionMask(w, h int, polygon []r2.Point, inset float64) *image.Gray {

	paths := []clipper.Path{toPath(polygon)}

	if inset != 0 {
		co := clipper.NewClipperOffset()
		co.AddPath(paths[0], clipper.JtRound, clipper.EtClosedPolygon)
		paths = co.Execute(-inset * clipScale)
	}

	mask := image.NewGray(image.Rect(0, 0, w, h))

	ras := vector.NewRasterizer(w, h)
	filled := false

	for _, path := range paths {
		if len(path) < 3 {
			continue
		}

		ras.MoveTo(fromClip(path[0]))
		for _, pt := range path[1:] {
			ras.LineTo(fromClip(pt))
		}
		ras.ClosePath()
		filled = true
	}

	if !filled {
		return mask
	}

	cover := image.NewAlpha(mask.Bounds())
	ras.Draw(cover, cover.Bounds(), image.Opaque, image.Point{})

	// pixels more than half covered are part of the region
	for i, a := range cover.Pix {
		if a >= 128 {
			mask.Pix[i] = 255
		}
	}

	return mask
}

// DiscMask returns a mask set inside the circle of radius around center,
// used to cut the image circle of a fisheye top view
func DiscMask(w, h int, center r2.Point, radius float64) *image.Gray {

	const segments = 90

	poly := make([]r2.Point, segments)

	for i := range poly {
		a := 2 * math.Pi * float64(i) / segments
		poly[i] = r2.Point{
			X: center.X + radius*math.Cos(a),
			Y: center.Y + radius*math.Sin(a),
		}
	}

	return RegionMask(w, h, poly, 0)
}

func toPath(polygon []r2.Point) clipper.Path {

	var path clipper.Path

	for _, pt := range polygon {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round(pt.X * clipScale)),
			Y: clipper.CInt(math.Round(pt.Y * clipScale)),
		})
	}

	return path
}

func fromClip(pt *clipper.IntPoint) (float32, float32) {
	return float32(pt.X) / clipScale, float32(pt.Y) / clipScale
}

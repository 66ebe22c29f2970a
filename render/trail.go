package render

import (
	"image"
	"image/color"

	"github.com/golang/geo/r2"
	"github.com/swdee/go-stereotrack/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as that of the feature id.  If set to false then use
	// the color specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame defines if the color of the current position circle should
	// be the same color as that of the feature id.  If set to false then use
	// the color specified at CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail draws the pixel history of the features of frame seen by camera.
// Offset shifts every point, used when the camera image is part of a
// larger canvas
func Trail(img *gocv.Mat, frame tracker.FeatureFrame, camera int,
	trail *tracker.Trail, offset image.Point, style TrailStyle) {

	if trail == nil {
		return
	}

	for id, obs := range frame {
		if !seenBy(obs, camera) {
			continue
		}

		objClr := IDColor(id)

		// determine style colors to use
		lineClr := objClr
		circleClr := objClr

		if !style.LineSame {
			lineClr = style.LineColor
		}

		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		// draw trail line showing tracking history
		points := trail.GetPoints(camera, id)

		if len(points) < 2 {
			continue
		}

		for i := 1; i < len(points); i++ {
			gocv.Line(img, toPt(points[i-1], offset), toPt(points[i], offset),
				lineClr, style.LineThickness)
		}

		// draw circle on the current position
		gocv.Circle(img, toPt(points[len(points)-1], offset),
			style.CircleRadius, circleClr, -1)
	}
}

func seenBy(obs []tracker.Observation, camera int) bool {
	for _, o := range obs {
		if o.Camera == camera {
			return true
		}
	}
	return false
}

func toPt(p r2.Point, offset image.Point) image.Point {
	return image.Pt(int(p.X+0.5)+offset.X, int(p.Y+0.5)+offset.Y)
}

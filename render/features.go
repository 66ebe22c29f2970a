package render

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/swdee/go-stereotrack/tracker"
	"gocv.io/x/gocv"
)

// label holds the details of a text label to render
type label struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// newLabel lays out text with its background box above and aligned to
// the anchor point
func newLabel(text string, anchor image.Point, clr color.RGBA, font Font) label {

	textSize := font.Size(text)

	// Calculate the alignment of text label
	var centerX int

	switch font.Alignment {
	case Center:
		centerX = anchor.X

	case Right:
		centerX = anchor.X - (textSize.X / 2) - font.RightPad

	case Left:
		fallthrough
	default:
		centerX = anchor.X + (textSize.X / 2) + font.LeftPad
	}

	return label{
		rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
			anchor.Y-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, anchor.Y),
		clr:     clr,
		text:    text,
		textPos: image.Pt(centerX-textSize.X/2, anchor.Y-font.BottomPad),
	}
}

// drawLabels renders the labels as the top most layer
func drawLabels(img *gocv.Mat, labels []label, font Font) {
	for _, l := range labels {
		// draw box text gets written on
		gocv.Rectangle(img, l.rect, l.clr, -1)

		font.Put(img, l.text, l.textPos, font.Color)
	}
}

// FeatureStyle defines how tracked features are drawn
type FeatureStyle struct {
	Radius int
	// ShowIDs renders the feature id next to each point
	ShowIDs bool
	// MinAge hides features observed for fewer frames, zero shows all
	MinAge int
}

// DefaultFeatureStyle returns default feature style settings
func DefaultFeatureStyle() FeatureStyle {
	return FeatureStyle{
		Radius:  3,
		ShowIDs: false,
	}
}

// Features draws the points of a tracked sub-view colored by id
func Features(img *gocv.Mat, view *tracker.TrackState, offset image.Point,
	font Font, style FeatureStyle) {

	ids := view.IDs()
	pts := view.Points()
	ages := view.Ages()

	labels := make([]label, 0)

	for i, id := range ids {
		if ages[i] < style.MinAge {
			continue
		}

		clr := IDColor(id)
		pt := toPt(pts[i], offset)

		gocv.Circle(img, pt, style.Radius, clr, -1)

		if style.ShowIDs {
			labels = append(labels, newLabel(fmt.Sprintf("%d", id),
				pt.Add(image.Pt(style.Radius, -style.Radius)), clr, font))
		}
	}

	drawLabels(img, labels, font)
}

// FrameSummary writes the feature count of every view in the top left corner
func FrameSummary(img *gocv.Mat, views []*tracker.TrackState, font Font) {

	lines := make([]string, 0, len(views))

	for _, v := range views {
		lines = append(lines, fmt.Sprintf("%s: %d", v.Name, v.Len()))
	}

	sort.Strings(lines)
	textLines(img, lines, font)
}

// textLines writes lines of text down the left edge of the image
func textLines(img *gocv.Mat, lines []string, font Font) {

	labels := make([]label, 0, len(lines))
	y := 0

	for _, text := range lines {
		y += font.LineHeight(text)

		labels = append(labels, newLabel(text, image.Pt(0, y), Black, font))
	}

	drawLabels(img, labels, font)
}

package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Alignment places a label horizontally relative to its anchor point
type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Font holds the Hershey text settings used for feature id labels and
// the status lines of annotated frames
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// padding of the label background box
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	// Alignment of the label to the feature point
	Alignment Alignment
}

// DefaultFont is used for status lines
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// IDFont is a compact font for feature id labels, centred above the point
func IDFont() Font {
	f := DefaultFont()
	f.Face = gocv.FontHersheyPlain
	f.Scale = 0.8
	f.LeftPad, f.RightPad = 2, 2
	f.TopPad, f.BottomPad = 2, 3
	f.Alignment = Center
	return f
}

// Size returns the text extent without padding
func (f Font) Size(text string) image.Point {
	return gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
}

// LineHeight is the vertical space taken by one padded line of text
func (f Font) LineHeight(text string) int {
	return f.Size(text).Y + f.TopPad + f.BottomPad
}

// Put writes text with its baseline at pos in the given color
func (f Font) Put(img *gocv.Mat, text string, pos image.Point, clr color.RGBA) {
	gocv.PutTextWithParams(img, text, pos, f.Face, f.Scale, clr, f.Thickness,
		f.LineType, false)
}

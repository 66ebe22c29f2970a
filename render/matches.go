package render

import (
	"fmt"
	"image"

	"github.com/swdee/go-stereotrack/calib"
	"github.com/swdee/go-stereotrack/filter"
	"gocv.io/x/gocv"
)

// SideBySide returns a new image with left and right placed next to each
// other.  The caller must close the result
func SideBySide(left, right gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.Hconcat(left, right, &out)
	return out
}

// Matches draws the correspondences of an image pair on a side by side
// canvas, the B point is shifted right by the width of the left image
func Matches(img *gocv.Mat, cs []filter.Correspondence, leftWidth int,
	lineThickness int) {

	offset := image.Pt(leftWidth, 0)

	for i, c := range cs {
		clr := IDColor(i)
		a := toPt(c.A, image.Point{})
		b := toPt(c.B, offset)

		gocv.Line(img, a, b, clr, lineThickness)
		gocv.Circle(img, a, 2, clr, -1)
		gocv.Circle(img, b, 2, clr, -1)
	}
}

// Extrinsic writes the calibration state and the current extrinsic
// estimate in the top left corner
func Extrinsic(img *gocv.Mat, state calib.State, est *calib.Estimate,
	buffered int, font Font) {

	euler := est.EulerDegrees()

	textLines(img, []string{
		fmt.Sprintf("state: %s  buffered: %d", state, buffered),
		fmt.Sprintf("roll %.3f pitch %.3f yaw %.3f deg", euler.X, euler.Y, euler.Z),
		fmt.Sprintf("t %.4f %.4f %.4f", est.Translation.X, est.Translation.Y,
			est.Translation.Z),
	}, font)
}

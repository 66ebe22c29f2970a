package calib

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/swdee/go-stereotrack/vision"
	"golang.org/x/image/draw"
)

// GridMasks splits the bounds into cols x rows cells and returns one
// detection mask per cell, row by row
func GridMasks(bounds image.Rectangle, cols, rows int) []*image.Gray {

	masks := make([]*image.Gray, 0, cols*rows)
	w, h := bounds.Dx(), bounds.Dy()
	on := image.NewUniform(color.Gray{Y: 255})

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cell := image.Rect(
				bounds.Min.X+c*w/cols, bounds.Min.Y+r*h/rows,
				bounds.Min.X+(c+1)*w/cols, bounds.Min.Y+(r+1)*h/rows,
			)

			m := image.NewGray(bounds)
			draw.Draw(m, cell, on, image.Point{}, draw.Src)
			masks = append(masks, m)
		}
	}

	return masks
}

// DetectByRegion detects keypoints separately in each cell of a cols x rows
// grid and keeps the strongest total/(cols*rows) of each cell so features
// spread over the whole image
func DetectByRegion(backend vision.Backend, img *image.Gray, cols, rows,
	total int) ([]vision.KeyPoint, vision.Descriptors, error) {

	if cols <= 0 || rows <= 0 {
		return nil, nil, fmt.Errorf("invalid detection grid %dx%d", cols, rows)
	}

	perCell := total / (cols * rows)

	var kps []vision.KeyPoint
	var desc vision.Descriptors

	for i, mask := range GridMasks(img.Bounds(), cols, rows) {

		ck, cd, err := backend.DetectAndDescribe(img, mask)

		if err != nil {
			return nil, nil, fmt.Errorf("detect region %d: %w", i, err)
		}

		idx := make([]int, len(ck))

		for j := range idx {
			idx[j] = j
		}

		sort.SliceStable(idx, func(x, y int) bool {
			return ck[idx[x]].Response > ck[idx[y]].Response
		})

		if len(idx) > perCell {
			idx = idx[:perCell]
		}

		for _, j := range idx {
			kps = append(kps, ck[j])
			desc = append(desc, cd[j])
		}
	}

	return kps, desc, nil
}

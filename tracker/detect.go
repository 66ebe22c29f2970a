package tracker

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// filterByRadius returns the candidates that are farther than minDist from
// every existing point and from every candidate accepted before them
func filterByRadius(existing, candidates []r2.Point, minDist float64) []r2.Point {

	pts := make(kdtree.Points, len(existing))

	for i, p := range existing {
		pts[i] = kdtree.Point{p.X, p.Y}
	}

	tree := kdtree.New(pts, false)
	radius := minDist * minDist

	var accepted []r2.Point

	for _, c := range candidates {
		q := kdtree.Point{c.X, c.Y}

		// an empty tree leaves the keeper sentinel in place
		if tree.Count > 0 {
			// the distance keeper works on squared euclidean distance
			keeper := kdtree.NewDistKeeper(radius)
			tree.NearestSet(keeper, q)

			if keeper.Len() > 0 {
				continue
			}
		}

		accepted = append(accepted, c)
		tree.Insert(q, false)
	}

	return accepted
}

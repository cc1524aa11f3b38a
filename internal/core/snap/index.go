// Package snap finds existing vertices close to a pointer position.
package snap

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// ThresholdPx is the snapping radius in screen pixels. A vertex exactly at
// the threshold still snaps.
const ThresholdPx = 15.0

// Projector maps between lon/lat and screen pixels for the current view.
type Projector interface {
	Project(p orb.Point) orb.Point
	Unproject(px orb.Point) orb.Point
}

// Candidate is a vertex that a pointer position would snap to.
type Candidate struct {
	Coordinate orb.Point `json:"coordinate"`
	FeatureID  string    `json:"feature_id"`
	DistancePx float64   `json:"distance_px"`
}

type vertex struct {
	point     orb.Point
	featureID string
}

// Index holds every vertex of a feature set. Distances are always computed
// through the projector passed to Nearest, never cached, so the same index
// stays valid across pan and zoom.
type Index struct {
	tree rtree.RTreeG[vertex]
}

// Build indexes all vertices of features.
func Build(features []domain.Feature) *Index {
	ix := &Index{}
	for _, f := range features {
		for _, seg := range f.Geometry {
			for _, p := range seg {
				ix.tree.Insert([2]float64{p[0], p[1]}, [2]float64{p[0], p[1]}, vertex{point: p, featureID: f.ID})
			}
		}
	}
	return ix
}

// Len returns the number of indexed vertices.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.tree.Len()
}

// Nearest returns the closest vertex within ThresholdPx of screen, ignoring
// vertices that belong to exclude.
func (ix *Index) Nearest(proj Projector, screen orb.Point, exclude string) (Candidate, bool) {
	if ix == nil || ix.tree.Len() == 0 {
		return Candidate{}, false
	}

	min, max := searchBox(proj, screen, ThresholdPx+1)

	var best Candidate
	found := false
	ix.tree.Search(min, max, func(_, _ [2]float64, v vertex) bool {
		if exclude != "" && v.featureID == exclude {
			return true
		}
		px := proj.Project(v.point)
		d := math.Hypot(px[0]-screen[0], px[1]-screen[1])
		if d > ThresholdPx {
			return true
		}
		if !found || d < best.DistancePx || (d == best.DistancePx && less(v, best)) {
			best = Candidate{Coordinate: v.point, FeatureID: v.featureID, DistancePx: d}
			found = true
		}
		return true
	})
	return best, found
}

// less breaks distance ties so the result does not depend on tree order.
func less(v vertex, c Candidate) bool {
	if v.featureID != c.FeatureID {
		return v.featureID < c.FeatureID
	}
	if v.point[0] != c.Coordinate[0] {
		return v.point[0] < c.Coordinate[0]
	}
	return v.point[1] < c.Coordinate[1]
}

// searchBox unprojects the four corners of the pixel square around screen
// and returns their lon/lat bounding box.
func searchBox(proj Projector, screen orb.Point, radius float64) (min, max [2]float64) {
	corners := [4]orb.Point{
		{screen[0] - radius, screen[1] - radius},
		{screen[0] + radius, screen[1] - radius},
		{screen[0] - radius, screen[1] + radius},
		{screen[0] + radius, screen[1] + radius},
	}
	min = [2]float64{math.Inf(1), math.Inf(1)}
	max = [2]float64{math.Inf(-1), math.Inf(-1)}
	for _, c := range corners {
		g := proj.Unproject(c)
		min[0], min[1] = math.Min(min[0], g[0]), math.Min(min[1], g[1])
		max[0], max[1] = math.Max(max[0], g[0]), math.Max(max[1], g[1])
	}
	return min, max
}

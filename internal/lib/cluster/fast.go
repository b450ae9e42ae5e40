package cluster

import (
	"context"
	"math"
	"sort"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/parallel"
	"github.com/dpup/scanplan/internal/lib/spatial"
)

// gridSide is the UDC cell side in radius units. A disc of radius 1 centered
// anywhere in a cell lies inside that cell's 3x3 neighbourhood.
var gridSide = math.Sqrt2

type cellKey struct{ x, y int }

// projection is an equirectangular plane around an origin, scaled so one
// unit is one radius.
type projection struct {
	origin geo.Point
	cosLat float64
	scale  float64 // units per degree of latitude
}

func newProjection(points []geo.Point, radius float64) projection {
	origin := geo.Centroid(points)
	cosLat := math.Cos(origin.Latitude * geo.DegToRad)
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	return projection{origin: origin, cosLat: cosLat, scale: geo.EarthRadius * geo.DegToRad / radius}
}

func (pr projection) forward(p geo.Point) (x, y float64) {
	return (p.Longitude - pr.origin.Longitude) * pr.cosLat * pr.scale,
		(p.Latitude - pr.origin.Latitude) * pr.scale
}

func (pr projection) inverse(x, y float64) geo.Point {
	return geo.Point{
		Latitude:  pr.origin.Latitude + y/pr.scale,
		Longitude: pr.origin.Longitude + x/(pr.cosLat*pr.scale),
	}
}

func keyOf(x, y float64) cellKey {
	return cellKey{x: int(math.Floor(x / gridSide)), y: int(math.Floor(y / gridSide))}
}

// FastCandidates buckets the indexed points into a UDC grid and proposes, per
// non-empty cell, every member point, the cell's centroid and the centroid of
// its 3x3 neighbourhood. Proposals are scored against the index so points the
// projection pushes outside the 3x3 block are still counted; proposals
// covering fewer than minPoints are dropped. Output order follows the sorted
// cell keys.
func FastCandidates(ctx context.Context, ix *spatial.Index, minPoints, workers int) ([]Candidate, error) {
	points := ix.Points()
	if len(points) == 0 {
		return nil, nil
	}
	radius := ix.Radius()

	pr := newProjection(points, radius)
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	buckets := make(map[cellKey][]int)
	for i, p := range points {
		xs[i], ys[i] = pr.forward(p)
		k := keyOf(xs[i], ys[i])
		buckets[k] = append(buckets[k], i)
	}

	keys := make([]cellKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].y != keys[j].y {
			return keys[i].y > keys[j].y
		}
		return keys[i].x < keys[j].x
	})

	block := func(k cellKey) []int {
		var out []int
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				out = append(out, buckets[cellKey{x: k.x + dx, y: k.y + dy}]...)
			}
		}
		return out
	}

	score := func(center geo.Point) (Candidate, bool) {
		all := ix.LocateAllAtPoint(center)
		if len(all) < minPoints {
			return Candidate{}, false
		}
		return Candidate{Center: center, All: all}, true
	}

	perCell := make([][]Candidate, len(keys))
	err := parallel.ForEach(ctx, len(keys), workers, func(ctx context.Context, ki int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		k := keys[ki]
		var out []Candidate
		add := func(center geo.Point) {
			if c, ok := score(center); ok {
				out = append(out, c)
			}
		}

		members := buckets[k]
		for _, i := range members {
			add(points[i])
		}
		if len(members) > 1 {
			cx, cy := meanXY(members, xs, ys)
			add(pr.inverse(cx, cy))
		}
		if neighbourhood := block(k); len(neighbourhood) > len(members) {
			nx, ny := meanXY(neighbourhood, xs, ys)
			add(pr.inverse(nx, ny))
		}
		perCell[ki] = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, c := range perCell {
		candidates = append(candidates, c...)
	}
	return candidates, nil
}

func meanXY(indices []int, xs, ys []float64) (float64, float64) {
	var sx, sy float64
	for _, i := range indices {
		sx += xs[i]
		sy += ys[i]
	}
	n := float64(len(indices))
	return sx / n, sy / n
}

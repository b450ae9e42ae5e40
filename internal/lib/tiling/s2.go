package tiling

import (
	"context"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// S2Tiler covers a polygon with (2*Size+1)^2 blocks of level-Level cells.
type S2Tiler struct {
	Level int
	Size  int
	Memo  geo.CoverageMemo
}

// Tile walks the level-Level covering of the polygon top-to-bottom then
// left-to-right and starts a new block at every cell not yet covered by an
// earlier block. The block centers are the output centers.
func (t *S2Tiler) Tile(ctx context.Context, poly geo.Polygon) (Result, error) {
	poly, err := poly.Close()
	if err != nil {
		return Result{}, err
	}

	coverer := &s2.RegionCoverer{MinLevel: t.Level, MaxLevel: t.Level, MaxCells: 1 << 20}
	cells := []s2.CellID(coverer.Covering(poly.S2()))

	type cellCenter struct {
		id     s2.CellID
		center geo.Point
	}
	ordered := make([]cellCenter, len(cells))
	for i, id := range cells {
		ordered[i] = cellCenter{id: id, center: geo.CellCenter(id)}
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.center.Latitude != b.center.Latitude {
			return a.center.Latitude > b.center.Latitude
		}
		if a.center.Longitude != b.center.Longitude {
			return a.center.Longitude < b.center.Longitude
		}
		return a.id < b.id
	})

	covered := make(map[s2.CellID]struct{}, len(cells))
	var centers []geo.Point
	for i, c := range ordered {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Centers: centers, Cells: sortedCells(covered)}, err
			}
		}
		if _, ok := covered[c.id]; ok {
			continue
		}
		centers = append(centers, c.center)
		for _, id := range geo.CellCoverage(c.center.Latitude, c.center.Longitude, t.Size, t.Level, t.Memo) {
			covered[id] = struct{}{}
		}
	}

	return Result{Centers: centers, Cells: sortedCells(covered)}, nil
}

func sortedCells(set map[s2.CellID]struct{}) []s2.CellID {
	out := make([]s2.CellID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

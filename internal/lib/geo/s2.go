package geo

import (
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// CoverageKey identifies one memoized CellCoverage block.
type CoverageKey struct {
	Size   int
	Level  int
	Parent s2.CellID
}

// CoverageMemo stores CellCoverage results. Implementations must be safe for
// concurrent use; entries are insert-only.
type CoverageMemo interface {
	GetOrCompute(key CoverageKey, compute func() []s2.CellID) []s2.CellID
}

// CellIDAt returns the S2 cell containing lat/lon at the given level.
func CellIDAt(lat, lon float64, level int) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(level)
}

// Parent returns the ancestor of cell at level.
func Parent(cell s2.CellID, level int) s2.CellID {
	return cell.Parent(level)
}

// Children returns the four children of cell.
func Children(cell s2.CellID) [4]s2.CellID {
	return cell.Children()
}

// CellCenter returns the center of the cell as a Point.
func CellCenter(cell s2.CellID) Point {
	ll := cell.LatLng()
	return Point{Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees()}
}

// CellVertices returns the four corners of the cell in counter-clockwise order.
func CellVertices(cell s2.CellID) [4]Point {
	c := s2.CellFromCellID(cell)
	var out [4]Point
	for k := 0; k < 4; k++ {
		ll := s2.LatLngFromPoint(c.Vertex(k))
		out[k] = Point{Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees()}
	}
	return out
}

// CircleCoverage returns, sorted by id, every cell at level whose area
// intersects the disc of radius meters around lat/lon.
func CircleCoverage(lat, lon, radius float64, level int) []s2.CellID {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	disc := s2.CapFromCenterAngle(center, s1.Angle(radius/EarthRadius))
	coverer := &s2.RegionCoverer{MinLevel: level, MaxLevel: level, MaxCells: 1 << 20}

	var cells []s2.CellID
	for _, id := range coverer.Covering(disc) {
		if disc.IntersectsCell(s2.CellFromCellID(id)) {
			cells = append(cells, id)
		}
	}
	sortCells(cells)
	return cells
}

// CellCoverage returns the (2*size+1)^2 block of cells at level centered on
// the cell containing lat/lon, sorted by id. Results are memoized in memo by
// (size, level, center cell) when memo is non-nil.
func CellCoverage(lat, lon float64, size, level int, memo CoverageMemo) []s2.CellID {
	center := CellIDAt(lat, lon, level)
	compute := func() []s2.CellID { return cellBlock(center, size, level) }
	if memo == nil {
		return compute()
	}
	return memo.GetOrCompute(CoverageKey{Size: size, Level: level, Parent: center}, compute)
}

// cellBlock expands the 8-connected neighbourhood of center size times,
// which yields the Chebyshev ball of the cell in face i/j space.
func cellBlock(center s2.CellID, size, level int) []s2.CellID {
	seen := map[s2.CellID]struct{}{center: {}}
	frontier := []s2.CellID{center}
	for step := 0; step < size; step++ {
		var next []s2.CellID
		for _, cell := range frontier {
			for _, n := range cell.AllNeighbors(level) {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}

	cells := make([]s2.CellID, 0, len(seen))
	for id := range seen {
		cells = append(cells, id)
	}
	sortCells(cells)
	return cells
}

func sortCells(cells []s2.CellID) {
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
}

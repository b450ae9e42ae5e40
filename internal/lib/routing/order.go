package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/parallel"
	"github.com/dpup/scanplan/internal/lib/spatial"
)

// orderer implements the Orderer interface
type orderer struct {
	params Params
}

// NewOrderer creates an Orderer for p
func NewOrderer(p Params) (Orderer, error) {
	if _, ok := sortByNames[p.SortBy]; !ok {
		return nil, fmt.Errorf("unsupported sort order %v", p.SortBy)
	}
	if p.RouteSplitLevel < 0 || p.RouteSplitLevel > geo.LeafLevel {
		return nil, fmt.Errorf("route split level %d out of range [0, %d]", p.RouteSplitLevel, geo.LeafLevel)
	}
	if p.SortBy == SortPointCount && (math.IsNaN(p.Radius) || math.IsInf(p.Radius, 0) || p.Radius <= 0) {
		return nil, errors.New("point count ordering needs a positive radius")
	}
	return &orderer{params: p}, nil
}

// Order returns the centers reordered by the configured strategy. With a
// Start set, the finished tour is rotated to begin there whatever the
// strategy.
func (o *orderer) Order(ctx context.Context, centers, points []geo.Point) ([]geo.Point, error) {
	route, err := o.order(ctx, centers, points)
	if route != nil && o.params.Start != nil {
		route = RotateTo(route, *o.params.Start)
	}
	return route, err
}

func (o *orderer) order(ctx context.Context, centers, points []geo.Point) ([]geo.Point, error) {
	if len(centers) < 2 {
		return append([]geo.Point(nil), centers...), nil
	}

	switch o.params.SortBy {
	case SortUnset:
		return append([]geo.Point(nil), centers...), nil
	case SortRandom:
		return riffle(centers, o.params.Seed), nil
	case SortTSP:
		return solveTour(ctx, centers, o.params)
	}

	less, err := o.comparator(ctx, centers, points)
	if err != nil {
		return nil, err
	}
	perm := make([]int, len(centers))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		i, j := perm[a], perm[b]
		if less(i, j) {
			return true
		}
		if less(j, i) {
			return false
		}
		return i < j
	})
	return permute(centers, perm), nil
}

// comparator builds the key-based ordering for the sort strategies. Keys are
// computed in parallel, one slot per center.
func (o *orderer) comparator(ctx context.Context, centers, points []geo.Point) (func(i, j int) bool, error) {
	workers := o.params.Workers

	switch o.params.SortBy {
	case SortGeoHash:
		keys, err := parallel.Map(ctx, centers, workers, func(p geo.Point) string {
			return geo.EncodeGeohash(p, geo.GeohashPrecision)
		})
		if err != nil {
			return nil, err
		}
		return func(i, j int) bool { return keys[i] < keys[j] }, nil

	case SortS2Cell:
		keys, err := parallel.Map(ctx, centers, workers, func(p geo.Point) uint64 {
			return uint64(p.CellID())
		})
		if err != nil {
			return nil, err
		}
		return func(i, j int) bool { return keys[i] < keys[j] }, nil

	case SortLatLon:
		return func(i, j int) bool {
			a, b := centers[i], centers[j]
			if a.Latitude != b.Latitude {
				return a.Latitude > b.Latitude
			}
			return a.Longitude > b.Longitude
		}, nil

	case SortHilbert:
		type hilbertKey struct{ parent, cell uint64 }
		keys, err := parallel.Map(ctx, centers, workers, func(p geo.Point) hilbertKey {
			cell := p.CellID()
			return hilbertKey{parent: uint64(cell.Parent(geo.HilbertLevel)), cell: uint64(cell)}
		})
		if err != nil {
			return nil, err
		}
		return func(i, j int) bool {
			if keys[i].parent != keys[j].parent {
				return keys[i].parent < keys[j].parent
			}
			return keys[i].cell < keys[j].cell
		}, nil

	case SortPointCount:
		ix, err := spatial.NewIndex(points, o.params.Radius)
		if err != nil {
			return nil, fmt.Errorf("point count index: %w", err)
		}
		type countKey struct {
			count int
			cell  uint64
		}
		keys, err := parallel.Map(ctx, centers, workers, func(p geo.Point) countKey {
			return countKey{count: ix.CountAtPoint(p), cell: uint64(p.CellID())}
		})
		if err != nil {
			return nil, err
		}
		return func(i, j int) bool {
			if keys[i].count != keys[j].count {
				return keys[i].count > keys[j].count
			}
			return keys[i].cell < keys[j].cell
		}, nil
	}

	return nil, fmt.Errorf("unsupported sort order %v", o.params.SortBy)
}

func permute(points []geo.Point, perm []int) []geo.Point {
	out := make([]geo.Point, len(perm))
	for k, i := range perm {
		out[k] = points[i]
	}
	return out
}

// RotateTo returns route rotated so it begins at the first stop equal to
// start. The route is returned unchanged when no stop matches.
func RotateTo(route []geo.Point, start geo.Point) []geo.Point {
	for i, p := range route {
		if p.Equal(start) {
			out := make([]geo.Point, 0, len(route))
			out = append(out, route[i:]...)
			return append(out, route[:i]...)
		}
	}
	return route
}

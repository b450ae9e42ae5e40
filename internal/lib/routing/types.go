package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// SortBy selects how cluster centers are ordered into a route
type SortBy int

const (
	SortUnset      SortBy = iota // keep input order
	SortGeoHash                  // lexicographic geohash, precision 12
	SortPointCount               // most covered points first
	SortRandom                   // seeded inverse riffle
	SortS2Cell                   // level-20 cell id
	SortLatLon                   // latitude desc, then longitude desc
	SortHilbert                  // level-15 parent, then level-20 cell id
	SortTSP                      // cell-partitioned tour
)

var sortByNames = map[SortBy]string{
	SortUnset:      "unset",
	SortGeoHash:    "geohash",
	SortPointCount: "point_count",
	SortRandom:     "random",
	SortS2Cell:     "s2cell",
	SortLatLon:     "latlon",
	SortHilbert:    "hilbert",
	SortTSP:        "tsp",
}

func (s SortBy) String() string {
	if name, ok := sortByNames[s]; ok {
		return name
	}
	return fmt.Sprintf("sort_by(%d)", int(s))
}

// ParseSortBy parses a strategy name. Underscores, dashes and case are ignored.
func ParseSortBy(name string) (SortBy, error) {
	norm := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	if norm == "" {
		return SortUnset, nil
	}
	for s, n := range sortByNames {
		if strings.ReplaceAll(n, "_", "") == norm {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown sort order %q", name)
}

// DefaultTwoOptSweeps bounds 2-opt improvement passes per bucket
const DefaultTwoOptSweeps = 50

// Params configures route ordering
type Params struct {
	SortBy SortBy
	// RouteSplitLevel is the S2 level used to bucket centers for TSP; 0 keeps
	// every center in one bucket.
	RouteSplitLevel int
	// Radius is the coverage radius used by SortPointCount
	Radius float64
	// Seed starts the SortRandom generator; 0 is treated as 1
	Seed int64
	// TwoOptSweeps bounds 2-opt passes; 0 means DefaultTwoOptSweeps
	TwoOptSweeps int
	// Start, when set, rotates every tour to begin at the matching center
	Start   *geo.Point
	Workers int
}

// Orderer produces a permutation of cluster centers
type Orderer interface {
	// Order returns centers reordered. points are the raw inputs, only used by
	// SortPointCount. On cancellation the best order found so far is returned
	// with the context error.
	Order(ctx context.Context, centers, points []geo.Point) ([]geo.Point, error)
}

// NewOrderer is implemented in order.go

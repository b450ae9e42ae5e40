package tiling

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/golang/geo/s2"
	"go.uber.org/multierr"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/parallel"
)

// Mode selects the tiling strategy
type Mode int

const (
	// ModeRadius tiles with a honeycomb of fixed-radius circles
	ModeRadius Mode = iota
	// ModeS2 tiles with blocks of S2 cells
	ModeS2
)

func (m Mode) String() string {
	switch m {
	case ModeRadius:
		return "radius"
	case ModeS2:
		return "s2"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name, case-insensitively
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "radius", "":
		return ModeRadius, nil
	case "s2":
		return ModeS2, nil
	default:
		return 0, fmt.Errorf("unknown tiling mode %q", s)
	}
}

// Params configures a tiler
type Params struct {
	Mode   Mode
	Radius float64 // meters, honeycomb only
	Level  int     // S2 only
	Size   int     // S2 only, block half-width in cells
	Memo   geo.CoverageMemo
}

// Result is the output of tiling one or more polygons
type Result struct {
	Centers []geo.Point
	// Cells holds the covered S2 cells, sorted by id. Empty for honeycomb.
	Cells []s2.CellID
}

// Tiler covers a polygon with candidate centers. Implementations are
// deterministic: the same polygon always yields the same sequence.
type Tiler interface {
	Tile(ctx context.Context, poly geo.Polygon) (Result, error)
}

// New creates the tiler selected by p.Mode
func New(p Params) (Tiler, error) {
	switch p.Mode {
	case ModeRadius:
		if math.IsNaN(p.Radius) || math.IsInf(p.Radius, 0) || p.Radius <= 0 {
			return nil, fmt.Errorf("honeycomb radius %v must be positive and finite", p.Radius)
		}
		return &Honeycomb{Radius: p.Radius}, nil
	case ModeS2:
		if p.Level < 0 || p.Level > s2.MaxLevel {
			return nil, fmt.Errorf("s2 level %d out of range [0, %d]", p.Level, s2.MaxLevel)
		}
		if p.Size < 0 {
			return nil, fmt.Errorf("s2 size %d must not be negative", p.Size)
		}
		return &S2Tiler{Level: p.Level, Size: p.Size, Memo: p.Memo}, nil
	default:
		return nil, fmt.Errorf("unsupported tiling mode %v", p.Mode)
	}
}

// TileAll tiles every polygon on its own worker and concatenates the results
// in input order. A polygon that fails contributes nothing; its error is
// combined into the returned error and the rest of the batch still completes.
func TileAll(ctx context.Context, t Tiler, polys []geo.Polygon, workers int) (Result, error) {
	results := make([]Result, len(polys))
	errs := make([]error, len(polys))

	_ = parallel.ForEach(ctx, len(polys), workers, func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			return nil
		}
		res, err := t.Tile(ctx, polys[i])
		if err != nil {
			errs[i] = fmt.Errorf("polygon %d: %w", i, err)
		}
		results[i] = res
		return nil
	})

	var out Result
	var cellSet map[s2.CellID]struct{}
	for _, res := range results {
		out.Centers = append(out.Centers, res.Centers...)
		for _, c := range res.Cells {
			if cellSet == nil {
				cellSet = make(map[s2.CellID]struct{})
			}
			cellSet[c] = struct{}{}
		}
	}
	for c := range cellSet {
		out.Cells = append(out.Cells, c)
	}
	sort.Slice(out.Cells, func(i, j int) bool { return out.Cells[i] < out.Cells[j] })

	err := multierr.Combine(errs...)
	if err == nil {
		err = ctx.Err()
	}
	return out, err
}

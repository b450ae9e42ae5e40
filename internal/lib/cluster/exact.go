package cluster

import (
	"context"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/parallel"
	"github.com/dpup/scanplan/internal/lib/spatial"
)

// ExactCandidates queries the index for the coverage set of every center and
// keeps those covering at least minPoints. Order follows centers.
func ExactCandidates(ctx context.Context, ix *spatial.Index, centers []geo.Point, minPoints, workers int) ([]Candidate, error) {
	sets := make([][]int, len(centers))
	err := parallel.ForEach(ctx, len(centers), workers, func(ctx context.Context, i int) error {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		sets[i] = ix.LocateAllAtPoint(centers[i])
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for i, all := range sets {
		if len(all) >= minPoints && len(all) > 0 {
			out = append(out, Candidate{Center: centers[i], All: all})
		}
	}
	return out, nil
}

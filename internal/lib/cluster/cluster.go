package cluster

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/parallel"
	"github.com/dpup/scanplan/internal/lib/spatial"
	"github.com/dpup/scanplan/internal/logging"
)

// Run clusters points. In fast mode candidates come from the UDC grid and
// centers is ignored; otherwise centers (typically a tiling of the area) plus
// every input point are the candidates. The index must hold points with
// p.Radius. On cancellation the clusters built so far are returned with the
// context error.
func Run(ctx context.Context, ix *spatial.Index, centers []geo.Point, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	points := ix.Points()
	if len(points) == 0 {
		return Result{}, fmt.Errorf("no points to cluster: %w", geo.ErrEmptyInput)
	}

	var (
		candidates []Candidate
		err        error
	)
	if p.Fast {
		candidates, err = FastCandidates(ctx, ix, p.MinPoints, p.Workers)
	} else {
		all := make([]geo.Point, 0, len(centers)+len(points))
		all = append(all, centers...)
		all = append(all, points...)
		candidates, err = ExactCandidates(ctx, ix, all, p.MinPoints, p.Workers)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Candidates: len(candidates)}
	res.Clusters = Greedy(candidates, len(points))
	logging.Debugw(ctx, "cluster: greedy cover complete",
		"candidates", len(candidates), "clusters", len(res.Clusters), "fast", p.Fast)

	if p.Refine {
		err = RefineAll(ctx, ix, res.Clusters, p)
	}
	return res, err
}

// RefineAll re-centers every cluster on the smallest circle enclosing its
// Unique members, in parallel with a per-cluster RNG seeded by Seed+index.
// A successful move recomputes All from the index; a move that would drop All
// below MinPoints is rejected. Clusters not reached before cancellation keep
// their centers and the OutcomeSkipped mark.
func RefineAll(ctx context.Context, ix *spatial.Index, clusters []Cluster, p Params) error {
	points := ix.Points()
	return parallel.ForEach(ctx, len(clusters), p.Workers, func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &clusters[i]
		members := make([]geo.Point, len(c.Unique))
		for k, idx := range c.Unique {
			members[k] = points[idx]
		}

		rng := rand.New(rand.NewSource(p.Seed + int64(i)))
		ref := Refine(members, c.Center, p.Radius, p.MaxAttempts, rng)
		if ref.Outcome != OutcomeCentered {
			c.Outcome = ref.Outcome
			logging.Debugw(ctx, "cluster: keeping original center",
				"cluster", i, "outcome", ref.Outcome.String(), "attempts", ref.Attempts)
			return nil
		}

		all := ix.LocateAllAtPoint(ref.Center)
		if len(all) < p.MinPoints {
			c.Outcome = OutcomeMissingPoints
			return nil
		}
		c.Center = ref.Center
		c.All = all
		c.Outcome = OutcomeCentered
		return nil
	})
}

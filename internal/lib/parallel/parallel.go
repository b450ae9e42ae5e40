package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers returns n when positive, otherwise GOMAXPROCS.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// ForEach runs fn for every index in [0, n) on at most workers goroutines.
// Each call owns its index; results are written by the caller into a slot per
// index so the outcome does not depend on scheduling. The first error cancels
// the context passed to the remaining calls and is returned.
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(workers))
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map applies fn to every element of in and returns the results in input order.
func Map[T, R any](ctx context.Context, in []T, workers int, fn func(T) R) ([]R, error) {
	out := make([]R, len(in))
	err := ForEach(ctx, len(in), workers, func(_ context.Context, i int) error {
		out[i] = fn(in[i])
		return nil
	})
	return out, err
}

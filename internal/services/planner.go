package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dpup/scanplan/internal/cache"
	"github.com/dpup/scanplan/internal/lib/cluster"
	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/parallel"
	"github.com/dpup/scanplan/internal/lib/routing"
	"github.com/dpup/scanplan/internal/lib/spatial"
	"github.com/dpup/scanplan/internal/lib/stats"
	"github.com/dpup/scanplan/internal/lib/tiling"
	"github.com/dpup/scanplan/internal/logging"
	"github.com/dpup/scanplan/internal/metrics"
)

var (
	// ErrInvalidParameter wraps parameter errors that make a whole call fail
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrCancelled is returned by calls without stats when the context ends
	ErrCancelled = errors.New("cancelled")
)

// Result is the output of a planner call. Points are the tiled, clustered or
// ordered centers depending on the operation.
type Result struct {
	Points []geo.Point
	Stats  *stats.Stats
}

// BootstrapParams configures Bootstrap
type BootstrapParams struct {
	Mode            tiling.Mode
	Radius          float64
	S2Level         int
	S2Size          int
	SortBy          routing.SortBy
	RouteSplitLevel int
	Seed            int64
	TwoOptSweeps    int
}

// ClusterParams configures Cluster. Mode, S2Level and S2Size select how
// candidates are tiled when Fast is off.
type ClusterParams struct {
	Radius      float64
	MinPoints   int
	Fast        bool
	Refine      bool
	Seed        int64
	MaxAttempts int
	Mode        tiling.Mode
	S2Level     int
	S2Size      int
}

// RouteParams configures Route
type RouteParams struct {
	SortBy          routing.SortBy
	RouteSplitLevel int
	Radius          float64
	Seed            int64
	TwoOptSweeps    int
}

// Planner runs the coverage pipeline. The coverage memo it holds is shared by
// every call made through the same Planner.
type Planner struct {
	memo    *cache.CoverageCache
	metrics *metrics.Metrics
	workers int
}

// Option configures a Planner
type Option func(*Planner)

// WithCoverageCache shares an existing coverage memo
func WithCoverageCache(c *cache.CoverageCache) Option {
	return func(p *Planner) { p.memo = c }
}

// WithMetrics records every call in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithWorkers bounds parallel regions; n <= 0 uses GOMAXPROCS
func WithWorkers(n int) Option {
	return func(p *Planner) { p.workers = n }
}

// NewPlanner creates a planner with its own coverage memo unless one is given
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{}
	for _, opt := range opts {
		opt(p)
	}
	if p.memo == nil {
		p.memo = cache.NewCoverageCache()
	}
	p.workers = parallel.Workers(p.workers)
	return p
}

// CoverageCache returns the planner's memo
func (p *Planner) CoverageCache() *cache.CoverageCache {
	return p.memo
}

// begin starts a call: a fresh run id on the stats and the logger, and a
// counter for the call's own memo lookups
func (p *Planner) begin(ctx context.Context, op string) (context.Context, *stats.Stats, *cache.RunCounter) {
	id := uuid.NewString()
	ctx = logging.Track(ctx, "run_id", id, "op", op)
	logging.Debugw(ctx, "planner: starting")
	return ctx, stats.New(id), p.memo.Track()
}

// finish fills cache figures and records metrics for a call
func (p *Planner) finish(ctx context.Context, op string, start time.Time, st *stats.Stats, memo *cache.RunCounter, err error) {
	cs := memo.Stats()
	st.Cache = stats.CacheStats{Entries: cs.TotalEntries, Hits: cs.Hits, Misses: cs.Misses}
	p.metrics.ObserveRun(op, start, err)
	if err == nil {
		p.metrics.ObserveStats(st)
	}

	if err != nil {
		logging.Errorw(ctx, "planner: failed", "error", err)
		return
	}
	logging.Infow(ctx, "planner: complete",
		"clusters", st.TotalClusters, "covered", st.PointsCovered,
		"cancelled", st.Cancelled, "errors", len(st.Errors))
}

// interrupted marks st cancelled when err is a context error. Any other error
// is returned unchanged.
func interrupted(ctx context.Context, st *stats.Stats, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		st.Cancelled = true
		logging.Warnw(ctx, "planner: cancelled, returning partial results", "error", err)
		return nil
	}
	return err
}

// closePolygons validates area, recording every rejected polygon in st
func closePolygons(ctx context.Context, area []geo.Polygon, st *stats.Stats) []geo.Polygon {
	out := make([]geo.Polygon, 0, len(area))
	for i, poly := range area {
		closed, err := poly.Close()
		if err != nil {
			logging.Warnw(ctx, "planner: skipping polygon", "polygon", i, "error", err)
			st.AddError(fmt.Errorf("polygon %d: %w", i, err))
			continue
		}
		out = append(out, closed)
	}
	return out
}

// tile runs the tiler over polys. Per-polygon failures are recorded in st;
// only a context error is returned.
func (p *Planner) tile(ctx context.Context, tp tiling.Params, polys []geo.Polygon, st *stats.Stats, memo *cache.RunCounter) ([]geo.Point, error) {
	tp.Memo = memo
	t, err := tiling.New(tp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	res, err := tiling.TileAll(ctx, t, polys, p.workers)
	var ctxErr error
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
			ctxErr = e
			continue
		}
		logging.Warnw(ctx, "planner: tiling failed", "error", e)
		st.AddError(e)
	}
	return res.Centers, ctxErr
}

// Bootstrap tiles area with candidate centers and orders them into a route
func (p *Planner) Bootstrap(ctx context.Context, area []geo.Polygon, bp BootstrapParams) (res Result, err error) {
	start := time.Now()
	ctx, st, memo := p.begin(ctx, "bootstrap")
	res.Stats = st
	defer func() { p.finish(ctx, "bootstrap", start, st, memo, err) }()

	polys := closePolygons(ctx, area, st)
	centers, err := p.tile(ctx, tiling.Params{Mode: bp.Mode, Radius: bp.Radius, Level: bp.S2Level, Size: bp.S2Size}, polys, st, memo)
	if err = interrupted(ctx, st, err); err != nil {
		return res, err
	}
	st.TotalClusters = len(centers)
	st.SetClusterTime(start)
	res.Points = centers
	if st.Cancelled {
		return res, nil
	}

	rp := RouteParams{
		SortBy:          bp.SortBy,
		RouteSplitLevel: bp.RouteSplitLevel,
		Radius:          bp.Radius,
		Seed:            bp.Seed,
		TwoOptSweeps:    bp.TwoOptSweeps,
	}
	res.Points, err = p.route(ctx, nil, centers, rp, st)
	return res, err
}

// Cluster finds centers of radius circles covering points. With an area, only
// points inside a valid polygon are clustered and candidates are tiled from
// those polygons; an area with no valid polygon yields no centers. Without an
// area, candidates tile the points' bounding box.
func (p *Planner) Cluster(ctx context.Context, points []geo.Point, area []geo.Polygon, cp ClusterParams) (res Result, err error) {
	start := time.Now()
	ctx, st, memo := p.begin(ctx, "cluster")
	res.Stats = st
	defer func() { p.finish(ctx, "cluster", start, st, memo, err) }()

	res.Points, err = p.cluster(ctx, points, area, cp, st, memo)
	st.SetClusterTime(start)
	return res, err
}

func (p *Planner) cluster(ctx context.Context, points []geo.Point, area []geo.Polygon, cp ClusterParams, st *stats.Stats, memo *cache.RunCounter) ([]geo.Point, error) {
	params := cluster.Params{
		Radius:      cp.Radius,
		MinPoints:   cp.MinPoints,
		Fast:        cp.Fast,
		Refine:      cp.Refine,
		Seed:        cp.Seed,
		MaxAttempts: cp.MaxAttempts,
		Workers:     p.workers,
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	polys := closePolygons(ctx, area, st)
	if len(area) > 0 {
		if len(polys) == 0 {
			return nil, nil
		}
		points = insideAny(points, polys)
	}
	st.TotalPoints = len(points)
	if len(points) == 0 {
		logging.Debugw(ctx, "planner: no points to cluster")
		return nil, nil
	}

	ix, err := spatial.NewIndex(points, cp.Radius)
	if err != nil {
		st.AddError(err)
		return nil, nil
	}

	var candidates []geo.Point
	if !cp.Fast {
		if len(polys) == 0 {
			polys = []geo.Polygon{geo.BoundPolygon(geo.BoundOf(points), cp.Radius)}
		}
		tp := tiling.Params{Mode: cp.Mode, Radius: cp.Radius, Level: cp.S2Level, Size: cp.S2Size}
		candidates, err = p.tile(ctx, tp, polys, st, memo)
		if err = interrupted(ctx, st, err); err != nil {
			return nil, err
		}
		if st.Cancelled {
			return nil, nil
		}
	}

	out, err := cluster.Run(ctx, ix, candidates, params)
	if err = interrupted(ctx, st, err); err != nil {
		return nil, err
	}
	centers := out.Centers()

	if cp.Refine {
		for _, c := range out.Clusters {
			recordOutcome(&st.SEC, c.Outcome)
		}
	}
	if err := st.ClusterStats(context.WithoutCancel(ctx), cp.Radius, points, centers, p.workers); err != nil {
		st.AddError(err)
	}
	return centers, nil
}

func insideAny(points []geo.Point, polys []geo.Polygon) []geo.Point {
	out := make([]geo.Point, 0, len(points))
	for _, pt := range points {
		for _, poly := range polys {
			if poly.Contains(pt) {
				out = append(out, pt)
				break
			}
		}
	}
	return out
}

func recordOutcome(sec *stats.SECOutcomes, o cluster.Outcome) {
	switch o {
	case cluster.OutcomeCentered:
		sec.Centered++
	case cluster.OutcomeRadiusTooBig:
		sec.RadiusTooBig++
	case cluster.OutcomeMissingPoints:
		sec.MissingPoints++
	case cluster.OutcomeNone:
		sec.None++
	default:
		sec.Skipped++
	}
}

// Route orders centers. When points are given, their coverage stats are
// recorded and a TSP tour starts at the first best cluster.
func (p *Planner) Route(ctx context.Context, points, centers []geo.Point, rp RouteParams) (res Result, err error) {
	start := time.Now()
	ctx, st, memo := p.begin(ctx, "route")
	res.Stats = st
	defer func() { p.finish(ctx, "route", start, st, memo, err) }()

	if len(points) > 0 && rp.Radius > 0 {
		err = interrupted(ctx, st, st.ClusterStats(ctx, rp.Radius, points, centers, p.workers))
		if err != nil || st.Cancelled {
			res.Points = append([]geo.Point(nil), centers...)
			return res, err
		}
	}
	res.Points, err = p.route(ctx, points, centers, rp, st)
	return res, err
}

func (p *Planner) route(ctx context.Context, points, centers []geo.Point, rp RouteParams, st *stats.Stats) ([]geo.Point, error) {
	start := time.Now()
	params := routing.Params{
		SortBy:          rp.SortBy,
		RouteSplitLevel: rp.RouteSplitLevel,
		Radius:          rp.Radius,
		Seed:            rp.Seed,
		TwoOptSweeps:    rp.TwoOptSweeps,
		Workers:         p.workers,
	}
	if len(st.BestClusters) > 0 {
		first := st.BestClusters[0]
		params.Start = &first
	}

	o, err := routing.NewOrderer(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	route, err := o.Order(ctx, centers, points)
	if err = interrupted(ctx, st, err); err != nil {
		return nil, err
	}

	st.RecordDistance(route)
	st.SetRouteTime(start)
	if st.Distance.NumericFailures > 0 {
		logging.Warnw(ctx, "planner: route has segments without a distance",
			"failures", st.Distance.NumericFailures, "error", geo.ErrNumericFailure)
	}
	return route, nil
}

// SecRefine moves each center to the smallest circle enclosing the points it
// is first to cover, in input order. Centers that cannot move are returned
// unchanged, so the output matches centers index for index.
func (p *Planner) SecRefine(ctx context.Context, points, centers []geo.Point, radius float64) (out []geo.Point, err error) {
	start := time.Now()
	ctx, st, memo := p.begin(ctx, "sec_refine")
	defer func() { p.finish(ctx, "sec_refine", start, st, memo, err) }()

	out = append([]geo.Point(nil), centers...)
	if len(points) == 0 || len(centers) == 0 {
		return out, nil
	}
	ix, err := spatial.NewIndex(points, radius)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	seen := make(map[int]struct{}, len(points))
	clusters := make([]cluster.Cluster, len(centers))
	for i, c := range centers {
		clusters[i] = cluster.Cluster{Center: c}
		if !c.IsFinite() {
			continue
		}
		clusters[i].All = ix.LocateAllAtPoint(c)
		for _, idx := range clusters[i].All {
			if _, ok := seen[idx]; !ok {
				seen[idx] = struct{}{}
				clusters[i].Unique = append(clusters[i].Unique, idx)
			}
		}
	}

	params := cluster.Params{Radius: radius, MinPoints: 1, Seed: 1, Workers: p.workers}
	err = cluster.RefineAll(ctx, ix, clusters, params)
	for i, c := range clusters {
		out[i] = c.Center
		recordOutcome(&st.SEC, c.Outcome)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			st.Cancelled = true
			return out, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return out, err
	}
	return out, nil
}

// Plan clusters points and routes the centers with one stats accumulator, so
// the tour starts at the best cluster.
func (p *Planner) Plan(ctx context.Context, points []geo.Point, area []geo.Polygon, cp ClusterParams, rp RouteParams) (res Result, err error) {
	start := time.Now()
	ctx, st, memo := p.begin(ctx, "plan")
	res.Stats = st
	defer func() { p.finish(ctx, "plan", start, st, memo, err) }()

	centers, err := p.cluster(ctx, points, area, cp, st, memo)
	st.SetClusterTime(start)
	if err != nil || st.Cancelled {
		res.Points = centers
		return res, err
	}

	if rp.Radius == 0 {
		rp.Radius = cp.Radius
	}
	res.Points, err = p.route(ctx, points, centers, rp, st)
	return res, err
}

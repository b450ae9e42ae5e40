package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/routing"
	"github.com/dpup/scanplan/internal/lib/tiling"
	"github.com/dpup/scanplan/internal/logging"
	"github.com/dpup/scanplan/internal/metrics"
)

var unitSquare = geo.Polygon{Rings: [][]geo.Point{{
	{Latitude: 0, Longitude: 0},
	{Latitude: 0, Longitude: 0.01},
	{Latitude: 0.01, Longitude: 0.01},
	{Latitude: 0.01, Longitude: 0},
	{Latitude: 0, Longitude: 0},
}}}

func scatter(seed int64, n int, b geo.Bound) []geo.Point {
	rng := rand.New(rand.NewSource(seed))
	out := make([]geo.Point, n)
	for i := range out {
		out[i] = geo.Point{
			Latitude:  b.MinLat + rng.Float64()*(b.MaxLat-b.MinLat),
			Longitude: b.MinLon + rng.Float64()*(b.MaxLon-b.MinLon),
		}
	}
	return out
}

func defaultCluster() ClusterParams {
	return ClusterParams{Radius: 200, MinPoints: 1, Refine: true, Seed: 1}
}

func TestCluster_DegeneratePolygon(t *testing.T) {
	p := NewPlanner()
	line := geo.Polygon{Rings: [][]geo.Point{{
		{Latitude: 1, Longitude: 1},
		{Latitude: 1.01, Longitude: 1.01},
		{Latitude: 1, Longitude: 1},
	}}}
	points := scatter(1, 20, geo.Bound{MinLat: 1, MinLon: 1, MaxLat: 1.01, MaxLon: 1.01})

	res, err := p.Cluster(context.Background(), points, []geo.Polygon{line}, defaultCluster())
	require.NoError(t, err)
	assert.Empty(t, res.Points)
	assert.GreaterOrEqual(t, res.Stats.ClusterTime, 0.0)
	require.Len(t, res.Stats.Errors, 1)
	assert.Contains(t, res.Stats.Errors[0], "polygon 0")
}

func TestBootstrap_UnitSquare(t *testing.T) {
	p := NewPlanner()
	res, err := p.Bootstrap(context.Background(), []geo.Polygon{unitSquare}, BootstrapParams{
		Mode:   tiling.ModeRadius,
		Radius: 200,
		SortBy: routing.SortTSP,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(res.Points), 9)
	assert.Equal(t, len(res.Points), res.Stats.TotalClusters)
	assert.Equal(t, len(res.Points), res.Stats.Distance.Segments)
	assert.NotEmpty(t, res.Stats.RunID)
	assert.False(t, res.Stats.Cancelled)
}

func TestBootstrap_S2UsesSharedMemo(t *testing.T) {
	p := NewPlanner()
	bp := BootstrapParams{Mode: tiling.ModeS2, S2Level: 15, S2Size: 1, Radius: 200, SortBy: routing.SortS2Cell}

	first, err := p.Bootstrap(context.Background(), []geo.Polygon{unitSquare}, bp)
	require.NoError(t, err)
	require.NotEmpty(t, first.Points)

	second, err := p.Bootstrap(context.Background(), []geo.Polygon{unitSquare}, bp)
	require.NoError(t, err)
	assert.Equal(t, first.Points, second.Points)
	assert.NotEqual(t, first.Stats.RunID, second.Stats.RunID)

	// cache figures are per run; the second run finds every block memoized
	assert.Positive(t, first.Stats.Cache.Misses)
	assert.Zero(t, second.Stats.Cache.Misses)
	assert.Equal(t, first.Stats.Cache.Hits+first.Stats.Cache.Misses, second.Stats.Cache.Hits)
	assert.Equal(t, first.Stats.Cache.Entries, second.Stats.Cache.Entries)
}

func TestPlanner_CacheMetricsAcrossCalls(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	p := NewPlanner(WithMetrics(m))
	bp := BootstrapParams{Mode: tiling.ModeS2, S2Level: 15, S2Size: 1, Radius: 200, SortBy: routing.SortS2Cell}

	var hits, misses int64
	for i := 0; i < 3; i++ {
		res, err := p.Bootstrap(context.Background(), []geo.Polygon{unitSquare}, bp)
		require.NoError(t, err)
		hits += res.Stats.Cache.Hits
		misses += res.Stats.Cache.Misses
	}

	memo := p.CoverageCache().Stats()
	assert.Equal(t, memo.Hits, hits)
	assert.Equal(t, memo.Misses, misses)
	assert.Equal(t, float64(memo.Hits), testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(memo.Misses), testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")))
}

func TestBootstrap_InvalidPolygonDoesNotAbortBatch(t *testing.T) {
	bad := geo.Polygon{Rings: [][]geo.Point{{{Latitude: 5, Longitude: 5}}}}
	res, err := NewPlanner().Bootstrap(context.Background(), []geo.Polygon{bad, unitSquare}, BootstrapParams{Radius: 200})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Points)
	assert.Len(t, res.Stats.Errors, 1)
}

func TestBootstrap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewPlanner().Bootstrap(ctx, []geo.Polygon{unitSquare}, BootstrapParams{Radius: 200, SortBy: routing.SortTSP})
	require.NoError(t, err)
	assert.True(t, res.Stats.Cancelled)
}

func TestCluster_FullCoverage(t *testing.T) {
	points := scatter(2, 300, geo.Bound{MinLat: 0, MinLon: 0, MaxLat: 0.01, MaxLon: 0.01})

	for _, fast := range []bool{false, true} {
		cp := defaultCluster()
		cp.Fast = fast
		res, err := NewPlanner().Cluster(context.Background(), points, nil, cp)
		require.NoError(t, err)
		require.NotEmpty(t, res.Points)

		assert.Equal(t, len(points), res.Stats.TotalPoints)
		assert.Equal(t, len(res.Points), res.Stats.TotalClusters)
		assert.Equal(t, len(res.Points), res.Stats.SEC.Centered+res.Stats.SEC.RadiusTooBig+
			res.Stats.SEC.MissingPoints+res.Stats.SEC.None+res.Stats.SEC.Skipped)
		if !fast {
			// every input point is also a candidate
			assert.Equal(t, len(points), res.Stats.PointsCovered)
		}
	}
}

func TestCluster_AreaFiltersPoints(t *testing.T) {
	inside := scatter(3, 50, geo.Bound{MinLat: 0.001, MinLon: 0.001, MaxLat: 0.009, MaxLon: 0.009})
	outside := scatter(4, 50, geo.Bound{MinLat: 1, MinLon: 1, MaxLat: 1.01, MaxLon: 1.01})

	res, err := NewPlanner().Cluster(context.Background(), append(inside, outside...), []geo.Polygon{unitSquare}, defaultCluster())
	require.NoError(t, err)
	assert.Equal(t, len(inside), res.Stats.TotalPoints)
	assert.Equal(t, len(inside), res.Stats.PointsCovered)
	for _, c := range res.Points {
		assert.Less(t, c.Latitude, 0.5)
	}
}

func TestCluster_InvalidParameters(t *testing.T) {
	p := NewPlanner()
	cp := defaultCluster()
	cp.Radius = 0
	_, err := p.Cluster(context.Background(), scatter(5, 10, unitSquare.Bound()), nil, cp)
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	_, err = p.Route(context.Background(), nil, scatter(6, 10, unitSquare.Bound()), RouteParams{SortBy: routing.SortPointCount})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPlan_StartsAtBestCluster(t *testing.T) {
	b := geo.Bound{MinLat: 0, MinLon: 0, MaxLat: 0.02, MaxLon: 0.02}
	points := scatter(7, 200, b)
	// a dense pocket makes one cluster clearly the best
	dense := geo.Point{Latitude: 0.015, Longitude: 0.005}
	for i := 0; i < 40; i++ {
		points = append(points, geo.Destination(dense, float64(i*9), 20))
	}

	res, err := NewPlanner().Plan(context.Background(), points, nil, defaultCluster(), RouteParams{SortBy: routing.SortTSP})
	require.NoError(t, err)
	require.NotEmpty(t, res.Points)
	require.NotEmpty(t, res.Stats.BestClusters)
	assert.Equal(t, res.Stats.BestClusters[0], res.Points[0])
	assert.Equal(t, len(res.Points), res.Stats.Distance.Segments)
	assert.GreaterOrEqual(t, res.Stats.RouteTime, 0.0)
}

func TestPlan_EveryOrderStartsAtBestCluster(t *testing.T) {
	b := geo.Bound{MinLat: 0, MinLon: 0, MaxLat: 0.02, MaxLon: 0.02}
	points := scatter(13, 200, b)
	dense := geo.Point{Latitude: 0.001, Longitude: 0.01}
	for i := 0; i < 40; i++ {
		points = append(points, geo.Destination(dense, float64(i*9), 20))
	}

	for _, sortBy := range []routing.SortBy{routing.SortGeoHash, routing.SortS2Cell, routing.SortLatLon, routing.SortHilbert, routing.SortPointCount, routing.SortRandom, routing.SortTSP} {
		t.Run(sortBy.String(), func(t *testing.T) {
			res, err := NewPlanner().Plan(context.Background(), points, nil, defaultCluster(), RouteParams{SortBy: sortBy, Seed: 1})
			require.NoError(t, err)
			require.NotEmpty(t, res.Stats.BestClusters)
			assert.Equal(t, res.Stats.BestClusters[0], res.Points[0])
		})
	}
}

func TestRoute_RecordsCoverage(t *testing.T) {
	points := scatter(8, 100, unitSquare.Bound())
	centers := scatter(9, 12, unitSquare.Bound())

	res, err := NewPlanner().Route(context.Background(), points, centers, RouteParams{SortBy: routing.SortPointCount, Radius: 300})
	require.NoError(t, err)
	require.Len(t, res.Points, len(centers))
	assert.Contains(t, res.Stats.BestClusters, res.Points[0])
	assert.Equal(t, len(points), res.Stats.TotalPoints)
}

func TestSecRefine(t *testing.T) {
	target := geo.Point{Latitude: 38.13, Longitude: -120.46}
	var points []geo.Point
	for i := 0; i < 12; i++ {
		points = append(points, geo.Destination(target, float64(i*30), 25))
	}
	off := geo.Destination(target, 90, 40)
	lonely := geo.Point{Latitude: 10, Longitude: 10}

	out, err := NewPlanner().SecRefine(context.Background(), points, []geo.Point{off, lonely}, 100)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Less(t, geo.Distance(out[0], target), 1.0)
	assert.Equal(t, lonely, out[1])
}

func TestSecRefine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	centers := scatter(10, 5, unitSquare.Bound())
	out, err := NewPlanner().SecRefine(ctx, scatter(11, 50, unitSquare.Bound()), centers, 300)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, centers, out)
}

func TestPlanner_MetricsAndLogging(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logging.With(context.Background(), zap.New(core).Sugar())

	p := NewPlanner(WithMetrics(m), WithWorkers(2))
	res, err := p.Cluster(ctx, scatter(12, 50, unitSquare.Bound()), nil, defaultCluster())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("cluster", "ok")))
	assert.Equal(t, float64(res.Stats.PointsCovered), testutil.ToFloat64(m.PointsCoveredTotal))

	done := logs.FilterMessage("planner: complete").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, res.Stats.RunID, fields["run_id"])
	assert.Equal(t, "cluster", fields["op"])
}

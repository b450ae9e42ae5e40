package cluster

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/spatial"
)

func discPoints(seed int64, center geo.Point, n int, radius float64) []geo.Point {
	rng := rand.New(rand.NewSource(seed))
	points := make([]geo.Point, n)
	for i := range points {
		points[i] = geo.Destination(center, rng.Float64()*360, radius*math.Sqrt(rng.Float64()))
	}
	return points
}

// scattered returns a few dense groups around Murphys plus noise
func scattered(seed int64) []geo.Point {
	base := geo.Point{Latitude: 38.1391, Longitude: -120.4561}
	var points []geo.Point
	for g, bearing := range []float64{0, 72, 144, 216, 288} {
		center := geo.Destination(base, bearing, 400)
		points = append(points, discPoints(seed+int64(g), center, 40, 90)...)
	}
	points = append(points, discPoints(seed+99, base, 60, 800)...)
	return points
}

func runCluster(t *testing.T, points []geo.Point, centers []geo.Point, p Params) Result {
	t.Helper()
	ix, err := spatial.NewIndex(points, p.Radius)
	require.NoError(t, err)
	res, err := Run(context.Background(), ix, centers, p)
	require.NoError(t, err)
	return res
}

func TestRun_MinPointsGate(t *testing.T) {
	center := geo.Point{Latitude: 10, Longitude: 10}
	points := discPoints(1, center, 100, 50)

	res := runCluster(t, points, nil, Params{Radius: 60, MinPoints: 10, Fast: true, Refine: true, Seed: 1})
	require.Len(t, res.Clusters, 1)
	assert.Less(t, geo.Distance(res.Clusters[0].Center, center), 5.0)
	assert.Len(t, res.Clusters[0].Unique, 100)
}

func TestRun_FastWideLatitude(t *testing.T) {
	// the projection is centered near the equator, so longitude at 80N is
	// stretched by several grid cells
	points := discPoints(2, geo.Point{Latitude: 0, Longitude: 10}, 20, 25)
	north := geo.Point{Latitude: 80, Longitude: 10}
	points = append(points,
		geo.Destination(north, 270, 24),
		geo.Destination(north, 270, 12),
		north,
		geo.Destination(north, 90, 12),
		geo.Destination(north, 90, 24),
	)

	res := runCluster(t, points, nil, Params{Radius: 60, MinPoints: 5, Fast: true})
	covered := 0
	var northCluster *Cluster
	for i, c := range res.Clusters {
		covered += len(c.Unique)
		if c.Center.Latitude > 45 {
			northCluster = &res.Clusters[i]
		}
	}
	require.NotNil(t, northCluster)
	assert.Equal(t, []int{20, 21, 22, 23, 24}, northCluster.All)
	assert.Equal(t, len(points), covered)
}

func TestRun_Invariants(t *testing.T) {
	points := scattered(11)
	tests := []struct {
		name   string
		params Params
	}{
		{name: "fast", params: Params{Radius: 70, MinPoints: 3, Fast: true, Refine: true, Seed: 1}},
		{name: "fast unrefined", params: Params{Radius: 70, MinPoints: 1, Fast: true}},
		{name: "exact", params: Params{Radius: 70, MinPoints: 3, Refine: true, Seed: 1}},
		{name: "exact min points 1", params: Params{Radius: 120, MinPoints: 1, Refine: true, Seed: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCluster(t, points, nil, tt.params)
			require.NotEmpty(t, res.Clusters)

			owner := map[int]int{}
			prevUnique := math.MaxInt
			for ci, c := range res.Clusters {
				// coverage soundness
				for _, i := range c.All {
					assert.LessOrEqual(t, geo.Distance(c.Center, points[i]), tt.params.Radius+1e-6)
				}
				// min points
				assert.GreaterOrEqual(t, len(c.All), tt.params.MinPoints)
				// unique is a subset of all and owned once
				all := map[int]bool{}
				for _, i := range c.All {
					all[i] = true
				}
				for _, i := range c.Unique {
					assert.True(t, all[i], "unique member %d missing from all", i)
					_, dup := owner[i]
					assert.False(t, dup, "point %d credited twice", i)
					owner[i] = ci
				}
				// greedy selection order; refinement only moves centers
				assert.LessOrEqual(t, len(c.Unique), prevUnique)
				prevUnique = len(c.Unique)
			}

			if tt.params.MinPoints == 1 && !tt.params.Fast {
				assert.Len(t, owner, len(points), "every point is covered when min points is 1")
			}
		})
	}
}

func TestGreedy_Monotone(t *testing.T) {
	candidates := []Candidate{
		{All: []int{0, 1, 2, 3, 4}},
		{All: []int{0, 1, 2, 3}},
		{All: []int{5, 6, 7}},
		{All: []int{3, 4, 5, 6, 7, 8}},
		{All: []int{9}},
	}
	clusters := Greedy(candidates, 10)

	require.Len(t, clusters, 3)
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8}, clusters[0].Unique)
	assert.Equal(t, []int{0, 1, 2}, clusters[1].Unique)
	assert.Equal(t, []int{9}, clusters[2].Unique)
	for i := 1; i < len(clusters); i++ {
		assert.LessOrEqual(t, len(clusters[i].Unique), len(clusters[i-1].Unique))
	}
}

func TestGreedy_TiesBreakByCandidateIndex(t *testing.T) {
	candidates := []Candidate{
		{Center: geo.Point{Latitude: 1}, All: []int{0, 1}},
		{Center: geo.Point{Latitude: 2}, All: []int{0, 1}},
	}
	clusters := Greedy(candidates, 2)
	require.Len(t, clusters, 1)
	assert.Equal(t, 1.0, clusters[0].Center.Latitude)
}

func TestSmallestEnclosingCircle_Degenerate(t *testing.T) {
	p := geo.Point{Latitude: 1, Longitude: 1}
	rng := rand.New(rand.NewSource(1))

	ref := Refine([]geo.Point{p, p, p}, geo.Point{Latitude: 1.0001, Longitude: 1}, 70, 0, rng)
	assert.Equal(t, OutcomeCentered, ref.Outcome)
	assert.Equal(t, 1, ref.Attempts)
	assert.Equal(t, 0.0, ref.Radius)
	assert.InDelta(t, 1.0, ref.Center.Latitude, 1e-12)
	assert.InDelta(t, 1.0, ref.Center.Longitude, 1e-12)

	_, ok := SmallestEnclosingCircle(nil)
	assert.False(t, ok)
}

func TestSmallestEnclosingCircle_Disc(t *testing.T) {
	center := geo.Point{Latitude: -33.8688, Longitude: 151.2093}
	points := discPoints(4, center, 500, 200)
	// pin the extent so the enclosing circle is known
	for _, b := range []float64{0, 120, 240} {
		points = append(points, geo.Destination(center, b, 200))
	}

	circle, ok := SmallestEnclosingCircle(points)
	require.True(t, ok)
	assert.InDelta(t, 200, circle.Radius, 0.5)
	assert.Less(t, geo.Distance(circle.Center, center), 0.5)
	for _, p := range points {
		assert.LessOrEqual(t, geo.Distance(circle.Center, p), circle.Radius+containsEpsilon)
	}
}

func TestRefine_Outcomes(t *testing.T) {
	a := geo.Point{Latitude: 0, Longitude: 0}
	b := geo.Destination(a, 90, 300)
	rng := rand.New(rand.NewSource(1))

	ref := Refine([]geo.Point{a, b}, a, 100, 3, rng)
	assert.Equal(t, OutcomeRadiusTooBig, ref.Outcome)
	assert.Equal(t, 3, ref.Attempts)
	assert.Equal(t, a, ref.Center, "failure falls back to the original center")

	ref = Refine(nil, a, 100, 3, rng)
	assert.Equal(t, OutcomeNone, ref.Outcome)

	ref = Refine([]geo.Point{a, b}, a, 151, 3, rng)
	assert.Equal(t, OutcomeCentered, ref.Outcome)
	assert.InDelta(t, 150, ref.Radius, 1e-3)
	assert.InDelta(t, geo.Distance(ref.Center, a), geo.Distance(ref.Center, b), 1e-6)
}

func TestRefineAll_NeverLosesUniqueMembers(t *testing.T) {
	points := scattered(21)
	p := Params{Radius: 70, MinPoints: 2, Seed: 3}
	ix, err := spatial.NewIndex(points, p.Radius)
	require.NoError(t, err)

	res, err := Run(context.Background(), ix, nil, p)
	require.NoError(t, err)
	require.NoError(t, RefineAll(context.Background(), ix, res.Clusters, p))

	centered := 0
	for _, c := range res.Clusters {
		assert.NotEqual(t, OutcomeSkipped, c.Outcome)
		if c.Outcome != OutcomeCentered {
			continue
		}
		centered++
		for _, i := range c.Unique {
			assert.LessOrEqual(t, geo.Distance(c.Center, points[i]), p.Radius)
			assert.Contains(t, c.All, i)
		}
	}
	assert.Positive(t, centered)
}

func TestRun_Deterministic(t *testing.T) {
	points := scattered(5)
	p := Params{Radius: 80, MinPoints: 2, Fast: true, Refine: true, Seed: 9, Workers: 4}
	a := runCluster(t, points, nil, p)
	b := runCluster(t, points, nil, p)
	assert.Equal(t, a, b)
}

func TestRun_Errors(t *testing.T) {
	ix, err := spatial.NewIndex(nil, 70)
	require.NoError(t, err)
	_, err = Run(context.Background(), ix, nil, Params{Radius: 70, MinPoints: 1})
	assert.True(t, errors.Is(err, geo.ErrEmptyInput))

	_, err = Run(context.Background(), ix, nil, Params{Radius: math.Inf(1), MinPoints: 1})
	assert.Error(t, err)
	_, err = Run(context.Background(), ix, nil, Params{Radius: 70})
	assert.Error(t, err)

	ix, err = spatial.NewIndex(scattered(1), 70)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, ix, nil, Params{Radius: 70, MinPoints: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "centered", OutcomeCentered.String())
	assert.Equal(t, "radius_too_big", OutcomeRadiusTooBig.String())
	assert.Equal(t, "missing_points", OutcomeMissingPoints.String())
	assert.Equal(t, "none", OutcomeNone.String())
}

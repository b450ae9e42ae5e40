package stats

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/scanplan/internal/lib/geo"
)

func TestTourDistance_Closure(t *testing.T) {
	route := []geo.Point{
		{Latitude: 38.0675, Longitude: -120.5436},
		{Latitude: 38.1391, Longitude: -120.4561},
		{Latitude: 38.2000, Longitude: -120.3000},
		{Latitude: 38.0500, Longitude: -120.4000},
	}

	want := 0.0
	longest, shortest := 0.0, math.Inf(1)
	for i := range route {
		d := geo.Distance(route[i], route[(i+1)%len(route)])
		want += d
		longest = math.Max(longest, d)
		shortest = math.Min(shortest, d)
	}

	s := New("run")
	s.RecordDistance(route)
	assert.InDelta(t, want, s.Distance.Total, 1e-9)
	assert.Equal(t, longest, s.Distance.Longest)
	assert.Equal(t, shortest, s.Distance.Shortest)
	assert.Equal(t, 4, s.Distance.Segments)
	assert.Zero(t, s.Distance.NumericFailures)
}

func TestTourDistance_NumericFailure(t *testing.T) {
	route := []geo.Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0.01},
		{Latitude: math.NaN(), Longitude: 0},
	}
	d := TourDistance(route)
	assert.Equal(t, 1, d.Segments)
	assert.Equal(t, 2, d.NumericFailures)
	assert.False(t, math.IsInf(d.Shortest, 0))
	assert.False(t, math.IsNaN(d.Total))

	assert.Equal(t, DistanceStats{}, TourDistance([]geo.Point{{Latitude: 1}}))
}

func TestClusterStats(t *testing.T) {
	origin := geo.Point{Latitude: 45, Longitude: 7}
	points := []geo.Point{
		origin,
		geo.Destination(origin, 0, 10),
		geo.Destination(origin, 90, 10),
		geo.Destination(origin, 0, 1000),
		geo.Destination(origin, 180, 5000),
	}
	centers := []geo.Point{
		origin,
		geo.Destination(origin, 0, 1000),
		geo.Destination(origin, 45, 7),
		{Latitude: math.NaN(), Longitude: 0},
	}

	s := New("run")
	require.NoError(t, s.ClusterStats(context.Background(), 50, points, centers, 3))
	assert.Equal(t, 5, s.TotalPoints)
	assert.Equal(t, 4, s.TotalClusters)
	assert.Equal(t, 4, s.PointsCovered)
	assert.Equal(t, 3, s.BestClusterPointCount)
	assert.Equal(t, []geo.Point{centers[0], centers[2]}, s.BestClusters)
}

func TestMerge(t *testing.T) {
	a := &Stats{
		BestClusterPointCount: 3,
		BestClusters:          []geo.Point{{Latitude: 1}},
		PointsCovered:         10,
		TotalClusters:         2,
		Distance:              DistanceStats{Total: 100, Longest: 60, Shortest: 40, Segments: 2},
		SEC:                   SECOutcomes{Centered: 2},
		ClusterTime:           1.5,
	}
	b := &Stats{
		BestClusterPointCount: 5,
		BestClusters:          []geo.Point{{Latitude: 2}},
		PointsCovered:         7,
		TotalClusters:         1,
		Distance:              DistanceStats{Total: 30, Longest: 30, Shortest: 30, Segments: 1, NumericFailures: 1},
		SEC:                   SECOutcomes{RadiusTooBig: 1},
		RouteTime:             0.25,
		Cancelled:             true,
		Errors:                []string{"polygon 2: invalid geometry"},
	}

	a.Merge(b)
	assert.Equal(t, 5, a.BestClusterPointCount)
	assert.Equal(t, []geo.Point{{Latitude: 2}}, a.BestClusters)
	assert.Equal(t, 17, a.PointsCovered)
	assert.Equal(t, 3, a.TotalClusters)
	assert.Equal(t, DistanceStats{Total: 130, Longest: 60, Shortest: 30, Segments: 3, NumericFailures: 1}, a.Distance)
	assert.Equal(t, SECOutcomes{Centered: 2, RadiusTooBig: 1}, a.SEC)
	assert.Equal(t, 1.5, a.ClusterTime)
	assert.Equal(t, 0.25, a.RouteTime)
	assert.True(t, a.Cancelled)
	assert.Len(t, a.Errors, 1)

	// Equal best counts keep both sets
	c := &Stats{BestClusterPointCount: 5, BestClusters: []geo.Point{{Latitude: 3}}}
	a.Merge(c)
	assert.Len(t, a.BestClusters, 2)

	a.Merge(nil)
	assert.Equal(t, 17, a.PointsCovered)
}

func TestTimesAndErrors(t *testing.T) {
	s := New("run")
	start := time.Now().Add(-50 * time.Millisecond)
	s.SetClusterTime(start)
	s.SetRouteTime(start)
	assert.GreaterOrEqual(t, s.ClusterTime, 0.05)
	assert.GreaterOrEqual(t, s.RouteTime, 0.05)

	s.AddError(nil)
	s.AddError(errors.New("boom"))
	assert.Equal(t, []string{"boom"}, s.Errors)
}

package stats

import (
	"context"
	"math"
	"time"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/parallel"
	"github.com/dpup/scanplan/internal/lib/spatial"
)

// Stats accumulates the figures of one pipeline run. It is not safe for
// concurrent use; parallel regions reduce into locals and then record here.
type Stats struct {
	RunID string `json:"run_id" yaml:"run_id"`

	BestClusterPointCount int         `json:"best_cluster_point_count" yaml:"best_cluster_point_count"`
	BestClusters          []geo.Point `json:"best_clusters" yaml:"best_clusters"`
	PointsCovered         int         `json:"points_covered" yaml:"points_covered"`
	TotalPoints           int         `json:"total_points" yaml:"total_points"`
	TotalClusters         int         `json:"total_clusters" yaml:"total_clusters"`

	Distance DistanceStats `json:"distance" yaml:"distance"`
	SEC      SECOutcomes   `json:"sec" yaml:"sec"`
	Cache    CacheStats    `json:"cache" yaml:"cache"`

	// Elapsed seconds
	ClusterTime float64 `json:"cluster_time" yaml:"cluster_time"`
	RouteTime   float64 `json:"route_time" yaml:"route_time"`

	Cancelled bool     `json:"cancelled" yaml:"cancelled"`
	Errors    []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// DistanceStats describes a closed tour. Segments whose length could not be
// computed are counted in NumericFailures and left out of every other field.
type DistanceStats struct {
	Total           float64 `json:"total" yaml:"total"`
	Longest         float64 `json:"longest" yaml:"longest"`
	Shortest        float64 `json:"shortest" yaml:"shortest"`
	Segments        int     `json:"segments" yaml:"segments"`
	NumericFailures int     `json:"numeric_failures" yaml:"numeric_failures"`
}

// SECOutcomes counts refinement results per class
type SECOutcomes struct {
	Centered      int `json:"centered" yaml:"centered"`
	RadiusTooBig  int `json:"radius_too_big" yaml:"radius_too_big"`
	MissingPoints int `json:"missing_points" yaml:"missing_points"`
	None          int `json:"none" yaml:"none"`
	Skipped       int `json:"skipped" yaml:"skipped"`
}

// CacheStats counts the coverage memo lookups made by one run. Entries is
// the shared memo size when the run finished.
type CacheStats struct {
	Entries int   `json:"entries" yaml:"entries"`
	Hits    int64 `json:"hits" yaml:"hits"`
	Misses  int64 `json:"misses" yaml:"misses"`
}

// New creates an empty accumulator
func New(runID string) *Stats {
	return &Stats{RunID: runID}
}

// RecordDistance sets the distance figures for route, wrapping around from
// the last stop to the first.
func (s *Stats) RecordDistance(route []geo.Point) {
	s.Distance = TourDistance(route)
}

// TourDistance measures the closed tour through route
func TourDistance(route []geo.Point) DistanceStats {
	var d DistanceStats
	if len(route) < 2 {
		return d
	}

	d.Shortest = math.Inf(1)
	for i := range route {
		seg, err := geo.DistanceChecked(route[i], route[(i+1)%len(route)])
		if err != nil {
			d.NumericFailures++
			continue
		}
		d.Segments++
		d.Total += seg
		d.Longest = math.Max(d.Longest, seg)
		d.Shortest = math.Min(d.Shortest, seg)
	}
	if d.Segments == 0 {
		d.Shortest = 0
	}
	return d
}

// ClusterStats records coverage of points by circles of radius around
// centers. The union of covered points is reduced in parallel from per-worker
// sets. BestClusters lists, in input order, every center reaching the best
// count; non-finite centers never qualify.
func (s *Stats) ClusterStats(ctx context.Context, radius float64, points, centers []geo.Point, workers int) error {
	ix, err := spatial.NewIndex(points, radius)
	if err != nil {
		return err
	}

	counts := make([]int, len(centers))
	chunks := parallel.Workers(workers)
	if chunks > len(centers) {
		chunks = len(centers)
	}
	partial := make([]map[int]struct{}, chunks)

	err = parallel.ForEach(ctx, chunks, workers, func(ctx context.Context, w int) error {
		seen := make(map[int]struct{})
		for i := w; i < len(centers); i += chunks {
			if !centers[i].IsFinite() {
				continue
			}
			covered := ix.LocateAllAtPoint(centers[i])
			counts[i] = len(covered)
			for _, idx := range covered {
				seen[idx] = struct{}{}
			}
		}
		partial[w] = seen
		return nil
	})
	if err != nil {
		return err
	}

	union := make(map[int]struct{})
	for _, seen := range partial {
		for idx := range seen {
			union[idx] = struct{}{}
		}
	}

	s.TotalPoints = len(points)
	s.TotalClusters = len(centers)
	s.PointsCovered = len(union)
	s.BestClusterPointCount = 0
	s.BestClusters = nil
	for i, n := range counts {
		switch {
		case n == 0:
		case n > s.BestClusterPointCount:
			s.BestClusterPointCount = n
			s.BestClusters = []geo.Point{centers[i]}
		case n == s.BestClusterPointCount:
			s.BestClusters = append(s.BestClusters, centers[i])
		}
	}
	return nil
}

// SetClusterTime records seconds elapsed since start
func (s *Stats) SetClusterTime(start time.Time) {
	s.ClusterTime = time.Since(start).Seconds()
}

// SetRouteTime records seconds elapsed since start
func (s *Stats) SetRouteTime(start time.Time) {
	s.RouteTime = time.Since(start).Seconds()
}

// AddError records a non-fatal error
func (s *Stats) AddError(err error) {
	if err != nil {
		s.Errors = append(s.Errors, err.Error())
	}
}

// Merge adds o into s. Counters and times are summed, the best cluster count
// is the larger of the two and best clusters follow it.
func (s *Stats) Merge(o *Stats) {
	if o == nil {
		return
	}

	switch {
	case o.BestClusterPointCount > s.BestClusterPointCount:
		s.BestClusterPointCount = o.BestClusterPointCount
		s.BestClusters = append([]geo.Point(nil), o.BestClusters...)
	case o.BestClusterPointCount == s.BestClusterPointCount:
		s.BestClusters = append(s.BestClusters, o.BestClusters...)
	}
	s.PointsCovered += o.PointsCovered
	s.TotalPoints += o.TotalPoints
	s.TotalClusters += o.TotalClusters

	if o.Distance.Segments > 0 {
		if s.Distance.Segments == 0 {
			s.Distance.Shortest = o.Distance.Shortest
		} else {
			s.Distance.Shortest = math.Min(s.Distance.Shortest, o.Distance.Shortest)
		}
		s.Distance.Longest = math.Max(s.Distance.Longest, o.Distance.Longest)
	}
	s.Distance.Total += o.Distance.Total
	s.Distance.Segments += o.Distance.Segments
	s.Distance.NumericFailures += o.Distance.NumericFailures

	s.SEC.Centered += o.SEC.Centered
	s.SEC.RadiusTooBig += o.SEC.RadiusTooBig
	s.SEC.MissingPoints += o.SEC.MissingPoints
	s.SEC.None += o.SEC.None
	s.SEC.Skipped += o.SEC.Skipped

	s.ClusterTime += o.ClusterTime
	s.RouteTime += o.RouteTime
	s.Cancelled = s.Cancelled || o.Cancelled
	s.Errors = append(s.Errors, o.Errors...)
}

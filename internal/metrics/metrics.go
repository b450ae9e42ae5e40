package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dpup/scanplan/internal/lib/stats"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing,
// so callers that do not export metrics can pass nil.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	Clusters           prometheus.Histogram
	PointsCoveredTotal prometheus.Counter
	SECOutcomesTotal   *prometheus.CounterVec
	CacheLookupsTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanplan_runs_total",
			Help: "Pipeline operations by result status",
		}, []string{"op", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanplan_run_duration_seconds",
			Help:    "Pipeline operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"op"}),
		Clusters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanplan_clusters",
			Help:    "Clusters selected per run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		PointsCoveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanplan_points_covered_total",
			Help: "Input points covered by a selected cluster",
		}),
		SECOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanplan_sec_outcomes_total",
			Help: "Smallest enclosing circle refinements by outcome",
		}, []string{"outcome"}),
		CacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanplan_coverage_cache_lookups_total",
			Help: "S2 cell coverage memo lookups by result",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.RunsTotal, m.RunDuration, m.Clusters, m.PointsCoveredTotal, m.SECOutcomesTotal, m.CacheLookupsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRun records one finished operation
func (m *Metrics) ObserveRun(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(op, status).Inc()
	m.RunDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveStats records the clustering and cache figures of a run
func (m *Metrics) ObserveStats(s *stats.Stats) {
	if m == nil || s == nil {
		return
	}
	m.Clusters.Observe(float64(s.TotalClusters))
	m.PointsCoveredTotal.Add(float64(s.PointsCovered))

	m.SECOutcomesTotal.WithLabelValues("centered").Add(float64(s.SEC.Centered))
	m.SECOutcomesTotal.WithLabelValues("radius_too_big").Add(float64(s.SEC.RadiusTooBig))
	m.SECOutcomesTotal.WithLabelValues("missing_points").Add(float64(s.SEC.MissingPoints))
	m.SECOutcomesTotal.WithLabelValues("none").Add(float64(s.SEC.None))
	m.SECOutcomesTotal.WithLabelValues("skipped").Add(float64(s.SEC.Skipped))

	m.CacheLookupsTotal.WithLabelValues("hit").Add(float64(s.Cache.Hits))
	m.CacheLookupsTotal.WithLabelValues("miss").Add(float64(s.Cache.Misses))
}

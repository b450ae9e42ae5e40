package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/scanplan/internal/lib/stats"
)

func TestObserveRun(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRun("cluster", time.Now(), nil)
	m.ObserveRun("cluster", time.Now(), nil)
	m.ObserveRun("route", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("cluster", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("route", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RunDuration))
}

func TestObserveStats(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	s := stats.New("run")
	s.TotalClusters = 12
	s.PointsCovered = 340
	s.SEC = stats.SECOutcomes{Centered: 9, MissingPoints: 2, None: 1}
	s.Cache = stats.CacheStats{Entries: 4, Hits: 30, Misses: 4}
	m.ObserveStats(s)

	assert.Equal(t, 340.0, testutil.ToFloat64(m.PointsCoveredTotal))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.SECOutcomesTotal.WithLabelValues("centered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SECOutcomesTotal.WithLabelValues("missing_points")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Clusters))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("plan", time.Now(), nil)
		m.ObserveStats(stats.New("run"))
	})
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/scanplan/internal/lib/routing"
	"github.com/dpup/scanplan/internal/lib/tiling"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 70.0, cfg.Radius)
	assert.Equal(t, int64(1), cfg.Seed)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Equal(t, "radius", cfg.Tiling.Mode)
	assert.Equal(t, 15, cfg.Tiling.S2Level)
	assert.Equal(t, 9, cfg.Tiling.S2Size)
	assert.Equal(t, 1, cfg.Cluster.MinPoints)
	assert.True(t, cfg.Cluster.Fast)
	assert.True(t, cfg.Cluster.Refine)
	assert.Equal(t, "tsp", cfg.Route.SortBy)
	assert.Equal(t, 12, cfg.Route.RouteSplitLevel)
	assert.Equal(t, 50, cfg.Route.TwoOptSweeps)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Empty(t, cfg.Metrics.Textfile)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
radius: 120
timeout: 30s
tiling:
  mode: s2
  s2_level: 14
cluster:
  min_points: 4
  fast: false
route:
  sort_by: hilbert
`), 0o600))

	t.Setenv("SCANPLAN__CLUSTER__MIN_POINTS", "7")
	t.Setenv("SCANPLAN__ROUTE__SORT_BY", "point_count")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 120.0, cfg.Radius)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 14, cfg.Tiling.S2Level)
	assert.Equal(t, 9, cfg.Tiling.S2Size, "unset keys keep defaults")
	assert.Equal(t, 7, cfg.Cluster.MinPoints, "environment wins over the file")
	assert.False(t, cfg.Cluster.Fast)
	assert.True(t, cfg.Cluster.Refine)

	sortBy, err := cfg.SortBy()
	require.NoError(t, err)
	assert.Equal(t, routing.SortPointCount, sortBy)

	tp, err := cfg.TilingParams()
	require.NoError(t, err)
	assert.Equal(t, tiling.Params{Mode: tiling.ModeS2, Radius: 120, Level: 14, Size: 9}, tp)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero radius", func(c *Config) { c.Radius = 0 }},
		{"unknown mode", func(c *Config) { c.Tiling.Mode = "hex" }},
		{"s2 level", func(c *Config) { c.Tiling.S2Level = 31 }},
		{"min points", func(c *Config) { c.Cluster.MinPoints = 0 }},
		{"unknown sort", func(c *Config) { c.Route.SortBy = "spiral" }},
		{"split level", func(c *Config) { c.Route.RouteSplitLevel = -1 }},
		{"timeout", func(c *Config) { c.Timeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

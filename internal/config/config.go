package config

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dpup/scanplan/internal/lib/routing"
	"github.com/dpup/scanplan/internal/lib/tiling"
)

// EnvPrefix marks environment overrides, e.g. SCANPLAN__CLUSTER__MIN_POINTS=5
const EnvPrefix = "SCANPLAN__"

// Config represents the complete planner configuration
type Config struct {
	// Radius is the coverage radius in meters shared by every stage
	Radius  float64       `yaml:"radius"`
	Seed    int64         `yaml:"seed"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`

	Tiling  TilingConfig  `yaml:"tiling"`
	Cluster ClusterConfig `yaml:"cluster"`
	Route   RouteConfig   `yaml:"route"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TilingConfig holds candidate generation settings
type TilingConfig struct {
	Mode    string `yaml:"mode"`
	S2Level int    `yaml:"s2_level"`
	S2Size  int    `yaml:"s2_size"`
}

// ClusterConfig holds clustering settings
type ClusterConfig struct {
	MinPoints   int  `yaml:"min_points"`
	Fast        bool `yaml:"fast"`
	Refine      bool `yaml:"refine"`
	MaxAttempts int  `yaml:"max_attempts"`
}

// RouteConfig holds route ordering settings
type RouteConfig struct {
	SortBy          string `yaml:"sort_by"`
	RouteSplitLevel int    `yaml:"route_split_level"`
	TwoOptSweeps    int    `yaml:"two_opt_sweeps"`
}

// LoggingConfig selects the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MetricsConfig controls the node-exporter textfile written after a run
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"radius":                  70.0,
		"seed":                    1,
		"workers":                 runtime.GOMAXPROCS(0),
		"timeout":                 "0s",
		"tiling.mode":             "radius",
		"tiling.s2_level":         15,
		"tiling.s2_size":          9,
		"cluster.min_points":      1,
		"cluster.fast":            true,
		"cluster.refine":          true,
		"cluster.max_attempts":    100,
		"route.sort_by":           "tsp",
		"route.route_split_level": 12,
		"route.two_opt_sweeps":    routing.DefaultTwoOptSweeps,
		"logging.level":           "info",
		"logging.format":          "console",
		"metrics.textfile":        "",
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg, err := load(koanf.New("."), "")
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

// Load reads defaults, then the YAML file at path when non-empty, then
// SCANPLAN__ environment variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := load(koanf.New("."), path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func load(k *koanf.Koanf, path string) (*Config, error) {
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKey maps SCANPLAN__CLUSTER__MIN_POINTS to cluster.min_points
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate rejects settings no stage can run with
func (c *Config) Validate() error {
	if math.IsNaN(c.Radius) || math.IsInf(c.Radius, 0) || c.Radius <= 0 {
		return fmt.Errorf("radius %v must be positive and finite", c.Radius)
	}
	if _, err := tiling.ParseMode(c.Tiling.Mode); err != nil {
		return err
	}
	if c.Tiling.S2Level < 0 || c.Tiling.S2Level > 30 {
		return fmt.Errorf("s2_level %d outside 0..30", c.Tiling.S2Level)
	}
	if c.Tiling.S2Size < 0 {
		return fmt.Errorf("s2_size %d must not be negative", c.Tiling.S2Size)
	}
	if c.Cluster.MinPoints < 1 {
		return fmt.Errorf("min_points %d must be at least 1", c.Cluster.MinPoints)
	}
	if _, err := routing.ParseSortBy(c.Route.SortBy); err != nil {
		return err
	}
	if c.Route.RouteSplitLevel < 0 || c.Route.RouteSplitLevel > 30 {
		return fmt.Errorf("route_split_level %d outside 0..30", c.Route.RouteSplitLevel)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout %v must not be negative", c.Timeout)
	}
	return nil
}

// TilingParams converts the tiling section for the tiler
func (c *Config) TilingParams() (tiling.Params, error) {
	mode, err := tiling.ParseMode(c.Tiling.Mode)
	if err != nil {
		return tiling.Params{}, err
	}
	return tiling.Params{Mode: mode, Radius: c.Radius, Level: c.Tiling.S2Level, Size: c.Tiling.S2Size}, nil
}

// SortBy parses the configured route order
func (c *Config) SortBy() (routing.SortBy, error) {
	return routing.ParseSortBy(c.Route.SortBy)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/dpup/scanplan/internal/config"
	"github.com/dpup/scanplan/internal/lib/export"
	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/geojson"
	"github.com/dpup/scanplan/internal/lib/stats"
	"github.com/dpup/scanplan/internal/logging"
	"github.com/dpup/scanplan/internal/metrics"
	"github.com/dpup/scanplan/internal/services"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "bootstrap":
		handleBootstrap()
	case "cluster":
		handleCluster()
	case "route":
		handleRoute()
	case "plan":
		handlePlan()
	case "refine":
		handleRefine()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// options are the flags shared by every command
type options struct {
	fs         *flag.FlagSet
	configPath *string
	areaPath   *string
	pointsPath *string
	centers    *string
	outPath    *string
	format     *string
	statsPath  *string

	radius    *float64
	minPoints *int
	mode      *string
	sortBy    *string
	fast      *bool
}

func newOptions(name string) *options {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &options{
		fs:         fs,
		configPath: fs.String("config", "", "YAML config file"),
		areaPath:   fs.String("area", "", "GeoJSON file with the area polygons"),
		pointsPath: fs.String("points", "", "GeoJSON file with the points of interest"),
		centers:    fs.String("centers", "", "GeoJSON file with cluster centers"),
		outPath:    fs.String("out", "-", "Output file, - for stdout"),
		format:     fs.String("format", "geojson", "Output format: geojson, multipoint, kml or polyline"),
		statsPath:  fs.String("stats", "", "Write run stats as YAML to this file, - for stderr"),
		radius:     fs.Float64("radius", 0, "Coverage radius in meters (overrides config)"),
		minPoints:  fs.Int("min-points", 0, "Minimum points per cluster (overrides config)"),
		mode:       fs.String("mode", "", "Tiling mode: radius or s2 (overrides config)"),
		sortBy:     fs.String("sort-by", "", "Route order (overrides config)"),
		fast:       fs.Bool("fast", true, "Use grid candidates for clustering (overrides config when set)"),
	}
}

// app is everything a command needs once flags and config are loaded
type app struct {
	opts    *options
	cfg     *config.Config
	planner *services.Planner
	reg     *prometheus.Registry
	ctx     context.Context
	cancel  context.CancelFunc
}

func setup(name string) *app {
	opts := newOptions(name)
	opts.fs.Parse(os.Args[2:])

	cfg, err := config.Load(*opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyOverrides(opts, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	if cfg.Timeout > 0 {
		ctx, cancel = withTimeout(ctx, cancel, cfg)
	}
	ctx = logging.With(ctx, logger)

	a := &app{opts: opts, cfg: cfg, ctx: ctx, cancel: cancel}
	plannerOpts := []services.Option{services.WithWorkers(cfg.Workers)}
	if cfg.Metrics.Textfile != "" {
		a.reg = prometheus.NewRegistry()
		m, err := metrics.New(a.reg)
		if err != nil {
			log.Fatalf("Failed to register metrics: %v", err)
		}
		plannerOpts = append(plannerOpts, services.WithMetrics(m))
	}
	a.planner = services.NewPlanner(plannerOpts...)
	return a
}

func withTimeout(parent context.Context, stop context.CancelFunc, cfg *config.Config) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func applyOverrides(opts *options, cfg *config.Config) {
	opts.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "radius":
			cfg.Radius = *opts.radius
		case "min-points":
			cfg.Cluster.MinPoints = *opts.minPoints
		case "mode":
			cfg.Tiling.Mode = *opts.mode
		case "sort-by":
			cfg.Route.SortBy = *opts.sortBy
		case "fast":
			cfg.Cluster.Fast = *opts.fast
		}
	})
}

func (a *app) clusterParams() services.ClusterParams {
	tp, err := a.cfg.TilingParams()
	if err != nil {
		log.Fatalf("Invalid tiling configuration: %v", err)
	}
	return services.ClusterParams{
		Radius:      a.cfg.Radius,
		MinPoints:   a.cfg.Cluster.MinPoints,
		Fast:        a.cfg.Cluster.Fast,
		Refine:      a.cfg.Cluster.Refine,
		Seed:        a.cfg.Seed,
		MaxAttempts: a.cfg.Cluster.MaxAttempts,
		Mode:        tp.Mode,
		S2Level:     tp.Level,
		S2Size:      tp.Size,
	}
}

func (a *app) routeParams() services.RouteParams {
	sortBy, err := a.cfg.SortBy()
	if err != nil {
		log.Fatalf("Invalid route configuration: %v", err)
	}
	return services.RouteParams{
		SortBy:          sortBy,
		RouteSplitLevel: a.cfg.Route.RouteSplitLevel,
		Radius:          a.cfg.Radius,
		Seed:            a.cfg.Seed,
		TwoOptSweeps:    a.cfg.Route.TwoOptSweeps,
	}
}

func (a *app) area(required bool) []geo.Polygon {
	path := *a.opts.areaPath
	if path == "" {
		if required {
			log.Fatalf("--area is required")
		}
		return nil
	}
	data := readFile(path)
	polys, err := geojson.ParseArea(data)
	if err != nil {
		log.Fatalf("Failed to parse area %s: %v", path, err)
	}
	return polys
}

func (a *app) points(path *string, flagName string, required bool) []geo.Point {
	if *path == "" {
		if required {
			log.Fatalf("--%s is required", flagName)
		}
		return nil
	}
	points, err := geojson.ParsePoints(readFile(*path))
	if err != nil {
		log.Fatalf("Failed to parse %s: %v", *path, err)
	}
	return points
}

func readFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}

// finish writes the route, stats and metrics and releases the context
func (a *app) finish(name string, route []geo.Point, st *stats.Stats) {
	defer a.cancel()

	format, err := export.ParseFormat(*a.opts.format)
	if err != nil {
		log.Fatalf("Invalid output format: %v", err)
	}

	out := os.Stdout
	if *a.opts.outPath != "-" {
		f, err := os.Create(*a.opts.outPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *a.opts.outPath, err)
		}
		defer f.Close()
		out = f
	}
	if err := export.Write(out, format, name, route); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}

	if st != nil && *a.opts.statsPath != "" {
		writeStats(*a.opts.statsPath, st)
	}

	if a.reg != nil {
		if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.reg); err != nil {
			log.Fatalf("Failed to write metrics textfile: %v", err)
		}
	}
}

func writeStats(path string, st *stats.Stats) {
	w := os.Stderr
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", path, err)
		}
		defer f.Close()
		w = f
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		log.Fatalf("Failed to write stats: %v", err)
	}
	if err := enc.Close(); err != nil {
		log.Fatalf("Failed to write stats: %v", err)
	}
}

func handleBootstrap() {
	a := setup("bootstrap")
	area := a.area(true)
	tp, err := a.cfg.TilingParams()
	if err != nil {
		log.Fatalf("Invalid tiling configuration: %v", err)
	}
	rp := a.routeParams()

	res, err := a.planner.Bootstrap(a.ctx, area, services.BootstrapParams{
		Mode:            tp.Mode,
		Radius:          tp.Radius,
		S2Level:         tp.Level,
		S2Size:          tp.Size,
		SortBy:          rp.SortBy,
		RouteSplitLevel: rp.RouteSplitLevel,
		Seed:            rp.Seed,
		TwoOptSweeps:    rp.TwoOptSweeps,
	})
	if err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
	a.finish("bootstrap", res.Points, res.Stats)
}

func handleCluster() {
	a := setup("cluster")
	points := a.points(a.opts.pointsPath, "points", true)
	res, err := a.planner.Cluster(a.ctx, points, a.area(false), a.clusterParams())
	if err != nil {
		log.Fatalf("Cluster failed: %v", err)
	}
	a.finish("cluster", res.Points, res.Stats)
}

func handleRoute() {
	a := setup("route")
	centers := a.points(a.opts.centers, "centers", true)
	points := a.points(a.opts.pointsPath, "points", false)
	res, err := a.planner.Route(a.ctx, points, centers, a.routeParams())
	if err != nil {
		log.Fatalf("Route failed: %v", err)
	}
	a.finish("route", res.Points, res.Stats)
}

func handlePlan() {
	a := setup("plan")
	points := a.points(a.opts.pointsPath, "points", true)
	res, err := a.planner.Plan(a.ctx, points, a.area(false), a.clusterParams(), a.routeParams())
	if err != nil {
		log.Fatalf("Plan failed: %v", err)
	}
	a.finish("plan", res.Points, res.Stats)
}

func handleRefine() {
	a := setup("refine")
	points := a.points(a.opts.pointsPath, "points", true)
	centers := a.points(a.opts.centers, "centers", true)
	refined, err := a.planner.SecRefine(a.ctx, points, centers, a.cfg.Radius)
	if err != nil {
		log.Fatalf("Refine failed: %v", err)
	}
	a.finish("refine", refined, nil)
}

func printUsage() {
	fmt.Println("Coverage planner")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  planner <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  bootstrap   Tile --area with circles and order them into a route")
	fmt.Println("  cluster     Cover --points (optionally inside --area) with circles")
	fmt.Println("  route       Order --centers, using --points for coverage stats")
	fmt.Println("  plan        Cluster --points and route the centers")
	fmt.Println("  refine      Move --centers onto the smallest circles around their --points")
	fmt.Println("  help        Show this help message")
	fmt.Println("")
	fmt.Println("Common options:")
	fmt.Println("  --config scanplan.yaml   Settings file; SCANPLAN__* environment variables override it")
	fmt.Println("  --out route.kml --format kml")
	fmt.Println("  --stats -               Print run stats as YAML to stderr")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  planner bootstrap --area murphys.geojson --radius 70 --sort-by tsp")
	fmt.Println("  planner plan --points spawns.geojson --area murphys.geojson --fast=false --format polyline")
}

package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/stats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "point-distance":
		handlePointDistance()
	case "destination":
		handleDestination()
	case "geohash":
		handleGeohash()
	case "s2-cell":
		handleS2Cell()
	case "tour-distance":
		handleTourDistance()
	case "decode-polyline":
		handleDecodePolyline()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handlePointDistance() {
	fs := flag.NewFlagSet("point-distance", flag.ExitOnError)
	lat1 := fs.Float64("lat1", 0, "Latitude of first point")
	lng1 := fs.Float64("lng1", 0, "Longitude of first point")
	lat2 := fs.Float64("lat2", 0, "Latitude of second point")
	lng2 := fs.Float64("lng2", 0, "Longitude of second point")

	fs.Parse(os.Args[2:])

	if *lat1 == 0 && *lng1 == 0 && *lat2 == 0 && *lng2 == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils point-distance --lat1 38.0675 --lng1 -120.5436 --lat2 38.1391 --lng2 -120.4561")
		fmt.Println("  (Distance between Angels Camp and Murphys)")
		os.Exit(1)
	}

	p1, err := geo.NewPoint(*lat1, *lng1)
	if err != nil {
		log.Fatalf("Invalid first point: %v", err)
	}
	p2, err := geo.NewPoint(*lat2, *lng2)
	if err != nil {
		log.Fatalf("Invalid second point: %v", err)
	}

	haversine := geo.Distance(p1, p2)
	vincenty := geo.VincentyInverse(p1, p2)

	fmt.Printf("Distance between points:\n")
	fmt.Printf("  Point 1: (%.6f, %.6f)\n", p1.Latitude, p1.Longitude)
	fmt.Printf("  Point 2: (%.6f, %.6f)\n", p2.Latitude, p2.Longitude)
	fmt.Printf("  Haversine: %.2f meters (%.2f km, %.2f miles)\n",
		haversine, haversine/1000, haversine*0.000621371)
	if math.IsInf(vincenty, 1) {
		fmt.Printf("  Vincenty: did not converge\n")
	} else {
		fmt.Printf("  Vincenty: %.3f meters (%+.2f vs haversine)\n", vincenty, vincenty-haversine)
	}
	fmt.Printf("  Bearing: %.2f degrees\n", geo.Bearing(p1, p2))
	mid := geo.Midpoint(p1, p2)
	fmt.Printf("  Midpoint: (%.6f, %.6f)\n", mid.Latitude, mid.Longitude)
}

func handleDestination() {
	fs := flag.NewFlagSet("destination", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of start point")
	lng := fs.Float64("lng", 0, "Longitude of start point")
	bearing := fs.Float64("bearing", 0, "Bearing in degrees clockwise from north")
	meters := fs.Float64("meters", 0, "Distance to travel in meters")

	fs.Parse(os.Args[2:])

	if *meters == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils destination --lat 38.1391 --lng -120.4561 --bearing 90 --meters 1000")
		os.Exit(1)
	}

	start := geo.Point{Latitude: *lat, Longitude: *lng}
	dest := geo.Destination(start, *bearing, *meters)

	fmt.Printf("Destination:\n")
	fmt.Printf("  Start: (%.6f, %.6f)\n", start.Latitude, start.Longitude)
	fmt.Printf("  Bearing: %.2f degrees, distance: %.1f meters\n", *bearing, *meters)
	fmt.Printf("  End: (%.6f, %.6f)\n", dest.Latitude, dest.Longitude)
	fmt.Printf("  Check: %.3f meters back to start\n", geo.Distance(start, dest))
}

func handleGeohash() {
	fs := flag.NewFlagSet("geohash", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude to encode")
	lng := fs.Float64("lng", 0, "Longitude to encode")
	precision := fs.Uint("precision", geo.GeohashPrecision, "Number of geohash characters")
	hash := fs.String("decode", "", "Geohash to decode instead of encoding")

	fs.Parse(os.Args[2:])

	if *hash != "" {
		p, err := geo.DecodeGeohash(*hash)
		if err != nil {
			log.Fatalf("Error decoding geohash: %v", err)
		}
		fmt.Printf("Geohash %s decodes to (%.8f, %.8f)\n", *hash, p.Latitude, p.Longitude)
		return
	}

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils geohash --lat 38.1391 --lng -120.4561")
		fmt.Println("  test-geo-utils geohash --decode 9qf3x0g8b4hk")
		os.Exit(1)
	}

	p := geo.Point{Latitude: *lat, Longitude: *lng}
	encoded := geo.EncodeGeohash(p, *precision)
	back, err := geo.DecodeGeohash(encoded)
	if err != nil {
		log.Fatalf("Error decoding geohash: %v", err)
	}
	fmt.Printf("Geohash:\n")
	fmt.Printf("  Point: (%.6f, %.6f)\n", p.Latitude, p.Longitude)
	fmt.Printf("  Hash: %s\n", encoded)
	fmt.Printf("  Round trip error: %.3f meters\n", geo.Distance(p, back))
}

func handleS2Cell() {
	fs := flag.NewFlagSet("s2-cell", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude")
	lng := fs.Float64("lng", 0, "Longitude")
	level := fs.Int("level", geo.LeafLevel, "S2 level")
	radius := fs.Float64("radius", 0, "Also list cells within this many meters")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils s2-cell --lat 38.1391 --lng -120.4561 --level 15")
		fmt.Println("  test-geo-utils s2-cell --lat 38.1391 --lng -120.4561 --level 17 --radius 70")
		os.Exit(1)
	}
	if *level < 0 || *level > 30 {
		log.Fatalf("Level %d out of range 0..30", *level)
	}

	cell := geo.CellIDAt(*lat, *lng, *level)
	center := geo.CellCenter(cell)
	fmt.Printf("S2 cell:\n")
	fmt.Printf("  Id: %d (token %s, level %d)\n", uint64(cell), cell.ToToken(), cell.Level())
	fmt.Printf("  Center: (%.6f, %.6f)\n", center.Latitude, center.Longitude)
	if *level > 0 {
		parent := geo.Parent(cell, *level-1)
		fmt.Printf("  Parent: %s\n", parent.ToToken())
	}
	fmt.Printf("  Vertices:\n")
	for i, v := range geo.CellVertices(cell) {
		fmt.Printf("    %d: (%.6f, %.6f)\n", i+1, v.Latitude, v.Longitude)
	}

	if *radius > 0 {
		cells := geo.CircleCoverage(*lat, *lng, *radius, *level)
		tokens := make([]string, len(cells))
		for i, c := range cells {
			tokens[i] = c.ToToken()
		}
		fmt.Printf("  Cells within %.0f meters: %d\n", *radius, len(cells))
		fmt.Printf("    %s\n", strings.Join(tokens, " "))
	}
}

func handleTourDistance() {
	fs := flag.NewFlagSet("tour-distance", flag.ExitOnError)
	coords := fs.String("points", "", "Semicolon-separated lat,lng pairs")

	fs.Parse(os.Args[2:])

	if *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils tour-distance --points \"38.0675,-120.5436;38.1391,-120.4561;38.2458,-120.3486\"")
		os.Exit(1)
	}

	points, err := parseCoordinatePairs(*coords)
	if err != nil {
		log.Fatalf("Error parsing points: %v", err)
	}

	d := stats.TourDistance(points)
	fmt.Printf("Closed tour through %d points:\n", len(points))
	fmt.Printf("  Total: %.2f meters\n", d.Total)
	fmt.Printf("  Segments: %d (longest %.2f, shortest %.2f)\n", d.Segments, d.Longest, d.Shortest)
	if d.NumericFailures > 0 {
		fmt.Printf("  Failed segments: %d\n", d.NumericFailures)
	}
	fmt.Printf("  Polyline: %s\n", geo.EncodePolyline(points))
}

func handleDecodePolyline() {
	fs := flag.NewFlagSet("decode-polyline", flag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string to decode")
	verbose := fs.Bool("verbose", false, "Show all decoded points")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils decode-polyline --polyline \"_p~iF~ps|U_ulLnnqC_mqNvxq`@\"")
		fmt.Println("  test-geo-utils decode-polyline --polyline \"encoded_string\" --verbose")
		os.Exit(1)
	}

	points, err := geo.DecodePolyline(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	fmt.Printf("Polyline decoded successfully:\n")
	fmt.Printf("  Input: %s\n", *polylineStr)
	fmt.Printf("  Points: %d\n", len(points))

	if len(points) > 0 {
		fmt.Printf("  Start: (%.6f, %.6f)\n", points[0].Latitude, points[0].Longitude)
		if len(points) > 1 {
			fmt.Printf("  End: (%.6f, %.6f)\n", points[len(points)-1].Latitude, points[len(points)-1].Longitude)
			fmt.Printf("  Closed tour length: %.1f meters\n", stats.TourDistance(points).Total)
		}
	}

	if *verbose && len(points) > 0 {
		fmt.Printf("  All points:\n")
		for i, point := range points {
			fmt.Printf("    %d: (%.6f, %.6f)\n", i+1, point.Latitude, point.Longitude)
		}
	}
}

func printUsage() {
	fmt.Printf(`test-geo-utils - Geodesy debugging tool

USAGE:
    test-geo-utils <command> [options]

COMMANDS:
    point-distance      Haversine and Vincenty distance between two points
    destination         Point reached from a start, bearing and distance
    geohash             Encode a point or decode a geohash
    s2-cell             Inspect the S2 cell containing a point
    tour-distance       Length of the closed tour through a list of points
    decode-polyline     Decode Google polyline string to coordinates
    help               Show this help message

EXAMPLES:
    # Distance between Angels Camp and Murphys
    test-geo-utils point-distance --lat1 38.0675 --lng1 -120.5436 --lat2 38.1391 --lng2 -120.4561

    # One kilometer east of Murphys
    test-geo-utils destination --lat 38.1391 --lng -120.4561 --bearing 90 --meters 1000

    # Level 17 cells touched by a 70 meter circle
    test-geo-utils s2-cell --lat 38.1391 --lng -120.4561 --level 17 --radius 70

    # Decode polyline to see coordinates
    test-geo-utils decode-polyline --polyline "encoded_string" --verbose
`)
}

// Helper function to parse coordinate pairs from string
func parseCoordinatePairs(coordStr string) ([]geo.Point, error) {
	if coordStr == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	pairs := strings.Split(coordStr, ";")
	points := make([]geo.Point, 0, len(pairs))

	for _, pair := range pairs {
		coords := strings.Split(strings.TrimSpace(pair), ",")
		if len(coords) != 2 {
			return nil, fmt.Errorf("invalid coordinate pair: %s", pair)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %s", coords[0])
		}

		lng, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %s", coords[1])
		}

		points = append(points, geo.Point{Latitude: lat, Longitude: lng})
	}

	return points, nil
}

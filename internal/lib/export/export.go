// Package export renders ordered routes for downstream tools: KML for map
// viewers, Google encoded polylines and GeoJSON for web clients.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/twpayne/go-kml"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/geojson"
)

// Format names an output encoding
type Format string

const (
	FormatGeoJSON    Format = "geojson"
	FormatMultiPoint Format = "multipoint"
	FormatKML        Format = "kml"
	FormatPolyline   Format = "polyline"
)

// ParseFormat accepts the names above; empty means GeoJSON
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatGeoJSON:
		return FormatGeoJSON, nil
	case FormatMultiPoint, FormatKML, FormatPolyline:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Write encodes route to w in the given format
func Write(w io.Writer, f Format, name string, route []geo.Point) error {
	switch f {
	case FormatGeoJSON:
		return writeJSON(w, geojson.PointCollection(route))
	case FormatMultiPoint:
		return writeJSON(w, geojson.MultiPointCollection(route))
	case FormatKML:
		return WriteKML(w, name, route)
	case FormatPolyline:
		return WritePolyline(w, route)
	}
	return fmt.Errorf("unknown output format %q", f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode geojson: %w", err)
	}
	return nil
}

// WriteKML writes a KML document with one placemark per stop, named by its
// position in the route, followed by a closed line through every stop.
func WriteKML(w io.Writer, name string, route []geo.Point) error {
	stops := make([]kml.Element, 0, len(route)+1)
	stops = append(stops, kml.Name("stops"))
	for i, p := range route {
		stops = append(stops, kml.Placemark(
			kml.Name(strconv.Itoa(i+1)),
			kml.Point(kml.Coordinates(coordinate(p))),
		))
	}

	children := []kml.Element{kml.Name(name), kml.Folder(stops...)}
	if len(route) > 1 {
		line := make([]kml.Coordinate, 0, len(route)+1)
		for _, p := range route {
			line = append(line, coordinate(p))
		}
		line = append(line, coordinate(route[0]))
		children = append(children, kml.Placemark(
			kml.Name("route"),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(line...),
			),
		))
	}

	if err := kml.KML(kml.Document(children...)).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write kml: %w", err)
	}
	return nil
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}

// WritePolyline writes the route as one encoded polyline followed by a newline
func WritePolyline(w io.Writer, route []geo.Point) error {
	if _, err := fmt.Fprintln(w, geo.EncodePolyline(route)); err != nil {
		return fmt.Errorf("failed to write polyline: %w", err)
	}
	return nil
}

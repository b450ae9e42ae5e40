package geojson

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// bboxPrecision is the number of decimals kept in serialized bounding boxes
const bboxPrecision = 6

type typeProbe struct {
	Type string `json:"type"`
}

// Decode reads any GeoJSON object into its geometries: a FeatureCollection
// yields one geometry per feature, a Feature its geometry, and a bare
// geometry itself.
func Decode(data []byte) ([]orb.Geometry, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		out := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, nil
		}
		return []orb.Geometry{f.Geometry}, nil
	case "":
		return nil, fmt.Errorf("geojson object has no type: %w", geo.ErrInvalidGeometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s geometry: %w", probe.Type, err)
		}
		return []orb.Geometry{g.Geometry()}, nil
	}
}

// ParseArea returns every polygon in data, with MultiPolygons and
// GeometryCollections flattened in document order. Non-areal geometries are
// skipped. Polygons are not validated; see geo.Polygon.Close.
func ParseArea(data []byte) ([]geo.Polygon, error) {
	geoms, err := Decode(data)
	if err != nil {
		return nil, err
	}
	var out []geo.Polygon
	for _, g := range geoms {
		out = appendPolygons(out, g)
	}
	return out, nil
}

func appendPolygons(out []geo.Polygon, g orb.Geometry) []geo.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		out = append(out, geo.PolygonFromOrb(v))
	case orb.MultiPolygon:
		for _, p := range v {
			out = append(out, geo.PolygonFromOrb(p))
		}
	case orb.Collection:
		for _, member := range v {
			out = appendPolygons(out, member)
		}
	}
	return out
}

// ParsePoints returns every Point and MultiPoint coordinate in data in
// document order. Other geometries are skipped.
func ParsePoints(data []byte) ([]geo.Point, error) {
	geoms, err := Decode(data)
	if err != nil {
		return nil, err
	}
	var out []geo.Point
	for _, g := range geoms {
		out = appendPoints(out, g)
	}
	return out, nil
}

func appendPoints(out []geo.Point, g orb.Geometry) []geo.Point {
	switch v := g.(type) {
	case orb.Point:
		out = append(out, fromOrb(v))
	case orb.MultiPoint:
		for _, p := range v {
			out = append(out, fromOrb(p))
		}
	case orb.Collection:
		for _, member := range v {
			out = appendPoints(out, member)
		}
	}
	return out
}

func fromOrb(p orb.Point) geo.Point {
	return geo.Point{Latitude: p.Lat(), Longitude: p.Lon()}
}

func toOrb(p geo.Point) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// PointCollection builds a FeatureCollection with one Point feature per stop.
// Each feature carries its position in the route as the "order" property.
func PointCollection(points []geo.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		f := geojson.NewFeature(toOrb(p))
		f.Properties["order"] = i
		fc.Append(f)
	}
	if len(points) > 0 {
		fc.BBox = BBox(points)
	}
	return fc
}

// MultiPointCollection builds a FeatureCollection holding a single MultiPoint
// feature with the stops in route order.
func MultiPointCollection(points []geo.Point) *geojson.FeatureCollection {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = toOrb(p)
	}
	f := geojson.NewFeature(mp)
	f.Properties["count"] = len(points)

	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	if len(points) > 0 {
		fc.BBox = BBox(points)
		f.BBox = fc.BBox
	}
	return fc
}

// BBox returns [min_lon, min_lat, max_lon, max_lat] rounded to 6 decimals
func BBox(points []geo.Point) geojson.BBox {
	b := geo.BoundOf(points)
	return geojson.BBox{round(b.MinLon), round(b.MinLat), round(b.MaxLon), round(b.MaxLat)}
}

func round(v float64) float64 {
	scale := math.Pow(10, bboxPrecision)
	return math.Round(v*scale) / scale
}

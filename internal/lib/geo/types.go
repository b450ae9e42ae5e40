package geo

import (
	"errors"

	"github.com/golang/geo/s2"
)

// Numerical constants shared by the whole pipeline. Changing any of them
// changes computed plans.
const (
	// EarthRadius is the WGS84 equatorial radius in meters used by haversine.
	EarthRadius = 6378137.0

	// DegToRad converts degrees to radians.
	DegToRad = 0.017453292519943295

	// LeafLevel is the S2 level used as the canonical identity of a point.
	LeafLevel = 20

	// HilbertLevel is the S2 level used to bucket points for Hilbert ordering.
	HilbertLevel = 15

	// GeohashPrecision is the number of geohash characters used for ordering.
	GeohashPrecision = 12

	// MetersPerDegree is the length of one degree of latitude, used for
	// degree-radius conversion of index envelopes.
	MetersPerDegree = 111320.0
)

var (
	// ErrInvalidGeometry is returned for polygons that cannot be closed, have
	// fewer than 4 ring points or contain non-finite coordinates.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrEmptyInput is returned when an operation needs points or candidate
	// centers and received none.
	ErrEmptyInput = errors.New("empty input")

	// ErrNumericFailure marks a distance that could not be computed.
	ErrNumericFailure = errors.New("numeric failure")
)

// Point represents a geographic coordinate in degrees
type Point struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
}

// CellID returns the canonical level-20 S2 cell of the point. Two points are
// considered equal iff their canonical cells match.
func (p Point) CellID() s2.CellID {
	return CellIDAt(p.Latitude, p.Longitude, LeafLevel)
}

// Equal reports whether two points share a canonical cell.
func (p Point) Equal(o Point) bool {
	return p.CellID() == o.CellID()
}

// LatLng converts the point to an s2.LatLng.
func (p Point) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Latitude, p.Longitude)
}

// Polygon is a closed area with the exterior ring first and holes after it.
// Rings are stored in lat/lon order; GeoJSON lon/lat is converted at the boundary.
type Polygon struct {
	Rings [][]Point `json:"rings"`
}

// Exterior returns the outer ring, or nil for an empty polygon
func (p Polygon) Exterior() []Point {
	if len(p.Rings) == 0 {
		return nil
	}
	return p.Rings[0]
}

// Bound is an axis-aligned lat/lon box.
type Bound struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Center returns the midpoint of the box in degree space.
func (b Bound) Center() Point {
	return Point{Latitude: (b.MinLat + b.MaxLat) / 2, Longitude: (b.MinLon + b.MaxLon) / 2}
}

// Contains reports whether p lies inside the box, edges included.
func (b Bound) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// Circle is a center and a radius in meters.
type Circle struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
}

// Contains reports whether q lies within the circle under the haversine metric.
func (c Circle) Contains(q Point) bool {
	return Distance(c.Center, q) <= c.Radius
}

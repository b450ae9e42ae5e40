package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Close returns a copy of the polygon with every ring closed (first == last)
// and validates it. A ring must have at least 4 points once closed and every
// coordinate must be finite.
func (p Polygon) Close() (Polygon, error) {
	if len(p.Rings) == 0 {
		return Polygon{}, fmt.Errorf("polygon has no rings: %w", ErrInvalidGeometry)
	}

	closed := Polygon{Rings: make([][]Point, 0, len(p.Rings))}
	for i, ring := range p.Rings {
		for _, pt := range ring {
			if !pt.IsFinite() {
				return Polygon{}, fmt.Errorf("ring %d has non-finite coordinate: %w", i, ErrInvalidGeometry)
			}
		}
		if len(ring) == 0 {
			return Polygon{}, fmt.Errorf("ring %d is empty: %w", i, ErrInvalidGeometry)
		}

		r := append([]Point(nil), ring...)
		if first, last := r[0], r[len(r)-1]; first != last {
			r = append(r, first)
		}
		if len(r) < 4 || distinctPoints(r[:len(r)-1]) < 3 {
			return Polygon{}, fmt.Errorf("ring %d needs at least 3 distinct points: %w", i, ErrInvalidGeometry)
		}
		closed.Rings = append(closed.Rings, r)
	}
	return closed, nil
}

func distinctPoints(points []Point) int {
	seen := make(map[Point]struct{}, len(points))
	for _, p := range points {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// Bound returns the bounding box of the exterior ring.
func (p Polygon) Bound() Bound {
	return BoundOf(p.Exterior())
}

// Orb converts the polygon to an orb.Polygon in lon/lat order.
func (p Polygon) Orb() orb.Polygon {
	poly := make(orb.Polygon, 0, len(p.Rings))
	for _, ring := range p.Rings {
		r := make(orb.Ring, len(ring))
		for i, pt := range ring {
			r[i] = orb.Point{pt.Longitude, pt.Latitude}
		}
		poly = append(poly, r)
	}
	return poly
}

// PolygonFromOrb converts an orb.Polygon (lon/lat) to a Polygon.
func PolygonFromOrb(poly orb.Polygon) Polygon {
	out := Polygon{Rings: make([][]Point, 0, len(poly))}
	for _, ring := range poly {
		r := make([]Point, len(ring))
		for i, pt := range ring {
			r[i] = Point{Latitude: pt.Lat(), Longitude: pt.Lon()}
		}
		out.Rings = append(out.Rings, r)
	}
	return out
}

// Contains reports whether the point is inside the exterior ring and outside every hole
func (p Polygon) Contains(point Point) bool {
	return planar.PolygonContains(p.Orb(), orb.Point{point.Longitude, point.Latitude})
}

// BoundaryDistance returns the minimum haversine distance from point to any
// edge of the exterior ring.
func (p Polygon) BoundaryDistance(point Point) float64 {
	return PointToRingDistance(point, p.Exterior())
}

// S2 builds the equivalent s2.Polygon. Every ring is normalized so that it
// encloses the smaller region; holes are recovered by the odd-nesting rule.
func (p Polygon) S2() *s2.Polygon {
	loops := make([]*s2.Loop, 0, len(p.Rings))
	for _, ring := range p.Rings {
		pts := make([]s2.Point, 0, len(ring))
		for i, pt := range ring {
			if i == len(ring)-1 && pt == ring[0] {
				break
			}
			pts = append(pts, s2.PointFromLatLng(pt.LatLng()))
		}
		loop := s2.LoopFromPoints(pts)
		loop.Normalize()
		loops = append(loops, loop)
	}
	return s2.PolygonFromLoops(loops)
}

// BoundPolygon returns the rectangle polygon of a bounding box expanded by
// margin meters on every side.
func BoundPolygon(b Bound, margin float64) Polygon {
	dLat := MetersToLatDegrees(margin)
	dLon := MetersToLonDegrees(margin, math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat)))
	minLat, maxLat := math.Max(-90, b.MinLat-dLat), math.Min(90, b.MaxLat+dLat)
	minLon, maxLon := b.MinLon-dLon, b.MaxLon+dLon
	return Polygon{Rings: [][]Point{{
		{Latitude: minLat, Longitude: minLon},
		{Latitude: minLat, Longitude: maxLon},
		{Latitude: maxLat, Longitude: maxLon},
		{Latitude: maxLat, Longitude: minLon},
		{Latitude: minLat, Longitude: minLon},
	}}}
}

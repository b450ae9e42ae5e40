package tiling

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// Hex spacing factors. The vertical factor is slightly looser than a perfect
// hexagon, which leaves a covering radius of about 1.0025 r.
var (
	HorizontalFactor = math.Sqrt(0.75)
	VerticalFactor   = math.Sqrt(0.568)
)

// Honeycomb tiles a polygon with a hex grid of circles of Radius meters
type Honeycomb struct {
	Radius float64
}

// Tile sweeps rows southward from 1.5 r east of the bounding box's north-east
// corner. Odd rows are shifted half a step west and emitted east-to-west
// reversed, so consecutive centers form a serpentine. A center is kept when
// the polygon contains it or any ring lies within Radius of it.
func (h *Honeycomb) Tile(ctx context.Context, poly geo.Polygon) (Result, error) {
	poly, err := poly.Close()
	if err != nil {
		return Result{}, err
	}

	r := h.Radius
	xStep := 2 * r * HorizontalFactor
	yStep := 2 * r * VerticalFactor

	b := poly.Bound()
	shape := poly.Orb()
	start := geo.Destination(geo.Point{Latitude: b.MaxLat, Longitude: b.MaxLon}, 90, 1.5*r)
	minLat := b.MinLat - 2*geo.MetersToLatDegrees(r)

	var centers []geo.Point
	rowStart := start
	for row := 0; rowStart.Latitude >= minLat; row++ {
		if err := ctx.Err(); err != nil {
			return Result{Centers: centers}, err
		}

		lat := rowStart.Latitude
		dLon := geo.MetersToLonDegrees(xStep, lat)
		minLon := b.MinLon - 2*geo.MetersToLonDegrees(r, lat)

		lon := rowStart.Longitude
		if row%2 == 1 {
			lon -= dLon / 2
		}

		var line []geo.Point
		for ; lon >= minLon; lon -= dLon {
			p := geo.Point{Latitude: lat, Longitude: lon}
			if h.keep(shape, poly, p) {
				line = append(line, p)
			}
		}
		if row%2 == 1 {
			reverse(line)
		}
		centers = append(centers, line...)

		next := geo.Destination(rowStart, 180, yStep)
		if next.Latitude >= rowStart.Latitude {
			break // passed the south pole
		}
		rowStart = next
	}

	return Result{Centers: centers}, nil
}

func (h *Honeycomb) keep(shape orb.Polygon, poly geo.Polygon, p geo.Point) bool {
	if planar.PolygonContains(shape, orb.Point{p.Longitude, p.Latitude}) {
		return true
	}
	for _, ring := range poly.Rings {
		if geo.PointToRingDistance(p, ring) <= h.Radius {
			return true
		}
	}
	return false
}

func reverse(points []geo.Point) {
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
}

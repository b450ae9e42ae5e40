package spatial

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/dpup/scanplan/internal/lib/geo"
)

const (
	// R-tree node fan-out, 2D lat/lon
	minChildren = 25
	maxChildren = 50

	// envelopePad inflates degree envelopes so the 111320 m/deg conversion
	// never under-bounds a disc on the 6378137 m sphere.
	envelopePad = 1.001

	// queryTolerance is the side of the degenerate query rectangle
	queryTolerance = 1e-9
)

// CirclePoint is a disc of Radius meters around the point at Index in the
// owning Index's arena.
type CirclePoint struct {
	Index  int
	Center geo.Point
	Radius float64

	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial interface
func (c *CirclePoint) Bounds() rtreego.Rect {
	return c.rect
}

// ContainsPoint reports whether q is within the disc under the haversine metric
func (c *CirclePoint) ContainsPoint(q geo.Point) bool {
	return geo.Distance(c.Center, q) <= c.Radius
}

// Index is an immutable R-tree of equal-radius discs, one per arena point.
// Queries are safe for concurrent use once NewIndex returns.
type Index struct {
	points  []geo.Point
	circles []*CirclePoint
	radius  float64
	tree    *rtreego.Rtree
}

// NewIndex bulk-loads an R-tree holding a disc of radius meters around every
// point. The point slice is retained as the arena; callers must not modify it.
func NewIndex(points []geo.Point, radius float64) (*Index, error) {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return nil, fmt.Errorf("index radius %v must be finite and non-negative", radius)
	}

	circles := make([]*CirclePoint, len(points))
	objs := make([]rtreego.Spatial, len(points))
	for i, p := range points {
		if !p.IsFinite() {
			return nil, fmt.Errorf("point %d is not finite: %w", i, geo.ErrInvalidGeometry)
		}
		rect, err := Envelope(p, radius)
		if err != nil {
			return nil, fmt.Errorf("point %d envelope: %w", i, err)
		}
		circles[i] = &CirclePoint{Index: i, Center: p, Radius: radius, rect: rect}
		objs[i] = circles[i]
	}

	return &Index{
		points:  points,
		circles: circles,
		radius:  radius,
		tree:    rtreego.NewTree(2, minChildren, maxChildren, objs...),
	}, nil
}

// Envelope returns the lat/lon rectangle bounding the disc of radius meters
// around p. The longitude span is taken at the disc's most poleward latitude.
func Envelope(p geo.Point, radius float64) (rtreego.Rect, error) {
	dLat := geo.MetersToLatDegrees(radius) * envelopePad
	dLon := geo.MetersToLonDegrees(radius, math.Min(90, math.Abs(p.Latitude)+dLat)) * envelopePad

	return rtreego.NewRect(
		rtreego.Point{p.Latitude - dLat, p.Longitude - dLon},
		[]float64{2*dLat + queryTolerance, 2*dLon + queryTolerance},
	)
}

// LocateAllAtPoint returns the arena indices of every disc containing q, in
// ascending order.
func (ix *Index) LocateAllAtPoint(q geo.Point) []int {
	var out []int
	ix.visit(q, func(c *CirclePoint) {
		out = append(out, c.Index)
	})
	sort.Ints(out)
	return out
}

// CountAtPoint returns the number of discs containing q.
func (ix *Index) CountAtPoint(q geo.Point) int {
	n := 0
	ix.visit(q, func(*CirclePoint) { n++ })
	return n
}

func (ix *Index) visit(q geo.Point, fn func(c *CirclePoint)) {
	if !q.IsFinite() || len(ix.circles) == 0 {
		return
	}
	for _, item := range ix.tree.SearchIntersect(rtreego.Point{q.Latitude, q.Longitude}.ToRect(queryTolerance)) {
		c := item.(*CirclePoint)
		if c.ContainsPoint(q) {
			fn(c)
		}
	}
}

// Len returns the number of indexed points
func (ix *Index) Len() int {
	return len(ix.points)
}

// Point returns the arena point at i
func (ix *Index) Point(i int) geo.Point {
	return ix.points[i]
}

// Points returns the arena
func (ix *Index) Points() []geo.Point {
	return ix.points
}

// Radius returns the disc radius in meters
func (ix *Index) Radius() float64 {
	return ix.radius
}

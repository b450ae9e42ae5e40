package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// WGS84 ellipsoid parameters used by VincentyInverse.
const (
	wgs84A = 6378137.0
	wgs84B = 6356752.314245
	wgs84F = 1 / 298.257223563

	vincentyMaxIterations = 100
	vincentyTolerance     = 1e-12
)

// Distance calculates great-circle distance between two points in meters using the Haversine formula
func Distance(p1, p2 Point) float64 {
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0
	}

	lat1 := p1.Latitude * DegToRad
	lat2 := p2.Latitude * DegToRad
	dlat := lat2 - lat1
	dlon := (p2.Longitude - p1.Longitude) * DegToRad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DistanceChecked is Distance with NaN and infinity reported as ErrNumericFailure.
func DistanceChecked(p1, p2 Point) (float64, error) {
	d := Distance(p1, p2)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return math.Inf(1), fmt.Errorf("distance %v -> %v: %w", p1, p2, ErrNumericFailure)
	}
	return d, nil
}

// VincentyInverse calculates the ellipsoidal distance in meters between two
// points on WGS84. It returns +Inf when the iteration fails to converge, which
// happens for nearly antipodal points.
func VincentyInverse(p1, p2 Point) float64 {
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0
	}

	L := (p2.Longitude - p1.Longitude) * DegToRad
	U1 := math.Atan((1 - wgs84F) * math.Tan(p1.Latitude*DegToRad))
	U2 := math.Atan((1 - wgs84F) * math.Tan(p2.Latitude*DegToRad))
	sinU1, cosU1 := math.Sin(U1), math.Cos(U1)
	sinU2, cosU2 := math.Sin(U2), math.Cos(U2)

	lambda := L
	for i := 0; i < vincentyMaxIterations; i++ {
		sinLambda, cosLambda := math.Sin(lambda), math.Cos(lambda)
		sinSigma := math.Sqrt((cosU2*sinLambda)*(cosU2*sinLambda) +
			(cosU1*sinU2-sinU1*cosU2*cosLambda)*(cosU1*sinU2-sinU1*cosU2*cosLambda))
		if sinSigma == 0 {
			return 0 // coincident points
		}
		cosSigma := sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma := math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha := 1 - sinAlpha*sinAlpha

		cos2SigmaM := 0.0 // equatorial line
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}

		C := wgs84F / 16 * cosSqAlpha * (4 + wgs84F*(4-3*cosSqAlpha))
		prev := lambda
		lambda = L + (1-C)*wgs84F*sinAlpha*
			(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

		if math.Abs(lambda-prev) <= vincentyTolerance {
			uSq := cosSqAlpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
			A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
			B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
			deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
				B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
			return wgs84B * A * (sigma - deltaSigma)
		}
	}

	return math.Inf(1)
}

// Bearing returns the initial great-circle bearing from p1 to p2 in degrees [0, 360)
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Latitude * DegToRad
	lat2 := p2.Latitude * DegToRad
	dlon := (p2.Longitude - p1.Longitude) * DegToRad

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	return math.Mod(math.Atan2(y, x)/DegToRad+360, 360)
}

// Destination returns the point reached by travelling meters along the great
// circle that leaves p with the given bearing.
func Destination(p Point, bearingDeg, meters float64) Point {
	delta := meters / EarthRadius
	theta := bearingDeg * DegToRad
	lat1 := p.Latitude * DegToRad
	lon1 := p.Longitude * DegToRad

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2))

	return Point{Latitude: lat2 / DegToRad, Longitude: normalizeLongitude(lon2 / DegToRad)}
}

// Midpoint returns the great-circle midpoint between two points
func Midpoint(p1, p2 Point) Point {
	lat1 := p1.Latitude * DegToRad
	lat2 := p2.Latitude * DegToRad
	lon1 := p1.Longitude * DegToRad
	dlon := (p2.Longitude - p1.Longitude) * DegToRad

	bx := math.Cos(lat2) * math.Cos(dlon)
	by := math.Cos(lat2) * math.Sin(dlon)
	lat := math.Atan2(math.Sin(lat1)+math.Sin(lat2), math.Sqrt((math.Cos(lat1)+bx)*(math.Cos(lat1)+bx)+by*by))
	lon := lon1 + math.Atan2(by, math.Cos(lat1)+bx)

	return Point{Latitude: lat / DegToRad, Longitude: normalizeLongitude(lon / DegToRad)}
}

// TwoPointCircle returns the circle whose diameter is the segment p1-p2.
func TwoPointCircle(p1, p2 Point) Circle {
	return Circle{Center: Midpoint(p1, p2), Radius: Distance(p1, p2) / 2}
}

// SmallestThreePointCircle returns the circle circumscribing the geodesic
// triangle a, b, c. The radius is the largest of the three haversine distances
// from the center so that all three vertices are contained despite rounding.
// Collinear (same great circle) or duplicate vertices collapse to the
// two-point circle of the farthest pair.
func SmallestThreePointCircle(a, b, c Point) Circle {
	pa := s2.PointFromLatLng(a.LatLng())
	pb := s2.PointFromLatLng(b.LatLng())
	pc := s2.PointFromLatLng(c.LatLng())

	ab := pb.Vector.Sub(pa.Vector)
	ac := pc.Vector.Sub(pa.Vector)
	normal := ab.Cross(ac)

	if normal.Norm() <= 1e-9*ab.Norm()*ac.Norm() {
		return collapseTriangle(a, b, c)
	}

	center := normal.Normalize()
	if center.Dot(pa.Vector.Add(pb.Vector).Add(pc.Vector)) < 0 {
		center = center.Mul(-1)
	}
	// Vertices on one great circle put the plane through the origin.
	if center.Dot(pa.Vector) < 1e-6 {
		return collapseTriangle(a, b, c)
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: center})
	cp := Point{Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees()}

	radius := math.Max(Distance(cp, a), math.Max(Distance(cp, b), Distance(cp, c)))
	return Circle{Center: cp, Radius: radius}
}

// collapseTriangle handles degenerate triangles
func collapseTriangle(a, b, c Point) Circle {
	dab, dac, dbc := Distance(a, b), Distance(a, c), Distance(b, c)
	switch {
	case dab >= dac && dab >= dbc:
		return TwoPointCircle(a, b)
	case dac >= dbc:
		return TwoPointCircle(a, c)
	default:
		return TwoPointCircle(b, c)
	}
}

// PointToSegmentDistance calculates the haversine distance from point to the
// closest location on segment a-b. The closest location is found with the
// projection scalar of an equirectangular plane centered on the point.
func PointToSegmentDistance(point, a, b Point) float64 {
	if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
		return Distance(point, a)
	}

	scale := math.Cos(point.Latitude * DegToRad)
	ax, ay := a.Longitude*scale, a.Latitude
	bx, by := b.Longitude*scale, b.Latitude
	px, py := point.Longitude*scale, point.Latitude

	dx, dy := bx-ax, by-ay
	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	switch {
	case t <= 0:
		return Distance(point, a)
	case t >= 1:
		return Distance(point, b)
	}

	closest := Point{Latitude: a.Latitude + t*(b.Latitude-a.Latitude), Longitude: a.Longitude + t*(b.Longitude-a.Longitude)}
	return Distance(point, closest)
}

// PointToRingDistance returns the minimum distance from point to any edge of the ring
func PointToRingDistance(point Point, ring []Point) float64 {
	if len(ring) == 0 {
		return math.Inf(1)
	}
	if len(ring) == 1 {
		return Distance(point, ring[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(ring)-1; i++ {
		if d := PointToSegmentDistance(point, ring[i], ring[i+1]); d < minDistance {
			minDistance = d
		}
	}
	return minDistance
}

// Centroid returns the arithmetic mean of the points in degree space.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Latitude
		sumLon += p.Longitude
	}
	n := float64(len(points))
	return Point{Latitude: sumLat / n, Longitude: sumLon / n}
}

// BoundOf returns the bounding box of the points.
func BoundOf(points []Point) Bound {
	b := Bound{MinLat: 90, MinLon: 180, MaxLat: -90, MaxLon: -180}
	for _, p := range points {
		b.MinLat = math.Min(b.MinLat, p.Latitude)
		b.MinLon = math.Min(b.MinLon, p.Longitude)
		b.MaxLat = math.Max(b.MaxLat, p.Latitude)
		b.MaxLon = math.Max(b.MaxLon, p.Longitude)
	}
	return b
}

// FilterPointsByDistance filters points to those within specified distance of center point
func FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error) {
	if !isValidCoordinate(center) {
		return nil, errors.New("invalid center point coordinates")
	}

	var filteredPoints []Point
	for _, point := range points {
		if !isValidCoordinate(point) {
			continue // Skip invalid points
		}
		if Distance(center, point) <= maxDistanceMeters {
			filteredPoints = append(filteredPoints, point)
		}
	}

	return filteredPoints, nil
}

// MetersToLatDegrees converts a north-south distance to degrees of latitude.
func MetersToLatDegrees(meters float64) float64 {
	return meters / MetersPerDegree
}

// MetersToLonDegrees converts an east-west distance at the given latitude to
// degrees of longitude. Near the poles the result saturates at 180.
func MetersToLonDegrees(meters, latitude float64) float64 {
	cos := math.Cos(latitude * DegToRad)
	if cos < 1e-9 {
		return 180
	}
	return math.Min(180, meters/(MetersPerDegree*cos))
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.Latitude) && !math.IsInf(p.Latitude, 0) &&
		!math.IsNaN(p.Longitude) && !math.IsInf(p.Longitude, 0)
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+540, 360) - 180
	if lon == -180 {
		return 180
	}
	return lon
}

package geo

import (
	"fmt"
	"strings"

	"github.com/mmcloughlin/geohash"
)

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash encodes the point as a geohash with precision characters
func EncodeGeohash(p Point, precision uint) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, precision)
}

// DecodeGeohash returns the center of the geohash cell
func DecodeGeohash(hash string) (Point, error) {
	if hash == "" {
		return Point{}, fmt.Errorf("geohash is empty: %w", ErrInvalidGeometry)
	}
	for _, r := range hash {
		if !strings.ContainsRune(geohashAlphabet, r) {
			return Point{}, fmt.Errorf("geohash %q has invalid character %q: %w", hash, r, ErrInvalidGeometry)
		}
	}
	lat, lon := geohash.DecodeCenter(hash)
	return Point{Latitude: lat, Longitude: lon}, nil
}

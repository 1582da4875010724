// Package geo provides great-circle distance math for radius filtering and
// distance ordering.
package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	earthRadiusMiles = 3959.0
	milesPerKm       = 0.621371
)

// ErrInvalidCoordinate indicates a non-finite or out-of-range latitude or
// longitude.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the point lies within valid latitude/longitude range.
func (p Point) Validate() error {
	if !validLat(p.Lat) || !validLng(p.Lng) {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, p.Lat, p.Lng)
	}
	return nil
}

// DistanceMiles computes the haversine great-circle distance between two
// coordinate pairs in miles.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) (float64, error) {
	if !validLat(lat1) || !validLng(lng1) || !validLat(lat2) || !validLng(lng2) {
		return 0, fmt.Errorf("%w: (%v, %v) -> (%v, %v)", ErrInvalidCoordinate, lat1, lng1, lat2, lng2)
	}

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c, nil
}

// WithinRadius reports whether p lies within radiusMiles of center. The
// boundary is inclusive: a point at exactly radiusMiles is inside.
func WithinRadius(center, p Point, radiusMiles float64) (bool, error) {
	if radiusMiles < 0 || math.IsNaN(radiusMiles) || math.IsInf(radiusMiles, 0) {
		return false, fmt.Errorf("geo: negative or non-finite radius %v", radiusMiles)
	}
	d, err := DistanceMiles(center.Lat, center.Lng, p.Lat, p.Lng)
	if err != nil {
		return false, err
	}
	return d <= radiusMiles, nil
}

// KmToMiles converts kilometres to miles.
func KmToMiles(km float64) float64 {
	return km * milesPerKm
}

// BoundingBox is a latitude/longitude window, inclusive on all edges.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate checks edge ordering and coordinate range. Boxes crossing the
// antimeridian are not supported.
func (b BoundingBox) Validate() error {
	if !validLat(b.North) || !validLat(b.South) || !validLng(b.East) || !validLng(b.West) {
		return fmt.Errorf("%w: box %+v", ErrInvalidCoordinate, b)
	}
	if b.South > b.North {
		return fmt.Errorf("geo: box south %v above north %v", b.South, b.North)
	}
	if b.West > b.East {
		return fmt.Errorf("geo: box west %v beyond east %v", b.West, b.East)
	}
	return nil
}

// Contains reports whether the coordinate falls within the box.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// Center returns the midpoint of the box, used as the anchor for
// distance ordering when a search arrives with bounds only.
func (b BoundingBox) Center() Point {
	return Point{Lat: (b.North + b.South) / 2, Lng: (b.East + b.West) / 2}
}

func validLat(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -90 && v <= 90
}

func validLng(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -180 && v <= 180
}

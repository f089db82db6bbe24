// Package geo provides great-circle distance and Maidenhead locator helpers.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for distance calculations.
const EarthRadiusKm = 6371.0

// Point is a position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String formats the point the way alert messages show locations.
func (p Point) String() string {
	return fmt.Sprintf("%.4f°, %.4f°", p.Lat, p.Lon)
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// DistanceKm returns the rounded distance between two optional points.
// It returns nil unless both points are present.
func DistanceKm(a, b *Point) *int {
	if a == nil || b == nil {
		return nil
	}
	d := int(math.Round(HaversineKm(*a, *b)))
	return &d
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

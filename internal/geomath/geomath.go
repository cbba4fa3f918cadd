package geomath

import (
	"math"

	"github.com/example/instant-dispatch/internal/models"
)

// Named speed profiles used for ETA estimates. Callers select the profile;
// the engine never guesses road class from coordinates.
const (
	UrbanSpeedKmh   = 30.0
	HighwaySpeedKmh = 60.0
)

type SpeedProfile string

const (
	ProfileUrban   SpeedProfile = "urban"
	ProfileHighway SpeedProfile = "highway"
)

func SpeedFor(p SpeedProfile) float64 {
	if p == ProfileUrban {
		return UrbanSpeedKmh
	}
	return HighwaySpeedKmh
}

// DistanceKm returns the great-circle distance between two points via the
// Haversine formula, Earth radius 6371 km.
func DistanceKm(a, b models.Coordinate) float64 {
	const earthRadiusKm = 6371.0
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// DistanceMeters is DistanceKm scaled for callers that threshold in meters.
func DistanceMeters(a, b models.Coordinate) float64 {
	return DistanceKm(a, b) * 1000.0
}

// ETAMinutes converts a distance to travel minutes at the given speed.
// Non-positive speeds fall back to the urban profile.
func ETAMinutes(distanceKm, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = UrbanSpeedKmh
	}
	return distanceKm / speedKmh * 60.0
}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }

package geomath

import (
	"math"
	"testing"

	"github.com/example/instant-dispatch/internal/models"
)

func TestDistanceZero(t *testing.T) {
	d := DistanceKm(models.Coordinate{}, models.Coordinate{})
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceNairobiMombasa(t *testing.T) {
	nairobi := models.Coordinate{Lat: -1.2921, Lon: 36.8219}
	mombasa := models.Coordinate{Lat: -4.0435, Lon: 39.6682}
	d := DistanceKm(nairobi, mombasa)
	if math.Abs(d-440) > 5 {
		t.Fatalf("expected ~440 km, got %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := models.Coordinate{Lat: -1.2921, Lon: 36.8219}
	b := models.Coordinate{Lat: -0.0917, Lon: 34.7680}
	if d1, d2 := DistanceKm(a, b), DistanceKm(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
	}
}

func TestETAMinutes(t *testing.T) {
	if got := ETAMinutes(30, UrbanSpeedKmh); math.Abs(got-60) > 1e-9 {
		t.Fatalf("expected 60 minutes, got %f", got)
	}
	if got := ETAMinutes(60, HighwaySpeedKmh); math.Abs(got-60) > 1e-9 {
		t.Fatalf("expected 60 minutes, got %f", got)
	}
	// non-positive speed falls back to urban profile
	if got := ETAMinutes(30, 0); math.Abs(got-60) > 1e-9 {
		t.Fatalf("expected urban fallback, got %f", got)
	}
}

func TestSpeedFor(t *testing.T) {
	if SpeedFor(ProfileUrban) != UrbanSpeedKmh {
		t.Fatal("urban profile mismatch")
	}
	if SpeedFor(ProfileHighway) != HighwaySpeedKmh {
		t.Fatal("highway profile mismatch")
	}
}

package routecheck

import (
	"testing"

	"github.com/example/instant-dispatch/internal/models"
)

func trip(to string, pickup models.Coordinate) *models.ActiveTrip {
	return &models.ActiveTrip{
		ID:            "trip1",
		TransporterID: "x",
		Status:        models.TripInProgress,
		Route: models.RouteInfo{
			From: models.Location{Name: "Depot A", Coord: pickup},
			To:   models.Location{Name: to},
		},
	}
}

func route(to string, pickup models.Coordinate) models.RouteInfo {
	return models.RouteInfo{
		From: models.Location{Name: "Depot A", Coord: pickup},
		To:   models.Location{Name: to},
	}
}

var depotA = models.Coordinate{Lat: -1.2921, Lon: 36.8219}

func TestIdleTransporterIsAlwaysCompatible(t *testing.T) {
	d := Validate(nil, route("Anywhere", depotA))
	if d.Conflict != models.ConflictNone {
		t.Fatalf("expected none, got %s", d.Conflict)
	}
	if d.Message == "" {
		t.Fatal("decision must carry a message")
	}
}

func TestDestinationComparisonTrimsAndFoldsCase(t *testing.T) {
	d := Validate(trip("Nairobi CBD", depotA), route("Nairobi CBD ", depotA))
	if d.Conflict != models.ConflictNone {
		t.Fatalf("trailing space should not conflict, got %s", d.Conflict)
	}
	d = Validate(trip("NAIROBI cbd", depotA), route("nairobi CBD", depotA))
	if d.Conflict != models.ConflictNone {
		t.Fatalf("case difference should not conflict, got %s", d.Conflict)
	}
}

func TestDifferentDestinationAlwaysConflicts(t *testing.T) {
	d := Validate(trip("Market Z", depotA), route("Shop Q", depotA))
	if d.Conflict != models.ConflictDifferentDestination {
		t.Fatalf("expected different_destination, got %s", d.Conflict)
	}
	if d.SuggestedAction == "" {
		t.Fatal("blocking decision must carry a suggested action")
	}
}

func TestPickupGapThreshold(t *testing.T) {
	// ~40 km north of depot A: compatible
	near := models.Coordinate{Lat: depotA.Lat + 0.36, Lon: depotA.Lon}
	d := Validate(trip("Market Z", depotA), route("Market Z", near))
	if d.Conflict != models.ConflictNone {
		t.Fatalf("40 km gap should be compatible, got %s", d.Conflict)
	}

	// ~60 km north: mismatch
	far := models.Coordinate{Lat: depotA.Lat + 0.54, Lon: depotA.Lon}
	d = Validate(trip("Market Z", depotA), route("Market Z", far))
	if d.Conflict != models.ConflictRouteMismatch {
		t.Fatalf("60 km gap should mismatch, got %s", d.Conflict)
	}
	if d.SuggestedAction == "" {
		t.Fatal("blocking decision must carry a suggested action")
	}
}

func TestMissingCoordinatesFallBackToCompatible(t *testing.T) {
	d := Validate(trip("Market Z", models.Coordinate{}), route("Market Z", depotA))
	if d.Conflict != models.ConflictNone {
		t.Fatalf("missing current pickup coords should be permissive, got %s", d.Conflict)
	}
	d = Validate(trip("Market Z", depotA), route("Market Z", models.Coordinate{}))
	if d.Conflict != models.ConflictNone {
		t.Fatalf("missing candidate pickup coords should be permissive, got %s", d.Conflict)
	}
}

func TestSameDepotScenario(t *testing.T) {
	current := trip("Market Z", depotA)
	if d := Validate(current, route("Market Z", depotA)); d.Conflict != models.ConflictNone {
		t.Fatalf("same depot, same market: expected none, got %s", d.Conflict)
	}
	if d := Validate(current, route("Shop Q", depotA)); d.Conflict != models.ConflictDifferentDestination {
		t.Fatalf("same depot, different shop: expected different_destination, got %s", d.Conflict)
	}
}

package models

import (
	"testing"
	"time"
)

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		ok       bool
	}{
		{RequestPending, RequestAccepted, true},
		{RequestPending, RequestRejected, true},
		{RequestPending, RequestExpired, true},
		{RequestPending, RequestCancelled, true},
		{RequestAccepted, RequestPending, false},
		{RequestAccepted, RequestRejected, false},
		{RequestExpired, RequestCancelled, false},
		{RequestPending, RequestPending, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	r := &InstantRequest{ID: "req1", Status: RequestAccepted}
	if err := r.Transition(RequestPending); err == nil {
		t.Fatal("expected error reverting accepted to pending")
	}
	if r.Status != RequestAccepted {
		t.Fatalf("status mutated on illegal transition: %s", r.Status)
	}
}

func TestPayloadValidate(t *testing.T) {
	p := RequestPayload{
		Pickup:   Location{Name: "Depot A", Coord: Coordinate{Lat: -1.29, Lon: 36.82}},
		Delivery: Location{Name: "Market Z", Coord: Coordinate{Lat: -1.30, Lon: 36.90}},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	p.Delivery.Coord = Coordinate{}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for zero delivery coordinates")
	}
}

func TestTrafficAlertExpired(t *testing.T) {
	now := time.Now()
	a := TrafficAlert{ExpiresAt: now.Add(time.Minute)}
	if a.Expired(now) {
		t.Fatal("alert should not be expired yet")
	}
	if !a.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("alert should be expired")
	}
}

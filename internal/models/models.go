package models

import (
	"errors"
	"time"
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Zero reports whether the coordinate is the unset (0,0) value. Real
// shipments never originate at null island, so (0,0) doubles as "missing".
func (c Coordinate) Zero() bool { return c.Lat == 0 && c.Lon == 0 }

// Location is a named point on the map, e.g. {"Depot A", (-1.29, 36.82)}.
type Location struct {
	Name  string     `json:"name"`
	Coord Coordinate `json:"coord"`
}

// RouteInfo is the planned route of a trip. Immutable once the trip starts;
// deviation detection compares against it.
type RouteInfo struct {
	From      Location   `json:"from"`
	To        Location   `json:"to"`
	Waypoints []Location `json:"waypoints,omitempty"`
}

type Cargo struct {
	Description string  `json:"description"`
	WeightKg    float64 `json:"weight_kg"`
	Urgent      bool    `json:"urgent"`
}

// RequestPayload is everything the shipper supplies when asking for an
// instant dispatch. Validated at construction, not deep in business logic.
type RequestPayload struct {
	Pickup   Location `json:"pickup"`
	Delivery Location `json:"delivery"`
	Cargo    Cargo    `json:"cargo"`
}

var ErrInvalidPayload = errors.New("payload missing pickup or delivery coordinates")

func (p RequestPayload) Validate() error {
	if p.Pickup.Coord.Zero() || p.Delivery.Coord.Zero() {
		return ErrInvalidPayload
	}
	return nil
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status ends the request's lifecycle.
func (s RequestStatus) Terminal() bool { return s != RequestPending }

// CanTransitionTo encodes the only legal edges: pending to any terminal
// status. Everything else is frozen.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return s == RequestPending && next.Terminal()
}

var ErrIllegalTransition = errors.New("illegal request status transition")

// InstantRequest is a time-bounded urgent match offer from one requester to
// one transporter.
type InstantRequest struct {
	ID            string         `json:"id"`
	RequesterID   string         `json:"requester_id"`
	TransporterID string         `json:"transporter_id"`
	Payload       RequestPayload `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Status        RequestStatus  `json:"status"`
}

// Transition moves the request to next, enforcing the legal edges.
func (r *InstantRequest) Transition(next RequestStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return ErrIllegalTransition
	}
	r.Status = next
	return nil
}

type TripStatus string

const (
	TripAccepted   TripStatus = "accepted"
	TripInProgress TripStatus = "in_progress"
	TripPickedUp   TripStatus = "picked_up"
	TripInTransit  TripStatus = "in_transit"
	TripDelivered  TripStatus = "delivered"
)

func (s TripStatus) Terminal() bool { return s == TripDelivered }

// ActiveTrip is the transporter's current committed job. At most one
// non-terminal ActiveTrip exists per transporter at any time.
type ActiveTrip struct {
	ID              string      `json:"id"`
	TransporterID   string      `json:"transporter_id"`
	Status          TripStatus  `json:"status"`
	Route           RouteInfo   `json:"route"`
	CurrentLocation *Coordinate `json:"current_location,omitempty"`
}

type Vehicle struct {
	Type       string  `json:"type"`
	Plate      string  `json:"plate"`
	CapacityKg float64 `json:"capacity_kg"`
}

type Transporter struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Vehicle   Vehicle    `json:"vehicle"`
	Loc       Coordinate `json:"loc"`
	Available bool       `json:"available"`
	Updated   time.Time  `json:"updated"`
}

// TransporterCandidate is a ranked match produced fresh per query,
// never persisted.
type TransporterCandidate struct {
	Transporter             Transporter `json:"transporter"`
	DistanceToPickupKm      float64     `json:"distance_to_pickup_km"`
	EstimatedArrivalMinutes float64     `json:"estimated_arrival_minutes"`
}

type DeviationReason string

const (
	DeviationTraffic   DeviationReason = "traffic"
	DeviationRoadBlock DeviationReason = "road_block"
	DeviationWeather   DeviationReason = "weather"
	DeviationDetour    DeviationReason = "detour"
	DeviationUnknown   DeviationReason = "unknown"
)

type DeviationSeverity string

const (
	DeviationMinor DeviationSeverity = "minor"
	DeviationMajor DeviationSeverity = "major"
)

// RouteDeviation records a measured divergence between the planned and
// actual path. Append-only, never mutated after creation.
type RouteDeviation struct {
	TripID            string            `json:"trip_id"`
	Timestamp         time.Time         `json:"timestamp"`
	OriginalRoute     RouteInfo         `json:"original_route"`
	ActualRoute       []Coordinate      `json:"actual_route"`
	DeviationMeters   float64           `json:"deviation_meters"`
	Reason            DeviationReason   `json:"reason"`
	Severity          DeviationSeverity `json:"severity"`
	AlternativeRoutes []RouteInfo       `json:"alternative_routes,omitempty"`
}

type TrafficAlert struct {
	ID                       string      `json:"id"`
	Type                     string      `json:"type"`
	Severity                 string      `json:"severity"`
	Location                 Location    `json:"location"`
	RadiusKm                 float64     `json:"radius_km"`
	EstimatedDurationMinutes float64     `json:"estimated_duration_minutes"`
	AlternativeRoutes        []RouteInfo `json:"alternative_routes,omitempty"`
	CreatedAt                time.Time   `json:"created_at"`
	ExpiresAt                time.Time   `json:"expires_at"`
}

// Expired reports whether the alert is void at the given instant.
func (a TrafficAlert) Expired(now time.Time) bool { return now.After(a.ExpiresAt) }

type Conflict string

const (
	ConflictNone                 Conflict = "none"
	ConflictDifferentDestination Conflict = "different_destination"
	ConflictRouteMismatch        Conflict = "route_mismatch"
)

// ConflictDecision is a first-class decision output, not an error; callers
// branch on Conflict and surface Message/SuggestedAction to the user.
type ConflictDecision struct {
	Conflict        Conflict `json:"conflict"`
	Message         string   `json:"message"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
}

// Blocking reports whether the decision forbids taking the new job.
func (d ConflictDecision) Blocking() bool { return d.Conflict != ConflictNone }

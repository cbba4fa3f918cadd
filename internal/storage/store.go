package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/instant-dispatch/internal/models"
)

// RequestStore persists instant requests. Absence is routine, so reads
// report it with a bool rather than an error.
type RequestStore interface {
	SaveRequest(ctx context.Context, r *models.InstantRequest) error
	GetRequest(ctx context.Context, id string) (*models.InstantRequest, bool, error)
	UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error
	ListRequestsByStatus(ctx context.Context, status models.RequestStatus) ([]models.InstantRequest, error)
}

// TripStore persists active trips plus the tracking side artifacts: the
// transporter's latest position, appended deviations, and traffic alerts.
type TripStore interface {
	SaveTrip(ctx context.Context, t *models.ActiveTrip) error
	GetTrip(ctx context.Context, id string) (*models.ActiveTrip, bool, error)
	UpdateTripLocation(ctx context.Context, id string, loc models.Coordinate) error
	AppendDeviation(ctx context.Context, d models.RouteDeviation) error
	DeviationsSince(ctx context.Context, tripID string, since time.Time) ([]models.RouteDeviation, error)
	SaveAlert(ctx context.Context, a models.TrafficAlert) error
	ActiveAlerts(ctx context.Context, now time.Time) ([]models.TrafficAlert, error)
}

// MemoryStore backs tests and single-node runs.
type MemoryStore struct {
	mu         sync.RWMutex
	requests   map[string]models.InstantRequest
	trips      map[string]models.ActiveTrip
	deviations map[string][]models.RouteDeviation
	alerts     []models.TrafficAlert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:   make(map[string]models.InstantRequest),
		trips:      make(map[string]models.ActiveTrip),
		deviations: make(map[string][]models.RouteDeviation),
	}
}

func (m *MemoryStore) SaveRequest(_ context.Context, r *models.InstantRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id string) (*models.InstantRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, false, nil
	}
	cp := r
	return &cp, true, nil
}

func (m *MemoryStore) UpdateRequestStatus(_ context.Context, id string, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil
	}
	if err := r.Transition(status); err != nil {
		return err
	}
	m.requests[id] = r
	return nil
}

func (m *MemoryStore) ListRequestsByStatus(_ context.Context, status models.RequestStatus) ([]models.InstantRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.InstantRequest
	for _, r := range m.requests {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveTrip(_ context.Context, t *models.ActiveTrip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTrip(_ context.Context, id string) (*models.ActiveTrip, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, false, nil
	}
	cp := t
	return &cp, true, nil
}

func (m *MemoryStore) UpdateTripLocation(_ context.Context, id string, loc models.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil
	}
	t.CurrentLocation = &loc
	m.trips[id] = t
	return nil
}

func (m *MemoryStore) AppendDeviation(_ context.Context, d models.RouteDeviation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviations[d.TripID] = append(m.deviations[d.TripID], d)
	return nil
}

func (m *MemoryStore) DeviationsSince(_ context.Context, tripID string, since time.Time) ([]models.RouteDeviation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RouteDeviation
	for _, d := range m.deviations[tripID] {
		if d.Timestamp.After(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveAlert(_ context.Context, a models.TrafficAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *MemoryStore) ActiveAlerts(_ context.Context, now time.Time) ([]models.TrafficAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.TrafficAlert
	for _, a := range m.alerts {
		if !a.Expired(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

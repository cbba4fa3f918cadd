package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/instant-dispatch/internal/geomath"
	"github.com/example/instant-dispatch/internal/models"
	"github.com/example/instant-dispatch/internal/notify"
	"github.com/example/instant-dispatch/internal/observability"
	"github.com/example/instant-dispatch/internal/scheduler"
	"github.com/example/instant-dispatch/internal/storage"
)

// PollInterval is the tracking tick period.
const PollInterval = 30 * time.Second

// Monitor watches accepted trips: it refreshes the transporter's location,
// surfaces route deviations, checks traffic alerts along the route, and
// recomputes the arrival estimate on every tick.
type Monitor struct {
	Store   storage.TripStore
	Gateway notify.Gateway
	Sched   *scheduler.Scheduler
	Logger  *slog.Logger
	Profile geomath.SpeedProfile

	// Poll and Now are overridable for tests.
	Poll time.Duration
	Now  func() time.Time

	mu    sync.Mutex
	state map[string]*tripState
	hub   *hub
}

type tripState struct {
	ownerID       string
	lastDeviation time.Time
}

func NewMonitor(store storage.TripStore, gateway notify.Gateway, sched *scheduler.Scheduler, logger *slog.Logger) *Monitor {
	return &Monitor{
		Store:   store,
		Gateway: gateway,
		Sched:   sched,
		Logger:  logger,
		state:   make(map[string]*tripState),
		hub:     newHub(),
	}
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Monitor) poll() time.Duration {
	if m.Poll > 0 {
		return m.Poll
	}
	return PollInterval
}

// StartTracking registers the periodic task for a trip. Returns false when
// the trip is already tracked.
func (m *Monitor) StartTracking(tripID, ownerID string) bool {
	m.mu.Lock()
	if _, tracked := m.state[tripID]; tracked {
		m.mu.Unlock()
		return false
	}
	m.state[tripID] = &tripState{ownerID: ownerID, lastDeviation: m.now()}
	m.mu.Unlock()

	if !m.Sched.Start(taskID(tripID), m.poll(), func(ctx context.Context) { m.tick(ctx, tripID) }) {
		m.mu.Lock()
		delete(m.state, tripID)
		m.mu.Unlock()
		return false
	}
	m.Logger.Info("tracking started", "trip_id", tripID, "owner_id", ownerID)
	return true
}

// StopTracking cancels the periodic task and closes the trip's subscriber
// channels. Safe to call when nothing is running.
func (m *Monitor) StopTracking(tripID string) {
	stopped := m.Sched.Stop(taskID(tripID))
	m.mu.Lock()
	_, tracked := m.state[tripID]
	delete(m.state, tripID)
	m.mu.Unlock()
	m.hub.closeTrip(tripID)
	if stopped || tracked {
		m.Logger.Info("tracking stopped", "trip_id", tripID)
	}
}

// Subscribe streams the trip's location updates. The returned unsubscribe
// func is safe to call after StopTracking already closed the channel.
func (m *Monitor) Subscribe(tripID string) (<-chan models.Coordinate, func()) {
	return m.hub.subscribe(tripID)
}

// Subscribers reports how many live subscriptions a trip has.
func (m *Monitor) Subscribers(tripID string) int {
	return m.hub.count(tripID)
}

// tick performs the three per-period checks. A failure in one check is
// logged and skipped; the others still run and the task stays alive, so
// the next tick is the retry.
func (m *Monitor) tick(ctx context.Context, tripID string) {
	observability.MonitorTicks.WithLabelValues("trip").Inc()

	m.mu.Lock()
	st, tracked := m.state[tripID]
	m.mu.Unlock()
	if !tracked {
		// stale tick racing StopTracking; discard
		return
	}

	trip, ok, err := m.Store.GetTrip(ctx, tripID)
	if err != nil {
		observability.TickErrors.WithLabelValues("trip").Inc()
		m.Logger.Warn("trip fetch failed", "trip_id", tripID, "error", err)
		return
	}
	if !ok || trip.Status.Terminal() {
		m.StopTracking(tripID)
		return
	}

	m.refreshLocation(ctx, trip, st.ownerID)
	m.checkDeviations(ctx, trip, st)
	m.checkTrafficAlerts(ctx, trip, st.ownerID)
}

func (m *Monitor) refreshLocation(ctx context.Context, trip *models.ActiveTrip, ownerID string) {
	if trip.CurrentLocation == nil {
		return
	}
	loc := *trip.CurrentLocation
	m.hub.publish(trip.ID, loc)

	remainingKm := geomath.DistanceKm(loc, trip.Route.To.Coord)
	etaMin := geomath.ETAMinutes(remainingKm, geomath.SpeedFor(m.Profile))
	if err := m.Gateway.Send(ctx, notify.Message{
		To:      ownerID,
		Channel: notify.ChannelInApp,
		Type:    "trip_location_update",
		Message: fmt.Sprintf("Transporter is %.1f km from %s, about %.0f minutes out.", remainingKm, trip.Route.To.Name, etaMin),
		Data: map[string]any{
			"trip_id":      trip.ID,
			"location":     loc,
			"remaining_km": remainingKm,
			"eta_minutes":  etaMin,
		},
	}); err != nil {
		m.Logger.Warn("location notification failed", "trip_id", trip.ID, "error", err)
	}
}

func (m *Monitor) checkDeviations(ctx context.Context, trip *models.ActiveTrip, st *tripState) {
	devs, err := m.Store.DeviationsSince(ctx, trip.ID, st.lastDeviation)
	if err != nil {
		observability.TickErrors.WithLabelValues("trip").Inc()
		m.Logger.Warn("deviation fetch failed", "trip_id", trip.ID, "error", err)
		return
	}
	for _, d := range devs {
		observability.DeviationsDetected.Inc()
		// alternative-route detail stays on the transporter side; the
		// owner only gets the human explanation
		if err := m.Gateway.Send(ctx, notify.Message{
			To:      st.ownerID,
			Channel: notify.ChannelInApp,
			Type:    "trip_route_deviation",
			Message: deviationCopy(d.Reason),
			Data: map[string]any{
				"trip_id":  trip.ID,
				"severity": string(d.Severity),
			},
		}); err != nil {
			m.Logger.Warn("deviation notification failed", "trip_id", trip.ID, "error", err)
		}
		if d.Timestamp.After(st.lastDeviation) {
			st.lastDeviation = d.Timestamp
		}
	}
}

func (m *Monitor) checkTrafficAlerts(ctx context.Context, trip *models.ActiveTrip, ownerID string) {
	alerts, err := m.Store.ActiveAlerts(ctx, m.now())
	if err != nil {
		observability.TickErrors.WithLabelValues("trip").Inc()
		m.Logger.Warn("traffic alert fetch failed", "trip_id", trip.ID, "error", err)
		return
	}
	for _, a := range alerts {
		if !alertIntersectsRoute(a, trip) {
			continue
		}
		if err := m.Gateway.Send(ctx, notify.Message{
			To:      ownerID,
			Channel: notify.ChannelInApp,
			Type:    "trip_traffic_alert",
			Message: fmt.Sprintf("%s reported near %s (%s severity), expect around %.0f minutes of delay.",
				a.Type, a.Location.Name, a.Severity, a.EstimatedDurationMinutes),
			Data: map[string]any{
				"trip_id":  trip.ID,
				"alert_id": a.ID,
				"type":     a.Type,
				"severity": a.Severity,
				"location": a.Location,
			},
		}); err != nil {
			m.Logger.Warn("traffic notification failed", "trip_id", trip.ID, "error", err)
		}
	}
}

// alertIntersectsRoute checks the alert's radius against the route's fixed
// points and the transporter's current position.
func alertIntersectsRoute(a models.TrafficAlert, trip *models.ActiveTrip) bool {
	points := []models.Coordinate{trip.Route.From.Coord, trip.Route.To.Coord}
	for _, w := range trip.Route.Waypoints {
		points = append(points, w.Coord)
	}
	if trip.CurrentLocation != nil {
		points = append(points, *trip.CurrentLocation)
	}
	for _, p := range points {
		if p.Zero() {
			continue
		}
		if geomath.DistanceKm(a.Location.Coord, p) <= a.RadiusKm {
			return true
		}
	}
	return false
}

// deviationCopy maps a technical reason code to the explanation the trip
// owner sees.
func deviationCopy(reason models.DeviationReason) string {
	switch reason {
	case models.DeviationTraffic:
		return "Your transporter is taking an alternative route to avoid heavy traffic."
	case models.DeviationRoadBlock:
		return "Your transporter is rerouting around a road closure."
	case models.DeviationWeather:
		return "Your transporter adjusted the route due to weather conditions."
	case models.DeviationDetour:
		return "Your transporter is on a short detour and will rejoin the planned route."
	default:
		return "Your transporter's route has changed; delivery is still on the way."
	}
}

func taskID(tripID string) string { return "trip:" + tripID }

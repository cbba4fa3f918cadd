package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/instant-dispatch/internal/auth"
	"github.com/example/instant-dispatch/internal/matcher"
	"github.com/example/instant-dispatch/internal/models"
	"github.com/example/instant-dispatch/internal/notify"
	"github.com/example/instant-dispatch/internal/observability"
	"github.com/example/instant-dispatch/internal/scheduler"
	"github.com/example/instant-dispatch/internal/storage"
)

// Policy constants. Expiry is enforced inside the monitor tick, so expiry
// detection trails the deadline by up to one PollInterval. That slack is
// intentional, bounded latency, not a bug.
const (
	RequestTTL   = 300 * time.Second
	PollInterval = 30 * time.Second
)

var (
	ErrNotFound      = errors.New("instant request not found")
	ErrNotOwner      = errors.New("only the original requester may cancel")
	ErrAlreadyClosed = errors.New("instant request already reached a terminal status")
	ErrNoCandidates  = errors.New("no transporter candidates available")
)

// Tracker starts live monitoring for a trip. Satisfied by
// tracking.Monitor.
type Tracker interface {
	StartTracking(tripID, ownerID string) bool
}

// Service owns the lifecycle of instant requests: creation, candidate
// offer, response monitoring, expiry, cancellation, and on acceptance the
// handoff of the new trip to the tracker.
type Service struct {
	Store   storage.RequestStore
	Trips   storage.TripStore
	Matcher *matcher.Service
	Gateway notify.Gateway
	Tracker Tracker
	Sched   *scheduler.Scheduler
	Logger  *slog.Logger

	// TTL and Poll default to the policy constants when zero.
	TTL  time.Duration
	Poll time.Duration

	// Now is an injectable clock for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return RequestTTL
}

func (s *Service) poll() time.Duration {
	if s.Poll > 0 {
		return s.Poll
	}
	return PollInterval
}

// Dispatch ranks candidates for the payload and creates an instant request
// offered to the best one.
func (s *Service) Dispatch(ctx context.Context, payload models.RequestPayload, maxDistanceKm float64) (*models.InstantRequest, error) {
	cands, err := s.Matcher.FindCandidates(ctx, payload.Pickup, payload.Delivery, payload.Cargo, maxDistanceKm)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}
	return s.Create(ctx, cands[0].Transporter, payload)
}

// Create builds a pending request for the given candidate transporter,
// persists it, notifies the candidate, and registers exactly one monitor
// task keyed by the request id.
func (s *Service) Create(ctx context.Context, candidate models.Transporter, payload models.RequestPayload) (*models.InstantRequest, error) {
	identity, err := auth.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	req := &models.InstantRequest{
		ID:            newID(),
		RequesterID:   identity.UserID,
		TransporterID: candidate.ID,
		Payload:       payload,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl()),
		Status:        models.RequestPending,
	}
	if err := s.Store.SaveRequest(ctx, req); err != nil {
		return nil, err
	}

	s.offerToCandidate(ctx, req, candidate)

	if !s.Sched.Start(taskID(req.ID), s.poll(), func(tctx context.Context) { s.monitorTick(tctx, req.ID) }) {
		return nil, fmt.Errorf("monitor already registered for request %s", req.ID)
	}
	observability.RequestsCreated.Inc()
	s.Logger.Info("instant request created",
		"request_id", req.ID,
		"requester_id", req.RequesterID,
		"transporter_id", candidate.ID,
		"expires_at", req.ExpiresAt,
	)
	return req, nil
}

func (s *Service) offerToCandidate(ctx context.Context, req *models.InstantRequest, candidate models.Transporter) {
	body := fmt.Sprintf("Urgent job: %s to %s. Respond within %d minutes.",
		req.Payload.Pickup.Name, req.Payload.Delivery.Name, int(s.ttl().Minutes()))
	data := map[string]any{
		"request_id": req.ID,
		"pickup":     req.Payload.Pickup,
		"delivery":   req.Payload.Delivery,
		"cargo":      req.Payload.Cargo,
	}
	channels := []notify.Channel{notify.ChannelPush, notify.ChannelInApp}
	if candidate.Phone != "" {
		channels = append(channels, notify.ChannelSMS)
	}
	for _, ch := range channels {
		if err := s.Gateway.Send(ctx, notify.Message{
			To:      candidate.ID,
			Channel: ch,
			Type:    "instant_request_offer",
			Message: body,
			Data:    data,
		}); err != nil {
			s.Logger.Warn("offer notification failed", "request_id", req.ID, "channel", string(ch), "error", err)
		}
	}
}

// monitorTick runs every poll period while the request is pending. Any
// single failure is logged and skipped; the next tick is the retry.
func (s *Service) monitorTick(ctx context.Context, requestID string) {
	observability.MonitorTicks.WithLabelValues("request").Inc()

	req, ok, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		observability.TickErrors.WithLabelValues("request").Inc()
		s.Logger.Warn("request poll failed", "request_id", requestID, "error", err)
		return
	}
	if !ok {
		// request vanished from the store; nothing left to monitor
		s.Sched.Stop(taskID(requestID))
		return
	}
	if req.Status != models.RequestPending {
		s.closeOut(ctx, req, req.Status)
		return
	}

	if s.now().After(req.ExpiresAt) {
		if err := s.Store.UpdateRequestStatus(ctx, requestID, models.RequestExpired); err != nil {
			if errors.Is(err, models.ErrIllegalTransition) {
				// a concurrent accept or cancel won; next tick observes it
				return
			}
			observability.TickErrors.WithLabelValues("request").Inc()
			s.Logger.Warn("expiry update failed", "request_id", requestID, "error", err)
			return
		}
		s.closeOut(ctx, req, models.RequestExpired)
	}
}

// closeOut notifies the requester with status-specific copy and retires the
// monitor task. Acceptance additionally hands the new trip over to the
// tracker.
func (s *Service) closeOut(ctx context.Context, req *models.InstantRequest, status models.RequestStatus) {
	if err := s.Gateway.Send(ctx, notify.Message{
		To:      req.RequesterID,
		Channel: notify.ChannelInApp,
		Type:    "instant_request_" + string(status),
		Message: statusCopy(status),
		Data:    map[string]any{"request_id": req.ID, "status": string(status)},
	}); err != nil {
		s.Logger.Warn("status notification failed", "request_id", req.ID, "error", err)
	}
	if status == models.RequestAccepted {
		s.startTrip(ctx, req)
	}
	observability.RequestsClosed.WithLabelValues(string(status)).Inc()
	s.Sched.Stop(taskID(req.ID))
	s.Logger.Info("instant request closed", "request_id", req.ID, "status", string(status))
}

// startTrip persists the accepted request as an active trip and puts it
// under live tracking, owned by the requester.
func (s *Service) startTrip(ctx context.Context, req *models.InstantRequest) {
	trip := &models.ActiveTrip{
		ID:            newID(),
		TransporterID: req.TransporterID,
		Status:        models.TripAccepted,
		Route: models.RouteInfo{
			From: req.Payload.Pickup,
			To:   req.Payload.Delivery,
		},
	}
	if err := s.Trips.SaveTrip(ctx, trip); err != nil {
		s.Logger.Error("trip save failed", "request_id", req.ID, "trip_id", trip.ID, "error", err)
		return
	}
	if !s.Tracker.StartTracking(trip.ID, req.RequesterID) {
		s.Logger.Warn("trip already under tracking", "trip_id", trip.ID)
		return
	}
	s.Logger.Info("trip started",
		"request_id", req.ID,
		"trip_id", trip.ID,
		"transporter_id", req.TransporterID,
		"owner_id", req.RequesterID,
	)
}

func statusCopy(status models.RequestStatus) string {
	switch status {
	case models.RequestAccepted:
		return "Good news: a transporter accepted your request and is on the way."
	case models.RequestRejected:
		return "The transporter declined your request. We're looking for alternatives."
	case models.RequestExpired:
		return "Your request expired without a response. Please try again."
	case models.RequestCancelled:
		return "Your request was cancelled."
	default:
		return "Your request status changed to " + string(status) + "."
	}
}

// Cancel transitions a pending request to cancelled. Only the original
// requester may cancel; everything else is a typed failure with the status
// left untouched.
func (s *Service) Cancel(ctx context.Context, requestID string) error {
	identity, err := auth.FromContext(ctx)
	if err != nil {
		return err
	}
	req, ok, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if req.RequesterID != identity.UserID {
		return ErrNotOwner
	}
	if req.Status.Terminal() {
		return ErrAlreadyClosed
	}
	if err := s.Store.UpdateRequestStatus(ctx, requestID, models.RequestCancelled); err != nil {
		return err
	}
	observability.RequestsClosed.WithLabelValues(string(models.RequestCancelled)).Inc()
	s.Sched.Stop(taskID(requestID))
	s.Logger.Info("instant request cancelled", "request_id", requestID, "requester_id", identity.UserID)
	return nil
}

// ListByStatus reads all requests in the given status, for ops surfaces.
func (s *Service) ListByStatus(ctx context.Context, status models.RequestStatus) ([]models.InstantRequest, error) {
	return s.Store.ListRequestsByStatus(ctx, status)
}

// Status reads the current request state for the thin API layer.
func (s *Service) Status(ctx context.Context, requestID string) (*models.InstantRequest, error) {
	req, ok, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return req, nil
}

func taskID(requestID string) string { return "request:" + requestID }

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

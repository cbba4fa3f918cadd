package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/instant-dispatch/internal/auth"
	"github.com/example/instant-dispatch/internal/directory"
	"github.com/example/instant-dispatch/internal/matcher"
	"github.com/example/instant-dispatch/internal/models"
	"github.com/example/instant-dispatch/internal/notify"
	"github.com/example/instant-dispatch/internal/scheduler"
	"github.com/example/instant-dispatch/internal/storage"
)

type recordingGateway struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (g *recordingGateway) Send(_ context.Context, msg notify.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.msgs = append(g.msgs, msg)
	return nil
}

func (g *recordingGateway) sent() []notify.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]notify.Message, len(g.msgs))
	copy(out, g.msgs)
	return out
}

func (g *recordingGateway) typed(typ string) []notify.Message {
	var out []notify.Message
	for _, m := range g.sent() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

type recordingTracker struct {
	mu      sync.Mutex
	tripID  string
	ownerID string
	calls   int
}

func (r *recordingTracker) StartTracking(tripID, ownerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tripID = tripID
	r.ownerID = ownerID
	r.calls++
	return true
}

func (r *recordingTracker) started() (string, string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tripID, r.ownerID, r.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testPayload() models.RequestPayload {
	return models.RequestPayload{
		Pickup:   models.Location{Name: "Depot A", Coord: models.Coordinate{Lat: -1.2921, Lon: 36.8219}},
		Delivery: models.Location{Name: "Market Z", Coord: models.Coordinate{Lat: -1.31, Lon: 36.90}},
		Cargo:    models.Cargo{Description: "produce", WeightKg: 120, Urgent: true},
	}
}

type env struct {
	svc     *Service
	store   *storage.MemoryStore
	gateway *recordingGateway
	tracker *recordingTracker
	sched   *scheduler.Scheduler
	clock   *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := storage.NewMemoryStore()
	gateway := &recordingGateway{}
	tracker := &recordingTracker{}
	sched := scheduler.New(nil)
	t.Cleanup(sched.StopAll)
	clock := &fakeClock{t: time.Now()}
	svc := &Service{
		Store:   store,
		Trips:   store,
		Gateway: gateway,
		Tracker: tracker,
		Sched:   sched,
		Logger:  slog.Default(),
		Poll:    5 * time.Millisecond,
		Now:     clock.Now,
	}
	return &env{svc: svc, store: store, gateway: gateway, tracker: tracker, sched: sched, clock: clock}
}

func authedCtx(userID string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: userID, Role: "shipper"})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCreateRequiresIdentity(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Create(context.Background(), models.Transporter{ID: "tr1"}, testPayload())
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestCreateBuildsPendingRequestWithTTL(t *testing.T) {
	e := newEnv(t)
	req, err := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1", Phone: "+254700000000"}, testPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != models.RequestPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if got := req.ExpiresAt.Sub(req.CreatedAt); got != RequestTTL {
		t.Fatalf("expected TTL %s, got %s", RequestTTL, got)
	}
	if !e.sched.Active("request:" + req.ID) {
		t.Fatal("monitor task not registered")
	}

	offers := e.gateway.typed("instant_request_offer")
	channels := map[notify.Channel]bool{}
	for _, m := range offers {
		if m.To != "tr1" {
			t.Fatalf("offer sent to wrong recipient: %s", m.To)
		}
		channels[m.Channel] = true
	}
	for _, ch := range []notify.Channel{notify.ChannelPush, notify.ChannelInApp, notify.ChannelSMS} {
		if !channels[ch] {
			t.Fatalf("missing offer on channel %s", ch)
		}
	}
}

func TestCreateSkipsSMSWithoutPhone(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload()); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, m := range e.gateway.typed("instant_request_offer") {
		if m.Channel == notify.ChannelSMS {
			t.Fatal("SMS offer sent despite missing phone number")
		}
	}
}

func TestMonitorDetectsAcceptance(t *testing.T) {
	e := newEnv(t)
	req, err := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// transporter accepts out of band, visible through the store
	if err := e.store.UpdateRequestStatus(context.Background(), req.ID, models.RequestAccepted); err != nil {
		t.Fatalf("update: %v", err)
	}
	waitFor(t, func() bool { return len(e.gateway.typed("instant_request_accepted")) > 0 },
		"requester never notified of acceptance")
	waitFor(t, func() bool { return !e.sched.Active("request:" + req.ID) },
		"monitor task not retired after acceptance")
	got := e.gateway.typed("instant_request_accepted")[0]
	if got.To != "u1" {
		t.Fatalf("acceptance notice sent to %s, want u1", got.To)
	}
}

func TestAcceptanceHandsTripToTracker(t *testing.T) {
	e := newEnv(t)
	req, err := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.store.UpdateRequestStatus(context.Background(), req.ID, models.RequestAccepted); err != nil {
		t.Fatalf("update: %v", err)
	}
	waitFor(t, func() bool { _, _, calls := e.tracker.started(); return calls > 0 },
		"acceptance never handed the trip to the tracker")

	tripID, ownerID, calls := e.tracker.started()
	if calls != 1 {
		t.Fatalf("expected exactly one tracking start, got %d", calls)
	}
	if ownerID != "u1" {
		t.Fatalf("trip owner is %s, want the requester u1", ownerID)
	}
	trip, ok, err := e.store.GetTrip(context.Background(), tripID)
	if err != nil || !ok {
		t.Fatalf("trip %s not persisted: ok=%v err=%v", tripID, ok, err)
	}
	if trip.TransporterID != "tr1" || trip.Status != models.TripAccepted {
		t.Fatalf("unexpected trip: %+v", trip)
	}
	p := testPayload()
	if trip.Route.From.Name != p.Pickup.Name || trip.Route.To.Name != p.Delivery.Name {
		t.Fatalf("trip route not built from the request payload: %+v", trip.Route)
	}
}

func TestExpiryDoesNotStartTrip(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload()); err != nil {
		t.Fatalf("create: %v", err)
	}
	e.clock.Advance(RequestTTL + time.Second)
	waitFor(t, func() bool { return len(e.gateway.typed("instant_request_expired")) > 0 },
		"requester never notified of expiry")
	if _, _, calls := e.tracker.started(); calls != 0 {
		t.Fatalf("expiry must not start tracking, got %d calls", calls)
	}
}

func TestMonitorExpiresPendingRequest(t *testing.T) {
	e := newEnv(t)
	req, err := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.clock.Advance(RequestTTL + time.Second)
	waitFor(t, func() bool { return len(e.gateway.typed("instant_request_expired")) > 0 },
		"requester never notified of expiry")
	got, _, _ := e.store.GetRequest(context.Background(), req.ID)
	if got.Status != models.RequestExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	waitFor(t, func() bool { return !e.sched.Active("request:" + req.ID) },
		"monitor task not retired after expiry")
}

func TestCancelHappyPath(t *testing.T) {
	e := newEnv(t)
	req, _ := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload())
	if err := e.svc.Cancel(authedCtx("u1"), req.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _, _ := e.store.GetRequest(context.Background(), req.ID)
	if got.Status != models.RequestCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if e.sched.Active("request:" + req.ID) {
		t.Fatal("monitor task still registered after cancel")
	}
}

func TestCancelRejectsNonOwner(t *testing.T) {
	e := newEnv(t)
	req, _ := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload())
	if err := e.svc.Cancel(authedCtx("intruder"), req.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	got, _, _ := e.store.GetRequest(context.Background(), req.ID)
	if got.Status != models.RequestPending {
		t.Fatalf("status changed on rejected cancel: %s", got.Status)
	}
}

func TestCancelUnknownAndTerminal(t *testing.T) {
	e := newEnv(t)
	if err := e.svc.Cancel(authedCtx("u1"), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	req, _ := e.svc.Create(authedCtx("u1"), models.Transporter{ID: "tr1"}, testPayload())
	_ = e.store.UpdateRequestStatus(context.Background(), req.ID, models.RequestRejected)
	if err := e.svc.Cancel(authedCtx("u1"), req.ID); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestDispatchPicksTopCandidate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	idx := directory.NewMemoryIndex()
	_ = idx.Upsert(ctx, models.Transporter{ID: "far", Loc: models.Coordinate{Lat: -1.40, Lon: 36.95}, Available: true})
	_ = idx.Upsert(ctx, models.Transporter{ID: "near", Loc: models.Coordinate{Lat: -1.2930, Lon: 36.8230}, Available: true})
	e.svc.Matcher = &matcher.Service{Directory: idx, Logger: slog.Default()}

	req, err := e.svc.Dispatch(authedCtx("u1"), testPayload(), 50)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if req.TransporterID != "near" {
		t.Fatalf("expected nearest transporter, got %s", req.TransporterID)
	}
}

func TestDispatchNoCandidates(t *testing.T) {
	e := newEnv(t)
	e.svc.Matcher = &matcher.Service{Directory: directory.NewMemoryIndex(), Logger: slog.Default()}
	if _, err := e.svc.Dispatch(authedCtx("u1"), testPayload(), 50); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

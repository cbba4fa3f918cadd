package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/instant-dispatch/internal/auth"
	"github.com/example/instant-dispatch/internal/directory"
	"github.com/example/instant-dispatch/internal/ingest"
	"github.com/example/instant-dispatch/internal/lifecycle"
	"github.com/example/instant-dispatch/internal/matcher"
	"github.com/example/instant-dispatch/internal/models"
	"github.com/example/instant-dispatch/internal/observability"
	"github.com/example/instant-dispatch/internal/routecheck"
	"github.com/example/instant-dispatch/internal/storage"
	"github.com/example/instant-dispatch/internal/tracking"
)

// Server is the thin controller layer over the dispatch engine. All
// decision logic lives in the injected services; handlers only decode,
// authorize, delegate, and encode.
type Server struct {
	Lifecycle *lifecycle.Service
	Monitor   *tracking.Monitor
	Trips     storage.TripStore
	Directory directory.Directory
	Kafka     *ingest.KafkaProducer

	logger      *slog.Logger
	jwtSecret   []byte
	maxRadiusKm float64
	mux         *mux.Router
}

type Options struct {
	Logger      *slog.Logger
	JWTSecret   string
	MaxRadiusKm float64
}

func NewServer(lc *lifecycle.Service, mon *tracking.Monitor, trips storage.TripStore, dir directory.Directory, kp *ingest.KafkaProducer, opts Options) *Server {
	s := &Server{
		Lifecycle:   lc,
		Monitor:     mon,
		Trips:       trips,
		Directory:   dir,
		Kafka:       kp,
		logger:      opts.Logger,
		jwtSecret:   []byte(opts.JWTSecret),
		maxRadiusKm: opts.MaxRadiusKm,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/instant-requests", s.handleCreateRequest).Methods("POST")
	api.HandleFunc("/instant-requests/{id}/status", s.handleRequestStatus).Methods("GET")
	api.HandleFunc("/instant-requests/{id}/cancel", s.handleCancelRequest).Methods("POST")
	api.HandleFunc("/trips/{id}/tracking", s.handleTripTracking).Methods("GET")
	api.HandleFunc("/trips/validate-route", s.handleValidateRoute).Methods("POST")

	s.mux.HandleFunc("/internal/transporter/locations", s.handleTransporterLocation).Methods("POST")
	s.mux.HandleFunc("/internal/instant-requests", s.handleListRequests).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/trips/{trip_id}", s.handleTripWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createRequestBody struct {
	TransporterID string                `json:"transporter_id,omitempty"`
	Payload       models.RequestPayload `json:"payload"`
	MaxDistanceKm float64               `json:"max_distance_km,omitempty"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	radius := body.MaxDistanceKm
	if radius <= 0 {
		radius = s.maxRadiusKm
	}

	var (
		req *models.InstantRequest
		err error
	)
	if body.TransporterID != "" {
		req, err = s.Lifecycle.Create(r.Context(), models.Transporter{ID: body.TransporterID}, body.Payload)
	} else {
		req, err = s.Lifecycle.Dispatch(r.Context(), body.Payload, radius)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	req, err := s.Lifecycle.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": req.ID,
		"status":     req.Status,
		"expires_at": req.ExpiresAt,
	})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.Lifecycle.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": models.RequestCancelled})
}

func (s *Server) handleTripTracking(w http.ResponseWriter, r *http.Request) {
	trip, ok, err := s.Trips.GetTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "trip not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

type validateRouteBody struct {
	TransporterID string           `json:"transporter_id"`
	TripID        string           `json:"trip_id,omitempty"`
	Candidate     models.RouteInfo `json:"candidate_route"`
}

// handleValidateRoute screens a new job offer against the transporter's
// active trip before the offer goes out.
func (s *Server) handleValidateRoute(w http.ResponseWriter, r *http.Request) {
	var body validateRouteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var current *models.ActiveTrip
	if body.TripID != "" {
		trip, ok, err := s.Trips.GetTrip(r.Context(), body.TripID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if ok && !trip.Status.Terminal() {
			current = trip
		}
	}
	writeJSON(w, http.StatusOK, routecheck.Validate(current, body.Candidate))
}

// handleListRequests is an ops surface: dump requests in a given status
// (default pending). Served off the internal mux, not the public API.
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	status := models.RequestStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.RequestPending
	}
	reqs, err := s.Lifecycle.ListByStatus(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "requests": reqs, "count": len(reqs)})
}

func (s *Server) handleTransporterLocation(w http.ResponseWriter, r *http.Request) {
	var t models.Transporter
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t.Available = true
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(t); err != nil {
			s.logger.Warn("location publish failed", "transporter_id", t.ID, "error", err)
		}
	}
	if err := s.Directory.Upsert(r.Context(), t); err != nil {
		s.logger.Warn("directory upsert failed", "transporter_id", t.ID, "error", err)
	}
	observability.TransportersOnline.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, lifecycle.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, lifecycle.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrAlreadyClosed), errors.Is(err, models.ErrIllegalTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lifecycle.ErrNoCandidates):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, matcher.ErrBadQuery), errors.Is(err, models.ErrInvalidPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "instant_dispatch", Name: "requests_created_total", Help: "Instant requests created"})
	RequestsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "instant_dispatch", Name: "requests_closed_total", Help: "Instant requests reaching a terminal status"},
		[]string{"status"},
	)
	CandidatesReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "instant_dispatch",
		Name:      "match_candidates_returned",
		Help:      "Candidates returned per matching query",
		Buckets:   []float64{0, 1, 2, 5, 10, 20},
	})
	MonitorTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "instant_dispatch", Name: "monitor_ticks_total", Help: "Periodic monitor ticks executed"},
		[]string{"kind"},
	)
	TickErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "instant_dispatch", Name: "monitor_tick_errors_total", Help: "Fetch failures swallowed inside monitor ticks"},
		[]string{"kind"},
	)
	DeviationsDetected = promauto.NewCounter(prometheus.CounterOpts{Namespace: "instant_dispatch", Name: "route_deviations_total", Help: "Route deviations surfaced to trip owners"})
	TransportersOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "instant_dispatch", Name: "transporters_online", Help: "Transporters with a recent location update"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "instant_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "instant_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

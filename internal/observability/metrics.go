package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "emergency_dispatch"

var (
	RequestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "requests_submitted_total", Help: "Total dispatch requests submitted"})
	RequestsCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "requests_cancelled_total", Help: "Total dispatch requests cancelled"})
	ActiveRequests    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "active_requests", Help: "Requests currently tracked"})
	Transitions       = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "status_transitions_total", Help: "Status changes by resulting state"},
		[]string{"state"},
	)
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "events_dropped_total", Help: "Status events dropped because the queue was full"})
	SinkErrors    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sink_errors_total", Help: "Failed status event deliveries by sink"},
		[]string{"sink"},
	)

	MatchesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Total number of ambulance assignments"})
	MatchLatency   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Assignment latency seconds"})
	VehicleUpdates = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "vehicle_location_updates_total", Help: "Fleet location updates received"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package venueapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts venue REST calls by operation and result.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_venueapi_requests_total",
		Help: "Total venue REST requests",
	}, []string{"venue", "op", "result"})

	// RequestDurationSeconds tracks venue REST latency.
	RequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crossvenue_arb_venueapi_request_duration_seconds",
		Help:    "Venue REST request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue", "op"})

	// BreakerState exposes the per-venue breaker state (0 closed, 0.5
	// half-open, 1 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crossvenue_arb_venueapi_breaker_state",
		Help: "Circuit breaker state per venue",
	}, []string{"venue"})
)

package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncsTotal counts market syncs by outcome.
	SyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_resolver_syncs_total",
		Help: "Total market sync runs",
	}, []string{"result"})

	// SyncDurationSeconds tracks sync latency.
	SyncDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossvenue_arb_resolver_sync_duration_seconds",
		Help:    "Duration of market sync runs",
		Buckets: prometheus.DefBuckets,
	})

	// MappingsTracked is the size of the published mapping index.
	MappingsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_resolver_mappings",
		Help: "Number of canonical mappings currently published",
	})

	// MappingsConfidence counts pairings by confidence bucket.
	MappingsConfidence = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_resolver_pairings_total",
		Help: "Total cross-venue pairings by confidence",
	}, []string{"confidence"})
)

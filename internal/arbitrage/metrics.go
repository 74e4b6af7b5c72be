package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesDetectedTotal counts emitted opportunities.
	OpportunitiesDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_opportunities_detected_total",
		Help: "Total arbitrage opportunities detected",
	})

	// OpportunitiesRejectedTotal counts rejected evaluations by reason.
	OpportunitiesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_opportunities_rejected_total",
		Help: "Total evaluations rejected before emission",
	}, []string{"reason"})

	// OpportunitiesSuppressedTotal counts emissions held back by the dedup
	// window.
	OpportunitiesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_opportunities_suppressed_total",
		Help: "Total opportunities suppressed as duplicates",
	})

	// OpportunityProfitPotential tracks per-contract profit at detection.
	OpportunityProfitPotential = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossvenue_arb_opportunity_profit_potential",
		Help:    "Per-contract profit potential of detected opportunities",
		Buckets: []float64{0.005, 0.01, 0.02, 0.03, 0.05, 0.1, 0.2},
	})

	// OpportunitySize tracks recommended sizes.
	OpportunitySize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossvenue_arb_opportunity_size",
		Help:    "Recommended size of detected opportunities",
		Buckets: prometheus.ExponentialBuckets(100, 2, 10),
	})

	// DetectionDurationSeconds tracks per-update detection latency.
	DetectionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossvenue_arb_detection_duration_seconds",
		Help:    "Duration of one detection pass",
		Buckets: prometheus.DefBuckets,
	})

	// StorageErrorsTotal counts failed opportunity writes.
	StorageErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_detector_storage_errors_total",
		Help: "Total failed opportunity persistence attempts",
	})
)

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	ListingHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_listing_cache_hits_total",
		Help: "Total listing cache hits by venue",
	}, []string{"venue"})

	ListingMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_listing_cache_misses_total",
		Help: "Total listing cache misses by venue",
	}, []string{"venue"})

	ListingSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_listing_cache_sets_total",
		Help: "Total listing cache stores by venue",
	}, []string{"venue"})
)

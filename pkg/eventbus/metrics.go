package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublishedTotal counts published events by type.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_bus_events_published_total",
		Help: "Total events published on the bus",
	}, []string{"type"})

	// EventsDroppedTotal counts events dropped at slow subscribers.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_bus_events_dropped_total",
		Help: "Total events dropped due to slow subscribers",
	}, []string{"type"})

	// SubscribersGauge is the current subscriber count.
	SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_bus_subscribers",
		Help: "Current number of bus subscribers",
	})
)

package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts book replacements per venue.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_orderbook_updates_total",
		Help: "Total order book updates applied",
	}, []string{"venue"})

	// UpdatesDroppedTotal counts fan-out notifications dropped on backlog.
	UpdatesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_orderbook_updates_dropped_total",
		Help: "Total update notifications dropped due to consumer backlog",
	})

	// BooksTracked tracks the number of (venue, market) books held.
	BooksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_orderbook_books_tracked",
		Help: "Number of order books currently tracked",
	})
)

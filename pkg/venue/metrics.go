package venue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks whether the stream to a venue is open.
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crossvenue_arb_venue_active_connections",
		Help: "Whether the stream to a venue is currently open (0 or 1)",
	}, []string{"venue"})

	// MessagesReceivedTotal counts frames received per venue.
	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_venue_messages_received_total",
		Help: "Total frames received from a venue stream",
	}, []string{"venue"})

	// MessagesDroppedTotal counts dropped frames by reason.
	MessagesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_venue_messages_dropped_total",
		Help: "Total frames dropped (malformed or consumer backlog)",
	}, []string{"venue", "reason"})

	// SubscriptionCount tracks the desired-subscription set size per venue.
	SubscriptionCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crossvenue_arb_venue_subscriptions",
		Help: "Current size of the desired-subscription set",
	}, []string{"venue"})

	// ReconnectAttemptsTotal counts reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_venue_reconnect_attempts_total",
		Help: "Total reconnection attempts across venues",
	})

	// ReconnectFailuresTotal counts failed reconnection attempts.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_venue_reconnect_failures_total",
		Help: "Total failed reconnection attempts across venues",
	})

	// AuthFailuresTotal counts rejected or timed-out auth handshakes.
	AuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_venue_auth_failures_total",
		Help: "Total failed venue auth handshakes",
	}, []string{"venue"})
)

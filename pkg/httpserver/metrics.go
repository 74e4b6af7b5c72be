package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamClientsConnected tracks live push-feed connections.
	StreamClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossvenue_arb_stream_clients_connected",
		Help: "Currently connected push-feed clients",
	})

	// StreamFramesSentTotal counts pushed frames by event type.
	StreamFramesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_stream_frames_sent_total",
		Help: "Total push-feed frames sent",
	}, []string{"type"})
)

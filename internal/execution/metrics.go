package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts completed executions by result.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_executions_total",
		Help: "Total two-leg executions by result",
	}, []string{"result"})

	// ExecutionDurationSeconds tracks end-to-end execution latency.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossvenue_arb_execution_duration_seconds",
		Help:    "Duration of one two-leg execution",
		Buckets: prometheus.DefBuckets,
	})

	// LegFailuresTotal counts failed leg placements by venue.
	LegFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_execution_leg_failures_total",
		Help: "Total failed order placements by venue",
	}, []string{"venue"})

	// CompensationCancelsTotal counts compensation cancels by venue and
	// result.
	CompensationCancelsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_execution_compensation_cancels_total",
		Help: "Total compensation cancels of surviving legs",
	}, []string{"venue", "result"})

	// TradesTotal counts trade status outcomes by venue.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_trades_total",
		Help: "Total trades by venue and status",
	}, []string{"venue", "status"})

	// ReconciledTradesTotal counts trades settled by reconciliation.
	ReconciledTradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossvenue_arb_reconciled_trades_total",
		Help: "Total pending trades settled by status reconciliation",
	}, []string{"status"})

	// ProfitCapturedTotal accumulates net profit of successful executions.
	ProfitCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossvenue_arb_profit_captured_total",
		Help: "Cumulative net profit of successful executions",
	})
)

package types

import "time"

// TradeStatus is the lifecycle state of one execution leg.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeFilled    TradeStatus = "filled"
	TradeCancelled TradeStatus = "cancelled"
	TradeFailed    TradeStatus = "failed"
)

// Trade is one leg of a two-leg arbitrage execution.
type Trade struct {
	ID            string      `json:"id"`
	OpportunityID string      `json:"opportunity_id,omitempty"`
	Venue         Venue       `json:"venue"`
	MarketID      string      `json:"market_id"`
	Side          Side        `json:"side"`
	Amount        float64     `json:"amount"`
	Price         float64     `json:"price"`
	OrderID       string      `json:"order_id,omitempty"`
	Status        TradeStatus `json:"status"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
}

// ExecutionResult is the outcome of executing one opportunity.
type ExecutionResult struct {
	OpportunityID string    `json:"opportunity_id"`
	Success       bool      `json:"success"`
	Trades        []*Trade  `json:"trades,omitempty"`
	Error         string    `json:"error,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
}

package storage

import (
	"context"

	"github.com/mselser95/crossvenue-arb/internal/arbitrage"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Storage is the persistence surface for mappings, opportunities, and
// trades.
type Storage interface {
	// SaveMapping inserts or updates a canonical market mapping.
	SaveMapping(ctx context.Context, m *types.CanonicalMarket) error

	// GetMappings returns every known mapping.
	GetMappings(ctx context.Context) ([]*types.CanonicalMarket, error)

	// SaveOpportunity stores a detected opportunity.
	SaveOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error

	// GetOpportunity returns one opportunity by id.
	GetOpportunity(ctx context.Context, id string) (*arbitrage.Opportunity, error)

	// GetOpportunities returns the most recent opportunities, newest first.
	GetOpportunities(ctx context.Context, limit int) ([]*arbitrage.Opportunity, error)

	// GetActiveOpportunities returns opportunities in detected status,
	// newest first.
	GetActiveOpportunities(ctx context.Context) ([]*arbitrage.Opportunity, error)

	// UpdateOpportunityStatus transitions an opportunity only when it is
	// currently in the expected status.
	UpdateOpportunityStatus(ctx context.Context, id string, from, to arbitrage.Status) error

	// SaveTrade stores one execution leg.
	SaveTrade(ctx context.Context, trade *types.Trade) error

	// UpdateTrade updates a trade's terminal fields.
	UpdateTrade(ctx context.Context, trade *types.Trade) error

	// GetTrades returns the most recent trades, newest first.
	GetTrades(ctx context.Context, limit int) ([]*types.Trade, error)

	// GetTradesByOpportunity returns every leg of one opportunity.
	GetTradesByOpportunity(ctx context.Context, opportunityID string) ([]*types.Trade, error)

	// GetPendingTrades returns trades still awaiting a terminal status.
	GetPendingTrades(ctx context.Context) ([]*types.Trade, error)

	// Close closes the storage connection.
	Close() error
}

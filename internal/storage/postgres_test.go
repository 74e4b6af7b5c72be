package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/arbitrage"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

func newMockStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return newWithDB(db, zap.NewNop()), mock
}

var opportunityRowColumns = []string{
	"id", "canonical_id",
	"venue_a_yes_price", "venue_a_no_price", "venue_b_yes_price", "venue_b_no_price",
	"venue_a_side", "venue_b_side", "venue_a_market_id", "venue_b_market_id",
	"combined_cost", "profit_potential", "liquidity_a", "liquidity_b",
	"recommended_size", "estimated_fees", "gross_profit", "net_profit",
	"status", "detected_at", "expires_at",
}

func opportunityRow(id string, detectedAt time.Time) []driver.Value {
	return []driver.Value{
		id, "btc-100k",
		0.45, 0.55, 0.50, 0.50,
		"YES", "NO", "a-1", "b-1",
		0.95, 0.05, 2000.0, 3000.0,
		2000.0, 80.0, 100.0, 20.0,
		"detected", detectedAt, nil,
	}
}

func TestSaveMapping(t *testing.T) {
	store, mock := newMockStorage(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mapping := &types.CanonicalMarket{
		CanonicalID:     "btc-100k",
		Title:           "Will BTC exceed $100k by Dec 31, 2024?",
		VenueAMarketID:  "a-1",
		VenueBMarketID:  "b-1",
		SimilarityScore: 0.97,
		Confidence:      types.ConfidenceHigh,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mock.ExpectExec(`INSERT INTO market_mappings`).
		WithArgs(
			mapping.CanonicalID,
			mapping.Title,
			mapping.VenueAMarketID,
			mapping.VenueBMarketID,
			mapping.SimilarityScore,
			"high",
			mapping.CreatedAt,
			mapping.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveMapping(context.Background(), mapping)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMappings(t *testing.T) {
	store, mock := newMockStorage(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"canonical_id", "title", "venue_a_market_id", "venue_b_market_id",
		"similarity_score", "confidence", "created_at", "updated_at",
	}).
		AddRow("btc-100k", "BTC above 100k", "a-1", "b-1", 0.97, "high", now, now).
		AddRow("fed-hike", "Fed rate hike", "a-2", "b-2", 0.88, "medium", now, now)

	mock.ExpectQuery(`SELECT .+ FROM market_mappings`).WillReturnRows(rows)

	mappings, err := store.GetMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	require.Equal(t, "btc-100k", mappings[0].CanonicalID)
	require.Equal(t, types.ConfidenceHigh, mappings[0].Confidence)
	require.Equal(t, types.ConfidenceMedium, mappings[1].Confidence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveOpportunity(t *testing.T) {
	store, mock := newMockStorage(t)

	opp := &arbitrage.Opportunity{
		ID:              "opp-1",
		CanonicalID:     "btc-100k",
		VenueAYesPrice:  0.45,
		VenueANoPrice:   0.55,
		VenueBYesPrice:  0.50,
		VenueBNoPrice:   0.50,
		VenueASide:      types.SideYes,
		VenueBSide:      types.SideNo,
		VenueAMarketID:  "a-1",
		VenueBMarketID:  "b-1",
		CombinedCost:    0.95,
		ProfitPotential: 0.05,
		LiquidityA:      2000,
		LiquidityB:      3000,
		RecommendedSize: 2000,
		EstimatedFees:   80,
		GrossProfit:     100,
		NetProfit:       20,
		Status:          arbitrage.StatusDetected,
		DetectedAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO opportunities`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveOpportunity(context.Background(), opp)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOpportunity(t *testing.T) {
	store, mock := newMockStorage(t)

	detectedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(opportunityRowColumns).
		AddRow(opportunityRow("opp-1", detectedAt)...)

	mock.ExpectQuery(`SELECT .+ FROM opportunities WHERE id = \$1`).
		WithArgs("opp-1").
		WillReturnRows(rows)

	opp, err := store.GetOpportunity(context.Background(), "opp-1")
	require.NoError(t, err)
	require.Equal(t, "opp-1", opp.ID)
	require.Equal(t, types.SideYes, opp.VenueASide)
	require.Equal(t, arbitrage.StatusDetected, opp.Status)
	require.Nil(t, opp.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOpportunity_NotFound(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery(`SELECT .+ FROM opportunities WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetOpportunity(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOpportunities(t *testing.T) {
	store, mock := newMockStorage(t)

	newer := time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC)
	older := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(opportunityRowColumns).
		AddRow(opportunityRow("opp-2", newer)...).
		AddRow(opportunityRow("opp-1", older)...)

	mock.ExpectQuery(`SELECT .+ FROM opportunities ORDER BY detected_at DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	opps, err := store.GetOpportunities(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, opps, 2)
	require.Equal(t, "opp-2", opps[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveOpportunities(t *testing.T) {
	store, mock := newMockStorage(t)

	rows := sqlmock.NewRows(opportunityRowColumns).
		AddRow(opportunityRow("opp-1", time.Now().UTC())...).
		AddRow(opportunityRow("opp-2", time.Now().UTC())...)

	// Active means detected or executing, and expiry (when set) in the
	// future; expired rows never leave the database.
	mock.ExpectQuery(`SELECT .+ FROM opportunities\s+WHERE status IN \(\$1, \$2\) AND \(expires_at IS NULL OR expires_at > NOW\(\)\)`).
		WithArgs("detected", "executing").
		WillReturnRows(rows)

	opps, err := store.GetActiveOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOpportunityStatus(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectExec(`UPDATE opportunities SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs("executing", "opp-1", "detected").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateOpportunityStatus(context.Background(), "opp-1",
		arbitrage.StatusDetected, arbitrage.StatusExecuting)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOpportunityStatus_Conflict(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectExec(`UPDATE opportunities SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs("executing", "opp-1", "detected").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateOpportunityStatus(context.Background(), "opp-1",
		arbitrage.StatusDetected, arbitrage.StatusExecuting)
	require.ErrorIs(t, err, ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTrade(t *testing.T) {
	store, mock := newMockStorage(t)

	trade := &types.Trade{
		ID:            "t-1",
		OpportunityID: "opp-1",
		Venue:         types.VenueA,
		MarketID:      "a-1",
		Side:          types.SideYes,
		Amount:        2000,
		Price:         0.45,
		Status:        types.TradePending,
	}

	mock.ExpectExec(`INSERT INTO trades`).
		WithArgs(
			trade.ID,
			trade.OpportunityID,
			string(trade.Venue),
			trade.MarketID,
			"YES",
			trade.Amount,
			trade.Price,
			"",
			"pending",
			sql.NullTime{},
			"",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveTrade(context.Background(), trade)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTrade(t *testing.T) {
	store, mock := newMockStorage(t)

	executedAt := time.Date(2024, 6, 1, 12, 0, 5, 0, time.UTC)
	trade := &types.Trade{
		ID:         "t-1",
		OrderID:    "ord-1",
		Status:     types.TradeFilled,
		ExecutedAt: &executedAt,
	}

	mock.ExpectExec(`UPDATE trades`).
		WithArgs(
			"ord-1",
			"filled",
			sql.NullTime{Time: executedAt, Valid: true},
			"",
			"t-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateTrade(context.Background(), trade)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPendingTrades(t *testing.T) {
	store, mock := newMockStorage(t)

	rows := sqlmock.NewRows([]string{
		"id", "opportunity_id", "venue", "market_id", "side", "amount", "price",
		"order_id", "status", "executed_at", "error_message",
	}).
		AddRow("t-1", "opp-1", "A", "a-1", "YES", 2000.0, 0.45, "ord-1", "pending", nil, "")

	mock.ExpectQuery(`SELECT .+ FROM trades WHERE status = \$1`).
		WithArgs("pending").
		WillReturnRows(rows)

	trades, err := store.GetPendingTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, types.TradePending, trades[0].Status)
	require.Nil(t, trades[0].ExecutedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTradesByOpportunity(t *testing.T) {
	store, mock := newMockStorage(t)

	executedAt := time.Date(2024, 6, 1, 12, 0, 5, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "opportunity_id", "venue", "market_id", "side", "amount", "price",
		"order_id", "status", "executed_at", "error_message",
	}).
		AddRow("t-1", "opp-1", "A", "a-1", "YES", 2000.0, 0.45, "ord-1", "filled", executedAt, "").
		AddRow("t-2", "opp-1", "B", "b-1", "NO", 2000.0, 0.50, "ord-2", "filled", executedAt, "")

	mock.ExpectQuery(`SELECT .+ FROM trades WHERE opportunity_id = \$1`).
		WithArgs("opp-1").
		WillReturnRows(rows)

	trades, err := store.GetTradesByOpportunity(context.Background(), "opp-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.Equal(t, types.VenueA, trades[0].Venue)
	require.NotNil(t, trades[0].ExecutedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusConflictIsDistinguishable(t *testing.T) {
	require.False(t, errors.Is(ErrStatusConflict, ErrNotFound))
}

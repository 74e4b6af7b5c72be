package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/arbitrage"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// ErrNotFound is returned for lookups of unknown rows.
var ErrNotFound = errors.New("not found")

// ErrStatusConflict is returned when a guarded status transition finds the
// row in a different status than expected.
var ErrStatusConflict = errors.New("opportunity status conflict")

// PostgresStorage implements Storage on PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	URL    string
	Logger *zap.Logger
}

// NewPostgresStorage opens a PostgreSQL connection and verifies it.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected")

	return &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// newWithDB wraps an existing connection; used by tests with sqlmock.
func newWithDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS market_mappings (
			canonical_id      TEXT PRIMARY KEY,
			title             TEXT NOT NULL,
			venue_a_market_id TEXT NOT NULL,
			venue_b_market_id TEXT NOT NULL,
			similarity_score  DOUBLE PRECISION NOT NULL,
			confidence        TEXT NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id                TEXT PRIMARY KEY,
			canonical_id      TEXT NOT NULL REFERENCES market_mappings(canonical_id),
			venue_a_yes_price DOUBLE PRECISION NOT NULL,
			venue_a_no_price  DOUBLE PRECISION NOT NULL,
			venue_b_yes_price DOUBLE PRECISION NOT NULL,
			venue_b_no_price  DOUBLE PRECISION NOT NULL,
			venue_a_side      TEXT NOT NULL,
			venue_b_side      TEXT NOT NULL,
			venue_a_market_id TEXT NOT NULL,
			venue_b_market_id TEXT NOT NULL,
			combined_cost     DOUBLE PRECISION NOT NULL CHECK (combined_cost >= 0 AND combined_cost <= 1),
			profit_potential  DOUBLE PRECISION NOT NULL,
			liquidity_a       DOUBLE PRECISION NOT NULL,
			liquidity_b       DOUBLE PRECISION NOT NULL,
			recommended_size  DOUBLE PRECISION NOT NULL,
			estimated_fees    DOUBLE PRECISION NOT NULL,
			gross_profit      DOUBLE PRECISION NOT NULL,
			net_profit        DOUBLE PRECISION NOT NULL,
			status            TEXT NOT NULL,
			detected_at       TIMESTAMPTZ NOT NULL,
			expires_at        TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities (status)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_detected_at ON opportunities (detected_at DESC)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id             TEXT PRIMARY KEY,
			opportunity_id TEXT NOT NULL REFERENCES opportunities(id),
			venue          TEXT NOT NULL,
			market_id      TEXT NOT NULL,
			side           TEXT NOT NULL,
			amount         DOUBLE PRECISION NOT NULL CHECK (amount > 0),
			price          DOUBLE PRECISION NOT NULL CHECK (price >= 0 AND price <= 1),
			order_id       TEXT NOT NULL DEFAULT '',
			status         TEXT NOT NULL,
			executed_at    TIMESTAMPTZ,
			error_message  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_opportunity_id ON trades (opportunity_id)`,
	}

	for _, stmt := range statements {
		_, err := p.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	p.logger.Info("schema-ensured")
	return nil
}

// SaveMapping upserts a canonical mapping. An empty incoming title keeps the
// stored one.
func (p *PostgresStorage) SaveMapping(ctx context.Context, m *types.CanonicalMarket) error {
	query := `
		INSERT INTO market_mappings (
			canonical_id, title, venue_a_market_id, venue_b_market_id,
			similarity_score, confidence, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (canonical_id) DO UPDATE SET
			title = COALESCE(NULLIF(EXCLUDED.title, ''), market_mappings.title),
			venue_a_market_id = EXCLUDED.venue_a_market_id,
			venue_b_market_id = EXCLUDED.venue_b_market_id,
			similarity_score = EXCLUDED.similarity_score,
			confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.ExecContext(ctx, query,
		m.CanonicalID,
		m.Title,
		m.VenueAMarketID,
		m.VenueBMarketID,
		m.SimilarityScore,
		string(m.Confidence),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save mapping: %w", err)
	}

	p.logger.Debug("mapping-stored",
		zap.String("canonical-id", m.CanonicalID))

	return nil
}

// GetMappings returns every known mapping.
func (p *PostgresStorage) GetMappings(ctx context.Context) ([]*types.CanonicalMarket, error) {
	query := `
		SELECT canonical_id, title, venue_a_market_id, venue_b_market_id,
		       similarity_score, confidence, created_at, updated_at
		FROM market_mappings
		ORDER BY created_at
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*types.CanonicalMarket
	for rows.Next() {
		var m types.CanonicalMarket
		var confidence string
		err = rows.Scan(
			&m.CanonicalID,
			&m.Title,
			&m.VenueAMarketID,
			&m.VenueBMarketID,
			&m.SimilarityScore,
			&confidence,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		m.Confidence = types.Confidence(confidence)
		mappings = append(mappings, &m)
	}

	return mappings, rows.Err()
}

const opportunityColumns = `
	id, canonical_id,
	venue_a_yes_price, venue_a_no_price, venue_b_yes_price, venue_b_no_price,
	venue_a_side, venue_b_side, venue_a_market_id, venue_b_market_id,
	combined_cost, profit_potential, liquidity_a, liquidity_b,
	recommended_size, estimated_fees, gross_profit, net_profit,
	status, detected_at, expires_at
`

// SaveOpportunity stores a detected opportunity.
func (p *PostgresStorage) SaveOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	query := `
		INSERT INTO opportunities (` + opportunityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	var expiresAt sql.NullTime
	if opp.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *opp.ExpiresAt, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		opp.ID,
		opp.CanonicalID,
		opp.VenueAYesPrice,
		opp.VenueANoPrice,
		opp.VenueBYesPrice,
		opp.VenueBNoPrice,
		string(opp.VenueASide),
		string(opp.VenueBSide),
		opp.VenueAMarketID,
		opp.VenueBMarketID,
		opp.CombinedCost,
		opp.ProfitPotential,
		opp.LiquidityA,
		opp.LiquidityB,
		opp.RecommendedSize,
		opp.EstimatedFees,
		opp.GrossProfit,
		opp.NetProfit,
		string(opp.Status),
		opp.DetectedAt,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	p.logger.Debug("opportunity-stored",
		zap.String("opportunity-id", opp.ID),
		zap.String("canonical-id", opp.CanonicalID))

	return nil
}

func scanOpportunity(rows interface{ Scan(...any) error }) (*arbitrage.Opportunity, error) {
	var opp arbitrage.Opportunity
	var sideA, sideB, status string
	var expiresAt sql.NullTime

	err := rows.Scan(
		&opp.ID,
		&opp.CanonicalID,
		&opp.VenueAYesPrice,
		&opp.VenueANoPrice,
		&opp.VenueBYesPrice,
		&opp.VenueBNoPrice,
		&sideA,
		&sideB,
		&opp.VenueAMarketID,
		&opp.VenueBMarketID,
		&opp.CombinedCost,
		&opp.ProfitPotential,
		&opp.LiquidityA,
		&opp.LiquidityB,
		&opp.RecommendedSize,
		&opp.EstimatedFees,
		&opp.GrossProfit,
		&opp.NetProfit,
		&status,
		&opp.DetectedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	opp.VenueASide = types.Side(sideA)
	opp.VenueBSide = types.Side(sideB)
	opp.Status = arbitrage.Status(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		opp.ExpiresAt = &t
	}

	return &opp, nil
}

// GetOpportunity returns one opportunity by id.
func (p *PostgresStorage) GetOpportunity(ctx context.Context, id string) (*arbitrage.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE id = $1`

	opp, err := scanOpportunity(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query opportunity: %w", err)
	}

	return opp, nil
}

// GetOpportunities returns the most recent opportunities, newest first.
func (p *PostgresStorage) GetOpportunities(ctx context.Context, limit int) ([]*arbitrage.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities ORDER BY detected_at DESC LIMIT $1`
	return p.queryOpportunities(ctx, query, limit)
}

// GetActiveOpportunities returns opportunities still actionable, newest
// first: detected or executing, and not past their expiry.
func (p *PostgresStorage) GetActiveOpportunities(ctx context.Context) ([]*arbitrage.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities
		WHERE status IN ($1, $2) AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY detected_at DESC`
	return p.queryOpportunities(ctx, query, string(arbitrage.StatusDetected), string(arbitrage.StatusExecuting))
}

func (p *PostgresStorage) queryOpportunities(ctx context.Context, query string, args ...any) ([]*arbitrage.Opportunity, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []*arbitrage.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}

	return opps, rows.Err()
}

// UpdateOpportunityStatus transitions id from one status to another. The
// expected-status guard makes concurrent claims lose cleanly.
func (p *PostgresStorage) UpdateOpportunityStatus(ctx context.Context, id string, from, to arbitrage.Status) error {
	query := `UPDATE opportunities SET status = $1 WHERE id = $2 AND status = $3`

	res, err := p.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("update opportunity status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("opportunity %s not in status %s: %w", id, from, ErrStatusConflict)
	}

	p.logger.Debug("opportunity-status-updated",
		zap.String("opportunity-id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	return nil
}

// SaveTrade stores one execution leg.
func (p *PostgresStorage) SaveTrade(ctx context.Context, trade *types.Trade) error {
	query := `
		INSERT INTO trades (
			id, opportunity_id, venue, market_id, side, amount, price,
			order_id, status, executed_at, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := p.db.ExecContext(ctx, query,
		trade.ID,
		trade.OpportunityID,
		string(trade.Venue),
		trade.MarketID,
		string(trade.Side),
		trade.Amount,
		trade.Price,
		trade.OrderID,
		string(trade.Status),
		nullTime(trade.ExecutedAt),
		trade.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	return nil
}

// UpdateTrade updates a trade's mutable fields.
func (p *PostgresStorage) UpdateTrade(ctx context.Context, trade *types.Trade) error {
	query := `
		UPDATE trades
		SET order_id = $1, status = $2, executed_at = $3, error_message = $4
		WHERE id = $5
	`

	_, err := p.db.ExecContext(ctx, query,
		trade.OrderID,
		string(trade.Status),
		nullTime(trade.ExecutedAt),
		trade.ErrorMessage,
		trade.ID,
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}

	return nil
}

const tradeColumns = `
	id, opportunity_id, venue, market_id, side, amount, price,
	order_id, status, executed_at, error_message
`

// GetTrades returns the most recent trades, newest first by executed_at with
// unexecuted rows last.
func (p *PostgresStorage) GetTrades(ctx context.Context, limit int) ([]*types.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY executed_at DESC NULLS LAST LIMIT $1`
	return p.queryTrades(ctx, query, limit)
}

// GetTradesByOpportunity returns every leg of one opportunity.
func (p *PostgresStorage) GetTradesByOpportunity(ctx context.Context, opportunityID string) ([]*types.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE opportunity_id = $1`
	return p.queryTrades(ctx, query, opportunityID)
}

// GetPendingTrades returns trades still awaiting a terminal status.
func (p *PostgresStorage) GetPendingTrades(ctx context.Context) ([]*types.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = $1`
	return p.queryTrades(ctx, query, string(types.TradePending))
}

func (p *PostgresStorage) queryTrades(ctx context.Context, query string, args ...any) ([]*types.Trade, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*types.Trade
	for rows.Next() {
		var trade types.Trade
		var venue, side, status string
		var executedAt sql.NullTime

		err = rows.Scan(
			&trade.ID,
			&trade.OpportunityID,
			&venue,
			&trade.MarketID,
			&side,
			&trade.Amount,
			&trade.Price,
			&trade.OrderID,
			&status,
			&executedAt,
			&trade.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		trade.Venue = types.Venue(venue)
		trade.Side = types.Side(side)
		trade.Status = types.TradeStatus(status)
		if executedAt.Valid {
			t := executedAt.Time
			trade.ExecutedAt = &t
		}

		trades = append(trades, &trade)
	}

	return trades, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

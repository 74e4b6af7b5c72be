package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/arbitrage"
	"github.com/mselser95/crossvenue-arb/internal/venueapi"
	"github.com/mselser95/crossvenue-arb/pkg/eventbus"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Storage is the persistence surface the coordinator needs.
type Storage interface {
	GetOpportunity(ctx context.Context, id string) (*arbitrage.Opportunity, error)
	UpdateOpportunityStatus(ctx context.Context, id string, from, to arbitrage.Status) error
	SaveTrade(ctx context.Context, trade *types.Trade) error
	UpdateTrade(ctx context.Context, trade *types.Trade) error
	GetTradesByOpportunity(ctx context.Context, opportunityID string) ([]*types.Trade, error)
	GetPendingTrades(ctx context.Context) ([]*types.Trade, error)
}

// VenueClient is the order surface of one venue.
type VenueClient interface {
	Venue() types.Venue
	PlaceOrder(ctx context.Context, req *venueapi.OrderRequest) (*venueapi.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (*venueapi.OrderStatus, error)
}

// Config holds coordinator configuration.
type Config struct {
	VenueA          VenueClient
	VenueB          VenueClient
	Storage         Storage
	Bus             *eventbus.Bus
	MaxPositionSize float64
	// AutoExecute gates the event-driven loop; read at event receipt so a
	// config flip takes effect without restart.
	AutoExecute func() bool
	LegTimeout  time.Duration
	Logger      *zap.Logger
}

// Coordinator executes opportunities as two concurrent legs, one per venue,
// with best-effort compensation when exactly one leg fails.
type Coordinator struct {
	venueA      VenueClient
	venueB      VenueClient
	storage     Storage
	bus         *eventbus.Bus
	maxSize     float64
	autoExecute func() bool
	legTimeout  time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	wg  sync.WaitGroup
	now func() time.Time
}

// New creates an execution coordinator.
func New(cfg *Config) *Coordinator {
	legTimeout := cfg.LegTimeout
	if legTimeout <= 0 {
		legTimeout = 30 * time.Second
	}

	return &Coordinator{
		venueA:      cfg.VenueA,
		venueB:      cfg.VenueB,
		storage:     cfg.Storage,
		bus:         cfg.Bus,
		maxSize:     cfg.MaxPositionSize,
		autoExecute: cfg.AutoExecute,
		legTimeout:  legTimeout,
		logger:      cfg.Logger,
		inFlight:    make(map[string]struct{}),
		now:         time.Now,
	}
}

// Start launches the auto-execute loop. Detected opportunities arriving on
// the bus are executed when the auto-execute flag is on at receipt time.
func (c *Coordinator) Start(ctx context.Context) error {
	events, cancel := c.bus.Subscribe(64)

	c.logger.Info("execution-coordinator-starting",
		zap.Float64("max-position-size", c.maxSize))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("execution-coordinator-stopping")
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type != eventbus.TypeOpportunity {
					continue
				}
				opp, ok := ev.Data.(*arbitrage.Opportunity)
				if !ok {
					continue
				}
				if !c.autoExecute() {
					continue
				}

				_, err := c.Execute(ctx, opp.ID)
				if err != nil {
					c.logger.Error("auto-execution-failed",
						zap.String("opportunity-id", opp.ID),
						zap.Error(err))
				}
			}
		}
	}()

	return nil
}

// Execute runs the two-leg protocol for one opportunity. Duplicate calls for
// an opportunity already in flight fail immediately; the guarded
// detected-to-executing transition in storage closes the race across
// processes.
func (c *Coordinator) Execute(ctx context.Context, opportunityID string) (*types.ExecutionResult, error) {
	if !c.markInFlight(opportunityID) {
		return nil, &types.ExecutionError{
			Code:          types.ErrCodeDuplicateExecution,
			OpportunityID: opportunityID,
			Err:           types.ErrDuplicateExecution,
		}
	}
	defer c.clearInFlight(opportunityID)

	opp, err := c.storage.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("load opportunity %s: %w", opportunityID, err)
	}

	if opp.Status != arbitrage.StatusDetected {
		return nil, &types.ExecutionError{
			Code:          types.ErrCodeNotActive,
			OpportunityID: opportunityID,
			Err:           types.ErrOpportunityNotActive,
		}
	}

	if opp.RecommendedSize > c.maxSize {
		return nil, &types.ExecutionError{
			Code:          types.ErrCodeSizeLimitExceeded,
			OpportunityID: opportunityID,
			Err:           types.ErrSizeLimitExceeded,
		}
	}

	err = c.storage.UpdateOpportunityStatus(ctx, opportunityID, arbitrage.StatusDetected, arbitrage.StatusExecuting)
	if err != nil {
		return nil, &types.ExecutionError{
			Code:          types.ErrCodeNotActive,
			OpportunityID: opportunityID,
			Err:           fmt.Errorf("claim opportunity: %w", err),
		}
	}

	start := c.now()
	result := c.executeLegs(ctx, opp)
	ExecutionDurationSeconds.Observe(time.Since(start).Seconds())

	if result.Success {
		ExecutionsTotal.WithLabelValues("success").Inc()
		ProfitCapturedTotal.Add(opp.NetProfit)
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeExecutionSuccess, Data: result})
		c.logger.Info("execution-successful",
			zap.String("opportunity-id", opp.ID),
			zap.String("canonical-id", opp.CanonicalID),
			zap.Float64("size", opp.RecommendedSize),
			zap.Float64("net-profit", opp.NetProfit))
		return result, nil
	}

	ExecutionsTotal.WithLabelValues("failure").Inc()
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeExecutionFailed, Data: result})
	c.logger.Error("execution-failed",
		zap.String("opportunity-id", opp.ID),
		zap.String("error", result.Error))

	return result, &types.ExecutionError{
		Code:          types.ErrCodeExecutionFailed,
		OpportunityID: opp.ID,
		Err:           fmt.Errorf("%s", result.Error),
	}
}

// legOutcome is one venue's placement result.
type legOutcome struct {
	trade *types.Trade
	ack   *venueapi.OrderAck
	err   error
}

// executeLegs places both legs concurrently and folds the four outcome
// combinations. The opportunity is already claimed (executing) on entry and
// leaves in a terminal status on every path.
func (c *Coordinator) executeLegs(ctx context.Context, opp *arbitrage.Opportunity) *types.ExecutionResult {
	legCtx, cancel := context.WithTimeout(ctx, c.legTimeout)
	defer cancel()

	outcomes := make([]*legOutcome, 2)
	var wg sync.WaitGroup

	for i, client := range []VenueClient{c.venueA, c.venueB} {
		wg.Add(1)
		go func(i int, client VenueClient) {
			defer wg.Done()
			outcomes[i] = c.placeLeg(legCtx, client, opp)
		}(i, client)
	}
	wg.Wait()

	legA, legB := outcomes[0], outcomes[1]
	trades := []*types.Trade{legA.trade, legB.trade}

	result := &types.ExecutionResult{
		OpportunityID: opp.ID,
		Trades:        trades,
		ExecutedAt:    c.now(),
	}

	switch {
	case legA.err == nil && legB.err == nil:
		c.recordPlaced(ctx, legA)
		c.recordPlaced(ctx, legB)
		c.transition(ctx, opp.ID, arbitrage.StatusExecuting, arbitrage.StatusExecuted)
		result.Success = true

	case legA.err == nil:
		c.compensate(ctx, legA)
		c.settleFailed(ctx, legB)
		c.transition(ctx, opp.ID, arbitrage.StatusExecuting, arbitrage.StatusExpired)
		result.Error = fmt.Sprintf("venue B leg failed: %v", legB.err)

	case legB.err == nil:
		c.compensate(ctx, legB)
		c.settleFailed(ctx, legA)
		c.transition(ctx, opp.ID, arbitrage.StatusExecuting, arbitrage.StatusExpired)
		result.Error = fmt.Sprintf("venue A leg failed: %v", legA.err)

	default:
		c.settleFailed(ctx, legA)
		c.settleFailed(ctx, legB)
		c.transition(ctx, opp.ID, arbitrage.StatusExecuting, arbitrage.StatusExpired)
		result.Error = fmt.Sprintf("both legs failed: venue A: %v; venue B: %v", legA.err, legB.err)
	}

	return result
}

// placeLeg records a pending trade row, submits the order, and returns the
// outcome. The trade row exists before the wire call so a crash between the
// two leaves a reconcilable pending record.
func (c *Coordinator) placeLeg(ctx context.Context, client VenueClient, opp *arbitrage.Opportunity) *legOutcome {
	venue := client.Venue()

	trade := &types.Trade{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Venue:         venue,
		MarketID:      opp.MarketIDFor(venue),
		Side:          opp.SideFor(venue),
		Amount:        opp.RecommendedSize,
		Price:         opp.PriceFor(venue),
		Status:        types.TradePending,
	}

	err := c.storage.SaveTrade(ctx, trade)
	if err != nil {
		// The leg never reached the venue; treat as a leg failure.
		return &legOutcome{trade: trade, err: fmt.Errorf("save trade: %w", err)}
	}

	ack, err := client.PlaceOrder(ctx, &venueapi.OrderRequest{
		MarketID: trade.MarketID,
		Side:     trade.Side,
		Amount:   trade.Amount,
		Price:    trade.Price,
	})
	if err != nil {
		LegFailuresTotal.WithLabelValues(string(venue)).Inc()
		return &legOutcome{trade: trade, err: err}
	}

	trade.OrderID = ack.OrderID
	return &legOutcome{trade: trade, ack: ack}
}

// recordPlaced persists the venue order id of an accepted leg. The trade
// stays pending: an acceptance ack is not a fill, and CheckOrderStatuses
// settles the row once the venue reports it filled or cancelled.
func (c *Coordinator) recordPlaced(ctx context.Context, leg *legOutcome) {
	c.updateTrade(ctx, leg.trade)
	TradesTotal.WithLabelValues(string(leg.trade.Venue), string(types.TradePending)).Inc()
}

// settleFailed marks a failed leg with its error.
func (c *Coordinator) settleFailed(ctx context.Context, leg *legOutcome) {
	leg.trade.Status = types.TradeFailed
	if leg.err != nil {
		leg.trade.ErrorMessage = leg.err.Error()
	}
	c.updateTrade(ctx, leg.trade)
	TradesTotal.WithLabelValues(string(leg.trade.Venue), string(types.TradeFailed)).Inc()
}

// compensate cancels the surviving leg of a half-failed execution. The
// cancel is best effort: a cancel failure is recorded on the trade but the
// trade still terminates, leaving the position exposure visible in the row.
func (c *Coordinator) compensate(ctx context.Context, leg *legOutcome) {
	venue := leg.trade.Venue
	client := c.venueA
	if venue == types.VenueB {
		client = c.venueB
	}

	err := client.CancelOrder(ctx, leg.trade.OrderID)
	if err != nil {
		CompensationCancelsTotal.WithLabelValues(string(venue), "error").Inc()
		c.logger.Error("compensation-cancel-failed",
			zap.String("venue", string(venue)),
			zap.String("order-id", leg.trade.OrderID),
			zap.Error(err))
		leg.trade.ErrorMessage = fmt.Sprintf("compensation cancel failed: %v", err)
	} else {
		CompensationCancelsTotal.WithLabelValues(string(venue), "ok").Inc()
		c.logger.Warn("leg-compensated",
			zap.String("venue", string(venue)),
			zap.String("order-id", leg.trade.OrderID))
	}

	leg.trade.Status = types.TradeCancelled
	c.updateTrade(ctx, leg.trade)
	TradesTotal.WithLabelValues(string(venue), string(types.TradeCancelled)).Inc()
}

// CancelExecution cancels every open leg of an opportunity and expires it.
// Idempotent: an opportunity with no open legs is a no-op.
func (c *Coordinator) CancelExecution(ctx context.Context, opportunityID string) error {
	trades, err := c.storage.GetTradesByOpportunity(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("load trades for %s: %w", opportunityID, err)
	}

	for _, trade := range trades {
		if trade.Status != types.TradePending || trade.OrderID == "" {
			continue
		}

		client := c.venueA
		if trade.Venue == types.VenueB {
			client = c.venueB
		}

		err = client.CancelOrder(ctx, trade.OrderID)
		if err != nil {
			c.logger.Error("cancel-order-failed",
				zap.String("order-id", trade.OrderID),
				zap.Error(err))
			continue
		}

		trade.Status = types.TradeCancelled
		c.updateTrade(ctx, trade)
	}

	// Expire whichever non-terminal status the opportunity is in.
	err = c.storage.UpdateOpportunityStatus(ctx, opportunityID, arbitrage.StatusExecuting, arbitrage.StatusExpired)
	if err != nil {
		err = c.storage.UpdateOpportunityStatus(ctx, opportunityID, arbitrage.StatusDetected, arbitrage.StatusExpired)
	}
	if err != nil {
		c.logger.Debug("cancel-left-status-unchanged",
			zap.String("opportunity-id", opportunityID))
	}

	return nil
}

// CheckOrderStatuses reconciles pending trade rows against the venues.
// Safe to run repeatedly; rows whose venue state is unchanged stay pending.
func (c *Coordinator) CheckOrderStatuses(ctx context.Context) error {
	pending, err := c.storage.GetPendingTrades(ctx)
	if err != nil {
		return fmt.Errorf("load pending trades: %w", err)
	}

	for _, trade := range pending {
		if trade.OrderID == "" {
			continue
		}

		client := c.venueA
		if trade.Venue == types.VenueB {
			client = c.venueB
		}

		status, err := client.OrderStatus(ctx, trade.OrderID)
		if err != nil {
			c.logger.Warn("order-status-check-failed",
				zap.String("order-id", trade.OrderID),
				zap.Error(err))
			continue
		}

		switch status.Status {
		case "filled":
			now := c.now()
			trade.Status = types.TradeFilled
			trade.ExecutedAt = &now
			c.updateTrade(ctx, trade)
			ReconciledTradesTotal.WithLabelValues(string(types.TradeFilled)).Inc()
		case "cancelled":
			trade.Status = types.TradeCancelled
			c.updateTrade(ctx, trade)
			ReconciledTradesTotal.WithLabelValues(string(types.TradeCancelled)).Inc()
		}
	}

	return nil
}

func (c *Coordinator) updateTrade(ctx context.Context, trade *types.Trade) {
	err := c.storage.UpdateTrade(ctx, trade)
	if err != nil {
		c.logger.Error("failed-to-update-trade",
			zap.String("trade-id", trade.ID),
			zap.Error(err))
	}
}

func (c *Coordinator) transition(ctx context.Context, id string, from, to arbitrage.Status) {
	err := c.storage.UpdateOpportunityStatus(ctx, id, from, to)
	if err != nil {
		c.logger.Error("failed-to-transition-opportunity",
			zap.String("opportunity-id", id),
			zap.String("to", string(to)),
			zap.Error(err))
	}
}

func (c *Coordinator) markInFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.inFlight[id]; exists {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Coordinator) clearInFlight(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// Close waits for the auto-execute loop to stop.
func (c *Coordinator) Close() error {
	c.logger.Info("closing-execution-coordinator")
	c.wg.Wait()
	c.logger.Info("execution-coordinator-closed")
	return nil
}

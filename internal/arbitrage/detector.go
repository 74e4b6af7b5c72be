package arbitrage

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/eventbus"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Emission dedup bounds: a new opportunity for a canonical market is only
// published when the combined cost moved by more than costEpsilon or the
// previous emission is older than emitInterval.
const (
	costEpsilon  = 0.0005
	emitInterval = time.Second
)

// Storage persists detected opportunities.
type Storage interface {
	SaveOpportunity(ctx context.Context, opp *Opportunity) error
}

// MappingIndex resolves venue market ids to canonical mappings.
type MappingIndex interface {
	Lookup(venue types.Venue, marketID string) (*types.CanonicalMarket, bool)
	Mappings() []*types.CanonicalMarket
}

// Subscriber is the venue-client surface the detector drives at bootstrap.
type Subscriber interface {
	Venue() types.Venue
	Subscribe(ctx context.Context, marketIDs []string) error
}

// Config holds detector configuration.
type Config struct {
	ArbThreshold    float64
	MinLiquidity    float64
	MaxPositionSize float64
	VenueAFeeRate   float64
	VenueBFeeRate   float64
	Logger          *zap.Logger
}

// fusedBooks is the latest book per venue for one canonical market.
// Last-write-wins: no timestamp alignment is attempted across venues.
type fusedBooks struct {
	a *types.OrderBook
	b *types.OrderBook
}

type emission struct {
	cost float64
	at   time.Time
}

// Detector correlates fused books by canonical id and emits opportunities.
type Detector struct {
	cfg     Config
	logger  *zap.Logger
	index   MappingIndex
	storage Storage
	bus     *eventbus.Bus
	updates <-chan *types.OrderBook

	fused    map[string]*fusedBooks
	lastEmit map[string]emission

	ctx context.Context
	wg  sync.WaitGroup
	now func() time.Time
}

// New creates an arbitrage detector consuming the given book update stream.
func New(cfg Config, index MappingIndex, storage Storage, bus *eventbus.Bus, updates <-chan *types.OrderBook) *Detector {
	return &Detector{
		cfg:      cfg,
		logger:   cfg.Logger,
		index:    index,
		storage:  storage,
		bus:      bus,
		updates:  updates,
		fused:    make(map[string]*fusedBooks),
		lastEmit: make(map[string]emission),
		now:      time.Now,
	}
}

// Bootstrap subscribes every venue client to the markets the mapping index
// currently knows for its venue.
func (d *Detector) Bootstrap(ctx context.Context, clients ...Subscriber) error {
	mappings := d.index.Mappings()

	perVenue := map[types.Venue][]string{}
	for _, m := range mappings {
		if m.VenueAMarketID != "" {
			perVenue[types.VenueA] = append(perVenue[types.VenueA], m.VenueAMarketID)
		}
		if m.VenueBMarketID != "" {
			perVenue[types.VenueB] = append(perVenue[types.VenueB], m.VenueBMarketID)
		}
	}

	for _, client := range clients {
		ids := perVenue[client.Venue()]
		if len(ids) == 0 {
			continue
		}
		err := client.Subscribe(ctx, ids)
		if err != nil {
			return err
		}
		d.logger.Info("bootstrap-subscriptions-issued",
			zap.String("venue", string(client.Venue())),
			zap.Int("count", len(ids)))
	}

	return nil
}

// Start launches the detection loop.
func (d *Detector) Start(ctx context.Context) error {
	d.ctx = ctx
	d.logger.Info("arbitrage-detector-starting",
		zap.Float64("arb-threshold", d.cfg.ArbThreshold),
		zap.Float64("min-liquidity", d.cfg.MinLiquidity),
		zap.Float64("max-position-size", d.cfg.MaxPositionSize))

	d.wg.Add(1)
	go d.detectionLoop()

	return nil
}

func (d *Detector) detectionLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("arbitrage-detector-stopping")
			return
		case book, ok := <-d.updates:
			if !ok {
				return
			}
			start := time.Now()
			d.handleBook(book)
			DetectionDurationSeconds.Observe(time.Since(start).Seconds())
		}
	}
}

// handleBook folds one book update into the fused state and re-evaluates
// when both sides are present.
func (d *Detector) handleBook(book *types.OrderBook) {
	mapping, ok := d.index.Lookup(book.Venue, book.MarketID)
	if !ok {
		return
	}

	pair := d.fused[mapping.CanonicalID]
	if pair == nil {
		pair = &fusedBooks{}
		d.fused[mapping.CanonicalID] = pair
	}

	if book.Venue == types.VenueA {
		pair.a = book
	} else {
		pair.b = book
	}

	if pair.a == nil || pair.b == nil {
		return
	}

	opp, ok := d.evaluate(mapping, pair.a, pair.b)
	if !ok {
		return
	}

	if !d.shouldEmit(mapping.CanonicalID, opp.CombinedCost) {
		OpportunitiesSuppressedTotal.Inc()
		return
	}

	d.emit(opp)
}

// evaluate derives per-venue YES/NO mid prices, enumerates both legs, and
// applies the threshold, liquidity, and fee guards.
func (d *Detector) evaluate(mapping *types.CanonicalMarket, bookA, bookB *types.OrderBook) (*Opportunity, bool) {
	midA, ok := bookA.MidPrice()
	if !ok {
		OpportunitiesRejectedTotal.WithLabelValues("empty_book").Inc()
		return nil, false
	}

	midB, ok := bookB.MidPrice()
	if !ok {
		OpportunitiesRejectedTotal.WithLabelValues("empty_book").Inc()
		return nil, false
	}

	// Binary-market complementarity: NO is priced off the YES mid. Venues
	// publishing independent NO books would plug in here instead.
	yesA, noA := midA, 1-midA
	yesB, noB := midB, 1-midB

	costYesANoB := yesA + noB
	costNoAYesB := noA + yesB

	combined := costYesANoB
	sideA, sideB := types.SideYes, types.SideNo
	if costNoAYesB < combined {
		combined = costNoAYesB
		sideA, sideB = types.SideNo, types.SideYes
	}

	if combined >= d.cfg.ArbThreshold {
		OpportunitiesRejectedTotal.WithLabelValues("above_threshold").Inc()
		return nil, false
	}

	depthA := bookA.Depth()
	depthB := bookB.Depth()

	size := math.Min(math.Min(depthA, depthB), d.cfg.MaxPositionSize)
	if size < d.cfg.MinLiquidity {
		OpportunitiesRejectedTotal.WithLabelValues("insufficient_liquidity").Inc()
		return nil, false
	}

	fees := size * (d.cfg.VenueAFeeRate + d.cfg.VenueBFeeRate)
	gross := size * (1 - combined)
	net := gross - fees

	if net <= 0 {
		OpportunitiesRejectedTotal.WithLabelValues("negative_net_profit").Inc()
		return nil, false
	}

	return &Opportunity{
		ID:              newOpportunityID(),
		CanonicalID:     mapping.CanonicalID,
		VenueAYesPrice:  yesA,
		VenueANoPrice:   noA,
		VenueBYesPrice:  yesB,
		VenueBNoPrice:   noB,
		VenueASide:      sideA,
		VenueBSide:      sideB,
		VenueAMarketID:  mapping.VenueAMarketID,
		VenueBMarketID:  mapping.VenueBMarketID,
		CombinedCost:    combined,
		ProfitPotential: 1 - combined,
		LiquidityA:      depthA,
		LiquidityB:      depthB,
		RecommendedSize: size,
		EstimatedFees:   fees,
		GrossProfit:     gross,
		NetProfit:       net,
		Status:          StatusDetected,
		DetectedAt:      d.now(),
	}, true
}

// shouldEmit applies the per-canonical-market dedup bound and records the
// emission when admitted.
func (d *Detector) shouldEmit(canonicalID string, cost float64) bool {
	now := d.now()

	prev, ok := d.lastEmit[canonicalID]
	if ok && math.Abs(cost-prev.cost) <= costEpsilon && now.Sub(prev.at) <= emitInterval {
		return false
	}

	d.lastEmit[canonicalID] = emission{cost: cost, at: now}
	return true
}

func (d *Detector) emit(opp *Opportunity) {
	err := d.storage.SaveOpportunity(d.ctx, opp)
	if err != nil {
		// The opportunity is lost, not corrupted; detection continues.
		d.logger.Error("failed-to-store-opportunity",
			zap.String("opportunity-id", opp.ID),
			zap.Error(err))
		StorageErrorsTotal.Inc()
	}

	d.bus.Publish(eventbus.Event{Type: eventbus.TypeOpportunity, Data: opp})

	OpportunitiesDetectedTotal.Inc()
	OpportunityProfitPotential.Observe(opp.ProfitPotential)
	OpportunitySize.Observe(opp.RecommendedSize)

	d.logger.Info("arbitrage-opportunity-detected",
		zap.String("opportunity-id", opp.ID),
		zap.String("canonical-id", opp.CanonicalID),
		zap.Float64("combined-cost", opp.CombinedCost),
		zap.Float64("recommended-size", opp.RecommendedSize),
		zap.Float64("net-profit", opp.NetProfit))
}

// Close waits for the detection loop to stop.
func (d *Detector) Close() error {
	d.logger.Info("closing-arbitrage-detector")
	d.wg.Wait()
	d.logger.Info("arbitrage-detector-closed")
	return nil
}

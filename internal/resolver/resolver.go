package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/cache"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Lister fetches the current market listing from one venue.
type Lister interface {
	ListMarkets(ctx context.Context) ([]types.VenueMarket, error)
}

// MappingStore persists canonical market mappings.
type MappingStore interface {
	SaveMapping(ctx context.Context, m *types.CanonicalMarket) error
	GetMappings(ctx context.Context) ([]*types.CanonicalMarket, error)
}

// Resolver clusters cross-venue markets under canonical identities. Runs on
// a periodic sync trigger, never on the hot path; the detector reads the
// published index, which is replaced atomically per sync.
type Resolver struct {
	venueA    Lister
	venueB    Lister
	store     MappingStore
	cache     cache.Listings
	threshold float64
	cacheTTL  time.Duration
	interval  time.Duration
	logger    *zap.Logger

	index atomic.Pointer[Index]
	now   func() time.Time
}

// Index is an immutable lookup over the current mappings.
type Index struct {
	byVenueA map[string]*types.CanonicalMarket
	byVenueB map[string]*types.CanonicalMarket
	all      []*types.CanonicalMarket
}

// Config holds resolver configuration.
type Config struct {
	VenueA              Lister
	VenueB              Lister
	Store               MappingStore
	Cache               cache.Listings
	SimilarityThreshold float64
	ListingCacheTTL     time.Duration
	SyncInterval        time.Duration
	Logger              *zap.Logger
}

// New creates a resolver. Load should be called before first use so prior
// mappings survive a restart.
func New(cfg *Config) *Resolver {
	r := &Resolver{
		venueA:    cfg.VenueA,
		venueB:    cfg.VenueB,
		store:     cfg.Store,
		cache:     cfg.Cache,
		threshold: cfg.SimilarityThreshold,
		cacheTTL:  cfg.ListingCacheTTL,
		interval:  cfg.SyncInterval,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	r.index.Store(emptyIndex())
	return r
}

func emptyIndex() *Index {
	return &Index{
		byVenueA: make(map[string]*types.CanonicalMarket),
		byVenueB: make(map[string]*types.CanonicalMarket),
	}
}

// Load publishes the persisted mappings without contacting the venues.
func (r *Resolver) Load(ctx context.Context) error {
	existing, err := r.store.GetMappings(ctx)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}

	r.publish(existing)
	r.logger.Info("mappings-loaded", zap.Int("count", len(existing)))

	return nil
}

// Run triggers Sync on the configured interval until the context ends.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := r.Sync(ctx)
			if err != nil {
				// Prior mappings remain in effect.
				r.logger.Error("market-sync-failed", zap.Error(err))
			}
		}
	}
}

// Sync fetches both venues' listings, pairs matching markets greedily
// one-to-one, persists the mappings, and republishes the index. If either
// listing is unreachable the sync fails and the prior index stays live.
func (r *Resolver) Sync(ctx context.Context) error {
	start := r.now()

	listingA, err := r.listings(ctx, types.VenueA, r.venueA)
	if err != nil {
		SyncsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("list venue A markets: %w", err)
	}

	listingB, err := r.listings(ctx, types.VenueB, r.venueB)
	if err != nil {
		SyncsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("list venue B markets: %w", err)
	}

	existing, err := r.store.GetMappings(ctx)
	if err != nil {
		SyncsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("load mappings: %w", err)
	}

	prior := emptyIndex()
	for _, m := range existing {
		indexMapping(prior, m)
	}

	normB := make([]NormalizedMarket, len(listingB))
	for i, b := range listingB {
		normB[i] = Normalize(b.Title, b.Description)
	}

	byID := make(map[string]*types.CanonicalMarket, len(existing))
	for _, m := range existing {
		byID[m.CanonicalID] = m
	}

	matchedB := make(map[int]bool, len(listingB))
	paired := 0

	for _, a := range listingA {
		normA := Normalize(a.Title, a.Description)

		bestIdx := -1
		bestScore := 0.0
		for i := range listingB {
			if matchedB[i] {
				continue
			}
			score := Similarity(normA, normB[i])
			if score >= r.threshold && score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			continue
		}

		b := listingB[bestIdx]
		matchedB[bestIdx] = true
		paired++

		mapping := r.buildMapping(prior, a, b, normA, normB[bestIdx], bestScore)

		err = r.store.SaveMapping(ctx, mapping)
		if err != nil {
			SyncsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("save mapping %s: %w", mapping.CanonicalID, err)
		}

		byID[mapping.CanonicalID] = mapping

		r.logger.Info("markets-paired",
			zap.String("canonical-id", mapping.CanonicalID),
			zap.String("venue-a-market-id", a.MarketID),
			zap.String("venue-b-market-id", b.MarketID),
			zap.Float64("similarity", bestScore),
			zap.String("confidence", string(mapping.Confidence)))

		MappingsConfidence.WithLabelValues(string(mapping.Confidence)).Inc()
	}

	merged := make([]*types.CanonicalMarket, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	r.publish(merged)

	SyncsTotal.WithLabelValues("ok").Inc()
	SyncDurationSeconds.Observe(time.Since(start).Seconds())

	r.logger.Info("market-sync-complete",
		zap.Int("venue-a-markets", len(listingA)),
		zap.Int("venue-b-markets", len(listingB)),
		zap.Int("paired", paired),
		zap.Int("total-mappings", len(merged)))

	return nil
}

// buildMapping reuses the canonical id when either side is already
// clustered, so re-syncs do not fork identities for known pairs.
func (r *Resolver) buildMapping(prior *Index, a, b types.VenueMarket, normA, normB NormalizedMarket, score float64) *types.CanonicalMarket {
	now := r.now()

	if existing, ok := prior.byVenueA[a.MarketID]; ok {
		return updatedMapping(existing, a, b, score, now)
	}
	if existing, ok := prior.byVenueB[b.MarketID]; ok {
		return updatedMapping(existing, a, b, score, now)
	}

	title := a.Title
	slugSource := normA.Normalized
	if len(normB.Normalized) < len(normA.Normalized) {
		title = b.Title
		slugSource = normB.Normalized
	}

	return &types.CanonicalMarket{
		CanonicalID:     r.canonicalID(slugSource),
		Title:           title,
		VenueAMarketID:  a.MarketID,
		VenueBMarketID:  b.MarketID,
		SimilarityScore: score,
		Confidence:      types.ConfidenceFor(score),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func updatedMapping(existing *types.CanonicalMarket, a, b types.VenueMarket, score float64, now time.Time) *types.CanonicalMarket {
	updated := *existing
	updated.VenueAMarketID = a.MarketID
	updated.VenueBMarketID = b.MarketID
	updated.SimilarityScore = score
	updated.Confidence = types.ConfidenceFor(score)
	updated.UpdatedAt = now
	if updated.Title == "" {
		updated.Title = a.Title
	}
	return &updated
}

// canonicalID derives a slug from the normalized title plus a wall-clock
// suffix for uniqueness.
func (r *Resolver) canonicalID(normalizedTitle string) string {
	slug := strings.ReplaceAll(normalizedTitle, " ", "-")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return fmt.Sprintf("%s-%d", slug, r.now().UnixMilli())
}

// listings fetches one venue's markets, serving from cache within the TTL.
func (r *Resolver) listings(ctx context.Context, venue types.Venue, lister Lister) ([]types.VenueMarket, error) {
	if r.cache != nil {
		if markets, ok := r.cache.Get(venue); ok {
			return markets, nil
		}
	}

	markets, err := lister.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(venue, markets, r.cacheTTL)
	}

	return markets, nil
}

func (r *Resolver) publish(mappings []*types.CanonicalMarket) {
	idx := emptyIndex()
	for _, m := range mappings {
		indexMapping(idx, m)
	}
	idx.all = mappings
	r.index.Store(idx)
	MappingsTracked.Set(float64(len(mappings)))
}

func indexMapping(idx *Index, m *types.CanonicalMarket) {
	if m.VenueAMarketID != "" {
		idx.byVenueA[m.VenueAMarketID] = m
	}
	if m.VenueBMarketID != "" {
		idx.byVenueB[m.VenueBMarketID] = m
	}
}

// Lookup resolves a venue market id to its canonical mapping.
func (r *Resolver) Lookup(venue types.Venue, marketID string) (*types.CanonicalMarket, bool) {
	idx := r.index.Load()

	var m *types.CanonicalMarket
	var ok bool
	if venue == types.VenueA {
		m, ok = idx.byVenueA[marketID]
	} else {
		m, ok = idx.byVenueB[marketID]
	}

	if !ok {
		return nil, false
	}

	cp := *m
	return &cp, true
}

// Mappings returns a copy of every known canonical mapping.
func (r *Resolver) Mappings() []*types.CanonicalMarket {
	idx := r.index.Load()

	out := make([]*types.CanonicalMarket, 0, len(idx.all))
	for _, m := range idx.all {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

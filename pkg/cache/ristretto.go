package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// ListingCache is the ristretto-backed Listings implementation. Entry cost
// is the listing's market count, so MaxCost bounds the total markets held
// rather than the number of venues.
type ListingCache struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

// ListingCacheConfig holds listing cache sizing.
type ListingCacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Logger      *zap.Logger
}

// NewListingCache creates a listing cache.
func NewListingCache(cfg *ListingCacheConfig) (*ListingCache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &ListingCache{
		cache:  rc,
		logger: cfg.Logger,
	}, nil
}

// Get returns the cached listing for a venue, if present and unexpired.
func (l *ListingCache) Get(venue types.Venue) ([]types.VenueMarket, bool) {
	value, found := l.cache.Get(string(venue))
	if !found {
		ListingMissesTotal.WithLabelValues(string(venue)).Inc()
		l.logger.Debug("listing-cache-miss", zap.String("venue", string(venue)))
		return nil, false
	}

	markets, ok := value.([]types.VenueMarket)
	if !ok {
		return nil, false
	}

	ListingHitsTotal.WithLabelValues(string(venue)).Inc()
	l.logger.Debug("listing-cache-hit",
		zap.String("venue", string(venue)),
		zap.Int("markets", len(markets)))
	return markets, true
}

// Set stores a venue's listing with a TTL.
func (l *ListingCache) Set(venue types.Venue, markets []types.VenueMarket, ttl time.Duration) bool {
	ok := l.cache.SetWithTTL(string(venue), markets, int64(len(markets))+1, ttl)
	if ok {
		ListingSetsTotal.WithLabelValues(string(venue)).Inc()
		l.logger.Debug("listing-cached",
			zap.String("venue", string(venue)),
			zap.Int("markets", len(markets)),
			zap.Duration("ttl", ttl))
	}
	return ok
}

// Invalidate drops a venue's cached listing so the next sync refetches.
func (l *ListingCache) Invalidate(venue types.Venue) {
	l.cache.Del(string(venue))
	l.logger.Debug("listing-cache-invalidated", zap.String("venue", string(venue)))
}

// Close releases the cache's resources.
func (l *ListingCache) Close() {
	l.cache.Close()
}

// Wait blocks until pending writes are applied. Sets are asynchronous;
// callers that read back immediately need this.
func (l *ListingCache) Wait() {
	l.cache.Wait()
}

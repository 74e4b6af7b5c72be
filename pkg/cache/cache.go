// Package cache holds the venue listing cache. The resolver fetches each
// venue's full market listing on every sync; syncs retriggered within the
// TTL (a manual /api/markets/sync shortly after a periodic run, the
// one-shot command) reuse the cached listing instead of hitting the venue
// again.
package cache

import (
	"time"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Listings caches per-venue market listings.
type Listings interface {
	Get(venue types.Venue) ([]types.VenueMarket, bool)
	Set(venue types.Venue, markets []types.VenueMarket, ttl time.Duration) bool
	Invalidate(venue types.Venue)
	Close()
}

package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

type fakeLister struct {
	markets []types.VenueMarket
	err     error
	calls   int
}

func (f *fakeLister) ListMarkets(ctx context.Context) ([]types.VenueMarket, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

type fakeListings struct {
	entries map[types.Venue][]types.VenueMarket
}

func newFakeListings() *fakeListings {
	return &fakeListings{entries: make(map[types.Venue][]types.VenueMarket)}
}

func (f *fakeListings) Get(venue types.Venue) ([]types.VenueMarket, bool) {
	markets, ok := f.entries[venue]
	return markets, ok
}

func (f *fakeListings) Set(venue types.Venue, markets []types.VenueMarket, ttl time.Duration) bool {
	f.entries[venue] = markets
	return true
}

func (f *fakeListings) Invalidate(venue types.Venue) { delete(f.entries, venue) }
func (f *fakeListings) Close()                       {}

type fakeStore struct {
	mappings []*types.CanonicalMarket
	saved    []*types.CanonicalMarket
	saveErr  error
}

func (f *fakeStore) SaveMapping(ctx context.Context, m *types.CanonicalMarket) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *m
	f.saved = append(f.saved, &cp)
	return nil
}

func (f *fakeStore) GetMappings(ctx context.Context) ([]*types.CanonicalMarket, error) {
	return f.mappings, nil
}

func newTestResolver(a, b *fakeLister, store *fakeStore, at time.Time) *Resolver {
	r := New(&Config{
		VenueA:              a,
		VenueB:              b,
		Store:               store,
		SimilarityThreshold: 0.85,
		ListingCacheTTL:     time.Minute,
		SyncInterval:        time.Minute,
		Logger:              zap.NewNop(),
	})
	r.now = func() time.Time { return at }
	return r
}

func market(v types.Venue, id, title string) types.VenueMarket {
	return types.VenueMarket{Venue: v, MarketID: id, Title: title}
}

func TestSync_PairsMatchingMarkets(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	venueA := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueA, "a-1", "Will BTC exceed $100k by Dec 31, 2024?"),
		market(types.VenueA, "a-2", "Sahara desert snowfall recorded this winter"),
	}}
	venueB := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueB, "b-1", "Will BTC exceed 100k by Dec 31 2024"),
		market(types.VenueB, "b-2", "Champions League final decided on penalties"),
	}}
	store := &fakeStore{}

	r := newTestResolver(venueA, venueB, store, at)

	err := r.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d mappings, want 1", len(store.saved))
	}

	m := store.saved[0]
	if m.VenueAMarketID != "a-1" || m.VenueBMarketID != "b-1" {
		t.Errorf("paired %s/%s, want a-1/b-1", m.VenueAMarketID, m.VenueBMarketID)
	}
	if m.Confidence != types.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", m.Confidence)
	}

	wantID := fmt.Sprintf("will-btc-exceed-100k-by-dec-31-2024-%d", at.UnixMilli())
	if m.CanonicalID != wantID {
		t.Errorf("canonical id = %q, want %q", m.CanonicalID, wantID)
	}

	got, ok := r.Lookup(types.VenueA, "a-1")
	if !ok || got.VenueBMarketID != "b-1" {
		t.Errorf("lookup by venue A id failed: %+v ok=%v", got, ok)
	}
	got, ok = r.Lookup(types.VenueB, "b-1")
	if !ok || got.VenueAMarketID != "a-1" {
		t.Errorf("lookup by venue B id failed: %+v ok=%v", got, ok)
	}
	if _, ok := r.Lookup(types.VenueA, "a-2"); ok {
		t.Error("unpaired market should not resolve")
	}
}

func TestSync_GreedyPicksHighestScore(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	venueA := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueA, "a-1", "Will BTC exceed $100k by Dec 31, 2024?"),
	}}
	venueB := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueB, "b-close", "Will BTC exceed $100k by Dec 30, 2024?"),
		market(types.VenueB, "b-exact", "Will BTC exceed 100k by Dec 31 2024"),
	}}
	store := &fakeStore{}

	r := newTestResolver(venueA, venueB, store, at)

	err := r.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d mappings, want 1", len(store.saved))
	}
	if store.saved[0].VenueBMarketID != "b-exact" {
		t.Errorf("paired with %s, want b-exact", store.saved[0].VenueBMarketID)
	}
}

func TestSync_MatchedMarketNotReused(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	title := "Will BTC exceed $100k by Dec 31, 2024?"
	venueA := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueA, "a-1", title),
		market(types.VenueA, "a-2", title),
	}}
	venueB := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueB, "b-1", title),
	}}
	store := &fakeStore{}

	r := newTestResolver(venueA, venueB, store, at)

	err := r.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d mappings, want 1: a venue market belongs to one mapping", len(store.saved))
	}
	if store.saved[0].VenueAMarketID != "a-1" {
		t.Errorf("paired %s, want first listing a-1", store.saved[0].VenueAMarketID)
	}
}

func TestSync_ReusesCanonicalID(t *testing.T) {
	at := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	created := at.Add(-48 * time.Hour)

	store := &fakeStore{mappings: []*types.CanonicalMarket{{
		CanonicalID:    "btc-100k-dec-31-2024-1717000000000",
		Title:          "Will BTC exceed $100k by Dec 31, 2024?",
		VenueAMarketID: "a-1",
		VenueBMarketID: "b-old",
		Confidence:     types.ConfidenceHigh,
		CreatedAt:      created,
		UpdatedAt:      created,
	}}}

	venueA := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueA, "a-1", "Will BTC exceed $100k by Dec 31, 2024?"),
	}}
	venueB := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueB, "b-new", "Will BTC exceed 100k by Dec 31 2024"),
	}}

	r := newTestResolver(venueA, venueB, store, at)

	err := r.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d mappings, want 1", len(store.saved))
	}

	m := store.saved[0]
	if m.CanonicalID != "btc-100k-dec-31-2024-1717000000000" {
		t.Errorf("canonical id forked: %q", m.CanonicalID)
	}
	if m.VenueBMarketID != "b-new" {
		t.Errorf("venue B id = %q, want b-new", m.VenueBMarketID)
	}
	if !m.CreatedAt.Equal(created) {
		t.Errorf("created at changed: %v", m.CreatedAt)
	}
	if !m.UpdatedAt.Equal(at) {
		t.Errorf("updated at = %v, want %v", m.UpdatedAt, at)
	}
}

func TestSync_ListingFailureLeavesPriorIndex(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	store := &fakeStore{mappings: []*types.CanonicalMarket{{
		CanonicalID:    "prior-mapping",
		VenueAMarketID: "a-1",
		VenueBMarketID: "b-1",
	}}}
	venueA := &fakeLister{err: errors.New("listing unavailable")}
	venueB := &fakeLister{}

	r := newTestResolver(venueA, venueB, store, at)

	err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	err = r.Sync(context.Background())
	if err == nil {
		t.Fatal("expected sync error")
	}

	got, ok := r.Lookup(types.VenueA, "a-1")
	if !ok || got.CanonicalID != "prior-mapping" {
		t.Errorf("prior index lost after failed sync: %+v ok=%v", got, ok)
	}
}

func TestLookupAndMappingsReturnCopies(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	store := &fakeStore{mappings: []*types.CanonicalMarket{{
		CanonicalID:    "m-1",
		VenueAMarketID: "a-1",
		VenueBMarketID: "b-1",
	}}}

	r := newTestResolver(&fakeLister{}, &fakeLister{}, store, at)

	err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got, ok := r.Lookup(types.VenueA, "a-1")
	if !ok {
		t.Fatal("lookup failed")
	}
	got.VenueBMarketID = "mutated"

	again, _ := r.Lookup(types.VenueA, "a-1")
	if again.VenueBMarketID != "b-1" {
		t.Error("lookup returned shared state")
	}

	all := r.Mappings()
	if len(all) != 1 {
		t.Fatalf("mappings = %d, want 1", len(all))
	}
	all[0].CanonicalID = "mutated"

	again, _ = r.Lookup(types.VenueA, "a-1")
	if again.CanonicalID != "m-1" {
		t.Error("mappings returned shared state")
	}
}

func TestSync_ReusesCachedListings(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	venueA := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueA, "a-1", "Will BTC exceed $100k by Dec 31, 2024?"),
	}}
	venueB := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueB, "b-1", "Will BTC exceed 100k by Dec 31 2024"),
	}}
	store := &fakeStore{}

	r := New(&Config{
		VenueA:              venueA,
		VenueB:              venueB,
		Store:               store,
		Cache:               newFakeListings(),
		SimilarityThreshold: 0.85,
		ListingCacheTTL:     time.Minute,
		SyncInterval:        time.Minute,
		Logger:              zap.NewNop(),
	})
	r.now = func() time.Time { return at }

	for i := 0; i < 2; i++ {
		err := r.Sync(context.Background())
		if err != nil {
			t.Fatalf("sync %d failed: %v", i, err)
		}
	}

	// The second sync within the TTL serves both listings from cache.
	if venueA.calls != 1 || venueB.calls != 1 {
		t.Errorf("listing fetches: A=%d B=%d, want 1 each", venueA.calls, venueB.calls)
	}
}

func TestSync_BelowThresholdNotPaired(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	venueA := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueA, "a-1", "Will BTC exceed $100k by Dec 31, 2024?"),
	}}
	venueB := &fakeLister{markets: []types.VenueMarket{
		market(types.VenueB, "b-1", "Super Bowl winner announced February 2025"),
	}}
	store := &fakeStore{}

	r := newTestResolver(venueA, venueB, store, at)

	err := r.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(store.saved) != 0 {
		t.Errorf("saved %d mappings, want 0", len(store.saved))
	}
}

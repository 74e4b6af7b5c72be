package orderbook

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Key identifies one book: a venue and that venue's market id.
type Key struct {
	Venue    types.Venue
	MarketID string
}

// Store holds the current order book per (venue, market id). Each key has a
// single writer (the owning venue client's feed); readers get copies.
type Store struct {
	books      map[Key]*types.OrderBook
	mu         sync.RWMutex
	logger     *zap.Logger
	inputs     []<-chan *types.OrderBook
	updateChan chan *types.OrderBook
	wg         sync.WaitGroup
}

// Config holds order book store configuration.
type Config struct {
	Logger *zap.Logger
	// Feeds are the venue clients' book channels. One goroutine drains each,
	// so the single-writer-per-key property holds as long as each feed only
	// carries its own venue's keys.
	Feeds []<-chan *types.OrderBook
	// UpdateBufferSize bounds the fan-out channel; stale updates are dropped
	// rather than queued without bound.
	UpdateBufferSize int
}

// New creates an order book store.
func New(cfg *Config) *Store {
	if cfg.UpdateBufferSize <= 0 {
		cfg.UpdateBufferSize = 4096
	}

	return &Store{
		books:      make(map[Key]*types.OrderBook),
		logger:     cfg.Logger,
		inputs:     cfg.Feeds,
		updateChan: make(chan *types.OrderBook, cfg.UpdateBufferSize),
	}
}

// Start begins draining the venue feeds.
func (s *Store) Start(ctx context.Context) error {
	s.logger.Info("orderbook-store-starting", zap.Int("feeds", len(s.inputs)))

	for _, feed := range s.inputs {
		s.wg.Add(1)
		go s.drain(ctx, feed)
	}

	return nil
}

func (s *Store) drain(ctx context.Context, feed <-chan *types.OrderBook) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case book, ok := <-feed:
			if !ok {
				return
			}
			s.Put(book)
		}
	}
}

// Put replaces the book for its key and notifies subscribers. The snapshot
// is swapped atomically under the lock; partial books are never visible.
func (s *Store) Put(book *types.OrderBook) {
	key := Key{Venue: book.Venue, MarketID: book.MarketID}

	s.mu.Lock()
	s.books[key] = book
	BooksTracked.Set(float64(len(s.books)))
	s.mu.Unlock()

	UpdatesTotal.WithLabelValues(string(book.Venue)).Inc()

	select {
	case s.updateChan <- book:
	default:
		// Consumer backlog. Dropping is safe: the latest book stays readable
		// via Get and the detector re-reads it on evaluation.
		UpdatesDroppedTotal.Inc()
		s.logger.Debug("update-channel-full",
			zap.String("venue", string(book.Venue)),
			zap.String("market-id", book.MarketID))
	}
}

// Get returns a copy of the current book for the key. Unknown keys return
// false, not an error.
func (s *Store) Get(venue types.Venue, marketID string) (*types.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[Key{Venue: venue, MarketID: marketID}]
	if !ok {
		return nil, false
	}

	return book.Clone(), true
}

// Updates returns the fan-out channel of book updates.
func (s *Store) Updates() <-chan *types.OrderBook {
	return s.updateChan
}

// Close waits for the drain goroutines and closes the update channel.
func (s *Store) Close() error {
	s.logger.Info("closing-orderbook-store")
	s.wg.Wait()
	close(s.updateChan)
	s.logger.Info("orderbook-store-closed")
	return nil
}

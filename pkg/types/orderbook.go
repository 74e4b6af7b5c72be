package types

import "time"

// PriceLevel is one (price, size) entry in an order book.
// Prices are probabilities in [0,1]; sizes are contract counts.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is the current snapshot for one venue market. Bids are sorted
// descending by price, asks ascending. Snapshots are replaced atomically per
// update; readers never observe a partially applied book.
type OrderBook struct {
	Venue     Venue        `json:"venue"`
	MarketID  string       `json:"market_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the highest bid, or false on an empty bid side.
func (b *OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false on an empty ask side.
func (b *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// MidPrice returns the mid of best bid and best ask. Returns false when
// either side of the book is empty.
func (b *OrderBook) MidPrice() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Depth returns the total size across both sides of the book.
func (b *OrderBook) Depth() float64 {
	var total float64
	for _, lvl := range b.Bids {
		total += lvl.Size
	}
	for _, lvl := range b.Asks {
		total += lvl.Size
	}
	return total
}

// Clone returns a deep copy safe to hand to another goroutine.
func (b *OrderBook) Clone() *OrderBook {
	cp := *b
	cp.Bids = append([]PriceLevel(nil), b.Bids...)
	cp.Asks = append([]PriceLevel(nil), b.Asks...)
	return &cp
}

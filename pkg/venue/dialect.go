package venue

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Dialect maps one venue's wire protocol onto the normalized order book
// model. The client is dialect-agnostic: connection management, heartbeats,
// and reconnection are shared; only message encoding differs per venue.
type Dialect interface {
	Venue() types.Venue

	// AuthMessage returns the post-open auth payload, or nil when the venue
	// performs no application-level handshake.
	AuthMessage(apiKey string) []byte

	// ClassifyAuth inspects an inbound frame during the auth wait.
	ClassifyAuth(raw []byte) AuthResult

	SubscribeMessage(marketIDs []string) []byte
	UnsubscribeMessage(marketIDs []string) []byte

	// DecodeBook normalizes an inbound frame. A (nil, nil) return means the
	// frame was a control or heartbeat message carrying no book.
	DecodeBook(raw []byte) (*types.OrderBook, error)
}

// AuthResult classifies a frame received while waiting for an auth reply.
type AuthResult int

const (
	AuthPendingReply AuthResult = iota // not an auth frame, keep waiting
	AuthAccepted
	AuthRejected
)

// DialectA speaks Venue A's protocol: string-encoded price levels and a
// millisecond string timestamp, no auth handshake.
type DialectA struct{}

type dialectARawBook struct {
	Type      string      `json:"type"`
	Market    string      `json:"market"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

func (DialectA) Venue() types.Venue { return types.VenueA }

func (DialectA) AuthMessage(string) []byte { return nil }

func (DialectA) ClassifyAuth([]byte) AuthResult { return AuthAccepted }

func (DialectA) SubscribeMessage(marketIDs []string) []byte {
	return mustMarshal(map[string]interface{}{
		"type":    "subscribe",
		"markets": sorted(marketIDs),
	})
}

func (DialectA) UnsubscribeMessage(marketIDs []string) []byte {
	return mustMarshal(map[string]interface{}{
		"type":    "unsubscribe",
		"markets": sorted(marketIDs),
	})
}

func (DialectA) DecodeBook(raw []byte) (*types.OrderBook, error) {
	var msg dialectARawBook
	err := json.Unmarshal(raw, &msg)
	if err != nil {
		return nil, fmt.Errorf("decode venue A frame: %w", err)
	}

	if msg.Type != "book" {
		// Subscription acks and heartbeats share the envelope.
		return nil, nil
	}

	bids, err := parseStringLevels(msg.Bids)
	if err != nil {
		return nil, fmt.Errorf("venue A bids: %w", err)
	}

	asks, err := parseStringLevels(msg.Asks)
	if err != nil {
		return nil, fmt.Errorf("venue A asks: %w", err)
	}

	ts := time.Now()
	if msg.Timestamp != "" {
		millis, err := strconv.ParseInt(msg.Timestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("venue A timestamp %q: %w", msg.Timestamp, err)
		}
		ts = time.UnixMilli(millis)
	}

	return &types.OrderBook{
		Venue:     types.VenueA,
		MarketID:  msg.Market,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}, nil
}

// DialectB speaks Venue B's protocol: numeric price levels under a channel
// envelope, and an auth handshake required immediately after stream open.
type DialectB struct{}

type dialectBRawBook struct {
	Channel string `json:"channel"`
	Ticker  string `json:"ticker"`
	TS      int64  `json:"ts"`
	Book    struct {
		Bids []types.PriceLevel `json:"bids"`
		Asks []types.PriceLevel `json:"asks"`
	} `json:"book"`
}

func (DialectB) Venue() types.Venue { return types.VenueB }

func (DialectB) AuthMessage(apiKey string) []byte {
	return mustMarshal(map[string]interface{}{
		"action":  "auth",
		"api_key": apiKey,
	})
}

func (DialectB) ClassifyAuth(raw []byte) AuthResult {
	var frame struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &frame) != nil {
		return AuthPendingReply
	}

	switch frame.Type {
	case "auth_success":
		return AuthAccepted
	case "auth_failure":
		return AuthRejected
	default:
		return AuthPendingReply
	}
}

func (DialectB) SubscribeMessage(marketIDs []string) []byte {
	return mustMarshal(map[string]interface{}{
		"action":  "subscribe",
		"tickers": sorted(marketIDs),
	})
}

func (DialectB) UnsubscribeMessage(marketIDs []string) []byte {
	return mustMarshal(map[string]interface{}{
		"action":  "unsubscribe",
		"tickers": sorted(marketIDs),
	})
}

func (DialectB) DecodeBook(raw []byte) (*types.OrderBook, error) {
	var msg dialectBRawBook
	err := json.Unmarshal(raw, &msg)
	if err != nil {
		return nil, fmt.Errorf("decode venue B frame: %w", err)
	}

	if msg.Channel != "orderbook" {
		return nil, nil
	}

	for _, lvl := range append(append([]types.PriceLevel{}, msg.Book.Bids...), msg.Book.Asks...) {
		if lvl.Price < 0 || lvl.Price > 1 || lvl.Size < 0 {
			return nil, fmt.Errorf("venue B level out of range: price=%f size=%f", lvl.Price, lvl.Size)
		}
	}

	ts := time.Now()
	if msg.TS > 0 {
		ts = time.UnixMilli(msg.TS)
	}

	return &types.OrderBook{
		Venue:     types.VenueB,
		MarketID:  msg.Ticker,
		Bids:      msg.Book.Bids,
		Asks:      msg.Book.Asks,
		Timestamp: ts,
	}, nil
}

func parseStringLevels(raw [][2]string) ([]types.PriceLevel, error) {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}

		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", pair[1], err)
		}

		if price < 0 || price > 1 || size < 0 {
			return nil, fmt.Errorf("level out of range: price=%f size=%f", price, size)
		}

		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// sorted copies ids into deterministic order so subscription payloads are
// stable across reconnects.
func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

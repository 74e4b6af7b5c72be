package venueapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// OrderRequest is one leg submission against a venue.
type OrderRequest struct {
	MarketID string     `json:"market_id"`
	Side     types.Side `json:"side"`
	Amount   float64    `json:"amount"`
	Price    float64    `json:"price"`
}

// OrderAck is the venue's acceptance of an order.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// OrderStatus is the venue's view of an order's lifecycle.
type OrderStatus struct {
	OrderID      string  `json:"order_id"`
	Status       string  `json:"status"` // "open", "filled", "cancelled"
	FilledAmount float64 `json:"filled_amount"`
}

// Config holds venue REST client configuration.
type Config struct {
	Venue          types.Venue
	BaseURL        string
	APIKey         string
	Secret         string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Client is the outbound REST adapter for one venue. Order calls run behind
// a circuit breaker so a venue with repeated failures stops receiving legs
// until it recovers.
type Client struct {
	venue      types.Venue
	baseURL    string
	apiKey     string
	secret     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a venue REST client.
func NewClient(cfg *Config) *Client {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	c := &Client{
		venue:   cfg.Venue,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		secret:  cfg.Secret,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		},
		logger: cfg.Logger,
		now:    time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("venue-%s-rest", cfg.Venue),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn("venue-breaker-state-changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			BreakerState.WithLabelValues(string(cfg.Venue)).Set(breakerStateValue(to))
		},
	})

	return c
}

// Venue returns the venue this client talks to.
func (c *Client) Venue() types.Venue { return c.venue }

// PlaceOrder submits one order. Price must lie in [0,1] and amount must be
// positive; violations are rejected locally and never reach the wire.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error) {
	if req.Price < 0 || req.Price > 1 {
		return nil, &types.VenueAPIError{
			Venue:   c.venue,
			Op:      "place_order",
			Message: fmt.Sprintf("price %.6f outside [0,1]", req.Price),
		}
	}
	if req.Amount <= 0 {
		return nil, &types.VenueAPIError{
			Venue:   c.venue,
			Op:      "place_order",
			Message: fmt.Sprintf("non-positive amount %.6f", req.Amount),
		}
	}

	var ack OrderAck
	err := c.call(ctx, "place_order", http.MethodPost, "/orders", req, &ack)
	if err != nil {
		return nil, err
	}

	c.logger.Info("order-placed",
		zap.String("venue", string(c.venue)),
		zap.String("market-id", req.MarketID),
		zap.String("side", string(req.Side)),
		zap.Float64("amount", req.Amount),
		zap.Float64("price", req.Price),
		zap.String("order-id", ack.OrderID))

	return &ack, nil
}

// CancelOrder cancels an order by venue order id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	err := c.call(ctx, "cancel_order", http.MethodDelete, "/orders/"+orderID, nil, nil)
	if err != nil {
		return err
	}

	c.logger.Info("order-cancelled",
		zap.String("venue", string(c.venue)),
		zap.String("order-id", orderID))

	return nil
}

// OrderStatus fetches the current state of an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	var status OrderStatus
	err := c.call(ctx, "order_status", http.MethodGet, "/orders/"+orderID, nil, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// venueMarketJSON is the venue's listing entry shape.
type venueMarketJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ListMarkets fetches the venue's active market listing.
func (c *Client) ListMarkets(ctx context.Context) ([]types.VenueMarket, error) {
	var listing []venueMarketJSON
	err := c.call(ctx, "list_markets", http.MethodGet, "/markets?active=true", nil, &listing)
	if err != nil {
		return nil, err
	}

	markets := make([]types.VenueMarket, 0, len(listing))
	for _, m := range listing {
		markets = append(markets, types.VenueMarket{
			Venue:       c.venue,
			MarketID:    m.ID,
			Title:       m.Title,
			Description: m.Description,
		})
	}

	c.logger.Debug("markets-listed",
		zap.String("venue", string(c.venue)),
		zap.Int("count", len(markets)))

	return markets, nil
}

// call runs one signed HTTP request through the breaker and decodes the
// response into out when out is non-nil.
func (c *Client) call(ctx context.Context, op, method, path string, payload, out any) error {
	start := time.Now()

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, method, path, payload, out)
	})

	RequestDurationSeconds.WithLabelValues(string(c.venue), op).Observe(time.Since(start).Seconds())

	if err != nil {
		RequestsTotal.WithLabelValues(string(c.venue), op, "error").Inc()
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return &types.VenueAPIError{
				Venue:   c.venue,
				Op:      op,
				Code:    "CIRCUIT_OPEN",
				Message: err.Error(),
			}
		}
		if apiErr, ok := err.(*types.VenueAPIError); ok {
			return apiErr
		}
		return &types.VenueAPIError{
			Venue:   c.venue,
			Op:      op,
			Message: err.Error(),
		}
	}

	RequestsTotal.WithLabelValues(string(c.venue), op, "ok").Inc()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-SIGNATURE", c.sign(timestamp, method, path, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &types.VenueAPIError{
			Venue:   c.venue,
			Code:    strconv.Itoa(resp.StatusCode),
			Message: string(respBody),
		}
	}

	if out == nil {
		return nil
	}

	err = json.Unmarshal(respBody, out)
	if err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// sign produces the HMAC-SHA256 request signature over
// timestamp + method + path + body.
func (c *Client) sign(timestamp, method, path string, body []byte) string {
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(timestamp))
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

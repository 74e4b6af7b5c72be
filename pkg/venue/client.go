package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// State is the venue client's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthPending
	StateOpen
	StateReconnecting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ErrAuthFailed is returned when the venue rejects the auth handshake or the
// auth reply does not arrive in time. Treated as a connection close: the
// reconnect policy applies.
var ErrAuthFailed = errors.New("venue auth handshake failed")

// Conn is the subset of a websocket connection the client needs. Satisfied
// by *websocket.Conn; tests substitute a scripted fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// DialFunc opens a stream to the venue.
type DialFunc func(ctx context.Context, url string, timeout time.Duration) (Conn, error)

func gorillaDial(ctx context.Context, url string, timeout time.Duration) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config holds venue client configuration.
type Config struct {
	URL               string
	APIKey            string
	Dialect           Dialect
	DialTimeout       time.Duration
	PingInterval      time.Duration
	AuthTimeout       time.Duration
	Reconnect         ReconnectPolicy
	MessageBufferSize int
	Logger            *zap.Logger
	Dial              DialFunc // optional; defaults to a gorilla websocket dialer
}

// Client maintains one long-lived stream to a venue and emits normalized
// order book snapshots for the markets in its desired-subscription set. The
// set is the client's own state: on every (re)connect it is re-issued in
// full, independent of anything the previous stream knew.
type Client struct {
	cfg     Config
	venue   types.Venue
	dialect Dialect
	logger  *zap.Logger
	dial    DialFunc

	books      chan *types.OrderBook
	reconnectC chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	conn    Conn
	desired map[string]struct{}

	state     atomic.Int32
	connected atomic.Bool
	lastPong  atomic.Int64
}

// New creates a venue client. Start must be called before books flow.
func New(cfg Config) *Client {
	if cfg.Dial == nil {
		cfg.Dial = gorillaDial
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		cfg:        cfg,
		venue:      cfg.Dialect.Venue(),
		dialect:    cfg.Dialect,
		logger:     cfg.Logger.With(zap.String("venue", string(cfg.Dialect.Venue()))),
		dial:       cfg.Dial,
		books:      make(chan *types.OrderBook, cfg.MessageBufferSize),
		reconnectC: make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		desired:    make(map[string]struct{}),
	}
}

// Venue returns the venue this client streams from.
func (c *Client) Venue() types.Venue { return c.venue }

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// Books returns the channel of normalized order book snapshots. Events for
// one market id are emitted in stream arrival order.
func (c *Client) Books() <-chan *types.OrderBook { return c.books }

// Start opens the stream and launches the ping and reconnect loops. An
// initial connection failure is not fatal: the reconnect policy takes over.
func (c *Client) Start() error {
	c.logger.Info("venue-client-starting", zap.String("url", c.cfg.URL))

	err := c.connect(c.ctx)
	if err != nil {
		c.logger.Warn("initial-connect-failed", zap.Error(err))
		c.signalReconnect()
	}

	c.wg.Add(2)
	go c.pingLoop()
	go c.reconnectLoop()

	return nil
}

// connect dials the venue, runs the auth handshake when the dialect requires
// one, publishes the connection, and re-issues every desired subscription.
func (c *Client) connect(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	conn, err := c.dial(ctx, c.cfg.URL, c.cfg.DialTimeout)
	if err != nil {
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	err = c.authenticate(conn)
	if err != nil {
		_ = conn.Close()
		c.state.Store(int32(StateIdle))
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.lastPong.Store(time.Now().UnixNano())
	c.connected.Store(true)
	c.state.Store(int32(StateOpen))
	ActiveConnections.WithLabelValues(string(c.venue)).Set(1)

	err = c.resubscribeAll(conn)
	if err != nil {
		c.teardownConn()
		return fmt.Errorf("resubscribe: %w", err)
	}

	c.wg.Add(1)
	go c.readLoop(conn)

	c.logger.Info("venue-client-connected")

	return nil
}

// authenticate performs the post-open handshake for venues that require one.
// The stream is read synchronously here; the read loop is not running yet.
func (c *Client) authenticate(conn Conn) error {
	payload := c.dialect.AuthMessage(c.cfg.APIKey)
	if payload == nil {
		return nil
	}

	c.state.Store(int32(StateAuthPending))

	err := conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		return fmt.Errorf("write auth message: %w", err)
	}

	deadline := time.Now().Add(c.cfg.AuthTimeout)
	err = conn.SetReadDeadline(deadline)
	if err != nil {
		return fmt.Errorf("set auth deadline: %w", err)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			AuthFailuresTotal.WithLabelValues(string(c.venue)).Inc()
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}

		switch c.dialect.ClassifyAuth(frame) {
		case AuthAccepted:
			// Clear the handshake deadline before streaming.
			err = conn.SetReadDeadline(time.Time{})
			if err != nil {
				return fmt.Errorf("clear auth deadline: %w", err)
			}
			c.logger.Info("venue-auth-accepted")
			return nil
		case AuthRejected:
			AuthFailuresTotal.WithLabelValues(string(c.venue)).Inc()
			return fmt.Errorf("%w: rejected by venue", ErrAuthFailed)
		case AuthPendingReply:
			// Unrelated frame arrived first; keep waiting.
		}
	}
}

// Subscribe adds market ids to the desired-subscription set. Idempotent. If
// the stream is open the subscription is sent immediately; otherwise it is
// buffered and issued on the next (re)connect.
func (c *Client) Subscribe(ctx context.Context, marketIDs []string) error {
	if len(marketIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	newIDs := make([]string, 0, len(marketIDs))
	for _, id := range marketIDs {
		if _, ok := c.desired[id]; !ok {
			c.desired[id] = struct{}{}
			newIDs = append(newIDs, id)
		}
	}
	total := len(c.desired)
	conn := c.conn
	c.mu.Unlock()

	SubscriptionCount.WithLabelValues(string(c.venue)).Set(float64(total))

	if len(newIDs) == 0 {
		return nil
	}

	if !c.connected.Load() || conn == nil {
		c.logger.Debug("subscription-buffered", zap.Int("count", len(newIDs)))
		return nil
	}

	err := conn.WriteMessage(websocket.TextMessage, c.dialect.SubscribeMessage(newIDs))
	if err != nil {
		// The ids stay in the desired set; the reconnect path re-issues them.
		return fmt.Errorf("write subscribe message: %w", err)
	}

	c.logger.Info("subscribed-to-markets",
		zap.Int("new-count", len(newIDs)),
		zap.Int("total-count", total))

	return nil
}

// Unsubscribe removes market ids from the desired-subscription set.
// Idempotent.
func (c *Client) Unsubscribe(ctx context.Context, marketIDs []string) error {
	if len(marketIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	removed := make([]string, 0, len(marketIDs))
	for _, id := range marketIDs {
		if _, ok := c.desired[id]; ok {
			delete(c.desired, id)
			removed = append(removed, id)
		}
	}
	total := len(c.desired)
	conn := c.conn
	c.mu.Unlock()

	SubscriptionCount.WithLabelValues(string(c.venue)).Set(float64(total))

	if len(removed) == 0 {
		return nil
	}

	if !c.connected.Load() || conn == nil {
		return nil
	}

	err := conn.WriteMessage(websocket.TextMessage, c.dialect.UnsubscribeMessage(removed))
	if err != nil {
		return fmt.Errorf("write unsubscribe message: %w", err)
	}

	c.logger.Info("unsubscribed-from-markets",
		zap.Int("count", len(removed)),
		zap.Int("remaining-count", total))

	return nil
}

// resubscribeAll issues a single subscription covering the whole desired set.
func (c *Client) resubscribeAll(conn Conn) error {
	c.mu.RLock()
	ids := make([]string, 0, len(c.desired))
	for id := range c.desired {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	err := conn.WriteMessage(websocket.TextMessage, c.dialect.SubscribeMessage(ids))
	if err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	c.logger.Info("resubscribed-to-markets", zap.Int("count", len(ids)))

	return nil
}

// readLoop reads and decodes frames from one connection until it fails.
func (c *Client) readLoop(conn Conn) {
	defer c.wg.Done()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}

			c.logger.Warn("venue-stream-closed", zap.Error(err))
			c.teardownConn()
			c.signalReconnect()
			return
		}

		MessagesReceivedTotal.WithLabelValues(string(c.venue)).Inc()

		book, err := c.dialect.DecodeBook(frame)
		if err != nil {
			// Malformed frame: log and drop, the stream continues.
			c.logger.Debug("malformed-venue-message", zap.Error(err))
			MessagesDroppedTotal.WithLabelValues(string(c.venue), "malformed").Inc()
			continue
		}
		if book == nil {
			continue
		}

		select {
		case c.books <- book:
		default:
			c.logger.Warn("book-channel-full", zap.String("market-id", book.MarketID))
			MessagesDroppedTotal.WithLabelValues(string(c.venue), "channel_full").Inc()
		}
	}
}

// pingLoop sends a liveness ping every interval while open. Two consecutive
// intervals without a pong are treated as a stream close.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				continue
			}

			stale := time.Since(time.Unix(0, c.lastPong.Load()))
			if stale > 2*c.cfg.PingInterval {
				c.logger.Warn("pong-timeout-treating-as-close", zap.Duration("stale", stale))
				c.teardownConn()
				continue
			}

			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				continue
			}

			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			if err != nil {
				c.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop waits for a disconnect signal and drives the backoff policy.
// On exhaustion the client stays idle until explicitly restarted.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectC:
		}

		if c.connected.Load() {
			continue
		}

		c.state.Store(int32(StateReconnecting))
		c.logger.Warn("connection-lost-initiating-reconnect")

		err := c.cfg.Reconnect.Run(c.ctx, c.logger, c.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			c.state.Store(int32(StateIdle))
			c.logger.Error("venue-stream-max-retries", zap.Error(err))
			return
		}
	}
}

// teardownConn closes the live connection, which unblocks the read loop.
func (c *Client) teardownConn() {
	c.connected.Store(false)
	ActiveConnections.WithLabelValues(string(c.venue)).Set(0)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) signalReconnect() {
	select {
	case c.reconnectC <- struct{}{}:
	default:
	}
}

// Close cancels any pending reconnect, closes the stream, and clears the
// desired-subscription set.
func (c *Client) Close() error {
	c.logger.Info("closing-venue-client")

	c.state.Store(int32(StateClosing))
	c.cancel()
	c.teardownConn()
	c.wg.Wait()

	c.mu.Lock()
	c.desired = make(map[string]struct{})
	c.mu.Unlock()

	close(c.books)
	c.state.Store(int32(StateIdle))

	c.logger.Info("venue-client-closed")

	return nil
}

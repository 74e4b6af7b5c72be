package venue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

var errConnClosed = errors.New("fake conn closed")

// fakeConn is an in-memory Conn. Reads block on the inbound channel; writes
// are recorded for assertions.
type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.inbound:
		return 1, msg, nil
	case <-c.done:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(h func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) writtenPayloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// dialSequence hands out prepared conns in order.
type dialSequence struct {
	mu    sync.Mutex
	conns []*fakeConn
	next  int
}

func (d *dialSequence) dial(ctx context.Context, url string, timeout time.Duration) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.conns) {
		return nil, errors.New("no more conns")
	}
	conn := d.conns[d.next]
	d.next++
	return conn, nil
}

func newTestClient(t *testing.T, dialect Dialect, dial DialFunc) *Client {
	t.Helper()
	return New(Config{
		URL:     "wss://venue.example.com/ws",
		APIKey:  "test-key",
		Dialect: dialect,
		Reconnect: ReconnectPolicy{
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  5,
		},
		MessageBufferSize: 64,
		Logger:            zap.NewNop(),
		Dial:              dial,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestClient_SubscribeIdempotent(t *testing.T) {
	conn := newFakeConn()
	seq := &dialSequence{conns: []*fakeConn{conn}}

	client := newTestClient(t, DialectA{}, seq.dial)
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	if err := client.Subscribe(ctx, []string{"mkt-1", "mkt-2"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Same ids again: no new wire message.
	if err := client.Subscribe(ctx, []string{"mkt-1", "mkt-2"}); err != nil {
		t.Fatalf("repeat subscribe: %v", err)
	}

	writes := conn.writtenPayloads()
	if len(writes) != 1 {
		t.Fatalf("expected 1 subscribe write, got %d: %v", len(writes), writes)
	}
	if !strings.Contains(writes[0], "mkt-1") || !strings.Contains(writes[0], "mkt-2") {
		t.Errorf("subscribe payload missing ids: %s", writes[0])
	}
}

func TestClient_ResubscribesFullSetOnReconnect(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	seq := &dialSequence{conns: []*fakeConn{first, second}}

	client := newTestClient(t, DialectA{}, seq.dial)
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Subscribe(ctx, []string{"mkt-1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Subscribe(ctx, []string{"mkt-2"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Drop the stream; the reconnect loop should dial the second conn and
	// re-issue the whole desired set in one message.
	first.Close()

	waitFor(t, 2*time.Second, func() bool {
		return len(second.writtenPayloads()) >= 1
	})

	writes := second.writtenPayloads()
	if len(writes) != 1 {
		t.Fatalf("expected exactly 1 resubscribe write, got %d: %v", len(writes), writes)
	}
	if !strings.Contains(writes[0], "mkt-1") || !strings.Contains(writes[0], "mkt-2") {
		t.Errorf("resubscribe payload missing ids: %s", writes[0])
	}
}

func TestClient_EmitsNormalizedBooks(t *testing.T) {
	conn := newFakeConn()
	seq := &dialSequence{conns: []*fakeConn{conn}}

	client := newTestClient(t, DialectA{}, seq.dial)
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer client.Close()

	conn.inbound <- []byte(`{"type":"book","market":"mkt-1","bids":[["0.44","1000"]],"asks":[["0.46","1200"]],"timestamp":"1700000000000"}`)

	select {
	case book := <-client.Books():
		if book.Venue != types.VenueA {
			t.Errorf("expected venue A, got %s", book.Venue)
		}
		if book.MarketID != "mkt-1" {
			t.Errorf("expected market mkt-1, got %s", book.MarketID)
		}
		if len(book.Bids) != 1 || book.Bids[0].Price != 0.44 || book.Bids[0].Size != 1000 {
			t.Errorf("unexpected bids: %+v", book.Bids)
		}
		if book.Timestamp.UnixMilli() != 1700000000000 {
			t.Errorf("unexpected timestamp: %v", book.Timestamp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no book emitted")
	}
}

func TestClient_DropsMalformedFrames(t *testing.T) {
	conn := newFakeConn()
	seq := &dialSequence{conns: []*fakeConn{conn}}

	client := newTestClient(t, DialectA{}, seq.dial)
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer client.Close()

	conn.inbound <- []byte(`{"type":"book","market":"bad","bids":[["1.5","10"]],"asks":[]}`)
	conn.inbound <- []byte(`not json at all`)
	conn.inbound <- []byte(`{"type":"book","market":"mkt-ok","bids":[["0.5","10"]],"asks":[["0.6","10"]],"timestamp":"1"}`)

	select {
	case book := <-client.Books():
		if book.MarketID != "mkt-ok" {
			t.Errorf("expected only the valid book, got %s", book.MarketID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid book was not emitted after malformed frames")
	}
}

func TestClient_AuthHandshakeBeforeSubscriptions(t *testing.T) {
	conn := newFakeConn()
	// Queue an unrelated frame first, then the ack: the handshake must skip
	// past frames that are not auth replies.
	conn.inbound <- []byte(`{"channel":"heartbeat"}`)
	conn.inbound <- []byte(`{"type":"auth_success"}`)
	seq := &dialSequence{conns: []*fakeConn{conn}}

	client := newTestClient(t, DialectB{}, seq.dial)
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer client.Close()

	waitFor(t, 2*time.Second, func() bool { return client.State() == StateOpen })

	writes := conn.writtenPayloads()
	if len(writes) == 0 {
		t.Fatal("expected auth write")
	}
	if !strings.Contains(writes[0], `"action":"auth"`) || !strings.Contains(writes[0], "test-key") {
		t.Errorf("first write is not the auth message: %s", writes[0])
	}
}

func TestClient_AuthRejectedDoesNotOpen(t *testing.T) {
	conn := newFakeConn()
	conn.inbound <- []byte(`{"type":"auth_failure"}`)
	// The reconnect loop will retry and exhaust the dial sequence.
	seq := &dialSequence{conns: []*fakeConn{conn}}

	client := newTestClient(t, DialectB{}, seq.dial)
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer client.Close()

	waitFor(t, 2*time.Second, func() bool {
		s := client.State()
		return s == StateIdle || s == StateReconnecting
	})

	if client.State() == StateOpen {
		t.Fatal("client must not reach Open after auth rejection")
	}
}

func TestClient_UnsubscribeRemovesFromDesiredSet(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	seq := &dialSequence{conns: []*fakeConn{first, second}}

	client := newTestClient(t, DialectA{}, seq.dial)
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Subscribe(ctx, []string{"mkt-1", "mkt-2"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Unsubscribe(ctx, []string{"mkt-2"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	first.Close()

	waitFor(t, 2*time.Second, func() bool {
		return len(second.writtenPayloads()) >= 1
	})

	resub := second.writtenPayloads()[0]
	if !strings.Contains(resub, "mkt-1") {
		t.Errorf("resubscribe should include mkt-1: %s", resub)
	}
	if strings.Contains(resub, "mkt-2") {
		t.Errorf("resubscribe must not include unsubscribed mkt-2: %s", resub)
	}
}

// Package eventbus fans out engine events to in-process subscribers. The
// detector and coordinator publish; the push feed and the auto-execute loop
// subscribe. Publish never blocks: a slow subscriber loses events rather
// than stalling the hot path.
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Event types carried on the bus.
const (
	TypeOpportunity      = "arbitrage_opportunity"
	TypeExecutionSuccess = "execution_success"
	TypeExecutionFailed  = "execution_failed"
)

// Event is one published message.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type subscriber struct {
	id int
	ch chan Event
}

// Bus is a fan-out of events to subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscriber
	nextID int
	closed bool
	logger *zap.Logger
}

// New creates an event bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned cancel function removes the subscription and closes the channel;
// it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{id: b.nextID, ch: make(chan Event, buffer)}
	b.nextID++

	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	b.subs = append(b.subs, sub)
	SubscribersGauge.Set(float64(len(b.subs)))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.remove(sub.id)
		})
	}

	return sub.ch, cancel
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			break
		}
	}
	SubscribersGauge.Set(float64(len(b.subs)))
}

// Publish delivers the event to every subscriber without blocking.
// Per-subscriber channel order is preserved for events published from one
// goroutine.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subs...)
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return
	}

	EventsPublishedTotal.WithLabelValues(event.Type).Inc()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			EventsDroppedTotal.WithLabelValues(event.Type).Inc()
			b.logger.Debug("event-dropped-slow-subscriber",
				zap.String("type", event.Type),
				zap.Int("subscriber", sub.id))
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	SubscribersGauge.Set(0)

	return nil
}

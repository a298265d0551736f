package events

import (
	"log/slog"
	"sync"

	"github.com/listenupapp/listenup-client/internal/id"
)

// subscriberBuffer is the per-subscriber channel depth. A consumer that falls
// this far behind starts losing events and must re-read state from the store.
const subscriberBuffer = 100

// Subscription is one consumer's attachment to the bus.
type Subscription struct {
	// C delivers events in publish order. Closed by Unsubscribe.
	C <-chan Event

	id  string
	bus *Bus
	ch  chan Event
}

// Unsubscribe detaches the subscription and closes C. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
}

// Bus fans events out to subscribers with non-blocking delivery.
type Bus struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscription
	closed      bool
}

// NewBus creates a bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[string]*Subscription),
	}
}

// Subscribe attaches a new consumer. The caller must Unsubscribe when done
// or the subscriber entry leaks.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{
		C:   ch,
		id:  id.MustGenerate("sub"),
		bus: b,
		ch:  ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subscribers[sub.id] = sub
	return sub
}

func (b *Bus) remove(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(sub.ch)
}

// Publish delivers an event to every subscriber. Non-blocking send: a
// subscriber with a full buffer loses the event and gets a warning logged.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	var dropped int
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}

	if dropped > 0 && b.logger != nil {
		b.logger.Warn("dropped event for slow subscribers",
			slog.String("event_type", string(event.Type)),
			slog.Int("dropped", dropped))
	}
}

// Emit adapts the bus to the store's EventEmitter interface. Non-Event
// values are ignored.
func (b *Bus) Emit(event any) {
	if e, ok := event.(Event); ok {
		b.Publish(e)
	}
}

// Close detaches every subscriber and closes their channels. Publish after
// Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, sub := range b.subscribers {
		delete(b.subscribers, subID)
		close(sub.ch)
	}
}

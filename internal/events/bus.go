package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Event describes a completed workflow mutation.
type Event struct {
	Topic      string
	OrderID    string
	Payload    map[string]any
	OccurredAt time.Time
}

// Handler reacts to an emitted event. Handlers run synchronously on the
// emitting goroutine.
type Handler func(ctx context.Context, ev Event) error

// Bus fans events out to subscribed handlers in-process. The zero value is
// usable; a nil bus drops events silently.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	if b == nil || h == nil {
		return
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string][]Handler)
	}
	b.subs[topic] = append(b.subs[topic], h)
}

// Emit dispatches the event to every handler subscribed to its topic. Handler
// errors are joined and returned; later handlers still run after an earlier
// one fails.
func (b *Bus) Emit(ctx context.Context, topic, orderID string, payload map[string]any) error {
	if b == nil {
		return nil
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("events: topic is required")
	}
	ev := Event{Topic: topic, OrderID: orderID, Payload: payload, OccurredAt: time.Now()}
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()
	var joined error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// EventBus fans events out to subscriber channels. Publish never blocks: a
// subscriber that falls behind loses events rather than stalling the router.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]chan BusEvent
	next int

	dropped atomic.Int64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan BusEvent)}
}

// Subscribe returns a receive channel and a cancel function. The channel is
// closed on cancel.
func (b *EventBus) Subscribe(buffer int) (<-chan BusEvent, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan BusEvent, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber, dropping per-subscriber on
// a full buffer.
func (b *EventBus) Publish(ev BusEvent) {
	if ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			n := b.dropped.Add(1)
			if n == 1 || n%1000 == 0 {
				slog.Default().Debug("event bus dropped events (subscriber full)",
					"dropped", n, "event_type", ev.EventType())
			}
		}
	}
}

// Dropped returns the total number of events dropped across subscribers.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// DefaultBus is the process-wide bus.
var DefaultBus = NewEventBus()

package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Emitter provides non-blocking emission of BusEvents to an EventBus.
//
// Emit never blocks callers (drops when the buffer is full); events are
// published on a single worker goroutine.
type Emitter struct {
	bus *EventBus
	ch  chan BusEvent

	dropped atomic.Int64

	startOnce sync.Once
}

// NewEmitter creates an emitter for the given bus. If bus is nil, DefaultBus
// is used.
func NewEmitter(bus *EventBus, buffer int) *Emitter {
	if bus == nil {
		bus = DefaultBus
	}
	if buffer < 1 {
		buffer = 256
	}
	return &Emitter{
		bus: bus,
		ch:  make(chan BusEvent, buffer),
	}
}

// Start launches the background publisher loop (idempotent).
func (e *Emitter) Start() {
	e.startOnce.Do(func() {
		go func() {
			for ev := range e.ch {
				e.bus.Publish(ev)
			}
		}()
	})
}

// Emit enqueues an event for async publish. If the buffer is full, the event
// is dropped.
func (e *Emitter) Emit(ev BusEvent) {
	if ev == nil {
		return
	}
	e.Start()
	select {
	case e.ch <- ev:
	default:
		n := e.dropped.Add(1)
		// Avoid log spam: report the first drop and then every 1000 drops.
		if n == 1 || n%1000 == 0 {
			slog.Default().Debug("event emitter dropped events (buffer full)",
				"dropped", n, "event_type", ev.EventType())
		}
	}
}

// Dropped returns the number of dropped events.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

var (
	defaultEmitterOnce sync.Once
	defaultEmitter     *Emitter
)

// DefaultEmitter returns the global emitter publishing into DefaultBus.
func DefaultEmitter() *Emitter {
	defaultEmitterOnce.Do(func() {
		defaultEmitter = NewEmitter(DefaultBus, 1024)
	})
	return defaultEmitter
}

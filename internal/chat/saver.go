package chat

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// AsyncSaver persists chat snapshots on a background goroutine so routing
// never waits on disk. Enqueue never blocks; under sustained pressure older
// snapshots are superseded by newer ones for the same chat anyway, so drops
// only delay persistence, never corrupt it.
type AsyncSaver struct {
	store Store
	ch    chan *GroupChat
	log   *slog.Logger

	dropped atomic.Int64

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncSaver wraps a store. Buffer below 1 gets a default.
func NewAsyncSaver(store Store, buffer int, log *slog.Logger) *AsyncSaver {
	if buffer < 1 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &AsyncSaver{
		store: store,
		ch:    make(chan *GroupChat, buffer),
		log:   log,
		done:  make(chan struct{}),
	}
}

// Enqueue schedules a snapshot for persistence. The caller must pass a clone
// it will not mutate afterwards.
func (s *AsyncSaver) Enqueue(snapshot *GroupChat) {
	if snapshot == nil {
		return
	}
	s.start()
	select {
	case s.ch <- snapshot:
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			s.log.Warn("chat persistence queue full, snapshot dropped",
				"chat", snapshot.ChatID, "dropped", n)
		}
	}
}

// Dropped returns the number of dropped snapshots.
func (s *AsyncSaver) Dropped() int64 {
	return s.dropped.Load()
}

// Close drains pending snapshots and stops the worker.
func (s *AsyncSaver) Close() {
	s.start()
	s.closeOnce.Do(func() {
		close(s.ch)
	})
	<-s.done
}

func (s *AsyncSaver) start() {
	s.startOnce.Do(func() {
		go func() {
			defer close(s.done)
			for g := range s.ch {
				if err := s.store.Save(g); err != nil {
					s.log.Error("persisting chat failed", "chat", g.ChatID, "error", err)
				}
			}
		}()
	})
}

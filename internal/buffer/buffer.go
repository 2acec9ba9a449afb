// Package buffer accumulates streamed process output per session key until
// the process exits. Consumption is destructive: Take returns the buffered
// text and clears the entry in one step, so a key can never be routed twice
// from the same buffer. There is deliberately no Peek.
package buffer

import (
	"log/slog"
	"strings"
	"sync"
)

// Store is the minimal buffering contract the router depends on. A
// single-process deployment uses MemoryStore; a distributed one could back
// this with an external key-value store without touching router logic.
type Store interface {
	// Append adds a chunk to the buffer for key, creating it if needed,
	// and returns the new total length.
	Append(key, chunk string) int

	// Take returns the accumulated text for key and removes the entry.
	// A missing key yields the empty string.
	Take(key string) string

	// Drop discards the buffer for key without returning it. Used on
	// cancellation paths where the text must not be routed.
	Drop(key string)

	// Len returns the current buffered length for key, zero if absent.
	Len(key string) int
}

// MemoryStore is an in-memory Store safe for concurrent use. A MaxBytes
// cap guards against a runaway agent exhausting memory: once a buffer
// reaches the cap, further appends are discarded and a warning is logged
// once per key.
type MemoryStore struct {
	mu        sync.Mutex
	buffers   map[string]*strings.Builder
	truncated map[string]bool

	// MaxBytes caps each buffer. Zero means unbounded.
	MaxBytes int

	logger *slog.Logger
}

// NewMemoryStore creates an unbounded in-memory buffer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buffers:   make(map[string]*strings.Builder),
		truncated: make(map[string]bool),
	}
}

// NewBoundedMemoryStore creates a store that truncates each buffer at
// maxBytes.
func NewBoundedMemoryStore(maxBytes int) *MemoryStore {
	s := NewMemoryStore()
	s.MaxBytes = maxBytes
	return s
}

// WithLogger sets the logger used for truncation warnings.
func (s *MemoryStore) WithLogger(logger *slog.Logger) *MemoryStore {
	s.logger = logger
	return s
}

func (s *MemoryStore) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Append implements Store.
func (s *MemoryStore) Append(key, chunk string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buffers[key]
	if !ok {
		b = &strings.Builder{}
		s.buffers[key] = b
	}

	if s.MaxBytes > 0 {
		room := s.MaxBytes - b.Len()
		if room <= 0 {
			s.warnTruncatedLocked(key)
			return b.Len()
		}
		if len(chunk) > room {
			chunk = chunk[:room]
			s.warnTruncatedLocked(key)
		}
	}

	b.WriteString(chunk)
	return b.Len()
}

// warnTruncatedLocked logs the truncation warning once per buffer lifetime.
// Must be called with mu held.
func (s *MemoryStore) warnTruncatedLocked(key string) {
	if s.truncated[key] {
		return
	}
	s.truncated[key] = true
	s.log().Warn("output buffer truncated at cap",
		"key", key,
		"max_bytes", s.MaxBytes)
}

// Take implements Store.
func (s *MemoryStore) Take(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buffers[key]
	if !ok {
		return ""
	}
	delete(s.buffers, key)
	delete(s.truncated, key)
	return b.String()
}

// Drop implements Store.
func (s *MemoryStore) Drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, key)
	delete(s.truncated, key)
}

// Len implements Store.
func (s *MemoryStore) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buffers[key]; ok {
		return b.Len()
	}
	return 0
}

// Keys returns the keys with live buffers. Intended for diagnostics and for
// sweeping a chat's buffers on cancellation.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.buffers))
	for k := range s.buffers {
		keys = append(keys, k)
	}
	return keys
}

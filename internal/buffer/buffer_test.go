package buffer

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestAppendAccumulatesInOrder(t *testing.T) {
	s := NewMemoryStore()

	if n := s.Append("k1", "hello "); n != 6 {
		t.Errorf("Append() = %d, want 6", n)
	}
	if n := s.Append("k1", "world"); n != 11 {
		t.Errorf("Append() = %d, want 11", n)
	}

	if got := s.Take("k1"); got != "hello world" {
		t.Errorf("Take() = %q, want %q", got, "hello world")
	}
}

func TestTakeClearsBuffer(t *testing.T) {
	s := NewMemoryStore()
	s.Append("k1", "first run")

	if got := s.Take("k1"); got != "first run" {
		t.Fatalf("Take() = %q", got)
	}
	if got := s.Take("k1"); got != "" {
		t.Errorf("second Take() = %q, want empty", got)
	}

	// A fresh append after Take starts a new buffer with no residue.
	s.Append("k1", "second run")
	if got := s.Take("k1"); got != "second run" {
		t.Errorf("Take() after reuse = %q, want %q", got, "second run")
	}
}

func TestTakeMissingKey(t *testing.T) {
	s := NewMemoryStore()
	if got := s.Take("nope"); got != "" {
		t.Errorf("Take(missing) = %q, want empty", got)
	}
}

func TestDrop(t *testing.T) {
	s := NewMemoryStore()
	s.Append("k1", "doomed")
	s.Drop("k1")
	if got := s.Take("k1"); got != "" {
		t.Errorf("Take() after Drop = %q, want empty", got)
	}
}

func TestKeysIsolatedPerKey(t *testing.T) {
	s := NewMemoryStore()
	s.Append("a", "1")
	s.Append("b", "2")

	if got := s.Take("a"); got != "1" {
		t.Errorf("Take(a) = %q", got)
	}
	if got := s.Take("b"); got != "2" {
		t.Errorf("Take(b) = %q", got)
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v, want empty", keys)
	}
}

func TestBoundedStoreTruncates(t *testing.T) {
	s := NewBoundedMemoryStore(10)

	s.Append("k1", "0123456789")
	if n := s.Append("k1", "overflow"); n != 10 {
		t.Errorf("Append() past cap = %d, want 10", n)
	}
	if got := s.Take("k1"); got != "0123456789" {
		t.Errorf("Take() = %q, want capped content", got)
	}
}

func TestBoundedStorePartialChunk(t *testing.T) {
	s := NewBoundedMemoryStore(5)
	s.Append("k1", "abc")
	s.Append("k1", "defgh")
	if got := s.Take("k1"); got != "abcde" {
		t.Errorf("Take() = %q, want %q", got, "abcde")
	}
}

func TestBoundedCapResetsWithBuffer(t *testing.T) {
	s := NewBoundedMemoryStore(4)
	s.Append("k1", strings.Repeat("x", 10))
	if got := s.Take("k1"); got != "xxxx" {
		t.Fatalf("Take() = %q", got)
	}
	// After Take the cap applies to the fresh buffer, not the old total.
	s.Append("k1", "ab")
	if got := s.Take("k1"); got != "ab" {
		t.Errorf("Take() = %q, want %q", got, "ab")
	}
}

func TestConcurrentAppendsDistinctKeys(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			for j := 0; j < 100; j++ {
				s.Append(key, "x")
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("k%d", i)
		if got := s.Len(key); got != 100 {
			t.Errorf("Len(%s) = %d, want 100", key, got)
		}
	}
}

package supervisor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	data  map[string][]string
	exits map[string]int
	done  chan string
}

func newRecorder() *recorder {
	return &recorder{
		data:  make(map[string][]string),
		exits: make(map[string]int),
		done:  make(chan string, 16),
	}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnData: func(key, chunk string) {
			r.mu.Lock()
			r.data[key] = append(r.data[key], chunk)
			r.mu.Unlock()
		},
		OnExit: func(key string, code int) {
			r.mu.Lock()
			r.exits[key] = code
			r.mu.Unlock()
			r.done <- key
		},
	}
}

func (r *recorder) waitExit(t *testing.T, key string) int {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case k := <-r.done:
			if k == key {
				r.mu.Lock()
				defer r.mu.Unlock()
				return r.exits[key]
			}
		case <-deadline:
			t.Fatalf("process %s did not exit", key)
		}
	}
}

func (r *recorder) output(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.data[key], "")
}

func TestSpawnStreamsOutputAndExit(t *testing.T) {
	rec := newRecorder()
	s := NewExecSupervisor(rec.callbacks(), nil)

	err := s.Spawn(context.Background(), ProcSpec{
		Key:     "group-chat-a-moderator-t1",
		Command: "sh",
		Args:    []string{"-c", "printf hello"},
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if code := rec.waitExit(t, "group-chat-a-moderator-t1"); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got := rec.output("group-chat-a-moderator-t1"); got != "hello" {
		t.Errorf("output = %q, want hello", got)
	}
}

func TestSpawnDeliversStdin(t *testing.T) {
	rec := newRecorder()
	s := NewExecSupervisor(rec.callbacks(), nil)

	err := s.Spawn(context.Background(), ProcSpec{
		Key:     "k1",
		Command: "cat",
		Stdin:   "prompt text",
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	rec.waitExit(t, "k1")
	if got := rec.output("k1"); got != "prompt text" {
		t.Errorf("output = %q", got)
	}
}

func TestSpawnReportsNonZeroExit(t *testing.T) {
	rec := newRecorder()
	s := NewExecSupervisor(rec.callbacks(), nil)

	if err := s.Spawn(context.Background(), ProcSpec{
		Key:     "k2",
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
	}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if code := rec.waitExit(t, "k2"); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestSpawnRejectsDuplicateKey(t *testing.T) {
	rec := newRecorder()
	s := NewExecSupervisor(rec.callbacks(), nil)

	spec := ProcSpec{Key: "dup", Command: "sleep", Args: []string{"5"}}
	if err := s.Spawn(context.Background(), spec); err != nil {
		t.Fatalf("first Spawn() error = %v", err)
	}
	if err := s.Spawn(context.Background(), spec); err == nil {
		t.Error("duplicate Spawn() succeeded")
	}
	s.Kill("dup")
	rec.waitExit(t, "dup")
}

func TestKillMatchingByPrefix(t *testing.T) {
	rec := newRecorder()
	s := NewExecSupervisor(rec.callbacks(), nil)

	keys := []string{
		"group-chat-a-moderator-t1",
		"group-chat-a-participant-x-t2",
		"group-chat-b-moderator-t3",
	}
	for _, key := range keys {
		if err := s.Spawn(context.Background(), ProcSpec{
			Key: key, Command: "sleep", Args: []string{"10"},
		}); err != nil {
			t.Fatalf("Spawn(%s) error = %v", key, err)
		}
	}

	if n := s.KillMatching("group-chat-a-"); n != 2 {
		t.Errorf("KillMatching() = %d, want 2", n)
	}
	rec.waitExit(t, keys[0])
	rec.waitExit(t, keys[1])

	running := s.Running()
	if len(running) != 1 || running[0] != keys[2] {
		t.Errorf("Running() = %v", running)
	}
	s.Kill(keys[2])
	rec.waitExit(t, keys[2])
}

func TestKillUnknownKey(t *testing.T) {
	s := NewExecSupervisor(Callbacks{}, nil)
	if s.Kill("nope") {
		t.Error("Kill(unknown) = true")
	}
}

func TestSpawnValidation(t *testing.T) {
	s := NewExecSupervisor(Callbacks{}, nil)
	if err := s.Spawn(context.Background(), ProcSpec{Command: "x"}); err == nil {
		t.Error("Spawn() without key succeeded")
	}
	if err := s.Spawn(context.Background(), ProcSpec{Key: "k"}); err == nil {
		t.Error("Spawn() without command succeeded")
	}
}

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dicklesworthstone/parley/internal/agents"
	"github.com/Dicklesworthstone/parley/internal/buffer"
	"github.com/Dicklesworthstone/parley/internal/chat"
	"github.com/Dicklesworthstone/parley/internal/recovery"
	"github.com/Dicklesworthstone/parley/internal/router"
)

func TestExternalReadOnlyFlagApplied(t *testing.T) {
	store := chat.NewFileStore(t.TempDir())

	g, err := chat.New("alpha", "claude")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(g); err != nil {
		t.Fatal(err)
	}

	r := router.New(router.Options{}, buffer.NewMemoryStore(), agents.NewRegistry(),
		nil, nil, recovery.NewManager(1, nil))
	if err := r.Register(g); err != nil {
		t.Fatal(err)
	}

	w, err := New(store, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Another process flips the saved chat to read-only.
	external := g.Clone()
	external.ReadOnly = true
	if err := store.Save(external); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if snap, ok := r.Chat("alpha"); ok && snap.ReadOnly {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("read-only flag never applied")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestExternalArchiveApplied(t *testing.T) {
	store := chat.NewFileStore(t.TempDir())

	g, err := chat.New("beta", "claude")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(g); err != nil {
		t.Fatal(err)
	}

	r := router.New(router.Options{}, buffer.NewMemoryStore(), agents.NewRegistry(),
		nil, nil, recovery.NewManager(1, nil))
	if err := r.Register(g); err != nil {
		t.Fatal(err)
	}

	w, err := New(store, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	external := g.Clone()
	external.Archive()
	if err := store.Save(external); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if snap, ok := r.Chat("beta"); ok && snap.Archived {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("archive never applied")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestUnknownChatIgnored(t *testing.T) {
	store := chat.NewFileStore(t.TempDir())
	r := router.New(router.Options{}, buffer.NewMemoryStore(), agents.NewRegistry(),
		nil, nil, recovery.NewManager(1, nil))

	w, err := New(store, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	g, _ := chat.New("stranger", "claude")
	if err := store.Save(g); err != nil {
		t.Fatal(err)
	}

	// Nothing to assert beyond "no panic"; give the debounce a moment.
	time.Sleep(400 * time.Millisecond)
}

func TestExternalParticipantDiffApplied(t *testing.T) {
	store := chat.NewFileStore(t.TempDir())

	g, err := chat.New("gamma", "claude")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddParticipant("alice", "claude"); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(g); err != nil {
		t.Fatal(err)
	}

	r := router.New(router.Options{}, buffer.NewMemoryStore(), agents.NewRegistry(),
		nil, nil, recovery.NewManager(1, nil))
	if err := r.Register(g.Clone()); err != nil {
		t.Fatal(err)
	}

	w, err := New(store, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	// Another process swaps alice for bob.
	external := g.Clone()
	external.RemoveParticipant("alice")
	if _, err := external.AddParticipant("bob", "codex"); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(external); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, ok := r.Chat("gamma")
		if ok && snap.Participant("bob") != nil && snap.Participant("alice") == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("participant diff never applied: %v", snap.ParticipantNames())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartCreatesMissingStorageDir(t *testing.T) {
	// Fresh install: nothing has been saved yet, so the directory does not
	// exist until Start creates it.
	dir := filepath.Join(t.TempDir(), "parley", "chats")
	store := chat.NewFileStore(dir)
	r := router.New(router.Options{}, buffer.NewMemoryStore(), agents.NewRegistry(),
		nil, nil, recovery.NewManager(1, nil))

	w, err := New(store, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		t.Fatalf("Start() on missing dir error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("storage dir not created: %v", err)
	}
}

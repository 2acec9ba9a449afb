package chat

import (
	"testing"
)

func TestNewChatValidation(t *testing.T) {
	if _, err := New("", "claude"); err == nil {
		t.Error("New() with empty id succeeded")
	}
	if _, err := New("my-moderator-chat", "claude"); err == nil {
		t.Error("New() with marker in id succeeded")
	}
	// An id ending in a role word would make the chat's own keys decode to a
	// different chat, wedging every round.
	if _, err := New("review-moderator", "claude"); err == nil {
		t.Error("New() with id ending in -moderator succeeded")
	}
	if _, err := New("x-participant", "claude"); err == nil {
		t.Error("New() with id ending in -participant succeeded")
	}

	g, err := New("design-review", "claude")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if g.RoutingID() != "design-review" {
		t.Errorf("RoutingID = %q", g.RoutingID())
	}
}

func TestAddParticipant(t *testing.T) {
	g, _ := New("alpha", "claude")

	if _, err := g.AddParticipant("reviewer", "codex"); err != nil {
		t.Fatalf("AddParticipant() error = %v", err)
	}
	if _, err := g.AddParticipant("reviewer", "gemini"); err == nil {
		t.Error("duplicate name accepted")
	}
	if _, err := g.AddParticipant("moderator", "codex"); err == nil {
		t.Error("reserved name accepted")
	}
	if _, err := g.AddParticipant("a-participant-b", "codex"); err == nil {
		t.Error("name containing key marker accepted")
	}

	if p := g.Participant("reviewer"); p == nil || p.AgentID != "codex" {
		t.Errorf("Participant(reviewer) = %+v", p)
	}
}

func TestRemoveParticipant(t *testing.T) {
	g, _ := New("alpha", "claude")
	g.AddParticipant("one", "claude")
	g.AddParticipant("two", "codex")

	if !g.RemoveParticipant("one") {
		t.Error("RemoveParticipant(one) = false")
	}
	if g.RemoveParticipant("one") {
		t.Error("second remove = true")
	}
	want := []string{"two"}
	got := g.ParticipantNames()
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("ParticipantNames = %v, want %v", got, want)
	}
}

func TestResetRoundFlags(t *testing.T) {
	g, _ := New("alpha", "claude")
	p1, _ := g.AddParticipant("one", "claude")
	p2, _ := g.AddParticipant("two", "codex")
	p1.RespondedThisRound = true
	p2.RespondedThisRound = true

	g.ResetRoundFlags()

	for _, p := range g.Participants {
		if p.RespondedThisRound {
			t.Errorf("participant %s still marked responded", p.Name)
		}
	}
}

func TestArchiveImpliesReadOnly(t *testing.T) {
	g, _ := New("alpha", "claude")
	if g.IsReadOnly() {
		t.Error("fresh chat read-only")
	}
	g.Archive()
	if !g.IsReadOnly() || !g.Archived {
		t.Error("Archive() did not set read-only state")
	}
}

func TestCloneIsDeep(t *testing.T) {
	g, _ := New("alpha", "claude")
	g.AddParticipant("one", "claude")
	g.Append(EntryUser, "user", "hello", false)

	c := g.Clone()
	c.Participants[0].RespondedThisRound = true
	c.Append(EntrySystem, "system", "extra", false)

	if g.Participants[0].RespondedThisRound {
		t.Error("clone shares participant structs")
	}
	if len(g.Transcript) != 1 {
		t.Errorf("clone shares transcript, len = %d", len(g.Transcript))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())

	g, _ := New("alpha", "claude")
	g.AddParticipant("reviewer", "codex")
	g.Append(EntryModerator, "moderator", "welcome", false)

	if err := store.Save(g); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load("alpha")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ChatID != "alpha" || len(loaded.Participants) != 1 || len(loaded.Transcript) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Participants[0].Name != "reviewer" {
		t.Errorf("participant = %+v", loaded.Participants[0])
	}
}

func TestFileStoreListAndDelete(t *testing.T) {
	store := NewFileStore(t.TempDir())

	for _, id := range []string{"one", "two"} {
		g, _ := New(id, "claude")
		if err := store.Save(g); err != nil {
			t.Fatal(err)
		}
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}

	if err := store.Delete("one"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load("one"); err == nil {
		t.Error("Load() after delete succeeded")
	}
	if err := store.Delete("one"); err == nil {
		t.Error("second delete succeeded")
	}
}

func TestFileStoreListEmptyDir(t *testing.T) {
	store := NewFileStore(t.TempDir() + "/nonexistent")
	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() len = %d, want 0", len(list))
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	g, _ := New("alpha", "claude")
	store.Save(g)

	// Mutating the original must not affect the stored copy.
	g.Append(EntryUser, "user", "later", false)

	loaded, err := store.Load("alpha")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Transcript) != 0 {
		t.Errorf("stored chat shares state, transcript len = %d", len(loaded.Transcript))
	}
}

func TestAsyncSaverPersists(t *testing.T) {
	store := NewMemoryStore()
	saver := NewAsyncSaver(store, 8, nil)

	g, _ := New("alpha", "claude")
	saver.Enqueue(g.Clone())
	saver.Close()

	if _, err := store.Load("alpha"); err != nil {
		t.Errorf("chat not persisted: %v", err)
	}
}

package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Dicklesworthstone/parley/internal/agents"
	"github.com/Dicklesworthstone/parley/internal/buffer"
	"github.com/Dicklesworthstone/parley/internal/chat"
	"github.com/Dicklesworthstone/parley/internal/events"
	"github.com/Dicklesworthstone/parley/internal/recovery"
	"github.com/Dicklesworthstone/parley/internal/router"
)

func newMonitor(t *testing.T) Monitor {
	t.Helper()
	r := router.New(router.Options{}, buffer.NewMemoryStore(), agents.NewRegistry(),
		nil, nil, recovery.NewManager(1, nil))
	g, err := chat.New("alpha", "claude")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddParticipant("alice", "claude"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(g); err != nil {
		t.Fatal(err)
	}
	return NewMonitor(r, events.NewEventBus())
}

func TestViewListsChatsAndParticipants(t *testing.T) {
	m := newMonitor(t)
	view := m.View()
	if !strings.Contains(view, "alpha") {
		t.Errorf("view missing chat id:\n%s", view)
	}
	if !strings.Contains(view, "alice") {
		t.Errorf("view missing participant:\n%s", view)
	}
}

func TestBusEventsUpdateState(t *testing.T) {
	m := newMonitor(t)

	next, _ := m.Update(busMsg{ev: events.NewParticipantState("alpha", "alice", events.ParticipantThinking)})
	m = next.(Monitor)
	if !strings.Contains(m.View(), "thinking") {
		t.Errorf("participant state not reflected:\n%s", m.View())
	}

	next, _ = m.Update(busMsg{ev: events.NewTranscriptAppended("alpha", "alice", "looks good")})
	m = next.(Monitor)
	if !strings.Contains(m.View(), "looks good") {
		t.Errorf("feed entry missing:\n%s", m.View())
	}
}

func TestUnknownChatEventSeedsView(t *testing.T) {
	m := newMonitor(t)
	next, _ := m.Update(busMsg{ev: events.NewChatState("ghost", events.ChatThinking)})
	m = next.(Monitor)
	// The ghost chat is not registered with the router, so it cannot be
	// seeded; the event must simply not panic.
	_ = m.View()
}

func TestQuitKey(t *testing.T) {
	m := newMonitor(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = next.(Monitor)
	if !m.quitting {
		t.Error("q did not quit")
	}
	if cmd == nil {
		t.Error("quit command missing")
	}
}

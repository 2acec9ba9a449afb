// Package tui provides the live chat monitor: a terminal view of every
// registered chat, its round phase, participant activity, and a feed of
// recent transcript previews. The monitor is a pure observer; it subscribes
// to the event bus and never mutates router state.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/Dicklesworthstone/parley/internal/events"
	"github.com/Dicklesworthstone/parley/internal/router"
)

const feedCapacity = 50

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	chatStyle     = lipgloss.NewStyle().Bold(true)
	archivedStyle = lipgloss.NewStyle().Faint(true)
	thinkingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	feedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// busMsg wraps one bus event for the update loop.
type busMsg struct {
	ev events.BusEvent
}

// chatView is the monitor's picture of one chat.
type chatView struct {
	id           string
	state        string
	archived     bool
	participants map[string]string
}

// Monitor is the bubbletea model.
type Monitor struct {
	router *router.Router
	sub    <-chan events.BusEvent
	cancel func()

	spinner spinner.Model
	width   int
	height  int

	chats map[string]*chatView
	order []string
	feed  []string

	quitting bool
}

// NewMonitor builds a monitor subscribed to the bus, seeded with the
// router's current chats.
func NewMonitor(r *router.Router, bus *events.EventBus) Monitor {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	sub, cancel := bus.Subscribe(128)

	m := Monitor{
		router:  r,
		sub:     sub,
		cancel:  cancel,
		spinner: sp,
		chats:   make(map[string]*chatView),
	}
	for _, id := range r.ChatIDs() {
		m.seed(id)
	}
	sort.Strings(m.order)
	return m
}

func (m *Monitor) seed(id string) {
	snap, ok := m.router.Chat(id)
	if !ok {
		return
	}
	cv := &chatView{
		id:           id,
		state:        events.ChatIdle,
		archived:     snap.Archived,
		participants: make(map[string]string),
	}
	for _, p := range snap.Participants {
		cv.participants[p.Name] = events.ParticipantIdle
	}
	if ph, ok := m.router.Phase(id); ok && ph != router.PhaseIdle {
		cv.state = events.ChatThinking
	}
	m.chats[id] = cv
	m.order = append(m.order, id)
}

// Init implements tea.Model.
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitEvent())
}

func (m Monitor) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.sub
		if !ok {
			return nil
		}
		return busMsg{ev: ev}
	}
}

// Update implements tea.Model.
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}
		return m, nil

	case busMsg:
		m.apply(msg.ev)
		return m, m.waitEvent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Monitor) apply(ev events.BusEvent) {
	cv, ok := m.chats[ev.ChatID()]
	if !ok {
		m.seed(ev.ChatID())
		cv, ok = m.chats[ev.ChatID()]
		if !ok {
			return
		}
		sort.Strings(m.order)
	}

	switch e := ev.(type) {
	case events.ChatStateEvent:
		cv.state = e.State
	case events.ParticipantStateEvent:
		cv.participants[e.Participant] = e.State
	case events.ParticipantsChangedEvent:
		fresh := make(map[string]string, len(e.Participants))
		for _, name := range e.Participants {
			if st, ok := cv.participants[name]; ok {
				fresh[name] = st
			} else {
				fresh[name] = events.ParticipantIdle
			}
		}
		cv.participants = fresh
	case events.TranscriptAppendedEvent:
		m.pushFeed(fmt.Sprintf("[%s] %s: %s", e.ChatID(), e.Author, e.Preview))
	case events.RecoveryEvent:
		who := e.Participant
		if who == "" {
			who = "moderator"
		}
		if e.GaveUp {
			m.pushFeed(fmt.Sprintf("[%s] recovery for %s gave up", e.ChatID(), who))
		} else {
			m.pushFeed(fmt.Sprintf("[%s] recovering %s (attempt %d)", e.ChatID(), who, e.Attempt))
		}
	case events.RoundTimeoutEvent:
		m.pushFeed(fmt.Sprintf("[%s] round timed out waiting for %s",
			e.ChatID(), strings.Join(e.Pending, ", ")))
	}
}

func (m *Monitor) pushFeed(line string) {
	m.feed = append(m.feed, line)
	if len(m.feed) > feedCapacity {
		m.feed = m.feed[len(m.feed)-feedCapacity:]
	}
}

// View implements tea.Model.
func (m Monitor) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("parley monitor"))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(idleStyle.Render("no chats registered"))
		b.WriteString("\n")
	}
	for _, id := range m.order {
		cv := m.chats[id]
		b.WriteString(m.renderChat(cv, width))
	}

	if len(m.feed) > 0 {
		b.WriteString("\n")
		b.WriteString(chatStyle.Render("recent activity"))
		b.WriteString("\n")
		start := 0
		if max := m.feedRows(); len(m.feed) > max {
			start = len(m.feed) - max
		}
		for _, line := range m.feed[start:] {
			b.WriteString(feedStyle.Render(wordwrap.String(line, width-2)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}

func (m Monitor) renderChat(cv *chatView, width int) string {
	var b strings.Builder

	label := cv.id
	switch {
	case cv.archived:
		b.WriteString(archivedStyle.Render(label + " (archived)"))
	case cv.state == events.ChatThinking:
		b.WriteString(chatStyle.Render(label) + " " + m.spinner.View())
	default:
		b.WriteString(chatStyle.Render(label) + " " + idleStyle.Render("idle"))
	}
	b.WriteString("\n")

	names := make([]string, 0, len(cv.participants))
	for name := range cv.participants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cell := "  " + runewidth.Truncate(name, 24, "…")
		switch cv.participants[name] {
		case events.ParticipantThinking:
			b.WriteString(thinkingStyle.Render(cell + " thinking"))
		case events.ParticipantWaiting:
			b.WriteString(errorStyle.Render(cell + " waiting"))
		default:
			b.WriteString(idleStyle.Render(cell + " idle"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// feedRows bounds the feed to the space left under the chat list.
func (m Monitor) feedRows() int {
	if m.height <= 0 {
		return 10
	}
	used := 4
	for _, cv := range m.chats {
		used += 1 + len(cv.participants)
	}
	rows := m.height - used - 3
	if rows < 3 {
		rows = 3
	}
	if rows > feedCapacity {
		rows = feedCapacity
	}
	return rows
}

// Run starts the monitor in the alternate screen until the user quits.
func Run(r *router.Router, bus *events.EventBus) error {
	p := tea.NewProgram(NewMonitor(r, bus), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

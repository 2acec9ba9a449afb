// Package chat holds the group chat data model: a moderator, an ordered set
// of participant agents, and the append-only transcript the user sees.
package chat

import (
	"fmt"
	"time"

	"github.com/Dicklesworthstone/parley/internal/sessionkey"
)

// Participant is one agent taking part in a group chat.
type Participant struct {
	// Name is unique within the chat and appears inside session keys.
	Name string `json:"name"`

	// AgentID selects the agent profile ("claude", "codex", ...).
	AgentID string `json:"agent_id"`

	// AgentSessionID is the agent-side conversation handle. Empty means
	// the next spawn starts a fresh conversation; recovery clears it.
	AgentSessionID string `json:"agent_session_id,omitempty"`

	// RespondedThisRound marks whether this participant has been counted
	// against the current round's barrier.
	RespondedThisRound bool `json:"responded_this_round"`

	// LastDispatchedPrompt is the most recent instruction sent to this
	// participant. Recovery re-issues it after a session loss.
	LastDispatchedPrompt string `json:"last_dispatched_prompt,omitempty"`

	// Advisory telemetry, updated opportunistically. Never required for
	// correctness.
	ContextUsage float64 `json:"context_usage,omitempty"`
	TokenCount   int     `json:"token_count,omitempty"`
	TotalCost    float64 `json:"total_cost,omitempty"`
}

// EntryRole identifies the author kind of a transcript entry.
type EntryRole string

const (
	EntryModerator   EntryRole = "moderator"
	EntryParticipant EntryRole = "participant"
	EntryUser        EntryRole = "user"
	EntrySystem      EntryRole = "system"
)

// Entry is one message in the chat's visible log.
type Entry struct {
	Role      EntryRole `json:"role"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	IsError   bool      `json:"is_error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GroupChat is one moderated multi-agent conversation.
type GroupChat struct {
	// ChatID identifies the chat.
	ChatID string `json:"chat_id"`

	// ModeratorAgentID selects the agent profile driving the moderator.
	ModeratorAgentID string `json:"moderator_agent_id"`

	// ModeratorSessionID is the stable routing prefix embedded in session
	// keys. It is distinct from the moderator's per-round agent session id
	// and never changes after creation.
	ModeratorSessionID string `json:"moderator_session_id"`

	// ModeratorAgentSessionID is the moderator's agent-side conversation
	// handle, updated every round.
	ModeratorAgentSessionID string `json:"moderator_agent_session_id,omitempty"`

	// Participants in insertion order. Order is meaningful: it determines
	// default mention resolution and UI ordering.
	Participants []*Participant `json:"participants"`

	// ReadOnly blocks all mutating routing actions while set.
	ReadOnly bool `json:"read_only"`

	// Archived chats are kept for inspection but permanently read-only.
	Archived bool `json:"archived"`

	Transcript []Entry `json:"transcript"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a group chat. The chat id doubles as the routing prefix.
func New(chatID, moderatorAgentID string) (*GroupChat, error) {
	if err := sessionkey.ValidateChatID(chatID); err != nil {
		return nil, fmt.Errorf("invalid chat id: %w", err)
	}
	now := time.Now().UTC()
	return &GroupChat{
		ChatID:             chatID,
		ModeratorAgentID:   moderatorAgentID,
		ModeratorSessionID: chatID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// RoutingID returns the prefix used as {chatId} in session keys.
func (g *GroupChat) RoutingID() string {
	if g.ModeratorSessionID != "" {
		return g.ModeratorSessionID
	}
	return g.ChatID
}

// AddParticipant appends a participant, enforcing name validity and
// uniqueness within the chat.
func (g *GroupChat) AddParticipant(name, agentID string) (*Participant, error) {
	if err := sessionkey.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid participant name: %w", err)
	}
	if g.Participant(name) != nil {
		return nil, fmt.Errorf("participant %q already exists in chat %s", name, g.ChatID)
	}
	p := &Participant{Name: name, AgentID: agentID}
	g.Participants = append(g.Participants, p)
	g.touch()
	return p, nil
}

// RemoveParticipant removes a participant by name. Removing a participant
// that is pending in an active round is the router's problem; the model only
// maintains the list.
func (g *GroupChat) RemoveParticipant(name string) bool {
	for i, p := range g.Participants {
		if p.Name == name {
			g.Participants = append(g.Participants[:i], g.Participants[i+1:]...)
			g.touch()
			return true
		}
	}
	return false
}

// Participant returns the participant with the given name, or nil.
func (g *GroupChat) Participant(name string) *Participant {
	for _, p := range g.Participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// ParticipantNames returns the participant names in insertion order.
func (g *GroupChat) ParticipantNames() []string {
	names := make([]string, len(g.Participants))
	for i, p := range g.Participants {
		names[i] = p.Name
	}
	return names
}

// ResetRoundFlags clears every participant's responded flag. Called exactly
// once per round, when a new round begins.
func (g *GroupChat) ResetRoundFlags() {
	for _, p := range g.Participants {
		p.RespondedThisRound = false
	}
	g.touch()
}

// Append adds an entry to the visible transcript.
func (g *GroupChat) Append(role EntryRole, author, text string, isError bool) {
	g.Transcript = append(g.Transcript, Entry{
		Role:      role,
		Author:    author,
		Text:      text,
		IsError:   isError,
		Timestamp: time.Now().UTC(),
	})
	g.touch()
}

// Archive marks the chat archived and read-only. Archived chats still allow
// inspection but reject all new routing actions.
func (g *GroupChat) Archive() {
	g.Archived = true
	g.ReadOnly = true
	g.touch()
}

// IsReadOnly reports whether mutating routing actions are blocked.
func (g *GroupChat) IsReadOnly() bool {
	return g.ReadOnly || g.Archived
}

// Clone returns a deep copy, used to snapshot a chat for async persistence
// while the router keeps mutating the original.
func (g *GroupChat) Clone() *GroupChat {
	out := *g
	out.Participants = make([]*Participant, len(g.Participants))
	for i, p := range g.Participants {
		cp := *p
		out.Participants[i] = &cp
	}
	out.Transcript = make([]Entry, len(g.Transcript))
	copy(out.Transcript, g.Transcript)
	return &out
}

func (g *GroupChat) touch() {
	g.UpdatedAt = time.Now().UTC()
}

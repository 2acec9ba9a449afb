// Package events carries chat lifecycle notifications from the router to
// observers such as the TUI monitor. Emission is asynchronous and lossy:
// every event is advisory, and the authoritative state always lives in the
// router and the chat model.
package events

import "time"

// Event types.
const (
	TypeChatState           = "chat.state"
	TypeParticipantState    = "participant.state"
	TypeParticipantsChanged = "participants.changed"
	TypeTranscriptAppended  = "transcript.appended"
	TypeRecovery            = "recovery"
	TypeRoundTimeout        = "round.timeout"
)

// Chat-level states.
const (
	ChatIdle     = "idle"
	ChatThinking = "thinking"
)

// Participant-level states.
const (
	ParticipantIdle     = "idle"
	ParticipantThinking = "thinking"
	ParticipantWaiting  = "waiting"
)

// BusEvent is anything publishable on the bus.
type BusEvent interface {
	EventType() string
	ChatID() string
}

// BaseEvent carries the fields every event shares.
type BaseEvent struct {
	Type      string    `json:"type"`
	Chat      string    `json:"chat"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) EventType() string { return e.Type }
func (e BaseEvent) ChatID() string    { return e.Chat }

func base(eventType, chatID string) BaseEvent {
	return BaseEvent{Type: eventType, Chat: chatID, Timestamp: time.Now().UTC()}
}

// ChatStateEvent reports the chat-level busy indicator.
type ChatStateEvent struct {
	BaseEvent
	State string `json:"state"`
}

func NewChatState(chatID, state string) ChatStateEvent {
	return ChatStateEvent{BaseEvent: base(TypeChatState, chatID), State: state}
}

// ParticipantStateEvent reports one participant's busy indicator.
type ParticipantStateEvent struct {
	BaseEvent
	Participant string `json:"participant"`
	State       string `json:"state"`
}

func NewParticipantState(chatID, participant, state string) ParticipantStateEvent {
	return ParticipantStateEvent{
		BaseEvent:   base(TypeParticipantState, chatID),
		Participant: participant,
		State:       state,
	}
}

// ParticipantsChangedEvent signals that the participant list was modified.
type ParticipantsChangedEvent struct {
	BaseEvent
	Participants []string `json:"participants"`
}

func NewParticipantsChanged(chatID string, participants []string) ParticipantsChangedEvent {
	return ParticipantsChangedEvent{
		BaseEvent:    base(TypeParticipantsChanged, chatID),
		Participants: participants,
	}
}

// TranscriptAppendedEvent signals a new visible transcript entry.
type TranscriptAppendedEvent struct {
	BaseEvent
	Author  string `json:"author"`
	Preview string `json:"preview,omitempty"`
}

func NewTranscriptAppended(chatID, author, preview string) TranscriptAppendedEvent {
	return TranscriptAppendedEvent{
		BaseEvent: base(TypeTranscriptAppended, chatID),
		Author:    author,
		Preview:   preview,
	}
}

// RecoveryEvent reports a session-loss recovery attempt for a participant or
// the moderator.
type RecoveryEvent struct {
	BaseEvent
	Participant string `json:"participant,omitempty"`
	Attempt     int    `json:"attempt"`
	GaveUp      bool   `json:"gave_up,omitempty"`
}

func NewRecovery(chatID, participant string, attempt int, gaveUp bool) RecoveryEvent {
	return RecoveryEvent{
		BaseEvent:   base(TypeRecovery, chatID),
		Participant: participant,
		Attempt:     attempt,
		GaveUp:      gaveUp,
	}
}

// RoundTimeoutEvent reports that a round deadline expired with participants
// still pending.
type RoundTimeoutEvent struct {
	BaseEvent
	Pending []string `json:"pending"`
}

func NewRoundTimeout(chatID string, pending []string) RoundTimeoutEvent {
	return RoundTimeoutEvent{BaseEvent: base(TypeRoundTimeout, chatID), Pending: pending}
}

// Package sessionkey encodes and decodes the composite routing keys used to
// identify group chat processes in the flat process-supervisor namespace.
//
// The key grammar is:
//
//	group-chat-{chatID}-moderator-{token}
//	group-chat-{chatID}-moderator-synthesis-{token}
//	group-chat-{chatID}-participant-{name}-{token}
//
// The key is the only channel through which the router learns which chat,
// role, and participant a process event belongs to, so decoding must be total:
// keys that do not match the grammar decode to nothing and are ignored by the
// caller (the supervisor namespace is shared with unrelated subsystems).
package sessionkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role identifies which kind of process a session key addresses.
type Role string

const (
	// RoleModerator is a regular moderator turn.
	RoleModerator Role = "moderator"
	// RoleSynthesis is a moderator synthesis turn. It is a distinct round
	// type, not a participant.
	RoleSynthesis Role = "moderator-synthesis"
	// RoleParticipant is a participant turn.
	RoleParticipant Role = "participant"
)

const (
	keyPrefix       = "group-chat-"
	moderatorMarker = "-moderator-"
	synthesisSubKey = "synthesis-"
	participantMark = "-participant-"
	tokenSeparator  = "-"
)

// reservedTokens are role words a participant name may not equal, since they
// would collide with the role encodings in the key grammar.
var reservedTokens = map[string]bool{
	"moderator":           true,
	"synthesis":           true,
	"moderator-synthesis": true,
	"participant":         true,
}

// Key is the decoded form of a session key.
type Key struct {
	ChatID      string
	Role        Role
	Participant string // set only when Role == RoleParticipant
	Token       string // opaque uniqueness suffix, no semantic meaning
}

// String re-encodes the key. It assumes the key was produced by Decode or
// validated by Encode.
func (k Key) String() string {
	switch k.Role {
	case RoleSynthesis:
		return keyPrefix + k.ChatID + moderatorMarker + synthesisSubKey + k.Token
	case RoleParticipant:
		return keyPrefix + k.ChatID + participantMark + k.Participant + tokenSeparator + k.Token
	default:
		return keyPrefix + k.ChatID + moderatorMarker + k.Token
	}
}

// NewToken returns a fresh opaque token suitable for key construction.
// Hyphens are stripped so the token never collides with the participant
// name/token split, which matches the trailing hyphen-free segment.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateName reports whether a string is usable as a chat id or participant
// name inside a key. Names may contain hyphens, but must not embed the role
// markers or equal a reserved role token.
func ValidateName(s string) error {
	if s == "" {
		return fmt.Errorf("empty name")
	}
	if reservedTokens[s] {
		return fmt.Errorf("name %q is a reserved role token", s)
	}
	if strings.Contains(s, moderatorMarker) || strings.Contains(s, participantMark) {
		return fmt.Errorf("name %q contains a reserved key marker", s)
	}
	return nil
}

// ValidateChatID reports whether a string is usable as a chat id. Chat ids
// obey the name rules and additionally must not end in a role word: a chat
// id like "review-moderator" would form the reserved "-moderator-" marker
// once the role segment is appended, and its keys would decode to a
// different chat.
func ValidateChatID(s string) error {
	if err := ValidateName(s); err != nil {
		return err
	}
	for _, suffix := range []string{"-moderator", "-participant"} {
		if strings.HasSuffix(s, suffix) {
			return fmt.Errorf("chat id %q must not end in %q", s, suffix)
		}
	}
	return nil
}

// Encode builds a session key for the given chat, role and (for participant
// keys) participant name. The token should come from NewToken and must not
// contain a hyphen; a hyphenated token could re-form a role marker and
// change how the key decodes.
func Encode(chatID string, role Role, participant, token string) (string, error) {
	if err := ValidateChatID(chatID); err != nil {
		return "", fmt.Errorf("invalid chat id: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	if strings.Contains(token, tokenSeparator) {
		return "", fmt.Errorf("token %q must not contain %q", token, tokenSeparator)
	}
	switch role {
	case RoleModerator, RoleSynthesis:
		if participant != "" {
			return "", fmt.Errorf("role %s does not take a participant name", role)
		}
	case RoleParticipant:
		if err := ValidateName(participant); err != nil {
			return "", fmt.Errorf("invalid participant name: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
	return Key{ChatID: chatID, Role: role, Participant: participant, Token: token}.String(), nil
}

// Decode parses a raw process key. The second return value is false for keys
// that do not belong to the group chat subsystem; such keys must be ignored.
// Decode never mutates state and never fails loudly.
func Decode(raw string) (Key, bool) {
	rest, ok := strings.CutPrefix(raw, keyPrefix)
	if !ok {
		return Key{}, false
	}

	// The chat id may not contain either marker, so the earliest marker in
	// the remainder is the role delimiter. This keeps decoding unambiguous
	// even for participant names that end in "moderator".
	idxMod := strings.Index(rest, moderatorMarker)
	idxPart := strings.Index(rest, participantMark)

	switch {
	case idxMod >= 0 && (idxPart < 0 || idxMod < idxPart):
		chatID := rest[:idxMod]
		tail := rest[idxMod+len(moderatorMarker):]
		if chatID == "" || tail == "" {
			return Key{}, false
		}
		if tok, ok := strings.CutPrefix(tail, synthesisSubKey); ok {
			if tok == "" {
				return Key{}, false
			}
			return Key{ChatID: chatID, Role: RoleSynthesis, Token: tok}, true
		}
		return Key{ChatID: chatID, Role: RoleModerator, Token: tail}, true

	case idxPart >= 0:
		chatID := rest[:idxPart]
		tail := rest[idxPart+len(participantMark):]
		// The name is matched greedily: the token is the trailing
		// hyphen-free segment, everything before it is the name.
		cut := strings.LastIndex(tail, tokenSeparator)
		if chatID == "" || cut <= 0 || cut == len(tail)-1 {
			return Key{}, false
		}
		return Key{
			ChatID:      chatID,
			Role:        RoleParticipant,
			Participant: tail[:cut],
			Token:       tail[cut+1:],
		}, true
	}
	return Key{}, false
}

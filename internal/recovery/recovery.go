// Package recovery decides when an agent's server-side conversation is gone
// and how to respawn it. Detection is a pure predicate over the process
// outcome; the attempt ledger bounds respawns so a permanently broken agent
// cannot wedge a round.
package recovery

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Dicklesworthstone/parley/internal/agents"
)

// Detect reports whether a finished process shows the session-loss
// signature for its agent profile. It only fires when the agent was resumed
// with an existing session id: a fresh session cannot be lost.
//
// Matching is deliberately strict. A false positive costs a respawn and the
// agent's quota, so both the exit code gate and an exact substring must
// agree.
func Detect(p agents.Profile, resumed bool, raw string, exitCode int) bool {
	if !resumed {
		return false
	}
	if len(p.SessionLossExitCodes) > 0 {
		found := false
		for _, c := range p.SessionLossExitCodes {
			if exitCode == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if exitCode == 0 {
		return false
	}
	for _, sig := range p.SessionLossSignatures {
		if strings.Contains(raw, sig) {
			return true
		}
	}
	return false
}

// Preamble builds the context-reset notice prepended to the re-dispatched
// prompt after a session loss. The agent starts a fresh conversation, so the
// notice is all it knows about what happened.
func Preamble(lastPrompt string) string {
	return "[Your previous session was lost and a new one was started. " +
		"Earlier conversation context is gone. The last instruction sent to you " +
		"is repeated below.]\n\n" + lastPrompt
}

// Manager tracks recovery attempts per agent per round.
type Manager struct {
	maxAttempts int
	log         *slog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewManager creates a manager allowing maxAttempts respawns per agent per
// round. Zero means recovery is disabled: every session loss is terminal for
// the round.
func NewManager(maxAttempts int, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		maxAttempts: maxAttempts,
		log:         log,
		attempts:    make(map[string]int),
	}
}

func ledgerKey(chatID, agent string) string {
	return chatID + "\x00" + agent
}

// Attempt records one recovery attempt for an agent. It returns the attempt
// number and whether the respawn may proceed; false means the budget is
// exhausted and the agent should be recorded as errored for the round.
func (m *Manager) Attempt(chatID, agent string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ledgerKey(chatID, agent)
	m.attempts[k]++
	n := m.attempts[k]
	if n > m.maxAttempts {
		m.log.Warn("recovery budget exhausted",
			"chat", chatID, "agent", agent, "attempts", n-1)
		return n, false
	}
	m.log.Info("session loss detected, respawning",
		"chat", chatID, "agent", agent, "attempt", n, "max_attempts", m.maxAttempts)
	return n, true
}

// Reset clears the attempt count for one agent, called when it responds
// successfully.
func (m *Manager) Reset(chatID, agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, ledgerKey(chatID, agent))
}

// ResetChat clears all attempt counts for a chat, called when a round
// completes or is cancelled.
func (m *Manager) ResetChat(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := chatID + "\x00"
	for k := range m.attempts {
		if strings.HasPrefix(k, prefix) {
			delete(m.attempts, k)
		}
	}
}

// GiveUpMessage is the transcript error marker recorded when recovery is
// exhausted for an agent.
func GiveUpMessage(agent string, attempts int) string {
	return fmt.Sprintf("[%s could not be recovered after %d session restarts]", agent, attempts)
}

package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dicklesworthstone/parley/internal/chat"
	"github.com/Dicklesworthstone/parley/internal/events"
	"github.com/Dicklesworthstone/parley/internal/extract"
	"github.com/Dicklesworthstone/parley/internal/recovery"
	"github.com/Dicklesworthstone/parley/internal/sessionkey"
	"github.com/Dicklesworthstone/parley/internal/util"
)

// moderatorLedgerName keys the moderator in the recovery attempt ledger.
// Participant names can never equal it (reserved token).
const moderatorLedgerName = "moderator"

// handleExit routes one finished process. Called with the router lock held,
// after the output buffer for the key has been taken.
func (r *Router) handleExit(cs *chatState, k sessionkey.Key, info *liveProc, raw string, exitCode int) {
	chatID := cs.chat.ChatID
	if cs.chat.IsReadOnly() {
		r.log.Debug("exit dropped, chat read-only", "chat", chatID, "key", k.String())
		return
	}

	var agentID string
	var p *chat.Participant
	if k.Role == sessionkey.RoleParticipant {
		p = cs.chat.Participant(k.Participant)
		if p == nil {
			// Removed mid-round. Keep the barrier moving.
			r.log.Debug("exit for removed participant", "chat", chatID, "participant", k.Participant)
			if r.markParticipantResponded(cs, k.Participant) {
				r.spawnSynthesis(cs)
			}
			return
		}
		agentID = p.AgentID
	} else {
		agentID = cs.chat.ModeratorAgentID
	}

	profile, haveProfile := r.registry.Get(agentID)
	if haveProfile && recovery.Detect(profile, info.resumed, raw, exitCode) {
		r.handleSessionLoss(cs, k, info, p)
		return
	}

	res := extract.Extract(raw, extract.Format(r.registry.FormatFor(agentID)))
	if res.Fallback {
		r.log.Debug("structured extraction fell back to plain text",
			"chat", chatID, "key", k.String(), "agent", agentID)
	}
	if res.Text == "" {
		r.log.Info("agent produced no visible output",
			"chat", chatID, "key", k.String(), "exit_code", exitCode)
	}

	if k.Role == sessionkey.RoleParticipant {
		if res.SessionID != "" {
			p.AgentSessionID = res.SessionID
		}
		applyUsage(p, res.Usage)
		r.rec.Reset(chatID, p.Name)

		text, isErr := res.Text, false
		if text == "" && exitCode != 0 {
			text = fmt.Sprintf("[%s exited with code %d before responding]", p.Name, exitCode)
			isErr = true
		}
		r.routeAgentResponse(cs, p.Name, text, isErr)
		return
	}

	if res.SessionID != "" {
		cs.chat.ModeratorAgentSessionID = res.SessionID
	}
	r.rec.Reset(chatID, moderatorLedgerName)

	if res.Text == "" && exitCode != 0 {
		cs.chat.Append(chat.EntrySystem, "system",
			fmt.Sprintf("[moderator exited with code %d before responding]", exitCode), true)
		r.finishRound(cs)
		return
	}
	r.routeModeratorResponse(cs, res.Text)
}

// routeModeratorResponse consumes a moderator or synthesis turn. Mentions
// start a new participant round; a mention-free response is the terminal
// answer for the turn.
func (r *Router) routeModeratorResponse(cs *chatState, text string) {
	chatID := cs.chat.ChatID
	if cs.chat.IsReadOnly() {
		r.log.Debug("moderator response dropped, chat read-only", "chat", chatID)
		return
	}

	cs.chat.Append(chat.EntryModerator, moderatorLedgerName, text, false)
	r.emitTranscript(cs, moderatorLedgerName, text)

	names := Mentions(text, cs.chat.ParticipantNames())
	if len(names) == 0 {
		r.finishRound(cs)
		return
	}

	cs.round++
	cs.phase = PhaseAwaitingParticipants
	cs.synthesized = false
	cs.pending = make(map[string]struct{}, len(names))
	cs.responses = make(map[string]string, len(names))
	cs.order = names
	for _, name := range names {
		cs.pending[name] = struct{}{}
	}
	cs.chat.ResetRoundFlags()
	r.persist(cs)

	for _, name := range names {
		r.dispatchParticipant(cs, name, text)
	}
	r.startRoundTimer(cs)

	// Every dispatch may have failed; the barrier must still complete.
	if cs.phase == PhaseAwaitingParticipants && len(cs.pending) == 0 {
		r.spawnSynthesis(cs)
	}
}

// dispatchParticipant spawns one participant process for the current round.
// A spawn failure marks the participant errored so the barrier is unaffected.
func (r *Router) dispatchParticipant(cs *chatState, name, moderatorText string) {
	chatID := cs.chat.ChatID
	p := cs.chat.Participant(name)
	if p == nil {
		return
	}

	profile, ok := r.registry.Get(p.AgentID)
	if !ok {
		r.routeAgentResponse(cs, name,
			fmt.Sprintf("[%s uses unknown agent %q]", name, p.AgentID), true)
		return
	}

	prompt := r.participantPrompt(cs, p, moderatorText)
	p.LastDispatchedPrompt = prompt

	key, err := sessionkey.Encode(cs.chat.RoutingID(), sessionkey.RoleParticipant, name, sessionkey.NewToken())
	if err != nil {
		r.routeAgentResponse(cs, name, fmt.Sprintf("[%s: %v]", name, err), true)
		return
	}
	if err := r.spawn(cs, key, profile, p.AgentSessionID, prompt); err != nil {
		r.log.Error("participant spawn failed", "chat", chatID, "participant", name, "error", err)
		r.routeAgentResponse(cs, name, fmt.Sprintf("[%s could not be started: %v]", name, err), true)
		return
	}
	r.emit(events.NewParticipantState(chatID, name, events.ParticipantThinking))
}

// routeAgentResponse records a participant's turn. The transcript append
// happens before the barrier update, so a reader never observes a response
// counted in the barrier whose text is absent.
func (r *Router) routeAgentResponse(cs *chatState, name, text string, isErr bool) {
	chatID := cs.chat.ChatID
	if cs.chat.IsReadOnly() {
		r.log.Debug("participant response dropped, chat read-only",
			"chat", chatID, "participant", name)
		return
	}

	cs.chat.Append(chat.EntryParticipant, name, text, isErr)
	r.emitTranscript(cs, name, text)
	r.emit(events.NewParticipantState(chatID, name, events.ParticipantIdle))
	if cs.responses != nil {
		cs.responses[name] = text
	}
	r.persist(cs)

	if r.markParticipantResponded(cs, name) {
		r.spawnSynthesis(cs)
	}
}

// markParticipantResponded is the single barrier primitive. It is idempotent
// for a participant within a round and returns true only on the call that
// empties the pending set.
func (r *Router) markParticipantResponded(cs *chatState, name string) bool {
	if cs.pending == nil {
		return false
	}
	if _, ok := cs.pending[name]; !ok {
		return false
	}
	delete(cs.pending, name)
	if p := cs.chat.Participant(name); p != nil {
		p.RespondedThisRound = true
	}
	return len(cs.pending) == 0 && cs.phase == PhaseAwaitingParticipants
}

// spawnSynthesis starts the moderator synthesis turn. At most one synthesis
// runs per round.
func (r *Router) spawnSynthesis(cs *chatState) {
	if cs.synthesized || cs.phase != PhaseAwaitingParticipants {
		return
	}
	cs.synthesized = true
	cs.phase = PhaseSynthesizing
	r.stopTimer(cs)
	r.persist(cs)

	if err := r.spawnModerator(cs, sessionkey.RoleSynthesis, r.synthesisPrompt(cs)); err != nil {
		r.log.Error("synthesis spawn failed", "chat", cs.chat.ChatID, "error", err)
		cs.chat.Append(chat.EntrySystem, "system",
			fmt.Sprintf("[synthesis could not be started: %v]", err), true)
		r.finishRound(cs)
	}
}

// spawnModerator starts a moderator or synthesis process, resuming the
// moderator's agent-side conversation when one exists.
func (r *Router) spawnModerator(cs *chatState, role sessionkey.Role, prompt string) error {
	profile, ok := r.registry.Get(cs.chat.ModeratorAgentID)
	if !ok {
		return fmt.Errorf("unknown moderator agent %q", cs.chat.ModeratorAgentID)
	}
	key, err := sessionkey.Encode(cs.chat.RoutingID(), role, "", sessionkey.NewToken())
	if err != nil {
		return err
	}
	return r.spawn(cs, key, profile, cs.chat.ModeratorAgentSessionID, prompt)
}

// finishRound returns the chat to Idle after a terminal moderator answer or
// an unrecoverable error.
func (r *Router) finishRound(cs *chatState) {
	cs.phase = PhaseIdle
	cs.pending = nil
	cs.responses = nil
	cs.order = nil
	cs.synthesized = false
	r.stopTimer(cs)
	r.persist(cs)
	r.emit(events.NewChatState(cs.chat.ChatID, events.ChatIdle))
}

// handleSessionLoss clears the lost agent-side session and respawns with the
// last dispatched prompt behind a recovery preamble. The agent is never
// marked responded on the lossy exit itself; only a later normal exit or an
// explicit give-up counts against the barrier.
func (r *Router) handleSessionLoss(cs *chatState, k sessionkey.Key, info *liveProc, p *chat.Participant) {
	chatID := cs.chat.ChatID

	if k.Role == sessionkey.RoleParticipant {
		p.AgentSessionID = ""
		attempt, ok := r.rec.Attempt(chatID, p.Name)
		r.emit(events.NewRecovery(chatID, p.Name, attempt, !ok))
		if !ok {
			r.routeAgentResponse(cs, p.Name, recovery.GiveUpMessage(p.Name, attempt-1), true)
			return
		}

		r.emit(events.NewParticipantState(chatID, p.Name, events.ParticipantWaiting))
		profile, _ := r.registry.Get(p.AgentID)
		prompt := recovery.Preamble(p.LastDispatchedPrompt)
		key, err := sessionkey.Encode(cs.chat.RoutingID(), sessionkey.RoleParticipant, p.Name, sessionkey.NewToken())
		if err == nil {
			err = r.spawn(cs, key, profile, "", prompt)
		}
		if err != nil {
			r.log.Error("recovery respawn failed", "chat", chatID, "participant", p.Name, "error", err)
			r.routeAgentResponse(cs, p.Name,
				fmt.Sprintf("[%s could not be respawned: %v]", p.Name, err), true)
		}
		return
	}

	cs.chat.ModeratorAgentSessionID = ""
	attempt, ok := r.rec.Attempt(chatID, moderatorLedgerName)
	r.emit(events.NewRecovery(chatID, "", attempt, !ok))
	if !ok {
		cs.chat.Append(chat.EntrySystem, "system",
			recovery.GiveUpMessage(moderatorLedgerName, attempt-1), true)
		r.finishRound(cs)
		return
	}

	profile, _ := r.registry.Get(cs.chat.ModeratorAgentID)
	prompt := recovery.Preamble(info.prompt)
	key, err := sessionkey.Encode(cs.chat.RoutingID(), k.Role, "", sessionkey.NewToken())
	if err == nil {
		err = r.spawn(cs, key, profile, "", prompt)
	}
	if err != nil {
		r.log.Error("moderator respawn failed", "chat", chatID, "error", err)
		cs.chat.Append(chat.EntrySystem, "system",
			fmt.Sprintf("[moderator could not be respawned: %v]", err), true)
		r.finishRound(cs)
	}
}

// startRoundTimer arms the straggler deadline for the current round.
func (r *Router) startRoundTimer(cs *chatState) {
	if r.opts.RoundTimeout <= 0 {
		return
	}
	r.stopTimer(cs)
	chatID := cs.chat.ChatID
	round := cs.round
	cs.timer = time.AfterFunc(r.opts.RoundTimeout, func() {
		r.onRoundTimeout(chatID, round)
	})
}

func (r *Router) stopTimer(cs *chatState) {
	if cs.timer != nil {
		cs.timer.Stop()
		cs.timer = nil
	}
}

// onRoundTimeout marks every still-pending participant as errored so the
// barrier completes. Stale timers (round already moved on) are ignored.
func (r *Router) onRoundTimeout(chatID string, round int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.chats[chatID]
	if !ok || cs.round != round || cs.phase != PhaseAwaitingParticipants {
		return
	}

	var overdue []string
	for _, name := range cs.order {
		if _, still := cs.pending[name]; still {
			overdue = append(overdue, name)
		}
	}
	r.log.Warn("round timed out", "chat", chatID, "pending", overdue)
	r.emit(events.NewRoundTimeout(chatID, overdue))

	for _, name := range overdue {
		for key, info := range cs.live {
			if info.role == sessionkey.RoleParticipant && info.participant == name {
				if r.sup != nil {
					r.sup.Kill(key)
				}
				r.buffers.Drop(key)
				delete(cs.live, key)
			}
		}
		r.routeAgentResponse(cs, name,
			fmt.Sprintf("[%s did not respond before the round timeout]", name), true)
	}
}

// moderatorPrompt builds the prompt for a user-initiated moderator turn.
func (r *Router) moderatorPrompt(cs *chatState, userText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the moderator of group chat %q.\n", cs.chat.ChatID)
	b.WriteString("Participants:\n")
	for _, p := range cs.chat.Participants {
		fmt.Fprintf(&b, "  @%s (%s)\n", p.Name, p.AgentID)
	}
	b.WriteString("\nMention participants with @name to request their input. " +
		"Reply without mentions to answer the user directly.\n")
	if cs.chat.ModeratorAgentSessionID == "" {
		if tail := r.transcriptTail(cs, 20); tail != "" {
			b.WriteString("\nRecent conversation:\n")
			b.WriteString(tail)
		}
	}
	b.WriteString("\nUser message:\n")
	b.WriteString(userText)
	return b.String()
}

// participantPrompt builds the instruction dispatched to one participant.
func (r *Router) participantPrompt(cs *chatState, p *chat.Participant, moderatorText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are @%s, a participant in group chat %q.\n", p.Name, cs.chat.ChatID)
	if p.AgentSessionID == "" {
		if tail := r.transcriptTail(cs, 20); tail != "" {
			b.WriteString("\nRecent conversation:\n")
			b.WriteString(tail)
		}
	}
	b.WriteString("\nThe moderator says:\n")
	b.WriteString(moderatorText)
	b.WriteString("\n\nRespond with your contribution.")
	return b.String()
}

// synthesisPrompt aggregates the round's responses in dispatch order.
func (r *Router) synthesisPrompt(cs *chatState) string {
	var b strings.Builder
	b.WriteString("All mentioned participants have responded.\n")
	for _, name := range cs.order {
		text, ok := cs.responses[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n@%s said:\n%s\n", name, text)
	}
	b.WriteString("\nSynthesize the discussion for the user. " +
		"You may @-mention participants again to continue the conversation.")
	return b.String()
}

// transcriptTail renders the last n visible entries for prompt context.
func (r *Router) transcriptTail(cs *chatState, n int) string {
	entries := cs.chat.Transcript
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Author, e.Text)
	}
	return b.String()
}

func (r *Router) emitTranscript(cs *chatState, author, text string) {
	r.emit(events.NewTranscriptAppended(cs.chat.ChatID, author,
		util.Truncate(text, r.opts.PreviewBytes)))
}

func applyUsage(p *chat.Participant, u *extract.Usage) {
	if u == nil {
		return
	}
	if u.InputTokens+u.OutputTokens > 0 {
		p.TokenCount = u.InputTokens + u.OutputTokens
	}
	if u.TotalCostUSD > 0 {
		p.TotalCost += u.TotalCostUSD
	}
	if u.ContextUsagePct > 0 {
		p.ContextUsage = u.ContextUsagePct
	}
}

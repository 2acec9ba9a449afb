// Package router drives the round protocol of a group chat: moderator turn,
// fan-out to mentioned participants, barrier on their responses, and a
// synthesis turn. The router never blocks; it reacts to keyed data and exit
// events from the process supervisor, and "waiting" is always represented as
// state, never as a parked goroutine.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/parley/internal/agents"
	"github.com/Dicklesworthstone/parley/internal/buffer"
	"github.com/Dicklesworthstone/parley/internal/chat"
	"github.com/Dicklesworthstone/parley/internal/events"
	"github.com/Dicklesworthstone/parley/internal/recovery"
	"github.com/Dicklesworthstone/parley/internal/sessionkey"
	"github.com/Dicklesworthstone/parley/internal/supervisor"
)

var (
	ErrUnknownChat = errors.New("unknown chat")
	ErrReadOnly    = errors.New("chat is read-only")
	ErrBusy        = errors.New("chat has a round in progress")
)

// Phase is the per-chat round state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingParticipants
	PhaseSynthesizing
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingParticipants:
		return "awaiting_participants"
	case PhaseSynthesizing:
		return "synthesizing"
	default:
		return "idle"
	}
}

// Options configures a Router.
type Options struct {
	// RoundTimeout bounds how long a round waits for stragglers before
	// marking them errored so the barrier completes. 0 disables it.
	RoundTimeout time.Duration

	// PreviewBytes caps transcript previews attached to events.
	PreviewBytes int

	Logger *slog.Logger
}

// liveProc is what the router remembers about one outstanding process.
// An exit for a key with no liveProc entry is stale (cancelled round,
// foreign subsystem) and is ignored.
type liveProc struct {
	role        sessionkey.Role
	participant string
	prompt      string
	resumed     bool
}

// chatState is the transient per-chat round state. Not persisted.
type chatState struct {
	chat *chat.GroupChat

	phase     Phase
	pending   map[string]struct{}
	responses map[string]string
	order     []string

	// round increments every time a new round of participants is
	// dispatched; stale timers compare against it before acting.
	round int

	// synthesized guards at-most-one-synthesis-per-round.
	synthesized bool

	live  map[string]*liveProc
	timer *time.Timer
}

// Router orchestrates all chats. All state transitions are serialized
// through one mutex; per-chat events never contend on anything beyond it.
type Router struct {
	opts     Options
	sup      supervisor.Supervisor
	buffers  buffer.Store
	registry *agents.Registry
	saver    *chat.AsyncSaver
	emitter  *events.Emitter
	rec      *recovery.Manager
	log      *slog.Logger

	mu    sync.Mutex
	chats map[string]*chatState
}

// New creates a router. The supervisor is attached separately because it
// needs the router's callbacks at construction time.
func New(opts Options, buffers buffer.Store, registry *agents.Registry,
	saver *chat.AsyncSaver, emitter *events.Emitter, rec *recovery.Manager) *Router {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = 200
	}
	return &Router{
		opts:     opts,
		buffers:  buffers,
		registry: registry,
		saver:    saver,
		emitter:  emitter,
		rec:      rec,
		log:      log,
		chats:    make(map[string]*chatState),
	}
}

// AttachSupervisor wires the process layer. Must be called before any round
// is started.
func (r *Router) AttachSupervisor(sup supervisor.Supervisor) {
	r.sup = sup
}

// Callbacks returns the handlers the supervisor should deliver events to.
func (r *Router) Callbacks() supervisor.Callbacks {
	return supervisor.Callbacks{
		OnData: r.OnProcessData,
		OnExit: r.OnProcessExit,
	}
}

// Register adds a chat to the router. The chat keeps its persisted state;
// round state always starts Idle.
func (r *Router) Register(g *chat.GroupChat) error {
	if g == nil {
		return fmt.Errorf("nil chat")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chats[g.ChatID]; exists {
		return fmt.Errorf("chat %s already registered", g.ChatID)
	}
	r.chats[g.ChatID] = &chatState{
		chat: g,
		live: make(map[string]*liveProc),
	}
	return nil
}

// Chat returns a snapshot of a registered chat.
func (r *Router) Chat(chatID string) (*chat.GroupChat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.chats[chatID]
	if !ok {
		return nil, false
	}
	return cs.chat.Clone(), true
}

// Phase returns the current round phase for a chat.
func (r *Router) Phase(chatID string) (Phase, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.chats[chatID]
	if !ok {
		return PhaseIdle, false
	}
	return cs.phase, true
}

// ChatIDs returns the registered chat ids.
func (r *Router) ChatIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.chats))
	for id := range r.chats {
		ids = append(ids, id)
	}
	return ids
}

// SendUserMessage starts a new round: the user's message goes to the
// moderator. Rejected while a round is in flight or the chat is read-only.
func (r *Router) SendUserMessage(chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.chats[chatID]
	if !ok {
		return ErrUnknownChat
	}
	if cs.chat.IsReadOnly() {
		return ErrReadOnly
	}
	// A live moderator process with phase still Idle is a round in flight.
	if cs.phase != PhaseIdle || len(cs.live) > 0 {
		return ErrBusy
	}

	cs.chat.Append(chat.EntryUser, "user", text, false)
	r.emitTranscript(cs, "user", text)
	r.persist(cs)

	prompt := r.moderatorPrompt(cs, text)
	if err := r.spawnModerator(cs, sessionkey.RoleModerator, prompt); err != nil {
		return err
	}
	r.emit(events.NewChatState(chatID, events.ChatThinking))
	return nil
}

// AddParticipant adds a participant to a registered chat. The participant
// joins mid-conversation; it is not dispatched until the next round that
// mentions it.
func (r *Router) AddParticipant(chatID, name, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.chats[chatID]
	if !ok {
		return ErrUnknownChat
	}
	if cs.chat.IsReadOnly() {
		return ErrReadOnly
	}
	if _, err := cs.chat.AddParticipant(name, agentID); err != nil {
		return err
	}
	r.persist(cs)
	r.emit(events.NewParticipantsChanged(chatID, cs.chat.ParticipantNames()))
	return nil
}

// RemoveParticipant removes a participant. If it is still pending in the
// current round its live process is killed and the barrier shrinks so the
// round can complete without it.
func (r *Router) RemoveParticipant(chatID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.chats[chatID]
	if !ok {
		return ErrUnknownChat
	}
	if cs.chat.IsReadOnly() {
		return ErrReadOnly
	}
	if !cs.chat.RemoveParticipant(name) {
		return fmt.Errorf("no participant %q in chat %s", name, chatID)
	}
	for key, info := range cs.live {
		if info.role == sessionkey.RoleParticipant && info.participant == name {
			if r.sup != nil {
				r.sup.Kill(key)
			}
			r.buffers.Drop(key)
			delete(cs.live, key)
		}
	}
	r.persist(cs)
	r.emit(events.NewParticipantsChanged(chatID, cs.chat.ParticipantNames()))
	if r.markParticipantResponded(cs, name) {
		r.spawnSynthesis(cs)
	}
	return nil
}

// SetReadOnly flips the chat's read-only flag.
func (r *Router) SetReadOnly(chatID string, readOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.chats[chatID]
	if !ok {
		return ErrUnknownChat
	}
	cs.chat.ReadOnly = readOnly
	r.persist(cs)
	return nil
}

// Archive cancels any in-flight round and marks the chat archived. Archived
// chats stay registered for inspection but reject all new rounds.
func (r *Router) Archive(chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.chats[chatID]
	if !ok {
		return ErrUnknownChat
	}
	r.cancelLocked(cs)
	cs.chat.Archive()
	r.persist(cs)
	return nil
}

// Cancel kills all outstanding processes for a chat, clears their buffers,
// and resets the round to Idle. No synthesis is triggered.
func (r *Router) Cancel(chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.chats[chatID]
	if !ok {
		return ErrUnknownChat
	}
	r.cancelLocked(cs)
	return nil
}

func (r *Router) cancelLocked(cs *chatState) {
	for key := range cs.live {
		if r.sup != nil {
			r.sup.Kill(key)
		}
		r.buffers.Drop(key)
	}
	cs.live = make(map[string]*liveProc)
	cs.pending = nil
	cs.responses = nil
	cs.order = nil
	cs.phase = PhaseIdle
	cs.synthesized = false
	cs.round++
	r.stopTimer(cs)
	r.rec.ResetChat(cs.chat.ChatID)
	r.emit(events.NewChatState(cs.chat.ChatID, events.ChatIdle))
	r.log.Info("round cancelled", "chat", cs.chat.ChatID)
}

// OnProcessData buffers a chunk for a key. Keys that do not decode belong to
// other subsystems sharing the process namespace and are ignored.
func (r *Router) OnProcessData(key, chunk string) {
	if _, ok := sessionkey.Decode(key); !ok {
		return
	}
	r.buffers.Append(key, chunk)
}

// OnProcessExit consumes the buffered output for a key and dispatches it.
// The buffer is taken unconditionally: every control path that created a
// buffer releases it here.
func (r *Router) OnProcessExit(key string, exitCode int) {
	k, ok := sessionkey.Decode(key)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	raw := r.buffers.Take(key)

	cs, ok := r.chats[k.ChatID]
	if !ok {
		r.log.Debug("exit for unknown chat ignored", "key", key)
		return
	}
	info, live := cs.live[key]
	if !live {
		r.log.Debug("stale exit ignored", "key", key, "exit_code", exitCode)
		return
	}
	delete(cs.live, key)

	r.handleExit(cs, k, info, raw, exitCode)
}

// persist enqueues a snapshot for asynchronous storage. Called before any
// follow-up spawn so the write the next round depends on is already issued.
func (r *Router) persist(cs *chatState) {
	if r.saver != nil {
		r.saver.Enqueue(cs.chat.Clone())
	}
}

func (r *Router) emit(ev events.BusEvent) {
	if r.emitter != nil {
		r.emitter.Emit(ev)
	}
}

func (r *Router) spawn(cs *chatState, key string, p agents.Profile, sessionID, prompt string) error {
	if r.sup == nil {
		return fmt.Errorf("no supervisor attached")
	}
	args := append([]string(nil), p.Args...)
	resumed := false
	if sessionID != "" && p.ResumeFlag != "" {
		args = append(args, p.ResumeFlag, sessionID)
		resumed = true
	}
	if err := r.sup.Spawn(context.Background(), supervisor.ProcSpec{
		Key:     key,
		Command: p.Command,
		Args:    args,
		Stdin:   prompt,
	}); err != nil {
		return err
	}
	k, _ := sessionkey.Decode(key)
	cs.live[key] = &liveProc{
		role:        k.Role,
		participant: k.Participant,
		prompt:      prompt,
		resumed:     resumed,
	}
	return nil
}

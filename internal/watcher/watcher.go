// Package watcher applies external chat-file edits to the running router.
// Another process (or the user, with an editor) can flip a saved chat to
// read-only or archived; the watcher notices the write and updates the
// router so the read-only gate takes effect without a restart.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Dicklesworthstone/parley/internal/chat"
	"github.com/Dicklesworthstone/parley/internal/router"
)

const debounceDelay = 250 * time.Millisecond

// Watcher watches the chat storage directory with debouncing.
type Watcher struct {
	fs     *fsnotify.Watcher
	store  *chat.FileStore
	router *router.Router
	log    *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a watcher over the store's directory. Start must be called to
// begin watching.
func New(store *chat.FileStore, r *router.Router, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	return &Watcher{
		fs:     fs,
		store:  store,
		router: r,
		log:    log,
		timers: make(map[string]*time.Timer),
		done:   make(chan struct{}),
	}, nil
}

// Start begins watching, creating the storage directory if this is a fresh
// install that has never saved a chat.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.store.Dir(), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", w.store.Dir(), err)
	}
	if err := w.fs.Add(w.store.Dir()); err != nil {
		return fmt.Errorf("watching %s: %w", w.store.Dir(), err)
	}
	go w.loop()
	return nil
}

// Close stops watching and releases the underlying watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, "parley-atomic-") {
				continue
			}
			w.schedule(strings.TrimSuffix(name, ".json"))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("chat watcher error", "error", err)
		}
	}
}

// schedule debounces rapid successive writes to the same chat file.
func (w *Watcher) schedule(chatID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[chatID]; ok {
		t.Stop()
	}
	w.timers[chatID] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, chatID)
		w.mu.Unlock()
		w.reload(chatID)
	})
}

// reload compares the on-disk flags with the router's view and applies
// changes. Writes issued by the router itself round-trip to the same values
// and settle without further effect.
func (w *Watcher) reload(chatID string) {
	saved, err := w.store.Load(chatID)
	if err != nil {
		w.log.Debug("chat reload skipped", "chat", chatID, "error", err)
		return
	}
	current, ok := w.router.Chat(chatID)
	if !ok {
		return
	}

	if saved.Archived && !current.Archived {
		w.log.Info("chat archived externally", "chat", chatID)
		if err := w.router.Archive(chatID); err != nil {
			w.log.Warn("applying external archive failed", "chat", chatID, "error", err)
		}
		return
	}
	if !current.IsReadOnly() {
		w.applyParticipants(chatID, saved, current)
	}
	if saved.ReadOnly != current.ReadOnly {
		w.log.Info("chat read-only flag changed externally",
			"chat", chatID, "read_only", saved.ReadOnly)
		if err := w.router.SetReadOnly(chatID, saved.ReadOnly); err != nil {
			w.log.Warn("applying external read-only flag failed", "chat", chatID, "error", err)
		}
	}
}

// applyParticipants diffs the saved participant list against the router's
// and applies additions and removals.
func (w *Watcher) applyParticipants(chatID string, saved, current *chat.GroupChat) {
	want := make(map[string]string, len(saved.Participants))
	for _, p := range saved.Participants {
		want[p.Name] = p.AgentID
	}
	for _, p := range current.Participants {
		if _, ok := want[p.Name]; ok {
			delete(want, p.Name)
			continue
		}
		w.log.Info("participant removed externally", "chat", chatID, "participant", p.Name)
		if err := w.router.RemoveParticipant(chatID, p.Name); err != nil {
			w.log.Warn("applying external participant removal failed",
				"chat", chatID, "participant", p.Name, "error", err)
		}
	}
	for name, agentID := range want {
		w.log.Info("participant added externally", "chat", chatID, "participant", name)
		if err := w.router.AddParticipant(chatID, name, agentID); err != nil {
			w.log.Warn("applying external participant addition failed",
				"chat", chatID, "participant", name, "error", err)
		}
	}
}

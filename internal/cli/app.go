package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Dicklesworthstone/parley/internal/agents"
	"github.com/Dicklesworthstone/parley/internal/buffer"
	"github.com/Dicklesworthstone/parley/internal/chat"
	"github.com/Dicklesworthstone/parley/internal/config"
	"github.com/Dicklesworthstone/parley/internal/events"
	"github.com/Dicklesworthstone/parley/internal/recovery"
	"github.com/Dicklesworthstone/parley/internal/router"
	"github.com/Dicklesworthstone/parley/internal/supervisor"
	"github.com/Dicklesworthstone/parley/internal/watcher"
)

// app wires the runtime pieces one command invocation needs. Commands that
// only read or edit stored chats use the store directly; commands that run
// rounds (send, monitor) build a full app.
type app struct {
	cfg      *config.Config
	store    *chat.FileStore
	saver    *chat.AsyncSaver
	registry *agents.Registry
	bus      *events.EventBus
	router   *router.Router
	sup      *supervisor.ExecSupervisor
	watcher  *watcher.Watcher
	log      *slog.Logger
}

func openStore(cfg *config.Config) *chat.FileStore {
	dir := cfg.StorageDir
	if dir == "" {
		dir = chat.StorageDir()
	} else {
		dir = config.ExpandHome(dir)
	}
	return chat.NewFileStore(dir)
}

func openRegistry(cfg *config.Config) (*agents.Registry, error) {
	registry := agents.NewRegistry()
	if cfg.AgentProfilesFile != "" {
		if err := registry.LoadFile(config.ExpandHome(cfg.AgentProfilesFile)); err != nil {
			return nil, fmt.Errorf("loading agent profiles: %w", err)
		}
	}
	return registry, nil
}

// newApp assembles the router pipeline and registers every stored chat.
func newApp(cfg *config.Config) (*app, error) {
	log := slog.Default()
	store := openStore(cfg)
	registry, err := openRegistry(cfg)
	if err != nil {
		return nil, err
	}

	saver := chat.NewAsyncSaver(store, 64, log)
	bus := events.NewEventBus()
	emitter := events.NewEmitter(bus, cfg.Events.EmitterBuffer)
	emitter.Start()
	rec := recovery.NewManager(cfg.Recovery.MaxAttempts, log)

	buffers := buffer.NewBoundedMemoryStore(cfg.Buffer.MaxBytes).WithLogger(log)

	r := router.New(router.Options{
		RoundTimeout: time.Duration(cfg.Router.RoundTimeoutSeconds) * time.Second,
		PreviewBytes: cfg.Router.PreviewBytes,
		Logger:       log,
	}, buffers, registry, saver, emitter, rec)

	sup := supervisor.NewExecSupervisor(r.Callbacks(), log)
	r.AttachSupervisor(sup)

	summaries, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	for _, s := range summaries {
		g, err := store.Load(s.ChatID)
		if err != nil {
			log.Warn("skipping unreadable chat", "chat", s.ChatID, "error", err)
			continue
		}
		if err := r.Register(g); err != nil {
			log.Warn("skipping chat", "chat", s.ChatID, "error", err)
		}
	}

	w, err := watcher.New(store, r, log)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    store,
		saver:    saver,
		registry: registry,
		bus:      bus,
		router:   r,
		sup:      sup,
		watcher:  w,
		log:      log,
	}, nil
}

// close flushes pending saves and stops background work.
func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.saver != nil {
		a.saver.Close()
	}
}

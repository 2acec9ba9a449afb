package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dicklesworthstone/parley/internal/util"
)

const (
	chatDirName   = "chats"
	fileExtension = ".json"
)

// Store persists group chats.
type Store interface {
	Save(g *GroupChat) error
	Load(chatID string) (*GroupChat, error)
	List() ([]Summary, error)
	Delete(chatID string) error
}

// Summary is the listing entry for a saved chat.
type Summary struct {
	ChatID       string    `json:"chat_id"`
	Participants int       `json:"participants"`
	Entries      int       `json:"entries"`
	Archived     bool      `json:"archived"`
	UpdatedAt    time.Time `json:"updated_at"`
	FileSize     int64     `json:"file_size"`
}

// StorageDir returns the chat storage directory. Uses XDG_DATA_HOME when
// set, otherwise ~/.local/share/parley/chats/. Falls back to the temp
// directory when no home is available, keeping the path absolute.
func StorageDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return filepath.Join(os.TempDir(), "parley", chatDirName)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "parley", chatDirName)
}

// FileStore saves each chat as one JSON file under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file store rooted at dir. Empty dir means the
// default storage directory.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = StorageDir()
	}
	return &FileStore{dir: dir}
}

// Dir returns the directory chats are stored under.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(chatID string) string {
	return filepath.Join(s.dir, util.SanitizeFilename(chatID)+fileExtension)
}

// Save writes the chat to disk atomically.
func (s *FileStore) Save(g *GroupChat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating chat directory: %w", err)
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing chat %s: %w", g.ChatID, err)
	}
	if err := util.AtomicWriteFile(s.path(g.ChatID), data, 0600); err != nil {
		return fmt.Errorf("writing chat %s: %w", g.ChatID, err)
	}
	return nil
}

// Load reads one chat from disk.
func (s *FileStore) Load(chatID string) (*GroupChat, error) {
	data, err := os.ReadFile(s.path(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no saved chat %q", chatID)
		}
		return nil, fmt.Errorf("reading chat %s: %w", chatID, err)
	}
	var g GroupChat
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing chat %s: %w", chatID, err)
	}
	return &g, nil
}

// List returns summaries of all saved chats, newest first. Corrupt files are
// skipped.
func (s *FileStore) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, fmt.Errorf("reading chat directory: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExtension) {
			continue
		}
		g, err := s.Load(strings.TrimSuffix(entry.Name(), fileExtension))
		if err != nil {
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, Summary{
			ChatID:       g.ChatID,
			Participants: len(g.Participants),
			Entries:      len(g.Transcript),
			Archived:     g.Archived,
			UpdatedAt:    g.UpdatedAt,
			FileSize:     size,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete removes a saved chat.
func (s *FileStore) Delete(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(chatID))
	if os.IsNotExist(err) {
		return fmt.Errorf("no saved chat %q", chatID)
	}
	return err
}

// MemoryStore keeps chats in memory. Used in tests and when persistence is
// disabled.
type MemoryStore struct {
	mu    sync.Mutex
	chats map[string]*GroupChat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[string]*GroupChat)}
}

func (s *MemoryStore) Save(g *GroupChat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[g.ChatID] = g.Clone()
	return nil
}

func (s *MemoryStore) Load(chatID string) (*GroupChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("no saved chat %q", chatID)
	}
	return g.Clone(), nil
}

func (s *MemoryStore) List() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.chats))
	for _, g := range s.chats {
		out = append(out, Summary{
			ChatID:       g.ChatID,
			Participants: len(g.Participants),
			Entries:      len(g.Transcript),
			Archived:     g.Archived,
			UpdatedAt:    g.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return fmt.Errorf("no saved chat %q", chatID)
	}
	delete(s.chats, chatID)
	return nil
}

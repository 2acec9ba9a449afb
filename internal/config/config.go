// Package config loads and validates the TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration.
type Config struct {
	// StorageDir overrides where chats are persisted. Empty means the
	// XDG default.
	StorageDir string `toml:"storage_dir"`

	// AgentProfilesFile is an optional YAML file with agent profile
	// overrides.
	AgentProfilesFile string `toml:"agent_profiles_file"`

	Router   RouterConfig   `toml:"router"`
	Recovery RecoveryConfig `toml:"recovery"`
	Buffer   BufferConfig   `toml:"buffer"`
	Events   EventsConfig   `toml:"events"`
}

// RouterConfig controls round orchestration.
type RouterConfig struct {
	// RoundTimeoutSeconds bounds how long a round waits for stragglers.
	// 0 disables the timeout.
	RoundTimeoutSeconds int `toml:"round_timeout_seconds"`

	// PreviewBytes caps transcript previews attached to events.
	PreviewBytes int `toml:"preview_bytes"`
}

// RecoveryConfig controls session-loss recovery.
type RecoveryConfig struct {
	// MaxAttempts bounds recovery respawns per participant per round.
	// After the last attempt the participant is recorded as errored for
	// the round so the barrier still completes.
	MaxAttempts int `toml:"max_attempts"`
}

// BufferConfig controls the per-process output buffers.
type BufferConfig struct {
	// MaxBytes caps one process's accumulated output. 0 means unbounded.
	MaxBytes int `toml:"max_bytes"`
}

// EventsConfig controls event delivery buffers.
type EventsConfig struct {
	EmitterBuffer    int `toml:"emitter_buffer"`
	SubscriberBuffer int `toml:"subscriber_buffer"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			RoundTimeoutSeconds: 600,
			PreviewBytes:        200,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 3,
		},
		Buffer: BufferConfig{
			MaxBytes: 8 * 1024 * 1024,
		},
		Events: EventsConfig{
			EmitterBuffer:    1024,
			SubscriberBuffer: 64,
		},
	}
}

// DefaultPath returns the config file location. PARLEY_CONFIG wins, then
// XDG_CONFIG_HOME, then ~/.config/parley/config.toml.
func DefaultPath() string {
	if env := os.Getenv("PARLEY_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "parley", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "parley", "config.toml")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Load reads configuration from path, layering TOML over defaults and
// environment overrides over TOML. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if dir := os.Getenv("PARLEY_STORAGE_DIR"); dir != "" {
		cfg.StorageDir = ExpandHome(dir)
	}
	if v := os.Getenv("PARLEY_ROUND_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Router.RoundTimeoutSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_RECOVERY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Recovery.MaxAttempts = n
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the program assumes.
func Validate(cfg *Config) error {
	if cfg.Router.RoundTimeoutSeconds < 0 {
		return fmt.Errorf("router.round_timeout_seconds must be >= 0, got %d", cfg.Router.RoundTimeoutSeconds)
	}
	if cfg.Router.PreviewBytes < 0 {
		return fmt.Errorf("router.preview_bytes must be >= 0, got %d", cfg.Router.PreviewBytes)
	}
	if cfg.Recovery.MaxAttempts < 0 {
		return fmt.Errorf("recovery.max_attempts must be >= 0, got %d", cfg.Recovery.MaxAttempts)
	}
	if cfg.Buffer.MaxBytes < 0 {
		return fmt.Errorf("buffer.max_bytes must be >= 0, got %d", cfg.Buffer.MaxBytes)
	}
	if cfg.Events.EmitterBuffer < 1 {
		return fmt.Errorf("events.emitter_buffer must be >= 1, got %d", cfg.Events.EmitterBuffer)
	}
	if cfg.Events.SubscriberBuffer < 1 {
		return fmt.Errorf("events.subscriber_buffer must be >= 1, got %d", cfg.Events.SubscriberBuffer)
	}
	return nil
}

// Package agents defines the profiles of the agent CLIs a group chat can
// drive: how to launch them, which streaming format they emit, and which
// output signatures mean their server-side conversation handle is gone.
package agents

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// StreamFormat identifies the structured output format an agent CLI emits
// when run non-interactively.
type StreamFormat string

const (
	// FormatClaudeStream is line-delimited JSON records as produced by
	// `claude -p --output-format stream-json`.
	FormatClaudeStream StreamFormat = "claude-stream-json"
	// FormatCodexJSONL is line-delimited JSON message records as produced
	// by `codex exec --json`.
	FormatCodexJSONL StreamFormat = "codex-jsonl"
	// FormatGeminiJSON is a single JSON payload as produced by
	// `gemini -o json`.
	FormatGeminiJSON StreamFormat = "gemini-json"
	// FormatPlain means the output is already plain text.
	FormatPlain StreamFormat = "plain"
)

// Profile describes one agent CLI.
type Profile struct {
	// ID is the agent identifier referenced by chats ("claude", "codex", ...).
	ID string `yaml:"id"`

	// Command is the executable to spawn.
	Command string `yaml:"command"`

	// Args are the base arguments for a non-interactive, structured-output run.
	Args []string `yaml:"args"`

	// ResumeFlag, when non-empty, is the flag used to continue an existing
	// agent-side conversation; the session id is passed as its value.
	ResumeFlag string `yaml:"resume_flag"`

	// Format selects the stream text extractor.
	Format StreamFormat `yaml:"format"`

	// SessionLossSignatures are exact substrings in the raw output that
	// mean the agent's conversation handle is invalid and a respawn with a
	// fresh session is needed. Matching is deliberately exact: a false
	// positive costs a respawn and therefore quota.
	SessionLossSignatures []string `yaml:"session_loss_signatures"`

	// SessionLossExitCodes, when non-empty, restricts session-loss
	// detection to these exit codes. Empty means any non-zero exit.
	SessionLossExitCodes []int `yaml:"session_loss_exit_codes"`
}

// Registry holds the known agent profiles. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a registry seeded with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range builtinProfiles() {
		r.profiles[p.ID] = p
	}
	return r
}

// builtinProfiles returns the default profiles for the supported agent CLIs.
func builtinProfiles() []Profile {
	return []Profile{
		{
			ID:         "claude",
			Command:    "claude",
			Args:       []string{"-p", "--output-format", "stream-json", "--verbose"},
			ResumeFlag: "--resume",
			Format:     FormatClaudeStream,
			SessionLossSignatures: []string{
				"No conversation found with session ID",
				"No conversation found with session id",
			},
		},
		{
			ID:         "codex",
			Command:    "codex",
			Args:       []string{"exec", "--json"},
			ResumeFlag: "resume",
			Format:     FormatCodexJSONL,
			SessionLossSignatures: []string{
				"session not found",
				"No session found",
			},
		},
		{
			ID:         "gemini",
			Command:    "gemini",
			Args:       []string{"-o", "json"},
			ResumeFlag: "--session",
			Format:     FormatGeminiJSON,
			SessionLossSignatures: []string{
				"Session expired",
				"Invalid session",
			},
		},
	}
}

// Get returns the profile for an agent id.
func (r *Registry) Get(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// FormatFor returns the stream format for an agent id, falling back to
// FormatPlain for unknown agents so extraction degrades to best-effort text.
func (r *Registry) FormatFor(id string) StreamFormat {
	if p, ok := r.Get(id); ok {
		return p.Format
	}
	return FormatPlain
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if p.Command == "" {
		return fmt.Errorf("profile %q: command is required", p.ID)
	}
	if p.Format == "" {
		p.Format = FormatPlain
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	return nil
}

// IDs returns the registered agent ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	return ids
}

// profileFile is the on-disk YAML shape for profile overrides.
type profileFile struct {
	Agents []Profile `yaml:"agents"`
}

// LoadFile merges profile overrides from a YAML file into the registry.
// Unknown fields are rejected so typos in override files surface early.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading agent profiles: %w", err)
	}
	return r.LoadYAML(data)
}

// LoadYAML merges profile overrides from YAML bytes into the registry.
func (r *Registry) LoadYAML(data []byte) error {
	var f profileFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("parsing agent profiles: %w", err)
	}
	for _, p := range f.Agents {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

package agents

import (
	"testing"
)

func TestBuiltinProfiles(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		id     string
		format StreamFormat
	}{
		{"claude", FormatClaudeStream},
		{"codex", FormatCodexJSONL},
		{"gemini", FormatGeminiJSON},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, ok := r.Get(tt.id)
			if !ok {
				t.Fatalf("Get(%q) not found", tt.id)
			}
			if p.Format != tt.format {
				t.Errorf("Format = %q, want %q", p.Format, tt.format)
			}
			if p.Command == "" {
				t.Error("Command is empty")
			}
			if len(p.SessionLossSignatures) == 0 {
				t.Error("no session loss signatures")
			}
		})
	}
}

func TestFormatForUnknownAgent(t *testing.T) {
	r := NewRegistry()
	if got := r.FormatFor("mystery"); got != FormatPlain {
		t.Errorf("FormatFor(unknown) = %q, want %q", got, FormatPlain)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Profile{Command: "x"}); err == nil {
		t.Error("Register() without id succeeded")
	}
	if err := r.Register(Profile{ID: "x"}); err == nil {
		t.Error("Register() without command succeeded")
	}

	if err := r.Register(Profile{ID: "x", Command: "xcli"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := r.FormatFor("x"); got != FormatPlain {
		t.Errorf("default Format = %q, want plain", got)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	r := NewRegistry()

	data := []byte(`
agents:
  - id: claude
    command: claude-beta
    args: ["-p", "--output-format", "stream-json"]
    resume_flag: "--resume"
    format: claude-stream-json
    session_loss_signatures:
      - "No conversation found with session ID"
  - id: aider
    command: aider
    args: ["--message"]
    format: plain
`)
	if err := r.LoadYAML(data); err != nil {
		t.Fatalf("LoadYAML() error = %v", err)
	}

	p, ok := r.Get("claude")
	if !ok || p.Command != "claude-beta" {
		t.Errorf("override not applied: %+v", p)
	}
	if _, ok := r.Get("aider"); !ok {
		t.Error("new profile not registered")
	}
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	r := NewRegistry()
	data := []byte(`
agents:
  - id: x
    command: xcli
    bogus_field: true
`)
	if err := r.LoadYAML(data); err == nil {
		t.Error("LoadYAML() with unknown field succeeded")
	}
}

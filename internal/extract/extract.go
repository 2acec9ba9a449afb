// Package extract turns raw buffered agent output into plain text. Each
// agent CLI streams a different structured format; Extract is a pure
// function dispatched on that format, with a best-effort plain-text
// fallback so a malformed or unknown stream never fails a round.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Format mirrors agents.StreamFormat values; kept as a plain string so this
// package stays dependency-free and trivially pure.
type Format string

const (
	FormatClaudeStream Format = "claude-stream-json"
	FormatCodexJSONL   Format = "codex-jsonl"
	FormatGeminiJSON   Format = "gemini-json"
	FormatPlain        Format = "plain"
)

// Usage carries advisory telemetry parsed opportunistically from result
// records. Never required for correctness.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	TotalCostUSD    float64
	ContextUsagePct float64
}

// Result is the outcome of extraction. Text trimmed to the empty string is a
// valid outcome: the agent produced no user-visible content this turn.
type Result struct {
	// Text is the plain text the agent produced.
	Text string

	// SessionID is the agent-side conversation handle, when the stream
	// reported one.
	SessionID string

	// Usage holds advisory telemetry, nil when the stream had none.
	Usage *Usage

	// Fallback is true when structured parsing failed and Text was
	// recovered best-effort from the raw stream.
	Fallback bool
}

// Extract parses raw process output according to the agent's stream format.
// It never returns an error: parse failures degrade to plain-text recovery.
func Extract(raw string, format Format) Result {
	switch format {
	case FormatClaudeStream:
		return extractClaudeStream(raw)
	case FormatCodexJSONL:
		return extractCodexJSONL(raw)
	case FormatGeminiJSON:
		return extractGeminiJSON(raw)
	default:
		return Result{Text: PlainText(raw), Fallback: format != FormatPlain}
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\a\x1b]*(\a|\x1b\\)`)

// PlainText strips ANSI escape sequences and surrounding whitespace,
// recovering a readable best-effort rendition of arbitrary terminal output.
func PlainText(raw string) string {
	return strings.TrimSpace(ansiPattern.ReplaceAllString(raw, ""))
}

// claudeRecord is one line of `claude -p --output-format stream-json`.
type claudeRecord struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`

	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`

	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func extractClaudeStream(raw string) Result {
	var (
		res         Result
		assistant   []string
		sawRecord   bool
		finalResult string
		haveResult  bool
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var rec claudeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		sawRecord = true
		if rec.SessionID != "" {
			res.SessionID = rec.SessionID
		}
		switch rec.Type {
		case "assistant":
			for _, c := range rec.Message.Content {
				if c.Type == "text" && c.Text != "" {
					assistant = append(assistant, c.Text)
				}
			}
		case "result":
			haveResult = true
			finalResult = rec.Result
			u := &Usage{
				InputTokens:  rec.Usage.InputTokens,
				OutputTokens: rec.Usage.OutputTokens,
				TotalCostUSD: rec.TotalCostUSD,
			}
			if *u != (Usage{}) {
				res.Usage = u
			}
		}
	}

	if !sawRecord {
		return Result{Text: PlainText(raw), Fallback: true}
	}

	// The final result record is authoritative when present; the assistant
	// text blocks cover streams that were cut off before it.
	if haveResult && strings.TrimSpace(finalResult) != "" {
		res.Text = strings.TrimSpace(finalResult)
	} else {
		res.Text = strings.TrimSpace(strings.Join(assistant, "\n"))
	}
	return res
}

// codexRecord is one line of `codex exec --json`.
type codexRecord struct {
	Type string `json:"type"`
	Msg  struct {
		Type      string `json:"type"`
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
		Info      struct {
			TotalTokens  int `json:"total_tokens"`
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"info"`
	} `json:"msg"`
	Item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

func extractCodexJSONL(raw string) Result {
	var (
		res       Result
		messages  []string
		sawRecord bool
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var rec codexRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		sawRecord = true
		switch {
		case rec.Msg.Type == "agent_message" && rec.Msg.Message != "":
			messages = append(messages, rec.Msg.Message)
		case rec.Msg.Type == "session_configured" && rec.Msg.SessionID != "":
			res.SessionID = rec.Msg.SessionID
		case rec.Msg.Type == "token_count":
			res.Usage = &Usage{
				InputTokens:  rec.Msg.Info.InputTokens,
				OutputTokens: rec.Msg.Info.OutputTokens,
			}
		case rec.Type == "item.completed" && rec.Item.Type == "agent_message" && rec.Item.Text != "":
			messages = append(messages, rec.Item.Text)
		}
	}

	if !sawRecord {
		return Result{Text: PlainText(raw), Fallback: true}
	}
	res.Text = strings.TrimSpace(strings.Join(messages, "\n"))
	return res
}

// geminiPayload is the single JSON object emitted by `gemini -o json`.
type geminiPayload struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
	Stats     struct {
		TotalTokens int     `json:"totalTokens"`
		Cost        float64 `json:"cost"`
	} `json:"stats"`
}

func extractGeminiJSON(raw string) Result {
	trimmed := strings.TrimSpace(raw)

	// The payload may be preceded by startup noise; parse from the first
	// opening brace.
	if idx := strings.Index(trimmed, "{"); idx > 0 {
		trimmed = trimmed[idx:]
	}

	var p geminiPayload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return Result{Text: PlainText(raw), Fallback: true}
	}

	res := Result{
		Text:      strings.TrimSpace(p.Response),
		SessionID: p.SessionID,
	}
	if p.Stats.TotalTokens != 0 || p.Stats.Cost != 0 {
		res.Usage = &Usage{
			OutputTokens: p.Stats.TotalTokens,
			TotalCostUSD: p.Stats.Cost,
		}
	}
	return res
}

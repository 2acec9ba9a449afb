package extract

import (
	"testing"
)

func TestExtractClaudeStreamResult(t *testing.T) {
	raw := `{"type":"system","subtype":"init","session_id":"sess-1"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Thinking about it."}]}}
{"type":"result","subtype":"success","result":"Final answer.","session_id":"sess-1","total_cost_usd":0.042,"usage":{"input_tokens":120,"output_tokens":34}}`

	res := Extract(raw, FormatClaudeStream)
	if res.Fallback {
		t.Error("Fallback = true, want structured parse")
	}
	if res.Text != "Final answer." {
		t.Errorf("Text = %q, want %q", res.Text, "Final answer.")
	}
	if res.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", res.SessionID)
	}
	if res.Usage == nil {
		t.Fatal("Usage = nil")
	}
	if res.Usage.InputTokens != 120 || res.Usage.OutputTokens != 34 {
		t.Errorf("Usage tokens = %+v", res.Usage)
	}
	if res.Usage.TotalCostUSD != 0.042 {
		t.Errorf("TotalCostUSD = %v, want 0.042", res.Usage.TotalCostUSD)
	}
}

func TestExtractClaudeStreamAssistantOnly(t *testing.T) {
	// Stream cut off before the result record.
	raw := `{"type":"assistant","message":{"content":[{"type":"text","text":"part one"}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"part two"}]}}`

	res := Extract(raw, FormatClaudeStream)
	if res.Text != "part one\npart two" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExtractClaudeStreamGarbageFallsBack(t *testing.T) {
	raw := "\x1b[31msome plain error output\x1b[0m\nnot json at all"

	res := Extract(raw, FormatClaudeStream)
	if !res.Fallback {
		t.Error("Fallback = false, want true")
	}
	if res.Text != "some plain error output\nnot json at all" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExtractClaudeStreamSkipsBadLines(t *testing.T) {
	raw := `{"type":"assistant","message":{"content":[{"type":"text","text":"ok"}]}}
{not valid json
{"type":"result","result":"done"}`

	res := Extract(raw, FormatClaudeStream)
	if res.Fallback {
		t.Error("Fallback = true")
	}
	if res.Text != "done" {
		t.Errorf("Text = %q, want %q", res.Text, "done")
	}
}

func TestExtractCodexJSONL(t *testing.T) {
	raw := `{"msg":{"type":"session_configured","session_id":"c0ffee"}}
{"msg":{"type":"agent_message","message":"Reviewing the diff now."}}
{"msg":{"type":"token_count","info":{"input_tokens":900,"output_tokens":120,"total_tokens":1020}}}`

	res := Extract(raw, FormatCodexJSONL)
	if res.Fallback {
		t.Error("Fallback = true")
	}
	if res.Text != "Reviewing the diff now." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.SessionID != "c0ffee" {
		t.Errorf("SessionID = %q", res.SessionID)
	}
	if res.Usage == nil || res.Usage.InputTokens != 900 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestExtractCodexItemCompleted(t *testing.T) {
	raw := `{"type":"item.completed","item":{"type":"agent_message","text":"newer format"}}`

	res := Extract(raw, FormatCodexJSONL)
	if res.Text != "newer format" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExtractGeminiJSON(t *testing.T) {
	raw := `{"response":"Here is my take.","sessionId":"g-77","stats":{"totalTokens":512,"cost":0.01}}`

	res := Extract(raw, FormatGeminiJSON)
	if res.Fallback {
		t.Error("Fallback = true")
	}
	if res.Text != "Here is my take." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.SessionID != "g-77" {
		t.Errorf("SessionID = %q", res.SessionID)
	}
	if res.Usage == nil || res.Usage.OutputTokens != 512 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestExtractGeminiWithStartupNoise(t *testing.T) {
	raw := "Loaded cached credentials.\n{\"response\":\"clean\"}"

	res := Extract(raw, FormatGeminiJSON)
	if res.Fallback {
		t.Error("Fallback = true")
	}
	if res.Text != "clean" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExtractGeminiMalformedFallsBack(t *testing.T) {
	res := Extract("segfault: core dumped", FormatGeminiJSON)
	if !res.Fallback {
		t.Error("Fallback = false")
	}
	if res.Text != "segfault: core dumped" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExtractUnknownFormatFallsBack(t *testing.T) {
	res := Extract("  just text  ", Format("mystery"))
	if res.Text != "just text" {
		t.Errorf("Text = %q", res.Text)
	}
	if !res.Fallback {
		t.Error("Fallback = false for unknown format")
	}
}

func TestExtractPlain(t *testing.T) {
	res := Extract("\x1b[1mhello\x1b[0m\n", FormatPlain)
	if res.Text != "hello" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Fallback {
		t.Error("Fallback = true for plain format")
	}
}

func TestEmptyExtractionIsValid(t *testing.T) {
	raw := `{"type":"result","result":"   "}`
	res := Extract(raw, FormatClaudeStream)
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
	if res.Fallback {
		t.Error("Fallback = true")
	}
}

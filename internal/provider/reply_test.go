package provider

import (
	"encoding/json"
	"testing"
	"unicode/utf8"
)

func TestParseReplyStrictJSON(t *testing.T) {
	got, err := parseReply(`{"explanation": "Shows disk usage.", "command": "df -h", "risk": "low"}`)
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if got.Explanation != "Shows disk usage." || got.Command != "df -h" || got.Risk != "low" {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestParseReplyHandlesWrapperResultWithFencedJSON(t *testing.T) {
	wrapper := map[string]any{
		"type":    "result",
		"subtype": "success",
		"result":  "```json\n{\n  \"explanation\": \"list files\",\n  \"command\": \"ls -la\"\n}\n```",
	}
	payload, err := json.Marshal(wrapper)
	if err != nil {
		t.Fatalf("marshal wrapper failed: %v", err)
	}

	got, err := parseReply(string(payload))
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if got.Command != "ls -la" {
		t.Fatalf("expected ls -la, got %+v", got)
	}
}

func TestParseReplyHandlesContentBlocks(t *testing.T) {
	raw := `{"content": [{"type": "text", "text": "{\"message\": \"hello\", \"cmd\": \"uptime\"}"}]}`
	got, err := parseReply(raw)
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if got.Explanation != "hello" || got.Command != "uptime" {
		t.Fatalf("expected synonyms to be accepted, got %+v", got)
	}
}

func TestParseReplyExtractsJSONFromProse(t *testing.T) {
	raw := "Sure! Here you go:\n```json\n{\"reason\": \"Memory usage\", \"command\": \"free -h\"}\n```\nAnything else?"
	got, err := parseReply(raw)
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if got.Command != "free -h" || got.Explanation != "Memory usage" {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestParseReplyCommandLineFallback(t *testing.T) {
	got, err := parseReply("This will list your files.\nCommand: ls")
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if got.Explanation != "This will list your files." || got.Command != "ls" {
		t.Fatalf("unexpected reply: %+v", got)
	}

	got, _ = parseReply("Check it with:\n**Command:** `df -h`")
	if got.Command != "df -h" {
		t.Fatalf("expected markdown command line to parse, got %+v", got)
	}
}

func TestParseReplyShellFenceFallback(t *testing.T) {
	got, err := parseReply("Run this:\n```bash\nps aux\n```\nIt lists processes.")
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if got.Command != "ps aux" {
		t.Fatalf("expected command from fence, got %+v", got)
	}
	if got.Explanation != "Run this:\nIt lists processes." {
		t.Fatalf("unexpected explanation %q", got.Explanation)
	}
}

func TestParseReplyPlainTextIsExplanation(t *testing.T) {
	got, err := parseReply("I can help with that, what directory?")
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if got.Command != "" || got.Explanation == "" {
		t.Fatalf("expected explanation only, got %+v", got)
	}
}

func TestParseReplyRejectsUnrelatedJSON(t *testing.T) {
	if _, err := parseReply(`{"foo": 1}`); err == nil {
		t.Fatalf("expected error for JSON without reply fields")
	}
	if _, err := parseReply("   "); err == nil {
		t.Fatalf("expected error for empty output")
	}
}

func TestParseReplySteps(t *testing.T) {
	raw := `{"steps": [{"description": "Update index", "command": "sudo apt update"}, {"title": "Install", "cmd": "sudo apt install -y htop"}, "htop --version"]}`
	got, err := parseReply(raw)
	if err != nil {
		t.Fatalf("parseReply failed: %v", err)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %+v", got.Steps)
	}
	if got.Steps[1].Description != "Install" || got.Steps[1].Command != "sudo apt install -y htop" {
		t.Fatalf("unexpected second step: %+v", got.Steps[1])
	}
}

func TestNormalizeReplyDropsEmptyStepsAndFillsText(t *testing.T) {
	got := normalizeReply(Reply{
		Risk: "HIGH",
		Steps: []Step{
			{Description: "nothing", Command: "  "},
			{Command: "ls"},
		},
	})
	if len(got.Steps) != 1 || got.Steps[0].Description != "ls" {
		t.Fatalf("unexpected steps: %+v", got.Steps)
	}
	if got.Risk != "high" {
		t.Fatalf("expected risk to be normalised, got %q", got.Risk)
	}
	if got.Explanation == "" {
		t.Fatalf("expected default explanation")
	}
	if normalizeReply(Reply{Explanation: "x", Risk: "extreme"}).Risk != "" {
		t.Fatalf("expected unknown risk to be dropped")
	}
}

func TestPreprocessStructuredTextStripsCodeFence(t *testing.T) {
	got := preprocessStructuredText("```json\n{\"command\":\"ls\"}\n```")
	if got != `{"command":"ls"}` {
		t.Fatalf("expected stripped JSON, got %q", got)
	}
	shell := "```bash\nls\n```"
	if preprocessStructuredText(shell) != shell {
		t.Fatalf("expected shell fence to be left alone")
	}
}

func TestExtractJSONObjectIgnoresBracesInStrings(t *testing.T) {
	got, ok := extractJSONObject(`noise {"command": "echo '}'", "explanation": "x"} tail`)
	if !ok || got != `{"command": "echo '}'", "explanation": "x"}` {
		t.Fatalf("unexpected extraction %q (%v)", got, ok)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	got := truncate("ééé", 3)
	if got != "é..." || !utf8.ValidString(got) {
		t.Fatalf("unexpected truncation %q", got)
	}
}

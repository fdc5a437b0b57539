package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/journal"
	"github.com/ashwch/cortana/internal/provider"
	"github.com/ashwch/cortana/internal/systemprofile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	reply provider.Reply
	calls int
}

func (p *stubProvider) Complete(context.Context, config.Config, provider.Request, string) (provider.Reply, string, error) {
	p.calls++
	return p.reply, "stub", nil
}

type result struct {
	code   int
	stdout string
	stderr string
}

func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	return root
}

func runCLI(t *testing.T, p *stubProvider, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := newApp(strings.NewReader(""), &stdout, &stderr)
	a.gather = func() systemprofile.Profile {
		return systemprofile.Profile{Version: 1, OS: "linux", Shell: "/bin/sh", PackageManager: "apt"}
	}
	if p != nil {
		a.provider = p
	}
	code := run(context.Background(), args, a)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestVersion(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "version")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, version+"\n", res.stdout)
}

func TestUnknownCommandFails(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "frobnicate")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "cortana: ")
}

func TestConfigSetAndGet(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "config", "set", "mode", "suggest")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "mode=suggest\n", res.stdout)

	res = runCLI(t, nil, "config", "get", "mode")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "suggest\n", res.stdout)
}

func TestModeFlagIsNotSavedWithoutSave(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "--mode", "yolo", "config", "get", "mode")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "yolo\n", res.stdout)

	res = runCLI(t, nil, "config", "get", "mode")
	assert.Equal(t, "confirm\n", res.stdout)

	res = runCLI(t, nil, "--mode", "yolo", "--save", "config", "get", "mode")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Saved 1 setting(s)")
	res = runCLI(t, nil, "config", "get", "mode")
	assert.Equal(t, "yolo\n", res.stdout)
}

func TestConfigShowMasksAPIKeys(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "config", "set", "providers.anthropic.api_key", "sk-ant-secret")
	require.Equal(t, 0, res.code, res.stderr)

	res = runCLI(t, nil, "config", "show")
	require.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "sk-ant-secret")
	assert.Contains(t, res.stdout, "[set]")
}

func TestAskWithYesRunsCommand(t *testing.T) {
	isolate(t)
	p := &stubProvider{reply: provider.Reply{Explanation: "Prints a greeting.", Command: "echo cortana-ok"}}
	res := runCLI(t, p, "--yes", "ask", "say", "hello")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 1, p.calls)
	assert.Contains(t, res.stdout, "cortana-ok")

	events := journalEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, journal.DecisionExecuted, events[0].Decision)
	assert.Equal(t, "echo cortana-ok", events[0].Command)
	assert.True(t, events[0].Success)
}

func TestAskWithoutTerminalRefuses(t *testing.T) {
	root := isolate(t)
	marker := filepath.Join(root, "marker")
	p := &stubProvider{reply: provider.Reply{Command: "touch " + marker}}
	res := runCLI(t, p, "ask", "make", "a", "file")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "pass --yes")
	assert.NoFileExists(t, marker)

	events := journalEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, journal.DecisionDeclined, events[0].Decision)
}

func TestDryRunNeverRuns(t *testing.T) {
	root := isolate(t)
	marker := filepath.Join(root, "marker")
	p := &stubProvider{reply: provider.Reply{Command: "touch " + marker}}
	res := runCLI(t, p, "--yes", "--dry-run", "ask", "make", "a", "file")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "dry run")
	assert.NoFileExists(t, marker)
}

func TestRulesInitAndCheck(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "rules", "init")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Wrote ")

	res = runCLI(t, nil, "rules", "init")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "already exists")

	res = runCLI(t, nil, "rules", "check", "rm -rf /")
	require.Equal(t, 0, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "block\n"), res.stdout)

	res = runCLI(t, nil, "rules", "show")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "mkfs")
}

func TestBlockedCommandIsNotRun(t *testing.T) {
	isolate(t)
	require.Equal(t, 0, runCLI(t, nil, "rules", "init").code)

	p := &stubProvider{reply: provider.Reply{Command: "mkfs /dev/null"}}
	res := runCLI(t, p, "--yes", "ask", "format", "it")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Blocked")

	events := journalEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, journal.DecisionBlocked, events[0].Decision)
}

func TestInvalidRulesFileIsFatal(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(root, "config", "cortana", "rules.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("blocked: [unclosed"), 0o600))

	res := runCLI(t, &stubProvider{}, "ask", "anything")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "could not load safety rules")
}

func TestKnowledgeSetAndShow(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "kb", "set", "editor", "nvim")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "Remembered editor.\n", res.stdout)

	res = runCLI(t, nil, "kb", "show", "--json")
	require.Equal(t, 0, res.code, res.stderr)
	var base struct {
		System systemprofile.Profile `json:"system"`
		Facts  map[string]string     `json:"facts"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &base))
	assert.Equal(t, "nvim", base.Facts["editor"])
	assert.Equal(t, "apt", base.System.PackageManager)

	res = runCLI(t, nil, "kb", "set", "editor")
	assert.Equal(t, "Forgot editor.\n", res.stdout)
}

func TestPlanListEmpty(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "plan", "list")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "No saved plans.\n", res.stdout)

	res = runCLI(t, nil, "plan", "show")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "no unfinished plan")
}

func TestPlanRunsStepsWithYes(t *testing.T) {
	isolate(t)
	p := &stubProvider{reply: provider.Reply{
		Explanation: "Two steps.",
		Steps: []provider.Step{
			{Description: "first", Command: "echo step-one"},
			{Description: "second", Command: "echo step-two"},
		},
	}}
	res := runCLI(t, p, "--yes", "plan", "print", "two", "things")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "step-one")
	assert.Contains(t, res.stdout, "step-two")
	assert.Contains(t, res.stdout, "finished")

	res = runCLI(t, nil, "plan", "list")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "done")
	assert.Contains(t, res.stdout, "2/2")
}

func TestJournalListsDecisions(t *testing.T) {
	isolate(t)
	p := &stubProvider{reply: provider.Reply{Command: "echo journaled"}}
	require.Equal(t, 0, runCLI(t, p, "--yes", "ask", "x").code)

	res := runCLI(t, nil, "journal", "-n", "5")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "executed")
	assert.Contains(t, res.stdout, "echo journaled")
}

func TestDoctorJSON(t *testing.T) {
	isolate(t)
	res := runCLI(t, nil, "doctor", "--json")
	require.Equal(t, 0, res.code, res.stderr)

	var checks []check
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &checks))
	keys := map[string]string{}
	for _, c := range checks {
		keys[c.Key] = c.Status
	}
	assert.Equal(t, "ok", keys["os"])
	assert.Equal(t, "ok", keys["config_path"])
	assert.Equal(t, "missing", keys["rules_file"])
}

func TestOverridesOrder(t *testing.T) {
	got := overrides(options{Provider: "openai", Model: "fast", Mode: " ", UI: "huh"})
	assert.Equal(t, [][2]string{
		{"provider", "openai"},
		{"ui.backend", "huh"},
		{"chat.model", "fast"},
		{"plan.model", "fast"},
	}, got)
}

func journalEvents(t *testing.T) []journal.Event {
	t.Helper()
	path := filepath.Join(os.Getenv("XDG_STATE_HOME"), "cortana")
	var events []journal.Event
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".jsonl") {
			return err
		}
		j := journal.New(p, false)
		events, err = j.Tail(0)
		return err
	})
	require.NoError(t, err)
	return events
}

package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/executor"
	"github.com/ashwch/cortana/internal/journal"
	"github.com/ashwch/cortana/internal/knowledge"
	"github.com/ashwch/cortana/internal/plan"
	"github.com/ashwch/cortana/internal/provider"
	"github.com/ashwch/cortana/internal/safety"
	"github.com/ashwch/cortana/internal/systemprofile"
	"github.com/ashwch/cortana/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	replies  []provider.Reply
	errs     []error
	requests []provider.Request
}

func (f *fakeProvider) Complete(_ context.Context, _ config.Config, req provider.Request, _ string) (provider.Reply, string, error) {
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return provider.Reply{}, "", err
		}
	}
	if len(f.replies) == 0 {
		return provider.Reply{Explanation: "Nothing to run."}, "fake", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, "fake", nil
}

type fakeExec struct {
	dir     string
	results map[string]executor.Result
	ran     []string
}

func (f *fakeExec) Run(_ context.Context, command string) (executor.Result, error) {
	f.ran = append(f.ran, command)
	res, ok := f.results[command]
	if !ok {
		res = executor.Result{Success: true, Output: "ok\n"}
	}
	res.Command = command
	res.Dir = f.dir
	return res, nil
}

func (f *fakeExec) Dir() string   { return f.dir }
func (f *fakeExec) Shell() string { return "/bin/sh" }

type fakeRules struct{ set safety.RuleSet }

func (r fakeRules) Check(command string, blockHighRisk bool) safety.Decision {
	return r.set.Check(command, blockHighRisk)
}
func (r fakeRules) Current() safety.RuleSet { return r.set }
func (r fakeRules) Path() string            { return "rules.yaml" }

type harness struct {
	session  *Session
	provider *fakeProvider
	exec     *fakeExec
	kb       *knowledge.Store
	journal  *journal.Journal
	plans    *plan.Store
	out      *bytes.Buffer
}

func newHarness(t *testing.T, cfg config.Config, input string, replies ...provider.Reply) *harness {
	t.Helper()
	return newHarnessWithInput(t, cfg, nil, input, replies...)
}

func newHarnessWithInput(t *testing.T, cfg config.Config, in ui.LineInput, input string, replies ...provider.Reply) *harness {
	t.Helper()
	dir := t.TempDir()
	out := &bytes.Buffer{}
	if in == nil {
		in = ui.NewLineReader(strings.NewReader(input), out)
	}
	kb, _, err := knowledge.Open(filepath.Join(dir, "knowledge.json"), knowledge.Options{
		Redact: true,
		Gather: func() systemprofile.Profile {
			return systemprofile.Profile{OS: "linux", PackageManager: "apt", CapturedAt: "2026-01-01T00:00:00Z"}
		},
	})
	require.NoError(t, err)

	h := &harness{
		provider: &fakeProvider{replies: replies},
		exec:     &fakeExec{dir: dir, results: map[string]executor.Result{}},
		kb:       kb,
		journal:  journal.New(filepath.Join(dir, "journal.jsonl"), true),
		plans:    plan.NewStore(filepath.Join(dir, "plans"), nil),
		out:      out,
	}
	s, err := New(Options{
		Config:    cfg,
		Provider:  h.provider,
		Exec:      h.exec,
		Rules:     fakeRules{},
		Knowledge: kb,
		Journal:   h.journal,
		Plans:     h.plans,
		Input:     in,
		Out:       out,
		SessionID: "test",
		Interrupt: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return ctx, func() {}
		},
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func (h *harness) decisions(t *testing.T) []journal.Decision {
	t.Helper()
	events, err := h.journal.Tail(0)
	require.NoError(t, err)
	out := make([]journal.Decision, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Decision)
	}
	return out
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRunConfirmsAndRunsCommand(t *testing.T) {
	h := newHarness(t, config.Default(), "list files\n\nexit\n",
		provider.Reply{Explanation: "Lists the files here.", Command: "ls -la", Risk: "low"})

	require.NoError(t, h.session.Run(context.Background()))

	assert.Equal(t, []string{"ls -la"}, h.exec.ran)
	text := h.out.String()
	assert.Contains(t, text, "Type 'exit' to quit")
	assert.Contains(t, text, "You: ")
	assert.Contains(t, text, "Cortana: Lists the files here.")
	assert.Contains(t, text, "Command: ls -la")
	assert.Contains(t, text, "Run this command? (press enter for yes, 'n' to cancel): ")
	assert.Contains(t, text, "Goodbye.")

	recent := h.kb.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "ls -la", recent[0].Command)
	assert.Equal(t, "list files", recent[0].Request)
	assert.Equal(t, []journal.Decision{journal.DecisionExecuted}, h.decisions(t))

	history := h.session.History()
	require.Len(t, history, 3)
	assert.Equal(t, provider.RoleUser, history[0].Role)
	assert.Contains(t, history[1].Content, "Command: ls -la")
	assert.Equal(t, "I ran `ls -la` and it succeeded.\nOutput:\nok", history[2].Content)
}

func TestRequestCarriesSystemPromptAndContext(t *testing.T) {
	h := newHarness(t, config.Default(), "", provider.Reply{Explanation: "Hi."})
	require.NoError(t, h.session.Ask(context.Background(), "hello"))

	require.Len(t, h.provider.requests, 1)
	req := h.provider.requests[0]
	assert.Equal(t, provider.IntentChat, req.Intent)
	assert.Contains(t, req.System, "You are Cortana")
	assert.Contains(t, req.System, h.exec.dir)
	assert.Equal(t, "apt", req.Context["package_manager"])
	assert.Equal(t, "hello", req.LastUser())
}

func TestDeclinedCommandIsJournaled(t *testing.T) {
	h := newHarness(t, config.Default(), "n\n", provider.Reply{Explanation: "Cleans up.", Command: "make clean"})
	require.NoError(t, h.session.Ask(context.Background(), "clean up"))

	assert.Empty(t, h.exec.ran)
	assert.Contains(t, h.out.String(), "Command not run.")
	assert.Equal(t, []journal.Decision{journal.DecisionDeclined}, h.decisions(t))
}

func TestBlockedCommandNeverRuns(t *testing.T) {
	cfg := config.Default()
	cfg.Safety.BlockHighRisk = true
	h := newHarness(t, cfg, "yes\n", provider.Reply{Command: "rm -rf build"})
	require.NoError(t, h.session.Ask(context.Background(), "delete build"))

	assert.Empty(t, h.exec.ran)
	assert.Contains(t, h.out.String(), "Blocked: high-risk command blocked")
	assert.Equal(t, []journal.Decision{journal.DecisionBlocked}, h.decisions(t))
}

func TestSuggestModeOnlyShowsCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeSuggest
	h := newHarness(t, cfg, "", provider.Reply{Command: "df -h"})
	require.NoError(t, h.session.Ask(context.Background(), "disk space"))

	assert.Empty(t, h.exec.ran)
	assert.Contains(t, h.out.String(), "Not running it (suggest mode).")
	assert.Equal(t, []journal.Decision{journal.DecisionSuggested}, h.decisions(t))
	assert.Contains(t, h.provider.requests[0].System, "not run")
}

func TestYoloSkipsGateButNotForDanger(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeYolo
	h := newHarness(t, cfg, "n\n",
		provider.Reply{Command: "uptime"},
		provider.Reply{Command: "rm -rf build"})

	require.NoError(t, h.session.Ask(context.Background(), "uptime"))
	require.NoError(t, h.session.Ask(context.Background(), "delete build"))

	assert.Equal(t, []string{"uptime"}, h.exec.ran)
	assert.Contains(t, h.out.String(), "Dangerous command. Type 'yes' to run")
}

func TestAutoApproveAllowedCommands(t *testing.T) {
	cfg := config.Default()
	cfg.Safety.AutoApproveAllowed = true
	h := newHarness(t, cfg, "", provider.Reply{Command: "git status"})
	h.session.rules = fakeRules{set: safety.RuleSet{Allowed: []string{"git status"}}}

	require.NoError(t, h.session.Ask(context.Background(), "status"))
	assert.Equal(t, []string{"git status"}, h.exec.ran)
	assert.NotContains(t, h.out.String(), "Run this command?")
}

func TestHighRiskReplyNeedsYes(t *testing.T) {
	h := newHarness(t, config.Default(), "\n\n\n", provider.Reply{Command: "systemctl restart nginx", Risk: "high"})
	require.NoError(t, h.session.Ask(context.Background(), "restart nginx"))
	assert.Empty(t, h.exec.ran)
}

func TestProviderErrorDropsTurnAndLoopContinues(t *testing.T) {
	h := newHarness(t, config.Default(), "hello\nexit\n")
	h.provider.errs = []error{errors.New("all providers failed")}

	require.NoError(t, h.session.Run(context.Background()))
	assert.Contains(t, h.out.String(), "cortana: all providers failed")
	assert.Empty(t, h.session.History())
}

func TestHistoryIsTrimmed(t *testing.T) {
	cfg := config.Default()
	cfg.Chat.MaxHistory = 3
	h := newHarness(t, cfg, "")
	for _, q := range []string{"one", "two", "three"} {
		require.NoError(t, h.session.Ask(context.Background(), q))
	}
	history := h.session.History()
	assert.LessOrEqual(t, len(history), 3)
	assert.Equal(t, provider.RoleUser, history[0].Role)
	assert.Equal(t, "three", history[len(history)-2].Content)
}

func TestShareOutputOff(t *testing.T) {
	cfg := config.Default()
	cfg.Chat.ShareOutput = false
	h := newHarness(t, cfg, "\n", provider.Reply{Command: "ls"})
	require.NoError(t, h.session.Ask(context.Background(), "list"))
	assert.Len(t, h.session.History(), 2)
}

func TestFailureThenFix(t *testing.T) {
	h := newHarness(t, config.Default(), "status\n\n/fix\n\nexit\n",
		provider.Reply{Command: "gti status"},
		provider.Reply{Explanation: "Typo in git.", Command: "git status"})
	h.exec.results["gti status"] = executor.Result{ExitCode: 127, Output: "sh: gti: command not found\n"}

	require.NoError(t, h.session.Run(context.Background()))

	assert.Equal(t, []string{"gti status", "git status"}, h.exec.ran)
	assert.Contains(t, h.out.String(), "exit 127")
	assert.Contains(t, h.out.String(), "Type /fix to ask for a fix.")

	require.Len(t, h.provider.requests, 2)
	fix := h.provider.requests[1]
	assert.Equal(t, provider.IntentFix, fix.Intent)
	assert.Equal(t, "gti status", fix.Context["failed_command"])
	assert.Contains(t, fix.LastUser(), "gti: command not found")
}

func TestFixFallsBackToJournal(t *testing.T) {
	h := newHarness(t, config.Default(), "", provider.Reply{Command: "git status"})
	require.NoError(t, h.journal.Record(journal.Event{
		SessionID: "test", Command: "gti status", Decision: journal.DecisionExecuted, ExitCode: 127,
	}))
	h.session.cfg.Mode = config.ModeSuggest

	require.NoError(t, h.session.Fix(context.Background(), "it was a typo"))
	require.Len(t, h.provider.requests, 1)
	assert.Contains(t, h.provider.requests[0].LastUser(), "gti status")
	assert.Contains(t, h.provider.requests[0].LastUser(), "it was a typo")
}

func TestFixWithoutFailure(t *testing.T) {
	h := newHarness(t, config.Default(), "")
	require.NoError(t, h.session.Fix(context.Background(), ""))
	assert.Contains(t, h.out.String(), "No failed command to fix.")
	assert.Empty(t, h.provider.requests)
}

func TestReplyWithStepsRunsPlan(t *testing.T) {
	h := newHarness(t, config.Default(), "\n\n", provider.Reply{
		Explanation: "Two steps.",
		Steps: []provider.Step{
			{Description: "make the directory", Command: "mkdir -p build"},
			{Description: "list it", Command: "ls build"},
		},
	})
	require.NoError(t, h.session.Ask(context.Background(), "prepare build dir"))

	assert.Equal(t, []string{"mkdir -p build", "ls build"}, h.exec.ran)
	plans, err := h.plans.List()
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan.StatusDone, plans[0].State())
	assert.Contains(t, h.out.String(), "finished.")
	assert.Len(t, h.kb.Recent(0), 2)
}

func TestPlanPauseAndResume(t *testing.T) {
	input := "/plan set up the project\n\nn\n/resume\n\nexit\n"
	h := newHarness(t, config.Default(), input, provider.Reply{Steps: []provider.Step{
		{Description: "fetch", Command: "git pull"},
		{Description: "build", Command: "make"},
	}})

	require.NoError(t, h.session.Run(context.Background()))

	assert.Equal(t, []string{"git pull", "make"}, h.exec.ran)
	text := h.out.String()
	assert.Contains(t, text, "Plan paused. Run /resume")
	assert.Contains(t, text, "Resuming")
	assert.Equal(t, provider.IntentPlan, h.provider.requests[0].Intent)
	assert.Equal(t, config.Default().Plan.Model, h.provider.requests[0].Model)
}

func TestPlanStepFailureStops(t *testing.T) {
	h := newHarness(t, config.Default(), "\n", provider.Reply{Steps: []provider.Step{
		{Description: "test", Command: "go test ./..."},
		{Description: "ship", Command: "make release"},
	}})
	h.exec.results["go test ./..."] = executor.Result{ExitCode: 1, Output: "FAIL"}

	require.NoError(t, h.session.Plan(context.Background(), "test and ship"))
	assert.Equal(t, []string{"go test ./..."}, h.exec.ran)
	assert.Contains(t, h.out.String(), "Step failed. Stopping execution.")
	require.NotNil(t, h.session.lastFailure)
	assert.Equal(t, "go test ./...", h.session.lastFailure.command)
}

func TestResumeFailedPlanNeedsReset(t *testing.T) {
	h := newHarness(t, config.Default(), "\n", provider.Reply{Steps: []provider.Step{
		{Description: "dir", Command: "mkdir build"},
		{Description: "install", Command: "cd build && make install"},
	}})
	h.exec.results["mkdir build"] = executor.Result{ExitCode: 1, Output: "exists"}
	require.NoError(t, h.session.Plan(context.Background(), "install it"))

	plans, err := h.plans.List()
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.NoError(t, h.session.Resume(context.Background(), plans[0].ID))

	assert.Equal(t, []string{"mkdir build"}, h.exec.ran)
	assert.Contains(t, h.out.String(), "Reset it before resuming.")
	loaded, err := h.plans.Load(plans[0].ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusPending, loaded.Steps[1].Status)
}

func TestSuggestModeSavesPlanWithoutRunning(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeSuggest
	h := newHarness(t, cfg, "", provider.Reply{Steps: []provider.Step{
		{Description: "a", Command: "echo a"},
		{Description: "b", Command: "echo b"},
	}})
	require.NoError(t, h.session.Ask(context.Background(), "echo twice"))

	assert.Empty(t, h.exec.ran)
	assert.Equal(t, []journal.Decision{journal.DecisionSuggested, journal.DecisionSuggested}, h.decisions(t))
	plans, err := h.plans.List()
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan.StatusPending, plans[0].State())
}

func TestEditPlanFromSession(t *testing.T) {
	h := newHarness(t, config.Default(), "1\n\necho edited\n\n")
	p, err := plan.New("demo", []provider.Step{{Description: "first", Command: "echo one"}})
	require.NoError(t, err)
	require.NoError(t, h.plans.Save(p))

	require.NoError(t, h.session.Edit(p.ID))
	loaded, err := h.plans.Load(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "echo edited", loaded.Steps[0].Command)
	assert.Contains(t, h.out.String(), "saved.")
}

func TestResumeWithoutPlan(t *testing.T) {
	h := newHarness(t, config.Default(), "")
	require.NoError(t, h.session.Resume(context.Background(), ""))
	assert.Contains(t, h.out.String(), "No unfinished plan.")
	require.NoError(t, h.session.Resume(context.Background(), "missing"))
	assert.Contains(t, h.out.String(), "No plan named missing.")
}

func TestSlashCommands(t *testing.T) {
	h := newHarness(t, config.Default(), "")
	ctx := context.Background()

	for _, line := range []string{"/kb set editor vim", "/kb note deploys happen on fridays", "/kb", "/rules rm -rf /tmp/x", "/pwd", "/help", "/plans"} {
		done, err := h.session.Handle(ctx, line)
		require.NoError(t, err, line)
		assert.False(t, done)
	}
	snap := h.kb.Snapshot()
	assert.Equal(t, "vim", snap.Facts["editor"])
	assert.Equal(t, []string{"deploys happen on fridays"}, snap.Notes)

	text := h.out.String()
	assert.Contains(t, text, "editor")
	assert.Contains(t, text, "danger: potentially destructive command")
	assert.Contains(t, text, h.exec.dir)
	assert.Contains(t, text, "/plan <task>")
	assert.Contains(t, text, "No saved plans.")

	_, err := h.session.Handle(ctx, "/nope")
	assert.ErrorContains(t, err, "unknown command /nope")
	_, err = h.session.Handle(ctx, "/plan")
	assert.ErrorContains(t, err, "usage")

	done, err := h.session.Handle(ctx, "quit")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestClearForgetsHistory(t *testing.T) {
	h := newHarness(t, config.Default(), "")
	require.NoError(t, h.session.Ask(context.Background(), "hi"))
	require.NotEmpty(t, h.session.History())
	_, err := h.session.Handle(context.Background(), "/clear")
	require.NoError(t, err)
	assert.Empty(t, h.session.History())
}

type scriptedInput struct {
	lines []string
	errs  []error
}

func (s *scriptedInput) ReadLine(string, string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line, err := s.lines[0], s.errs[0]
	s.lines, s.errs = s.lines[1:], s.errs[1:]
	return line, err
}

func TestInterruptAtPromptKeepsSession(t *testing.T) {
	in := &scriptedInput{lines: []string{"", "exit"}, errs: []error{ui.ErrInterrupted, nil}}
	h := newHarnessWithInput(t, config.Default(), in, "")
	require.NoError(t, h.session.Run(context.Background()))
	assert.Contains(t, h.out.String(), "(type exit to quit)")
	assert.Contains(t, h.out.String(), "Goodbye.")
}

func TestPlanSummary(t *testing.T) {
	p := &plan.Plan{ID: "deploy-1234", Task: "deploy", Steps: []plan.Step{
		{Command: "a", Status: plan.StatusDone},
		{Command: "b", Status: plan.StatusPending},
	}}
	line := PlanSummary(p)
	assert.True(t, strings.HasPrefix(line, "deploy-1234"))
	assert.Contains(t, line, "pending")
	assert.Contains(t, line, "1/2  deploy")
}

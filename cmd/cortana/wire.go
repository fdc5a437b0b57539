package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashwch/cortana/internal/appdirs"
	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/executor"
	"github.com/ashwch/cortana/internal/journal"
	"github.com/ashwch/cortana/internal/knowledge"
	"github.com/ashwch/cortana/internal/plan"
	"github.com/ashwch/cortana/internal/provider"
	"github.com/ashwch/cortana/internal/router"
	"github.com/ashwch/cortana/internal/safety"
	"github.com/ashwch/cortana/internal/session"
	"github.com/ashwch/cortana/internal/ui"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	historyFileName = "history"
	summaryTools    = 24
)

// stack is everything a session is built from.
type stack struct {
	rules    *safety.Rules
	kb       *knowledge.Store
	kbStatus knowledge.Status
	journal  *journal.Journal
	plans    *plan.Store
	exec     *executor.Executor
	input    *ui.LineReader
}

func (st *stack) close() {
	if st.input != nil {
		_ = st.input.Close()
	}
}

func (a *app) rulesPath() (string, error) {
	if path := strings.TrimSpace(a.cfg.Safety.RulesFile); path != "" {
		return path, nil
	}
	return appdirs.RulesFilePath()
}

func (a *app) openRules() (*safety.Rules, error) {
	path, err := a.rulesPath()
	if err != nil {
		return nil, err
	}
	rules, err := safety.NewRules(path, a.logger)
	if err != nil {
		return nil, fmt.Errorf("could not load safety rules from %s: %w", path, err)
	}
	return rules, nil
}

func (a *app) openKnowledge() (*knowledge.Store, knowledge.Status, error) {
	path := strings.TrimSpace(a.cfg.Knowledge.Path)
	if path == "" {
		if _, err := appdirs.EnsureStateDir(); err != nil {
			return nil, knowledge.Status{}, err
		}
		var err error
		if path, err = appdirs.KnowledgeFilePath(); err != nil {
			return nil, knowledge.Status{}, err
		}
	}
	kb, status, err := knowledge.Open(path, knowledge.Options{
		MaxCommands:    a.cfg.Knowledge.MaxCommands,
		MaxOutputBytes: a.cfg.Knowledge.MaxOutputBytes,
		RefreshHours:   a.cfg.Knowledge.RefreshHours,
		Redact:         a.cfg.Safety.RedactSecrets,
		Gather:         a.gather,
		Logger:         a.logger,
	})
	if err != nil {
		return nil, status, err
	}
	if status.BackupPath != "" {
		fmt.Fprintf(a.stderr, "cortana: knowledge base was unreadable; the old file was moved to %s\n", status.BackupPath)
	}
	return kb, status, nil
}

func (a *app) openJournal() (*journal.Journal, error) {
	if _, err := appdirs.EnsureStateDir(); err != nil {
		return nil, err
	}
	path, err := appdirs.JournalFilePath()
	if err != nil {
		return nil, err
	}
	return journal.New(path, a.cfg.Safety.RedactSecrets), nil
}

func (a *app) openPlans() (*plan.Store, error) {
	dir, err := appdirs.EnsurePlansDir()
	if err != nil {
		return nil, err
	}
	return plan.NewStore(dir, a.logger), nil
}

func (a *app) newExecutor() (*executor.Executor, error) {
	opts := executor.Options{
		Shell:      a.cfg.Executor.Shell,
		LoginShell: a.cfg.Executor.LoginShell,
		Timeout:    time.Duration(a.cfg.Executor.TimeoutSeconds) * time.Second,
		TrackDir:   a.cfg.Executor.TrackDir,
		MaxCapture: a.cfg.Executor.MaxCaptureBytes,
		Stdout:     a.stdout,
		Stderr:     a.stderr,
		Logger:     a.logger,
	}
	// piped chat input must not leak into the commands
	if !a.terminal {
		opts.Stdin = strings.NewReader("")
	}
	return executor.New(opts)
}

func (a *app) newInput() *ui.LineReader {
	if !a.terminal {
		return ui.NewLineReader(a.stdin, a.stdout)
	}
	history, err := appdirs.StateFilePath(historyFileName)
	if err != nil {
		history = ""
	}
	return ui.NewTerminalReader(history)
}

func (a *app) backend() string {
	return ui.Effective(a.cfg.UI.Backend, a.terminal)
}

// gate picks how commands are confirmed. Without a terminal nothing runs
// unless --yes was given.
func (a *app) gate(in ui.LineInput) ui.Gate {
	switch {
	case a.opts.Yes:
		return ui.AutoGate{}
	case !a.terminal:
		return ui.RefuseGate{Out: a.stderr}
	}
	plain := ui.PlainGate{In: in, Out: a.stdout}
	if backend := a.backend(); backend != ui.BackendPlain {
		return ui.BackendGate{Backend: backend, Fallback: plain}
	}
	return plain
}

func (a *app) completer() session.Completer {
	if a.provider != nil {
		return a.provider
	}
	return provider.NewService(provider.NewRegistry(), a.logger)
}

func (a *app) openStack() (*stack, error) {
	rules, err := a.openRules()
	if err != nil {
		return nil, err
	}
	kb, status, err := a.openKnowledge()
	if err != nil {
		return nil, err
	}
	j, err := a.openJournal()
	if err != nil {
		return nil, err
	}
	plans, err := a.openPlans()
	if err != nil {
		return nil, err
	}
	exec, err := a.newExecutor()
	if err != nil {
		return nil, err
	}
	return &stack{rules: rules, kb: kb, kbStatus: status, journal: j, plans: plans, exec: exec, input: a.newInput()}, nil
}

func (a *app) newSession(st *stack) (*session.Session, error) {
	id := uuid.NewString()
	a.logger = a.logger.With(zap.String("session_id", id))

	var picker plan.Picker
	if backend := a.backend(); ui.IsInteractiveBackend(backend) {
		picker = ui.StepPicker{Backend: backend}
	}
	return session.New(session.Options{
		Config:    a.cfg,
		Provider:  a.completer(),
		Preferred: a.opts.Provider,
		Exec:      st.exec,
		Rules:     st.rules,
		Knowledge: st.kb,
		Journal:   st.journal,
		Plans:     st.plans,
		Gate:      a.gate(st.input),
		Input:     st.input,
		Picker:    picker,
		Render:    ui.NewRenderer(a.stdout, a.cfg.UI.Markdown),
		Out:       a.stdout,
		Logger:    a.logger,
		SessionID: id,
		DryRun:    a.opts.DryRun,
	})
}

// withSession opens the stack, builds a session and runs fn with it.
func (a *app) withSession(fn func(s *session.Session, st *stack) error) error {
	st, err := a.openStack()
	if err != nil {
		return err
	}
	defer st.close()
	s, err := a.newSession(st)
	if err != nil {
		return err
	}
	return fn(s, st)
}

// chat is the interactive session. On first run the user is shown what
// was learned about the machine and may keep it local.
func (a *app) chat(ctx context.Context) error {
	st, err := a.openStack()
	if err != nil {
		return err
	}
	defer st.close()

	if a.terminal && (st.kbStatus.Created || st.kbStatus.Reset) {
		a.onboard(st)
	}
	s, err := a.newSession(st)
	if err != nil {
		return err
	}

	st.rules.OnReload(func(rules safety.RuleSet, err error) {
		if err != nil {
			fmt.Fprintf(a.stderr, "\ncortana: rules file is invalid, keeping the previous rules: %v\n", err)
			return
		}
		a.logger.Info("rules reloaded", zap.Int("blocked", len(rules.Blocked)), zap.Int("confirm", len(rules.Confirm)))
	})
	watchCtx, cancel := context.WithCancel(ctx)
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		if err := st.rules.Watch(watchCtx); err != nil {
			a.logger.Warn("rules watcher stopped", zap.Error(err))
		}
	}()
	defer func() {
		cancel()
		<-watched
	}()

	st.input.Complete(router.Names())
	return s.Run(ctx)
}

func (a *app) onboard(st *stack) {
	summary := st.kb.Snapshot().System.HumanSummary(summaryTools)
	decision, err := ui.Onboard(a.backend(), summary, "", st.input, a.stdout)
	if err != nil {
		a.logger.Warn("onboarding failed", zap.Error(err))
		return
	}
	if decision.SetUserNote {
		if err := st.kb.AddNote(decision.UserNote); err != nil {
			fmt.Fprintf(a.stderr, "cortana: could not save note: %v\n", err)
		}
	}
	if !decision.DisableContext {
		return
	}
	a.cfg.Knowledge.ShareSystem = false
	// saved from the file so one-off flag overrides stay one-off
	persisted, err := config.Load(a.cfgPath)
	if err == nil {
		persisted.Knowledge.ShareSystem = false
		err = config.Save(a.cfgPath, persisted)
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "cortana: could not save config: %v\n", err)
	}
}

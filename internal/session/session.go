// Package session runs the interactive loop. Each line is either a slash
// command or a request the assistant answers, usually with a command that
// is checked against the safety rules, confirmed and then run.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/executor"
	"github.com/ashwch/cortana/internal/journal"
	"github.com/ashwch/cortana/internal/knowledge"
	"github.com/ashwch/cortana/internal/plan"
	"github.com/ashwch/cortana/internal/prompt"
	"github.com/ashwch/cortana/internal/provider"
	"github.com/ashwch/cortana/internal/router"
	"github.com/ashwch/cortana/internal/safety"
	"github.com/ashwch/cortana/internal/ui"
	"go.uber.org/zap"
)

const (
	userPrompt        = "You: "
	maxPromptTools    = 24
	maxSharedOutput   = 1500
	defaultMaxHistory = 40

	sourceChat = "chat"
	sourcePlan = "plan"
	sourceFix  = "fix"
)

type Completer interface {
	Complete(ctx context.Context, cfg config.Config, req provider.Request, preferred string) (provider.Reply, string, error)
}

type Executor interface {
	Run(ctx context.Context, command string) (executor.Result, error)
	Dir() string
	Shell() string
}

type Rules interface {
	Check(command string, blockHighRisk bool) safety.Decision
	Current() safety.RuleSet
	Path() string
}

type Options struct {
	Config    config.Config
	Provider  Completer
	Preferred string
	Exec      Executor
	Rules     Rules
	Knowledge *knowledge.Store
	Journal   *journal.Journal
	Plans     *plan.Store
	Gate      ui.Gate
	Input     ui.LineInput
	// Picker chooses plan steps during /edit. When nil, steps are picked
	// by number.
	Picker    plan.Picker
	Render    *ui.Renderer
	Out       io.Writer
	Logger    *zap.Logger
	SessionID string
	// DryRun shows commands without running them, whatever the mode.
	DryRun bool
	// Interrupt scopes a running command to Ctrl+C. Defaults to
	// signal.NotifyContext for os.Interrupt.
	Interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
}

type failure struct {
	command  string
	dir      string
	exitCode int
	output   string
}

type Session struct {
	cfg       config.Config
	provider  Completer
	preferred string
	exec      Executor
	rules     Rules
	kb        *knowledge.Store
	journal   *journal.Journal
	plans     *plan.Store
	gate      ui.Gate
	in        ui.LineInput
	picker    plan.Picker
	render    *ui.Renderer
	out       io.Writer
	logger    *zap.Logger
	id        string
	dryRun    bool
	interrupt func(ctx context.Context) (context.Context, context.CancelFunc)

	history     []provider.Message
	lastFailure *failure
}

func New(opts Options) (*Session, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("session needs a provider")
	case opts.Exec == nil:
		return nil, errors.New("session needs an executor")
	case opts.Rules == nil:
		return nil, errors.New("session needs safety rules")
	case opts.Input == nil:
		return nil, errors.New("session needs an input")
	}
	s := &Session{
		cfg:       opts.Config,
		provider:  opts.Provider,
		preferred: opts.Preferred,
		exec:      opts.Exec,
		rules:     opts.Rules,
		kb:        opts.Knowledge,
		journal:   opts.Journal,
		plans:     opts.Plans,
		gate:      opts.Gate,
		in:        opts.Input,
		picker:    opts.Picker,
		render:    opts.Render,
		out:       opts.Out,
		logger:    opts.Logger,
		id:        opts.SessionID,
		dryRun:    opts.DryRun,
		interrupt: opts.Interrupt,
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.render == nil {
		s.render = ui.NewRenderer(s.out, s.cfg.UI.Markdown)
	}
	if s.gate == nil {
		s.gate = ui.PlainGate{In: s.in, Out: s.out}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.interrupt == nil {
		s.interrupt = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []provider.Message {
	return append([]provider.Message(nil), s.history...)
}

func (s *Session) name() string {
	if name := strings.TrimSpace(s.cfg.AssistantName); name != "" {
		return name
	}
	return "Cortana"
}

// Run reads lines until exit, EOF or ctx is done. Errors from single
// turns are printed and the loop keeps going.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprintf(s.out, "%s is ready (%s mode). Type 'exit' to quit, /help for commands.\n", s.name(), s.mode())
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.in.ReadLine(userPrompt, "")
		switch {
		case errors.Is(err, ui.ErrInterrupted):
			s.render.Info("(type exit to quit)")
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(s.out)
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}
		if r, ok := s.in.(interface{ Remember(string) }); ok {
			r.Remember(line)
		}
		done, err := s.Handle(ctx, line)
		if err != nil {
			s.render.Error(err)
		}
		if done {
			fmt.Fprintln(s.out, "Goodbye.")
			return nil
		}
	}
}

// Handle processes one input line and reports whether the session should
// end.
func (s *Session) Handle(ctx context.Context, line string) (bool, error) {
	route := router.Parse(line)
	switch route.Intent {
	case router.IntentEmpty:
		return false, nil
	case router.IntentExit:
		return true, nil
	case router.IntentHelp:
		fmt.Fprint(s.out, router.Help())
	case router.IntentChat:
		return false, s.Ask(ctx, route.Arg)
	case router.IntentPlan:
		if route.Arg == "" {
			return false, errors.New("usage: /plan <task>")
		}
		return false, s.Plan(ctx, route.Arg)
	case router.IntentResume:
		return false, s.Resume(ctx, route.Arg)
	case router.IntentEdit:
		return false, s.Edit(route.Arg)
	case router.IntentPlans:
		return false, s.listPlans()
	case router.IntentKB:
		return false, s.knowledgeCommand(route.Arg)
	case router.IntentRules:
		s.rulesCommand(route.Arg)
	case router.IntentFix:
		return false, s.Fix(ctx, route.Arg)
	case router.IntentClear:
		s.history = nil
		s.render.Info("Conversation cleared.")
	case router.IntentPwd:
		s.render.Println(s.exec.Dir())
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", route.Name)
	}
	return false, nil
}

// Ask sends one chat turn. A reply with several steps becomes a plan;
// a reply with a command goes through the usual safety checks.
func (s *Session) Ask(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.appendTurn(provider.RoleUser, text)
	req, err := s.request(provider.IntentChat, text, s.cfg.Chat.Model, s.History())
	if err != nil {
		s.dropLastTurn()
		return err
	}
	reply, err := s.complete(ctx, req)
	if err != nil {
		s.dropLastTurn()
		return err
	}
	s.appendTurn(provider.RoleAssistant, assistantTurn(reply))
	if explanation := strings.TrimSpace(reply.Explanation); explanation != "" {
		s.render.Assistant(s.name(), explanation)
	}

	switch {
	case len(reply.Steps) > 1:
		p, err := plan.FromReply(text, reply, s.cfg.Plan.MaxSteps)
		if err != nil {
			return err
		}
		return s.startPlan(ctx, p)
	case strings.TrimSpace(reply.Command) != "":
		s.propose(ctx, proposal{request: text, command: reply.Command, risk: reply.Risk, source: sourceChat})
	case len(reply.Steps) == 1:
		s.propose(ctx, proposal{request: text, command: reply.Steps[0].Command, risk: reply.Risk, source: sourceChat})
	}
	return nil
}

func (s *Session) mode() string {
	switch s.cfg.Mode {
	case config.ModeSuggest, config.ModeYolo:
		return s.cfg.Mode
	}
	return config.ModeConfirm
}

func (s *Session) suggestOnly() bool {
	return s.dryRun || s.mode() == config.ModeSuggest
}

// request renders the system prompt for query and wraps messages.
func (s *Session) request(intent provider.Intent, query, model string, messages []provider.Message) (provider.Request, error) {
	base := prompt.Context{
		AssistantName: s.name(),
		Cwd:           s.exec.Dir(),
		Shell:         s.exec.Shell(),
		Mode:          s.mode(),
	}
	if s.suggestOnly() {
		base.Mode = config.ModeSuggest
	}
	assembled := prompt.Assemble(base, prompt.Sources{
		Knowledge:   s.kb,
		Rules:       s.rules.Current(),
		ShareSystem: s.cfg.Knowledge.ShareSystem,
		MaxTools:    maxPromptTools,
		Items:       s.cfg.Knowledge.PromptItems,
	}, query)
	system, err := prompt.System(assembled)
	if err != nil {
		return provider.Request{}, err
	}
	return provider.Request{
		Intent:    intent,
		System:    system,
		Messages:  messages,
		Model:     model,
		MaxTokens: s.cfg.Chat.MaxTokens,
		Context:   s.providerContext(),
	}, nil
}

func (s *Session) providerContext() map[string]any {
	values := map[string]any{"cwd": s.exec.Dir()}
	if s.kb == nil {
		return values
	}
	profile := s.kb.Snapshot().System
	if profile.OS != "" {
		values["os"] = profile.OS
	}
	if profile.PackageManager != "" {
		values["package_manager"] = profile.PackageManager
	}
	return values
}

func (s *Session) complete(ctx context.Context, req provider.Request) (provider.Reply, error) {
	reply, name, err := s.provider.Complete(ctx, s.cfg, req, s.preferred)
	if err != nil {
		s.logger.Warn("provider request failed", zap.String("intent", string(req.Intent)), zap.Error(err))
		return provider.Reply{}, err
	}
	s.logger.Debug("provider replied",
		zap.String("provider", name),
		zap.String("intent", string(req.Intent)),
		zap.Bool("command", reply.Command != ""),
		zap.Int("steps", len(reply.Steps)),
	)
	return reply, nil
}

// assistantTurn is what the history remembers of a reply.
func assistantTurn(reply provider.Reply) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(reply.Explanation))
	if cmd := strings.TrimSpace(reply.Command); cmd != "" {
		b.WriteString("\nCommand: ")
		b.WriteString(cmd)
	}
	for i, step := range reply.Steps {
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, step.Description, step.Command)
	}
	return strings.TrimSpace(b.String())
}

func (s *Session) appendTurn(role provider.Role, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	s.history = append(s.history, provider.Message{Role: role, Content: content})
	s.trimHistory()
}

func (s *Session) dropLastTurn() {
	if len(s.history) > 0 {
		s.history = s.history[:len(s.history)-1]
	}
}

// trimHistory keeps the newest turns and makes sure the history still
// starts with a user turn.
func (s *Session) trimHistory() {
	limit := s.cfg.Chat.MaxHistory
	if limit <= 0 {
		limit = defaultMaxHistory
	}
	if len(s.history) > limit {
		s.history = append([]provider.Message(nil), s.history[len(s.history)-limit:]...)
	}
	for len(s.history) > 1 && s.history[0].Role != provider.RoleUser {
		s.history = s.history[1:]
	}
}

func (s *Session) record(ev journal.Event) {
	if s.journal == nil {
		return
	}
	ev.SessionID = s.id
	if err := s.journal.Record(ev); err != nil {
		s.logger.Warn("could not write journal", zap.Error(err))
	}
}

func (s *Session) remember(rec knowledge.Record) {
	if s.kb == nil {
		return
	}
	if err := s.kb.Record(rec); err != nil {
		s.logger.Warn("could not update knowledge base", zap.Error(err))
		s.render.Warn("Could not save to the knowledge base: %v", err)
	}
}

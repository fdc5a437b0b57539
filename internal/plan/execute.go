package plan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ashwch/cortana/internal/executor"
	"github.com/ashwch/cortana/internal/journal"
	"github.com/ashwch/cortana/internal/safety"
	"go.uber.org/zap"
)

type Action int

const (
	ActionRun Action = iota
	ActionSkip
	ActionDecline
	ActionEdit
)

// StepPrompt is what an Approver is asked about.
type StepPrompt struct {
	PlanID      string
	Index       int
	Total       int
	Description string
	Command     string
	Decision    safety.Decision
}

// Answer is the approver's choice. Command holds the replacement for
// ActionEdit.
type Answer struct {
	Action  Action
	Command string
}

type Approver interface {
	ApproveStep(ctx context.Context, prompt StepPrompt) (Answer, error)
}

type CommandRunner interface {
	Run(ctx context.Context, command string) (executor.Result, error)
}

type Checker interface {
	Check(command string, blockHighRisk bool) safety.Decision
}

// Event reports one step decision. Result is set for executed steps.
type Event struct {
	Plan     *Plan
	Index    int
	Step     Step
	Decision journal.Decision
	Verdict  safety.Decision
	Result   *executor.Result
}

type Runner struct {
	Store    *Store
	Exec     CommandRunner
	Rules    Checker
	Approver Approver
	// ConfirmEach gates every step; otherwise only steps whose verdict
	// demands it are gated.
	ConfirmEach   bool
	BlockHighRisk bool
	Redactor      safety.Redactor
	Out           io.Writer
	Logger        *zap.Logger
	Observe       func(Event)
}

// Execute runs the pending steps of p in order, saving after every step.
// Finished steps are left alone, so calling it again resumes the plan. A
// failed step stops it until the step is reset.
func (r *Runner) Execute(ctx context.Context, p *Plan) error {
	if p.Empty() {
		return ErrNoPlan
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	logger = logger.With(zap.String("plan_id", p.ID))

	for i := range p.Steps {
		if p.Steps[i].Status == StatusFailed {
			fmt.Fprintf(out, "Step %d failed earlier. Reset it before resuming.\n", i+1)
			return fmt.Errorf("%w: step %d has not been reset", ErrStepFailed, i+1)
		}
		if p.Steps[i].Status != StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r.pause(p, err)
		}
		fmt.Fprintf(out, "Step %d/%d: %s\n", i+1, len(p.Steps), p.Steps[i].Description)

		decision, action, err := r.review(ctx, p, i, out)
		if err != nil {
			return r.pause(p, err)
		}
		step := &p.Steps[i]
		switch {
		case decision.Blocked():
			step.Status = StatusFailed
			step.Output = "blocked: " + decision.Reason
			r.save(logger, p)
			r.emit(Event{Plan: p, Index: i, Step: *step, Decision: journal.DecisionBlocked, Verdict: decision})
			logger.Info("plan step blocked", zap.Int("step", i+1), zap.String("rule", decision.Rule))
			return fmt.Errorf("%w: step %d: %s", ErrBlocked, i+1, decision.Reason)
		case action == ActionDecline:
			r.emit(Event{Plan: p, Index: i, Step: *step, Decision: journal.DecisionDeclined, Verdict: decision})
			logger.Info("plan paused", zap.Int("step", i+1))
			return r.pause(p, nil)
		case action == ActionSkip:
			step.Status = StatusSkipped
			r.save(logger, p)
			r.emit(Event{Plan: p, Index: i, Step: *step, Decision: journal.DecisionSkipped, Verdict: decision})
			continue
		}

		res, err := r.Exec.Run(ctx, step.Command)
		if err != nil {
			step.Status = StatusFailed
			step.Output = err.Error()
			step.Success = boolPtr(false)
			r.save(logger, p)
			return fmt.Errorf("%w: step %d: %v", ErrStepFailed, i+1, err)
		}
		if res.Canceled {
			r.emit(Event{Plan: p, Index: i, Step: *step, Decision: journal.DecisionExecuted, Verdict: decision, Result: &res})
			return r.pause(p, context.Canceled)
		}

		step.Output = r.Redactor.Redact(res.Output)
		step.Success = boolPtr(res.Success)
		step.ExitCode = res.ExitCode
		step.Status = StatusDone
		if !res.Success {
			step.Status = StatusFailed
		}
		r.save(logger, p)
		r.emit(Event{Plan: p, Index: i, Step: *step, Decision: journal.DecisionExecuted, Verdict: decision, Result: &res})
		logger.Info("plan step finished", zap.Int("step", i+1), zap.Bool("success", res.Success), zap.Int("exit_code", res.ExitCode))

		if !res.Success {
			fmt.Fprintln(out, "Step failed. Stopping execution.")
			return fmt.Errorf("%w: step %d exited with %d", ErrStepFailed, i+1, res.ExitCode)
		}
	}
	return nil
}

// review shows step i, checks it against the rules and asks for approval
// when needed. Edits replace the command and are checked again.
func (r *Runner) review(ctx context.Context, p *Plan, i int, out io.Writer) (safety.Decision, Action, error) {
	step := &p.Steps[i]
	for {
		fmt.Fprintf(out, "Command: %s\n", step.Command)
		decision := r.Rules.Check(step.Command, r.BlockHighRisk)
		if decision.Blocked() {
			return decision, ActionDecline, nil
		}
		if !r.ConfirmEach && !decision.NeedsConfirmation() {
			return decision, ActionRun, nil
		}
		answer, err := r.Approver.ApproveStep(ctx, StepPrompt{
			PlanID:      p.ID,
			Index:       i,
			Total:       len(p.Steps),
			Description: step.Description,
			Command:     step.Command,
			Decision:    decision,
		})
		if err != nil {
			return decision, ActionDecline, err
		}
		if answer.Action != ActionEdit {
			return decision, answer.Action, nil
		}
		if answer.Command != "" && answer.Command != step.Command {
			step.Command = answer.Command
			r.save(r.Logger, p)
		}
	}
}

// pause saves p with its current step still pending.
func (r *Runner) pause(p *Plan, cause error) error {
	r.save(r.Logger, p)
	if cause == nil || errors.Is(cause, ErrPaused) {
		return ErrPaused
	}
	return fmt.Errorf("%w: %v", ErrPaused, cause)
}

func (r *Runner) save(logger *zap.Logger, p *Plan) {
	if r.Store == nil {
		return
	}
	if err := r.Store.Save(p); err != nil && logger != nil {
		logger.Warn("could not save plan", zap.Error(err))
	}
}

func (r *Runner) emit(ev Event) {
	if r.Observe != nil {
		r.Observe(ev)
	}
}

func boolPtr(v bool) *bool { return &v }

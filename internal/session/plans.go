package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/executor"
	"github.com/ashwch/cortana/internal/journal"
	"github.com/ashwch/cortana/internal/knowledge"
	"github.com/ashwch/cortana/internal/plan"
	"github.com/ashwch/cortana/internal/prompt"
	"github.com/ashwch/cortana/internal/provider"
	"github.com/ashwch/cortana/internal/ui"
	"go.uber.org/zap"
)

// Plan asks the provider to break task into steps, saves the plan and
// runs it.
func (s *Session) Plan(ctx context.Context, task string) error {
	userTurn, err := prompt.Plan(task, s.cfg.Plan.MaxSteps)
	if err != nil {
		return err
	}
	req, err := s.request(provider.IntentPlan, task, s.cfg.Plan.Model, nil)
	if err != nil {
		return err
	}
	complete := func(ctx context.Context, r provider.Request) (provider.Reply, error) {
		r.Model = req.Model
		r.MaxTokens = req.MaxTokens
		r.Context = req.Context
		return s.complete(ctx, r)
	}
	p, err := plan.Generate(ctx, complete, req.System, task, userTurn, s.cfg.Plan.MaxSteps)
	if err != nil {
		return err
	}
	return s.startPlan(ctx, p)
}

func (s *Session) startPlan(ctx context.Context, p *plan.Plan) error {
	if s.plans == nil {
		return errors.New("plan storage is not available")
	}
	s.render.Println(fmt.Sprintf("Plan %s (%d steps):", p.ID, len(p.Steps)))
	s.showSteps(p)
	if err := s.plans.Save(p); err != nil {
		return fmt.Errorf("could not save plan: %w", err)
	}
	s.logger.Info("plan created", zap.String("plan_id", p.ID), zap.Int("steps", len(p.Steps)))

	if s.suggestOnly() {
		for _, step := range p.Steps {
			s.record(journal.Event{
				Source:   sourcePlan,
				Request:  p.Task,
				Command:  step.Command,
				Decision: journal.DecisionSuggested,
				PlanID:   p.ID,
				Dir:      s.exec.Dir(),
			})
		}
		s.render.Info("Plan saved. Run /resume %s to execute it.", p.ID)
		return nil
	}
	return s.execute(ctx, p)
}

func (s *Session) showSteps(p *plan.Plan) {
	for i, step := range p.Steps {
		s.render.Println(step.Line(i + 1))
	}
}

// execute runs the pending steps of p. Pauses, blocks and failed steps
// are reported to the user rather than returned.
func (s *Session) execute(ctx context.Context, p *plan.Plan) error {
	runner := &plan.Runner{
		Store:         s.plans,
		Exec:          interruptible{exec: s.exec, interrupt: s.interrupt},
		Rules:         s.rules,
		Approver:      ui.StepApprover{Gate: s.gate},
		ConfirmEach:   s.mode() != config.ModeYolo && s.cfg.Plan.ConfirmEachStep,
		BlockHighRisk: s.cfg.Safety.BlockHighRisk,
		Redactor:      s.redactor(),
		Out:           s.out,
		Logger:        s.logger,
		Observe:       s.observeStep,
	}
	err := runner.Execute(ctx, p)
	switch {
	case err == nil:
		s.render.Info("Plan %s finished.", p.ID)
	case errors.Is(err, plan.ErrPaused):
		s.render.Info("Plan paused. Run /resume %s to continue.", p.ID)
	case errors.Is(err, plan.ErrBlocked):
		s.render.Warn("%v", err)
		s.render.Info("Change the step with /edit %s.", p.ID)
	case errors.Is(err, plan.ErrStepFailed):
		s.render.Info("Try /fix, or /edit %s and reset the step with r N before resuming.", p.ID)
	default:
		return err
	}
	return nil
}

// observeStep feeds plan steps into the journal and knowledge base the
// same way single commands are recorded.
func (s *Session) observeStep(ev plan.Event) {
	entry := journal.Event{
		Source:   sourcePlan,
		Request:  ev.Step.Description,
		Command:  ev.Step.Command,
		Decision: ev.Decision,
		Verdict:  string(ev.Verdict.Verdict),
		PlanID:   ev.Plan.ID,
		Dir:      s.exec.Dir(),
	}
	if res := ev.Result; res != nil {
		entry.ExitCode = res.ExitCode
		entry.Success = res.Success
		entry.Dir = res.Dir
		entry.Duration = res.Duration.Milliseconds()

		output := s.redactor().Redact(res.Output)
		s.remember(knowledge.Record{
			Command:  ev.Step.Command,
			Output:   output,
			Success:  res.Success,
			ExitCode: res.ExitCode,
			Dir:      res.Dir,
			Request:  ev.Step.Description,
			Source:   sourcePlan,
		})
		if !res.Success && !res.Canceled {
			s.lastFailure = &failure{command: ev.Step.Command, dir: res.Dir, exitCode: res.ExitCode, output: output}
		}
	}
	s.record(entry)
}

// Resume continues the plan with id, or the latest unfinished one.
func (s *Session) Resume(ctx context.Context, id string) error {
	p, err := s.resolvePlan(id)
	if err != nil || p == nil {
		return err
	}
	if p.State() == plan.StatusDone {
		s.render.Info("Plan %s has nothing left to run.", p.ID)
		return nil
	}
	if s.suggestOnly() {
		s.showSteps(p)
		s.render.Info("Not running it (%s).", s.suggestReason())
		return nil
	}
	s.render.Println(fmt.Sprintf("Resuming %s: %s", p.ID, p.Task))
	return s.execute(ctx, p)
}

// Edit opens the step editor on a plan and saves any change.
func (s *Session) Edit(id string) error {
	p, err := s.resolvePlan(id)
	if err != nil || p == nil {
		return err
	}
	editor := plan.Editor{In: s.in, Out: s.out, Picker: s.picker}
	changed, err := editor.Edit(p)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if p.Empty() {
		s.render.Info("Plan %s has no steps left.", p.ID)
	}
	if err := s.plans.Save(p); err != nil {
		return fmt.Errorf("could not save plan: %w", err)
	}
	s.render.Info("Plan %s saved.", p.ID)
	return nil
}

func (s *Session) resolvePlan(id string) (*plan.Plan, error) {
	if s.plans == nil {
		return nil, errors.New("plan storage is not available")
	}
	p, err := s.plans.Resolve(strings.TrimSpace(id))
	if errors.Is(err, plan.ErrNoPlan) {
		if id == "" {
			s.render.Info("No unfinished plan.")
		} else {
			s.render.Info("No plan named %s.", id)
		}
		return nil, nil
	}
	return p, err
}

func (s *Session) listPlans() error {
	if s.plans == nil {
		return errors.New("plan storage is not available")
	}
	plans, err := s.plans.List()
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		s.render.Info("No saved plans.")
		return nil
	}
	for _, p := range plans {
		s.render.Println(PlanSummary(p))
	}
	return nil
}

// PlanSummary is the one-line listing used by /plans and the CLI.
func PlanSummary(p *plan.Plan) string {
	counts := p.Counts()
	return fmt.Sprintf("%-48s %-8s %d/%d  %s", p.ID, p.State(), counts[plan.StatusDone]+counts[plan.StatusSkipped], len(p.Steps), p.Task)
}

// interruptible scopes each plan step to Ctrl+C so an interrupt stops
// the step and pauses the plan instead of ending the process.
type interruptible struct {
	exec      Executor
	interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
}

func (r interruptible) Run(ctx context.Context, command string) (executor.Result, error) {
	runCtx, stop := r.interrupt(ctx)
	defer stop()
	return r.exec.Run(runCtx, command)
}

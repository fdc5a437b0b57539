package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashwch/cortana/internal/plan"
	"github.com/ashwch/cortana/internal/safety"
)

type Choice int

const (
	ChoiceDecline Choice = iota
	ChoiceRun
	ChoiceSkip
	ChoiceEdit
)

// Request is one command waiting for approval. Step requests also offer
// skip and edit.
type Request struct {
	Title    string
	Command  string
	Risk     string
	Decision safety.Decision
	Step     bool
}

// Dangerous commands need an explicit "yes".
func (r Request) Dangerous() bool {
	return r.Decision.Verdict == safety.VerdictDanger || strings.EqualFold(r.Risk, "high")
}

type Answer struct {
	Choice  Choice
	Command string
}

// Gate asks the user whether a command may run.
type Gate interface {
	Confirm(ctx context.Context, req Request) (Answer, error)
}

const defaultAttempts = 3

// PlainGate prompts on a line reader: Enter or y runs, n declines.
type PlainGate struct {
	In       LineInput
	Out      io.Writer
	Attempts int
}

func (g PlainGate) Confirm(ctx context.Context, req Request) (Answer, error) {
	attempts := g.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if warning := Warning(req.Decision); warning != "" {
		fmt.Fprintln(g.Out, warning)
	}
	prompt := plainPrompt(req)
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return Answer{Choice: ChoiceDecline}, err
		}
		line, err := g.In.ReadLine(prompt, "")
		if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
			return Answer{Choice: ChoiceDecline}, nil
		}
		if err != nil {
			return Answer{Choice: ChoiceDecline}, err
		}
		choice, ok := parseChoice(line, req)
		if !ok {
			fmt.Fprintln(g.Out, retryHint(req))
			continue
		}
		if choice != ChoiceEdit {
			return Answer{Choice: choice, Command: req.Command}, nil
		}
		edited, err := g.In.ReadLine("Command: ", req.Command)
		if err != nil && !errors.Is(err, io.EOF) {
			return Answer{Choice: ChoiceDecline}, err
		}
		if edited = strings.TrimSpace(edited); edited == "" {
			edited = req.Command
		}
		return Answer{Choice: ChoiceEdit, Command: edited}, nil
	}
	fmt.Fprintln(g.Out, "No valid answer, not running.")
	return Answer{Choice: ChoiceDecline}, nil
}

// Warning describes a confirm or danger verdict, or returns "".
func Warning(d safety.Decision) string {
	if !d.NeedsConfirmation() || strings.TrimSpace(d.Reason) == "" {
		return ""
	}
	if d.Rule != "" {
		return fmt.Sprintf("Warning: %s (%s)", d.Reason, d.Rule)
	}
	return "Warning: " + d.Reason
}

func plainPrompt(req Request) string {
	switch {
	case req.Dangerous() && req.Step:
		return "Dangerous step. Type 'yes' to run, 's' to skip, 'e' to edit, 'n' to pause: "
	case req.Dangerous():
		return "Dangerous command. Type 'yes' to run, 'n' to cancel: "
	case req.Step:
		return "Run this step? (enter = yes, 's' skip, 'e' edit, 'n' pause): "
	default:
		return "Run this command? (press enter for yes, 'n' to cancel): "
	}
}

func retryHint(req Request) string {
	if req.Dangerous() {
		return "Please type 'yes' or 'n'."
	}
	return "Please press enter or type 'n'."
}

func parseChoice(line string, req Request) (Choice, bool) {
	answer := strings.ToLower(strings.TrimSpace(line))
	switch answer {
	case "n", "no":
		return ChoiceDecline, true
	case "s", "skip":
		if req.Step {
			return ChoiceSkip, true
		}
	case "e", "edit":
		if req.Step {
			return ChoiceEdit, true
		}
	}
	if req.Dangerous() {
		return ChoiceRun, answer == "yes"
	}
	switch answer {
	case "", "y", "yes":
		return ChoiceRun, true
	}
	return ChoiceDecline, false
}

// StepApprover lets a Gate drive plan execution.
type StepApprover struct {
	Gate Gate
}

func (a StepApprover) ApproveStep(ctx context.Context, prompt plan.StepPrompt) (plan.Answer, error) {
	answer, err := a.Gate.Confirm(ctx, Request{
		Title:    fmt.Sprintf("Step %d/%d: %s", prompt.Index+1, prompt.Total, prompt.Description),
		Command:  prompt.Command,
		Decision: prompt.Decision,
		Step:     true,
	})
	if err != nil {
		return plan.Answer{Action: plan.ActionDecline}, err
	}
	switch answer.Choice {
	case ChoiceRun:
		return plan.Answer{Action: plan.ActionRun}, nil
	case ChoiceSkip:
		return plan.Answer{Action: plan.ActionSkip}, nil
	case ChoiceEdit:
		return plan.Answer{Action: plan.ActionEdit, Command: answer.Command}, nil
	default:
		return plan.Answer{Action: plan.ActionDecline}, nil
	}
}

// AutoGate backs --yes. Dangerous commands still need someone to type
// "yes", so it declines them.
type AutoGate struct{}

func (AutoGate) Confirm(_ context.Context, req Request) (Answer, error) {
	if req.Dangerous() {
		return Answer{Choice: ChoiceDecline}, nil
	}
	return Answer{Choice: ChoiceRun, Command: req.Command}, nil
}

// RefuseGate declines everything. It stands in when stdin is not a
// terminal and --yes was not given.
type RefuseGate struct {
	Out io.Writer
}

func (g RefuseGate) Confirm(_ context.Context, _ Request) (Answer, error) {
	if g.Out != nil {
		fmt.Fprintln(g.Out, "Not running: stdin is not a terminal (pass --yes to allow).")
	}
	return Answer{Choice: ChoiceDecline}, nil
}

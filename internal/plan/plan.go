// Package plan holds multi-step tasks: generation from a provider reply,
// one JSON file per plan on disk, step-by-step execution with approval,
// and interactive editing.
package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashwch/cortana/internal/provider"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

var (
	ErrNoPlan     = errors.New("no plan found")
	ErrPaused     = errors.New("plan paused")
	ErrBlocked    = errors.New("plan step blocked")
	ErrStepFailed = errors.New("plan step failed")
)

const maxSlugLen = 40

// Step keeps the field names of the original plan files; Success is nil
// until the step has run.
type Step struct {
	Description string `json:"description"`
	Command     string `json:"command"`
	Status      Status `json:"status"`
	Output      string `json:"output"`
	Success     *bool  `json:"success"`
	ExitCode    int    `json:"exit_code,omitempty"`
}

type Plan struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var now = time.Now

// New builds a pending plan. Steps without a command are dropped.
func New(task string, steps []provider.Step) (*Plan, error) {
	task = strings.TrimSpace(task)
	p := &Plan{
		ID:        newID(task),
		Task:      task,
		CreatedAt: now().UTC(),
	}
	p.UpdatedAt = p.CreatedAt
	for _, s := range steps {
		command := strings.TrimSpace(s.Command)
		if command == "" {
			continue
		}
		desc := strings.TrimSpace(s.Description)
		if desc == "" {
			desc = command
		}
		p.Steps = append(p.Steps, Step{Description: desc, Command: command, Status: StatusPending})
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("plan for %q has no runnable steps", task)
	}
	return p, nil
}

func newID(task string) string {
	base := slug.Make(task)
	if len(base) > maxSlugLen {
		base = strings.TrimRight(base[:maxSlugLen], "-")
	}
	if base == "" {
		base = "plan"
	}
	return base + "-" + uuid.NewString()[:8]
}

// Completer sends one request to a provider.
type Completer func(ctx context.Context, req provider.Request) (provider.Reply, error)

// FromReply turns a provider reply into a plan. A reply with a single
// command and no steps becomes a one-step plan.
func FromReply(task string, reply provider.Reply, maxSteps int) (*Plan, error) {
	steps := reply.Steps
	if len(steps) == 0 && strings.TrimSpace(reply.Command) != "" {
		steps = []provider.Step{{Description: reply.Explanation, Command: reply.Command}}
	}
	if maxSteps > 0 && len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}
	return New(task, steps)
}

// Generate asks the provider to break task into steps. userPrompt is the
// rendered plan request; system is the usual system prompt.
func Generate(ctx context.Context, complete Completer, system, task, userPrompt string, maxSteps int) (*Plan, error) {
	reply, err := complete(ctx, provider.Request{
		Intent:   provider.IntentPlan,
		System:   system,
		Messages: []provider.Message{{Role: provider.RoleUser, Content: userPrompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("could not generate plan: %w", err)
	}
	return FromReply(task, reply, maxSteps)
}

func (p *Plan) Empty() bool { return p == nil || len(p.Steps) == 0 }

// State summarises the plan: failed if any step failed, pending while
// steps remain, done otherwise.
func (p *Plan) State() Status {
	pending := false
	for _, s := range p.Steps {
		switch s.Status {
		case StatusFailed:
			return StatusFailed
		case StatusPending:
			pending = true
		}
	}
	if pending {
		return StatusPending
	}
	return StatusDone
}

// Finished reports whether nothing is left to run.
func (p *Plan) Finished() bool {
	return p.Empty() || p.State() != StatusPending
}

func (p *Plan) Counts() map[Status]int {
	counts := map[Status]int{}
	for _, s := range p.Steps {
		counts[s.Status]++
	}
	return counts
}

func (p *Plan) touch() { p.UpdatedAt = now().UTC() }

// Reset puts step i back to pending and clears its result.
func (p *Plan) Reset(i int) error {
	if i < 0 || i >= len(p.Steps) {
		return fmt.Errorf("no step %d", i+1)
	}
	p.Steps[i].Status = StatusPending
	p.Steps[i].Output = ""
	p.Steps[i].Success = nil
	p.Steps[i].ExitCode = 0
	p.touch()
	return nil
}

func (p *Plan) Delete(i int) error {
	if i < 0 || i >= len(p.Steps) {
		return fmt.Errorf("no step %d", i+1)
	}
	p.Steps = append(p.Steps[:i], p.Steps[i+1:]...)
	p.touch()
	return nil
}

// Line renders a step the way the editor and `plan show` list it.
func (s Step) Line(n int) string {
	status := s.Status
	if status == "" {
		status = StatusPending
	}
	return fmt.Sprintf("%d. %s: %s [%s]", n, s.Description, s.Command, status)
}

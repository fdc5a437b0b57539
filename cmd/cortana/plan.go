package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashwch/cortana/internal/plan"
	"github.com/ashwch/cortana/internal/session"
	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <request...>",
		Short: "Ask once, confirm the suggested command and exit",
		Example: `  cortana ask how much disk space is free
  cortana --dry-run ask find files over 1GB in my home dir`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session.Session, _ *stack) error {
				return s.Ask(cmd.Context(), strings.Join(args, " "))
			})
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [task...]",
		Short: "Break a task into steps and run them with approval",
		Long: `With a task, cortana asks the model for a step-by-step plan, saves it and
runs it, asking before each step. Without one it lists saved plans.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.listPlans()
			}
			return a.withSession(func(s *session.Session, _ *stack) error {
				return s.Plan(cmd.Context(), strings.Join(args, " "))
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved plans",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return a.listPlans() },
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show the steps of a plan (default: latest unfinished)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.showPlan(firstArg(args))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "resume [id]",
		Short: "Continue a paused or failed plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session.Session, _ *stack) error {
				return s.Resume(cmd.Context(), firstArg(args))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "edit [id]",
		Short: "Edit, reset or remove plan steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.withSession(func(s *session.Session, _ *stack) error {
				return s.Edit(firstArg(args))
			})
		},
	})
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func (a *app) listPlans() error {
	store, err := a.openPlans()
	if err != nil {
		return err
	}
	plans, err := store.List()
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Fprintln(a.stdout, "No saved plans.")
		return nil
	}
	for _, p := range plans {
		fmt.Fprintln(a.stdout, session.PlanSummary(p))
	}
	return nil
}

func (a *app) showPlan(id string) error {
	store, err := a.openPlans()
	if err != nil {
		return err
	}
	p, err := store.Resolve(id)
	if errors.Is(err, plan.ErrNoPlan) {
		if id == "" {
			return errors.New("no unfinished plan")
		}
		return fmt.Errorf("no plan named %s", id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s\n%s (%s)\n", p.ID, p.Task, p.State())
	for i, step := range p.Steps {
		fmt.Fprintln(a.stdout, step.Line(i+1))
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashwch/cortana/internal/fsutil"
	"github.com/ashwch/cortana/internal/safety"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and test the safety rules",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return a.showRules() },
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the rules in effect",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return a.showRules() },
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "check <command...>",
		Short:   "Show how the rules treat a command without running it",
		Example: `  cortana rules check 'rm -rf ./build'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.checkRule(strings.Join(args, " "))
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter rules file",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return a.initRules(force) },
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing rules file")
	cmd.AddCommand(initCmd)
	return cmd
}

func (a *app) showRules() error {
	rules, err := a.openRules()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "# %s\n", rules.Path())
	current := rules.Current()
	if len(current.Blocked)+len(current.Confirm)+len(current.Allowed)+len(current.Preferences) == 0 && !current.AllowlistOnly {
		fmt.Fprintln(a.stdout, "# no rules configured; run `cortana rules init` for a starter file")
		return nil
	}
	payload, err := yaml.Marshal(current)
	if err != nil {
		return err
	}
	_, err = a.stdout.Write(payload)
	return err
}

func (a *app) checkRule(command string) error {
	rules, err := a.openRules()
	if err != nil {
		return err
	}
	decision := rules.Check(command, a.cfg.Safety.BlockHighRisk)
	fmt.Fprintf(a.stdout, "%s\n", decision.Verdict)
	if decision.Reason != "" {
		fmt.Fprintf(a.stdout, "reason: %s\n", decision.Reason)
	}
	if decision.Rule != "" {
		fmt.Fprintf(a.stdout, "rule: %s\n", decision.Rule)
	}
	return nil
}

func (a *app) initRules(force bool) error {
	path, err := a.rulesPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if _, err := safety.ParseRules([]byte(safety.StarterRules)); err != nil {
		return fmt.Errorf("starter rules are invalid: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("could not create rules dir: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, []byte(safety.StarterRules), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n", path)
	return nil
}

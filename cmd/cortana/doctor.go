package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"sort"
	"strings"

	"github.com/ashwch/cortana/internal/appdirs"
	"github.com/ashwch/cortana/internal/provider"
	"github.com/ashwch/cortana/internal/safety"
	"github.com/spf13/cobra"
)

type check struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

func newDoctorCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check config, state and providers",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			checks, err := a.doctorChecks()
			if err != nil {
				return err
			}
			if asJSON {
				payload, err := json.MarshalIndent(checks, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(payload))
				return nil
			}
			fmt.Fprintln(a.stdout, "doctor checks:")
			for _, c := range checks {
				fmt.Fprintf(a.stdout, "  %-8s %-22s %s\n", c.Status, c.Key, c.Value)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print checks as JSON")
	return cmd
}

func (a *app) doctorChecks() ([]check, error) {
	stateDir, err := appdirs.StateDir()
	if err != nil {
		return nil, err
	}
	rulesPath, err := a.rulesPath()
	if err != nil {
		return nil, err
	}

	checks := []check{
		{Key: "os", Value: goruntime.GOOS, Status: "ok"},
		{Key: "config_path", Value: a.cfgPath, Status: statusPath(a.cfgPath)},
		{Key: "state_dir", Value: stateDir, Status: statusPath(stateDir)},
		rulesCheck(rulesPath),
		{Key: "mode", Value: a.cfg.Mode, Status: "ok"},
	}

	issues := provider.NewRegistry().Validate(a.cfg)
	if len(issues) == 0 {
		checks = append(checks, check{Key: "providers", Value: fmt.Sprintf("%d configured", len(a.cfg.Providers)), Status: "ok"})
	} else {
		checks = append(checks, check{Key: "providers", Value: fmt.Sprintf("%d issue(s)", len(issues)), Status: "error"})
		names := make([]string, 0, len(issues))
		for name := range issues {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			checks = append(checks, check{Key: "provider_issue", Value: fmt.Sprintf("%s: %v", name, issues[name]), Status: "error"})
		}
	}

	for _, name := range a.cfg.ProviderNames() {
		p := a.cfg.Providers[name]
		status := "ok"
		switch {
		case !p.IsEnabled():
			status = "disabled"
		case issues[name] != nil:
			status = "error"
		}
		value := fmt.Sprintf("type=%s model=%s", p.Type, p.Model)
		if p.Command != "" {
			value += " command=" + statusBinaryPath(p.Command)
		}
		checks = append(checks, check{Key: "provider." + name, Value: value, Status: status})
	}
	return checks, nil
}

func rulesCheck(path string) check {
	c := check{Key: "rules_file", Value: path, Status: statusPath(path)}
	if c.Status != "ok" {
		return c
	}
	if _, err := safety.LoadRules(path); err != nil {
		c.Status = "error"
		c.Value = fmt.Sprintf("%s: %v", path, err)
	}
	return c
}

func statusPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return "missing"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "missing"
		}
		return "error"
	}
	return "ok"
}

func statusBinaryPath(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return name + " (not found)"
	}
	return path
}

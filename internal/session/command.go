package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/executor"
	"github.com/ashwch/cortana/internal/journal"
	"github.com/ashwch/cortana/internal/knowledge"
	"github.com/ashwch/cortana/internal/prompt"
	"github.com/ashwch/cortana/internal/provider"
	"github.com/ashwch/cortana/internal/safety"
	"github.com/ashwch/cortana/internal/ui"
	"go.uber.org/zap"
)

// proposal is a command suggested by the assistant together with the
// request that led to it.
type proposal struct {
	request string
	command string
	risk    string
	source  string
}

// propose applies the mode and the safety rules to one command and runs
// it when allowed. It reports whether the command ran.
func (s *Session) propose(ctx context.Context, p proposal) bool {
	command, err := executor.NormalizeCommand(p.command)
	if err != nil {
		s.render.Warn("Ignoring the suggested command: %v", err)
		return false
	}
	s.render.Command(command)

	decision := s.rules.Check(command, s.cfg.Safety.BlockHighRisk)
	ev := journal.Event{
		Source:  p.source,
		Request: p.request,
		Command: command,
		Verdict: string(decision.Verdict),
		Dir:     s.exec.Dir(),
	}
	if decision.Blocked() {
		s.render.Warn("Blocked: %s", decision.Reason)
		ev.Decision = journal.DecisionBlocked
		s.record(ev)
		s.logger.Info("command blocked", zap.String("rule", decision.Rule))
		return false
	}
	if s.suggestOnly() {
		if warning := ui.Warning(decision); warning != "" {
			s.render.Warn("%s", warning)
		}
		s.render.Info("Not running it (%s).", s.suggestReason())
		ev.Decision = journal.DecisionSuggested
		s.record(ev)
		return false
	}
	if s.needsGate(decision, p.risk) {
		answer, err := s.gate.Confirm(ctx, ui.Request{Command: command, Risk: p.risk, Decision: decision})
		if err != nil {
			s.logger.Warn("confirmation failed", zap.Error(err))
		}
		if err != nil || answer.Choice != ui.ChoiceRun {
			s.render.Info("Command not run.")
			ev.Decision = journal.DecisionDeclined
			s.record(ev)
			return false
		}
	}
	return s.runCommand(ctx, p, command, decision)
}

func (s *Session) suggestReason() string {
	if s.dryRun {
		return "dry run"
	}
	return "suggest mode"
}

// needsGate decides whether the user is asked before a command runs.
// Confirm and danger verdicts, and commands the model rates high risk,
// are always asked about.
func (s *Session) needsGate(decision safety.Decision, risk string) bool {
	if decision.NeedsConfirmation() || strings.EqualFold(strings.TrimSpace(risk), "high") {
		return true
	}
	if s.mode() == config.ModeYolo {
		return false
	}
	return !(s.cfg.Safety.AutoApproveAllowed && decision.Verdict == safety.VerdictAllow)
}

func (s *Session) redactor() safety.Redactor {
	return safety.Redactor{Enabled: s.cfg.Safety.RedactSecrets}
}

func (s *Session) runCommand(ctx context.Context, p proposal, command string, decision safety.Decision) bool {
	runCtx, stop := s.interrupt(ctx)
	res, err := s.exec.Run(runCtx, command)
	stop()
	if err != nil {
		s.render.Error(fmt.Errorf("could not run command: %w", err))
		s.logger.Warn("command did not start", zap.Error(err))
		return false
	}
	s.report(res)

	output := s.redactor().Redact(res.Output)
	s.remember(knowledge.Record{
		Command:  command,
		Output:   output,
		Success:  res.Success,
		ExitCode: res.ExitCode,
		Dir:      res.Dir,
		Request:  p.request,
		Source:   p.source,
	})
	s.record(journal.Event{
		Source:   p.source,
		Request:  p.request,
		Command:  command,
		Decision: journal.DecisionExecuted,
		Verdict:  string(decision.Verdict),
		ExitCode: res.ExitCode,
		Success:  res.Success,
		Dir:      res.Dir,
		Duration: res.Duration.Milliseconds(),
	})
	s.logger.Info("command finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration),
	)

	if res.Success {
		s.lastFailure = nil
	} else if !res.Canceled {
		s.lastFailure = &failure{command: command, dir: res.Dir, exitCode: res.ExitCode, output: output}
		s.render.Info("Type /fix to ask for a fix.")
	}
	if s.cfg.Chat.ShareOutput {
		s.appendTurn(provider.RoleUser, prompt.Outcome(command, res.ExitCode, res.Success, output, maxSharedOutput))
	}
	return true
}

// report prints the status line after a command.
func (s *Session) report(res executor.Result) {
	var detail string
	switch {
	case res.Canceled:
		detail = " (interrupted)"
	case res.TimedOut:
		detail = " (timed out)"
	case res.Truncated:
		detail = " (output truncated)"
	}
	if res.Duration >= time.Second {
		detail += fmt.Sprintf(" in %s", res.Duration.Round(100*time.Millisecond))
	}
	s.render.Outcome(res.Success, res.ExitCode, detail)
	if res.NextDir != "" && res.NextDir != res.Dir {
		s.render.Info("Now in %s", res.NextDir)
	}
}

// Fix asks for a corrected version of the last failed command. extra is
// passed along as context from the user.
func (s *Session) Fix(ctx context.Context, extra string) error {
	failed, err := s.latestFailure()
	if err != nil {
		return err
	}
	if failed == nil {
		s.render.Info("No failed command to fix.")
		return nil
	}
	turn, err := prompt.Fix(prompt.Failure{
		Command:  failed.command,
		Dir:      failed.dir,
		ExitCode: failed.exitCode,
		Output:   failed.output,
		Context:  extra,
	})
	if err != nil {
		return err
	}
	req, err := s.request(provider.IntentFix, failed.command, s.cfg.Chat.Model, []provider.Message{{Role: provider.RoleUser, Content: turn}})
	if err != nil {
		return err
	}
	req.Context["failed_command"] = failed.command
	req.Context["failed_output"] = failed.output

	reply, err := s.complete(ctx, req)
	if err != nil {
		return fmt.Errorf("could not get a fix: %w", err)
	}
	if explanation := strings.TrimSpace(reply.Explanation); explanation != "" {
		s.render.Assistant(s.name(), explanation)
	}
	command := strings.TrimSpace(reply.Command)
	if command == "" && len(reply.Steps) > 0 {
		command = reply.Steps[0].Command
	}
	if command == "" {
		return nil
	}
	s.appendTurn(provider.RoleUser, fmt.Sprintf("Fix the failed command: %s", failed.command))
	s.appendTurn(provider.RoleAssistant, assistantTurn(reply))
	s.propose(ctx, proposal{request: "fix: " + failed.command, command: command, risk: reply.Risk, source: sourceFix})
	return nil
}

// latestFailure prefers the failure seen in this process, then the
// journal, filling in output from the knowledge base when it has it.
func (s *Session) latestFailure() (*failure, error) {
	if s.lastFailure != nil {
		return s.lastFailure, nil
	}
	if s.journal == nil {
		return nil, nil
	}
	ev, err := s.journal.LatestFailure(s.id)
	if err != nil {
		return nil, fmt.Errorf("could not read the journal: %w", err)
	}
	if ev == nil {
		return nil, nil
	}
	out := &failure{command: ev.Command, dir: ev.Dir, exitCode: ev.ExitCode}
	if s.kb != nil {
		for _, rec := range s.kb.Recent(0) {
			if rec.Command == ev.Command && !rec.Success {
				out.output = rec.Output
				break
			}
		}
	}
	return out, nil
}

func (s *Session) knowledgeCommand(arg string) error {
	if s.kb == nil {
		return errors.New("knowledge base is not available")
	}
	verb, rest, _ := strings.Cut(strings.TrimSpace(arg), " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(verb) {
	case "":
		s.showKnowledge()
		return nil
	case "set":
		key, value, _ := strings.Cut(rest, " ")
		if strings.TrimSpace(key) == "" {
			return errors.New("usage: /kb set <key> <value>")
		}
		if err := s.kb.SetFact(key, value); err != nil {
			return err
		}
		if strings.TrimSpace(value) == "" {
			s.render.Info("Forgot %s.", key)
		} else {
			s.render.Info("Remembered %s.", key)
		}
	case "note":
		if rest == "" {
			return errors.New("usage: /kb note <text>")
		}
		if err := s.kb.AddNote(rest); err != nil {
			return err
		}
		s.render.Info("Note saved.")
	case "refresh":
		if err := s.kb.RefreshSystem(); err != nil {
			return err
		}
		s.render.Info("System profile refreshed.")
	default:
		return fmt.Errorf("unknown /kb action %q", verb)
	}
	return nil
}

func (s *Session) showKnowledge() {
	snap := s.kb.Snapshot()
	ok, total := snap.SuccessRate()
	s.render.Println(fmt.Sprintf("Knowledge base: %s", s.kb.Path()))
	s.render.Println(fmt.Sprintf("Commands: %d recorded, %d succeeded", total, ok))
	if summary := snap.System.HumanSummary(maxPromptTools); summary != "" {
		s.render.Println(summary)
	}
	for _, line := range snap.FactLines() {
		s.render.Println("  " + line)
	}
	for _, note := range snap.Notes {
		s.render.Println("  note: " + note)
	}
}

func (s *Session) rulesCommand(arg string) {
	command := strings.TrimSpace(arg)
	if command == "" {
		rules := s.rules.Current()
		s.render.Println(fmt.Sprintf("Rules file: %s", s.rules.Path()))
		s.render.Println(fmt.Sprintf("blocked: %d  confirm: %d  allowed: %d  allowlist only: %t",
			len(rules.Blocked), len(rules.Confirm), len(rules.Allowed), rules.AllowlistOnly))
		for _, line := range rules.PreferenceLines() {
			s.render.Println("  " + line)
		}
		return
	}
	decision := s.rules.Check(command, s.cfg.Safety.BlockHighRisk)
	line := string(decision.Verdict)
	if decision.Reason != "" {
		line += ": " + decision.Reason
	}
	if decision.Rule != "" {
		line += " (" + decision.Rule + ")"
	}
	s.render.Println(line)
}

// Package prompt renders the text sent to providers: the system prompt
// built from what cortana knows about the machine, and the plan and fix
// requests.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/ashwch/cortana/internal/knowledge"
	"github.com/ashwch/cortana/internal/safety"
)

var (
	//go:embed system.tmpl
	systemSource string
	//go:embed plan.tmpl
	planSource string
	//go:embed fix.tmpl
	fixSource string

	templates = template.Must(template.New("system").Parse(systemSource))
	_         = template.Must(templates.New("plan").Parse(planSource))
	_         = template.Must(templates.New("fix").Parse(fixSource))
)

const (
	maxRelevantOutput = 160
	maxFixOutput      = 2000
	defaultMaxSteps   = 12
)

// Context is everything the system prompt may mention. Empty fields are
// left out of the rendered text.
type Context struct {
	AssistantName string
	System        string
	Cwd           string
	Shell         string
	Mode          string
	Preferences   []string
	Facts         []string
	Notes         []string
	Relevant      []string
}

// Sources groups the stores a Context is assembled from.
type Sources struct {
	Knowledge   *knowledge.Store
	Rules       safety.RuleSet
	ShareSystem bool
	MaxTools    int
	Items       int
}

// Assemble fills a Context from the knowledge base and rules. query picks
// which past commands are mentioned.
func Assemble(base Context, src Sources, query string) Context {
	out := base
	out.Preferences = append(out.Preferences, src.Rules.PreferenceLines()...)
	if src.Knowledge == nil {
		return out
	}
	snap := src.Knowledge.Snapshot()
	if src.ShareSystem && !snap.System.IsZero() {
		out.System = snap.System.PromptContext(src.MaxTools)
	}
	out.Facts = append(out.Facts, snap.FactLines()...)
	out.Notes = append(out.Notes, snap.Notes...)
	if strings.TrimSpace(query) != "" {
		limit := src.Items
		if limit <= 0 {
			limit = 5
		}
		out.Relevant = RelevantLines(src.Knowledge.Relevant(query, limit))
	}
	return out
}

// RelevantLines formats ranked past commands, skipping failures.
func RelevantLines(matches []knowledge.Match) []string {
	lines := make([]string, 0, len(matches))
	for _, match := range matches {
		rec := match.Record
		if !rec.Success {
			continue
		}
		line := rec.Command
		if req := strings.TrimSpace(rec.Request); req != "" {
			line = fmt.Sprintf("%q -> %s", req, rec.Command)
		}
		if out := firstLine(rec.Output); out != "" {
			line += " (output: " + clip(out, maxRelevantOutput) + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func System(ctx Context) (string, error) {
	if strings.TrimSpace(ctx.AssistantName) == "" {
		ctx.AssistantName = "Cortana"
	}
	return render("system", ctx)
}

// Plan is the user turn asking for a task broken into steps.
func Plan(task string, maxSteps int) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", fmt.Errorf("plan task cannot be empty")
	}
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return render("plan", struct {
		Task     string
		MaxSteps int
	}{task, maxSteps})
}

type Failure struct {
	Command  string
	Dir      string
	ExitCode int
	Output   string
	Context  string
}

// Fix is the user turn asking for a corrected version of a failed command.
func Fix(f Failure) (string, error) {
	if strings.TrimSpace(f.Command) == "" {
		return "", fmt.Errorf("no failed command to fix")
	}
	f.Output = tail(strings.TrimSpace(f.Output), maxFixOutput)
	f.Context = strings.TrimSpace(f.Context)
	return render("fix", f)
}

// Outcome summarises a finished command for the next turn of the chat.
func Outcome(command string, exitCode int, success bool, output string, max int) string {
	status := "succeeded"
	if !success {
		status = fmt.Sprintf("failed with exit code %d", exitCode)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I ran `%s` and it %s.", command, status)
	output = strings.TrimSpace(output)
	if output != "" && max > 0 {
		fmt.Fprintf(&b, "\nOutput:\n%s", tail(output, max))
	}
	return b.String()
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("could not render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

// tail keeps the end of long output, where errors usually are.
func tail(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return "...\n" + text[len(text)-max:]
}

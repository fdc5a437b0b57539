package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	maxProseWidth = 100
)

var (
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	commandLabel   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	commandStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
)

// Renderer prints the chat transcript. Styling and markdown are only
// applied when Out is a terminal.
type Renderer struct {
	Out      io.Writer
	Styled   bool
	Markdown bool
	Width    int
}

// NewRenderer inspects out to decide on styling and width.
func NewRenderer(out io.Writer, markdown bool) *Renderer {
	r := &Renderer{Out: out, Width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.Styled = true
		r.Markdown = markdown
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			r.Width = w
		}
	}
	return r
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.Styled {
		return text
	}
	return s.Render(text)
}

// Assistant prints "<name>: <explanation>".
func (r *Renderer) Assistant(name, explanation string) {
	explanation = strings.TrimSpace(explanation)
	label := r.style(assistantStyle, name+":")
	if r.Markdown && looksLikeMarkdown(explanation) {
		if rendered, err := renderMarkdown(explanation, r.Width); err == nil {
			fmt.Fprintf(r.Out, "%s\n%s", label, rendered)
			return
		}
	}
	fmt.Fprintf(r.Out, "%s %s\n", label, explanation)
}

func (r *Renderer) Command(command string) {
	fmt.Fprintf(r.Out, "%s %s\n", r.style(commandLabel, "Command:"), r.style(commandStyle, command))
}

func (r *Renderer) Info(format string, args ...any) {
	fmt.Fprintln(r.Out, r.style(mutedStyle, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Warn(format string, args ...any) {
	fmt.Fprintln(r.Out, r.style(warnStyle, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.Out, r.style(errorStyle, "cortana: "+err.Error()))
}

// Outcome prints the one-line status after a command finishes.
func (r *Renderer) Outcome(success bool, exitCode int, detail string) {
	if success {
		fmt.Fprintln(r.Out, r.style(successStyle, "done"+detail))
		return
	}
	fmt.Fprintln(r.Out, r.style(errorStyle, fmt.Sprintf("exit %d%s", exitCode, detail)))
}

func (r *Renderer) Println(a ...any) {
	fmt.Fprintln(r.Out, a...)
}

func looksLikeMarkdown(text string) bool {
	for _, marker := range []string{"```", "**", "\n- ", "\n* ", "\n1. ", "# ", "`"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func renderMarkdown(content string, width int) (string, error) {
	if width <= 0 || width > maxProseWidth {
		width = maxProseWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n") + "\n", nil
}

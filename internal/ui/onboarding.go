package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// OnboardingDecision is what the user chose on first run: whether the
// machine profile is shared with providers and an optional note that is
// stored in the knowledge base.
type OnboardingDecision struct {
	DisableContext bool
	SetUserNote    bool
	UserNote       string
}

const maxCardLines = 14

var (
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(1, 2)
	cardTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("87"))
	cardBody     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	cardKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
)

// onboardingModel is the first-run card. Enter shares the profile, d keeps
// it local and e switches to a one-line note editor.
type onboardingModel struct {
	lines    []string
	note     textinput.Model
	editing  bool
	decision OnboardingDecision
	done     bool
}

// Onboard shows the learned machine profile and asks whether to keep
// sharing it. The bubbletea card is used on a terminal; otherwise, or when
// it cannot start, the question is asked on in.
func Onboard(backend string, summary string, currentNote string, in LineInput, out io.Writer) (OnboardingDecision, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return OnboardingDecision{}, nil
	}
	if IsInteractiveBackend(backend) {
		if decision, err := onboardWithBubbleTea(summary, currentNote); err == nil {
			return decision, nil
		}
	}
	return onboardPlain(summary, in, out)
}

func onboardPlain(summary string, in LineInput, out io.Writer) (OnboardingDecision, error) {
	fmt.Fprintln(out, "Cortana learned this about your machine:")
	for _, line := range cardLines(summary, maxCardLines) {
		fmt.Fprintln(out, "  "+line)
	}
	var decision OnboardingDecision
	answer, err := in.ReadLine("Share it with the assistant? (enter = yes, 'n' to keep it local): ", "")
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
			return decision, nil
		}
		return decision, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "n", "no", "d":
		decision.DisableContext = true
	}
	note, err := in.ReadLine("Anything else it should know? (optional): ", "")
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, ErrInterrupted) {
		return decision, err
	}
	if note = strings.TrimSpace(note); note != "" {
		decision.SetUserNote = true
		decision.UserNote = note
	}
	return decision, nil
}

func onboardWithBubbleTea(summary, currentNote string) (OnboardingDecision, error) {
	final, err := tea.NewProgram(newOnboardingModel(summary, currentNote), tea.WithAltScreen()).Run()
	if err != nil {
		return OnboardingDecision{}, err
	}
	m, ok := final.(onboardingModel)
	if !ok {
		return OnboardingDecision{}, nil
	}
	return m.decision, nil
}

func newOnboardingModel(summary, currentNote string) onboardingModel {
	note := textinput.New()
	note.Placeholder = "e.g. prefer podman over docker"
	note.CharLimit = 240
	note.Width = 72
	note.SetValue(strings.TrimSpace(currentNote))
	return onboardingModel{lines: cardLines(summary, maxCardLines), note: note}
}

func (m onboardingModel) Init() tea.Cmd { return nil }

func (m onboardingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.editing {
			var cmd tea.Cmd
			m.note, cmd = m.note.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if key.Type == tea.KeyCtrlC {
		m.done = true
		return m, tea.Quit
	}
	if m.editing {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			m.decision.SetUserNote = true
			m.decision.UserNote = strings.TrimSpace(m.note.Value())
			return m, tea.Quit
		case tea.KeyEsc:
			m.editing = false
			m.note.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.note, cmd = m.note.Update(msg)
		return m, cmd
	}

	switch strings.ToLower(key.String()) {
	case "enter", "y", "esc", "q":
		m.done = true
		return m, tea.Quit
	case "d", "n":
		m.done = true
		m.decision.DisableContext = true
		return m, tea.Quit
	case "e":
		m.editing = true
		m.note.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m onboardingModel) View() string {
	var b strings.Builder
	if m.editing {
		b.WriteString(cardTitle.Render("cortana setup: note") + "\n\n")
		b.WriteString(cardBody.Render("Anything the profile missed? It is saved in the knowledge base.") + "\n\n")
		b.WriteString(m.note.View() + "\n\n")
		b.WriteString(cardKeyStyle.Render("[enter] save  [esc] back"))
		return cardStyle.Render(b.String())
	}
	b.WriteString(cardTitle.Render("cortana setup") + "\n\n")
	b.WriteString(cardBody.Render("What cortana learned about this machine:") + "\n")
	for _, line := range m.lines {
		b.WriteString(cardBody.Render("  "+line) + "\n")
	}
	b.WriteString("\n" + cardKeyStyle.Render("[enter] share with the assistant  [d] keep it local  [e] add a note"))
	return cardStyle.Render(b.String())
}

// cardLines drops blank lines and folds everything past limit into a count.
func cardLines(summary string, limit int) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(summary), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if limit <= 0 || len(lines) <= limit {
		return lines
	}
	return append(lines[:limit:limit], fmt.Sprintf("(%d more)", len(lines)-limit))
}

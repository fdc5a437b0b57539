package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rivo/tview"
)

// BackendGate confirms through a TUI backend and falls back to Fallback
// when none of them can start.
type BackendGate struct {
	Backend  string
	Fallback Gate
}

func (g BackendGate) Confirm(ctx context.Context, req Request) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{Choice: ChoiceDecline}, err
	}
	var firstErr error
	for _, candidate := range backendCandidates(g.Backend) {
		var (
			answer Answer
			err    error
		)
		switch candidate {
		case BackendBubbleTea:
			answer, err = confirmWithBubbleTea(req)
		case BackendHuh:
			answer, err = confirmWithHuh(req)
		case BackendTView:
			answer, err = confirmWithTView(req)
		default:
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return answer, nil
	}
	if g.Fallback != nil {
		return g.Fallback.Confirm(ctx, req)
	}
	if firstErr != nil {
		return Answer{Choice: ChoiceDecline}, firstErr
	}
	return Answer{Choice: ChoiceDecline}, nil
}

func requestHeading(req Request) string {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Run this command?"
	}
	return title + "\n\n" + requestDetails(req)
}

func requestDetails(req Request) string {
	lines := []string{strings.TrimSpace(req.Command)}
	if risk := strings.TrimSpace(req.Risk); risk != "" {
		lines = append(lines, "", "risk: "+risk)
	}
	if warning := Warning(req.Decision); warning != "" {
		lines = append(lines, "", warning)
	}
	return strings.Join(lines, "\n")
}

type confirmMode int

const (
	confirmModeMenu confirmMode = iota
	confirmModeEdit
	confirmModeTypeYes
)

type bubbleConfirmModel struct {
	req    Request
	mode   confirmMode
	input  textinput.Model
	answer Answer
	done   bool
}

func newBubbleConfirmModel(req Request) bubbleConfirmModel {
	input := textinput.New()
	input.CharLimit = 4096
	input.Width = 72
	m := bubbleConfirmModel{req: req, input: input, answer: Answer{Choice: ChoiceDecline}}
	if req.Dangerous() && !req.Step {
		m.mode = confirmModeTypeYes
		m.input.Placeholder = "yes"
		m.input.Focus()
	}
	return m
}

func (m bubbleConfirmModel) Init() tea.Cmd {
	if m.mode != confirmModeMenu {
		return textinput.Blink
	}
	return nil
}

func (m bubbleConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.mode == confirmModeMenu {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	if k.Type == tea.KeyCtrlC {
		m.done = true
		m.answer = Answer{Choice: ChoiceDecline}
		return m, tea.Quit
	}

	switch m.mode {
	case confirmModeEdit:
		switch k.Type {
		case tea.KeyEnter:
			command := strings.TrimSpace(m.input.Value())
			if command == "" {
				command = m.req.Command
			}
			m.done = true
			m.answer = Answer{Choice: ChoiceEdit, Command: command}
			return m, tea.Quit
		case tea.KeyEsc:
			m.mode = confirmModeMenu
			m.input.Blur()
			return m, nil
		}
	case confirmModeTypeYes:
		switch k.Type {
		case tea.KeyEnter:
			m.done = true
			if strings.EqualFold(strings.TrimSpace(m.input.Value()), "yes") {
				m.answer = Answer{Choice: ChoiceRun, Command: m.req.Command}
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.req.Step {
				m.mode = confirmModeMenu
				m.input.Blur()
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	default:
		return m.updateMenu(k)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m bubbleConfirmModel) updateMenu(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(k.String()) {
	case "enter", "y":
		if m.req.Dangerous() {
			m.mode = confirmModeTypeYes
			m.input.SetValue("")
			m.input.Placeholder = "yes"
			m.input.Focus()
			return m, textinput.Blink
		}
		m.done = true
		m.answer = Answer{Choice: ChoiceRun, Command: m.req.Command}
		return m, tea.Quit
	case "n", "esc", "q":
		m.done = true
		m.answer = Answer{Choice: ChoiceDecline}
		return m, tea.Quit
	case "s":
		if m.req.Step {
			m.done = true
			m.answer = Answer{Choice: ChoiceSkip, Command: m.req.Command}
			return m, tea.Quit
		}
	case "e":
		if m.req.Step {
			m.mode = confirmModeEdit
			m.input.SetValue(m.req.Command)
			m.input.CursorEnd()
			m.input.Focus()
			return m, textinput.Blink
		}
	}
	return m, nil
}

func (m bubbleConfirmModel) View() string {
	body := requestHeading(m.req)
	switch m.mode {
	case confirmModeEdit:
		return body + "\n\n" + m.input.View() + "\n\n[enter] save  [esc] back"
	case confirmModeTypeYes:
		return body + "\n\nType yes to run:\n" + m.input.View() + "\n\n[enter] confirm  [esc] cancel"
	}
	if m.req.Step {
		return body + "\n\n[enter] run  [s] skip  [e] edit  [n] pause"
	}
	return body + "\n\n[enter] run  [n] cancel"
}

func confirmWithBubbleTea(req Request) (Answer, error) {
	final, err := tea.NewProgram(newBubbleConfirmModel(req)).Run()
	if err != nil {
		return Answer{Choice: ChoiceDecline}, err
	}
	out, ok := final.(bubbleConfirmModel)
	if !ok || !out.done {
		return Answer{Choice: ChoiceDecline}, nil
	}
	return out.answer, nil
}

func confirmWithHuh(req Request) (Answer, error) {
	choice := "run"
	options := []huh.Option[string]{huh.NewOption("Run", "run")}
	if req.Step {
		options = append(options, huh.NewOption("Skip", "skip"), huh.NewOption("Edit", "edit"))
	}
	options = append(options, huh.NewOption("Cancel", "cancel"))

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Run this command?"
	}
	err := huh.NewSelect[string]().
		Title(title).
		Description(requestDetails(req)).
		Options(options...).
		Value(&choice).
		WithTheme(huh.ThemeCharm()).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Answer{Choice: ChoiceDecline}, nil
		}
		return Answer{Choice: ChoiceDecline}, err
	}

	switch choice {
	case "run":
		if req.Dangerous() {
			return confirmYesWithHuh(req)
		}
		return Answer{Choice: ChoiceRun, Command: req.Command}, nil
	case "skip":
		return Answer{Choice: ChoiceSkip, Command: req.Command}, nil
	case "edit":
		command := req.Command
		err := huh.NewInput().
			Title("Command").
			Value(&command).
			WithTheme(huh.ThemeCharm()).
			Run()
		if err != nil && !errors.Is(err, huh.ErrUserAborted) {
			return Answer{Choice: ChoiceDecline}, err
		}
		if command = strings.TrimSpace(command); command == "" {
			command = req.Command
		}
		return Answer{Choice: ChoiceEdit, Command: command}, nil
	default:
		return Answer{Choice: ChoiceDecline}, nil
	}
}

func confirmYesWithHuh(req Request) (Answer, error) {
	typed := ""
	err := huh.NewInput().
		Title("Dangerous command. Type yes to run").
		Description(strings.TrimSpace(req.Command)).
		Value(&typed).
		WithTheme(huh.ThemeCharm()).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Answer{Choice: ChoiceDecline}, nil
		}
		return Answer{Choice: ChoiceDecline}, err
	}
	if strings.EqualFold(strings.TrimSpace(typed), "yes") {
		return Answer{Choice: ChoiceRun, Command: req.Command}, nil
	}
	return Answer{Choice: ChoiceDecline}, nil
}

func confirmWithTView(req Request) (Answer, error) {
	app := tview.NewApplication()
	answer := Answer{Choice: ChoiceDecline}

	buttons := []string{"Run"}
	if req.Step {
		buttons = append(buttons, "Skip", "Edit")
	}
	buttons = append(buttons, "Cancel")

	pages := tview.NewPages()
	modal := tview.NewModal().
		SetText(requestHeading(req)).
		AddButtons(buttons)

	showInput := func(label, initial string, done func(string)) {
		form := tview.NewForm()
		form.AddInputField(label, initial, 72, nil, nil)
		form.AddButton("OK", func() {
			field, _ := form.GetFormItem(0).(*tview.InputField)
			if field != nil {
				done(field.GetText())
			}
			app.Stop()
		})
		form.AddButton("Cancel", func() { app.Stop() })
		form.SetBorder(true).SetTitle(fmt.Sprintf(" %s ", strings.TrimSpace(req.Command)))
		pages.AddAndSwitchToPage("input", form, true)
	}

	modal.SetDoneFunc(func(_ int, label string) {
		switch label {
		case "Run":
			if req.Dangerous() {
				showInput("Type yes to run", "", func(text string) {
					if strings.EqualFold(strings.TrimSpace(text), "yes") {
						answer = Answer{Choice: ChoiceRun, Command: req.Command}
					}
				})
				return
			}
			answer = Answer{Choice: ChoiceRun, Command: req.Command}
		case "Skip":
			answer = Answer{Choice: ChoiceSkip, Command: req.Command}
		case "Edit":
			showInput("Command", req.Command, func(text string) {
				command := strings.TrimSpace(text)
				if command == "" {
					command = req.Command
				}
				answer = Answer{Choice: ChoiceEdit, Command: command}
			})
			return
		}
		app.Stop()
	})
	pages.AddPage("confirm", modal, true, true)

	if err := app.SetRoot(pages, true).Run(); err != nil {
		return Answer{Choice: ChoiceDecline}, err
	}
	return answer, nil
}

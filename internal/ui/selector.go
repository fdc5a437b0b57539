package ui

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ashwch/cortana/internal/plan"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rivo/tview"
)

// StepPicker chooses a plan step from a list on a TUI backend. It
// satisfies plan.Picker.
type StepPicker struct {
	Backend string
}

type pickerOption struct {
	Label string
	Index int
}

func pickerOptions(p *plan.Plan) []pickerOption {
	options := make([]pickerOption, 0, len(p.Steps))
	for i, step := range p.Steps {
		options = append(options, pickerOption{Label: step.Line(i + 1), Index: i})
	}
	return options
}

// PickStep returns the chosen step index, or -1 when the user is done.
func (s StepPicker) PickStep(p *plan.Plan) (int, error) {
	options := pickerOptions(p)
	if len(options) == 0 {
		return -1, nil
	}
	title := fmt.Sprintf("edit plan: %s", p.Task)

	var firstErr error
	for _, candidate := range backendCandidates(s.Backend) {
		var (
			idx int
			err error
		)
		switch candidate {
		case BackendBubbleTea:
			idx, err = pickWithBubbleTea(title, options)
		case BackendHuh:
			idx, err = pickWithHuh(title, options)
		case BackendTView:
			idx, err = pickWithTView(title, options)
		default:
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return idx, nil
	}
	if firstErr != nil {
		return -1, firstErr
	}
	return -1, nil
}

func pickWithHuh(title string, options []pickerOption) (int, error) {
	huhOptions := make([]huh.Option[int], 0, len(options)+1)
	for _, option := range options {
		huhOptions = append(huhOptions, huh.NewOption(option.Label, option.Index))
	}
	huhOptions = append(huhOptions, huh.NewOption("done", -1))

	choice := -1
	err := huh.NewSelect[int]().
		Title(title).
		Description("Choose a step to edit").
		Options(huhOptions...).
		Height(huhSelectHeight(len(huhOptions))).
		Value(&choice).
		WithTheme(huh.ThemeCharm()).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return -1, nil
		}
		return -1, err
	}
	return choice, nil
}

type bubblePickerItem struct {
	label string
	index int
}

func (i bubblePickerItem) Title() string       { return i.label }
func (i bubblePickerItem) Description() string { return "" }
func (i bubblePickerItem) FilterValue() string { return i.label }

type bubblePickerModel struct {
	list      list.Model
	selection int
	options   int
}

func (m bubblePickerModel) Init() tea.Cmd { return nil }

func (m bubblePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch k := msg.(type) {
	case tea.WindowSizeMsg:
		width, height := bubblePickerSize(k.Width, k.Height, m.options)
		m.list.SetSize(width, height)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch k.String() {
		case "q", "esc", "ctrl+c":
			m.selection = -1
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(bubblePickerItem); ok {
				m.selection = item.index
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m bubblePickerModel) View() string {
	return m.list.View()
}

func newBubblePickerModel(title string, options []pickerOption) bubblePickerModel {
	items := make([]list.Item, 0, len(options))
	for _, option := range options {
		items = append(items, bubblePickerItem{label: option.Label, index: option.Index})
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	width, height := bubblePickerSize(80, 24, len(items))
	picker := list.New(items, delegate, width, height)
	picker.Title = title
	picker.SetShowHelp(false)
	picker.SetFilteringEnabled(true)
	return bubblePickerModel{list: picker, selection: -1, options: len(items)}
}

func pickWithBubbleTea(title string, options []pickerOption) (int, error) {
	final, err := tea.NewProgram(newBubblePickerModel(title, options), tea.WithAltScreen()).Run()
	if err != nil {
		return -1, err
	}
	out, ok := final.(bubblePickerModel)
	if !ok {
		return -1, nil
	}
	return out.selection, nil
}

func pickWithTView(title string, options []pickerOption) (int, error) {
	app := tview.NewApplication()
	listView := tview.NewList()
	listView.SetBorder(true)
	listView.SetTitle(" " + title + " ")
	listView.ShowSecondaryText(false)

	selected := -1
	for n, option := range options {
		current := option
		shortcut := rune(0)
		if n < 9 {
			shortcut = rune(strconv.Itoa(n + 1)[0])
		}
		listView.AddItem(current.Label, "", shortcut, func() {
			selected = current.Index
			app.Stop()
		})
	}
	listView.AddItem("done", "", 'q', func() { app.Stop() })
	listView.SetDoneFunc(func() { app.Stop() })

	if err := app.SetRoot(listView, true).SetFocus(listView).Run(); err != nil {
		return -1, err
	}
	return selected, nil
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func bubblePickerSize(termWidth, termHeight, optionCount int) (int, int) {
	if termWidth <= 0 {
		termWidth = 80
	}
	if termHeight <= 0 {
		termHeight = 24
	}
	if optionCount < 1 {
		optionCount = 1
	}

	maxWidth := termWidth
	minWidth := 32
	if maxWidth < minWidth {
		minWidth = maxWidth
	}
	width := clampInt(termWidth-4, minWidth, maxWidth)

	visibleItems := clampInt(optionCount, 3, 12)
	desiredHeight := visibleItems + 6

	maxHeight := termHeight - 2
	if maxHeight <= 0 {
		maxHeight = termHeight
	}
	if maxHeight <= 0 {
		maxHeight = 1
	}
	minHeight := 8
	if maxHeight < minHeight {
		minHeight = maxHeight
	}
	height := clampInt(desiredHeight, minHeight, maxHeight)
	return width, height
}

func huhSelectHeight(optionCount int) int {
	if optionCount < 1 {
		optionCount = 1
	}
	return clampInt(optionCount+1, 4, 10)
}

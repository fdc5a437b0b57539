package ui

import (
	"testing"

	"github.com/ashwch/cortana/internal/plan"
	tea "github.com/charmbracelet/bubbletea"
)

func TestBubblePickerSizeStandardTerminal(t *testing.T) {
	width, height := bubblePickerSize(90, 30, 3)
	if width != 86 {
		t.Fatalf("expected width 86, got %d", width)
	}
	if height != 9 {
		t.Fatalf("expected height 9, got %d", height)
	}
}

func TestBubblePickerSizeTinyTerminalStillFits(t *testing.T) {
	width, height := bubblePickerSize(20, 5, 25)
	if width > 20 {
		t.Fatalf("expected width to fit terminal, got %d", width)
	}
	if height > 5 {
		t.Fatalf("expected height to fit terminal, got %d", height)
	}
	if width <= 0 || height <= 0 {
		t.Fatalf("expected positive dimensions, got width=%d height=%d", width, height)
	}
}

func TestHuhSelectHeightBounds(t *testing.T) {
	if got := huhSelectHeight(0); got != 4 {
		t.Fatalf("expected minimum huh height 4, got %d", got)
	}
	if got := huhSelectHeight(3); got != 4 {
		t.Fatalf("expected huh height 4 for small lists, got %d", got)
	}
	if got := huhSelectHeight(20); got != 10 {
		t.Fatalf("expected max huh height 10, got %d", got)
	}
}

func TestPickerOptionsListSteps(t *testing.T) {
	p := &plan.Plan{Steps: []plan.Step{
		{Description: "list", Command: "ls", Status: plan.StatusDone},
		{Description: "where", Command: "pwd"},
	}}
	options := pickerOptions(p)
	if len(options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(options))
	}
	if options[1].Label != "2. where: pwd [pending]" || options[1].Index != 1 {
		t.Fatalf("unexpected option: %+v", options[1])
	}
}

func TestBubblePickerModelSelectsAndCancels(t *testing.T) {
	options := []pickerOption{{Label: "1. a: ls [pending]", Index: 0}, {Label: "2. b: pwd [pending]", Index: 1}}

	m := newBubblePickerModel("edit plan", options)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := updated.(bubblePickerModel).selection; got != 0 {
		t.Fatalf("expected first step selected, got %d", got)
	}

	updated, _ = newBubblePickerModel("edit plan", options).Update(tea.KeyMsg{Type: tea.KeyEsc})
	if got := updated.(bubblePickerModel).selection; got != -1 {
		t.Fatalf("expected -1 on cancel, got %d", got)
	}
}

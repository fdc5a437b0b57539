package plan

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedInput struct {
	lines   []string
	prompts []string
}

func (s *scriptedInput) ReadLine(prompt, _ string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func editablePlan() *Plan {
	return &Plan{ID: "p", Steps: []Step{
		{Description: "list", Command: "ls", Status: StatusDone},
		{Description: "where", Command: "pwd", Status: StatusFailed, Output: "x"},
		{Description: "bye", Command: "exit", Status: StatusPending},
	}}
}

func TestEditChangesStepKeepingBlankFields(t *testing.T) {
	p := editablePlan()
	in := &scriptedInput{lines: []string{"1", "", "ls -la", ""}}
	var out bytes.Buffer

	changed, err := Editor{In: in, Out: &out}.Edit(p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "list", p.Steps[0].Description)
	assert.Equal(t, "ls -la", p.Steps[0].Command)
	assert.Contains(t, out.String(), "1. list: ls [done]")
	assert.Contains(t, in.prompts, "Command [ls]: ")
}

func TestEditDeleteResetAndInvalid(t *testing.T) {
	p := editablePlan()
	in := &scriptedInput{lines: []string{"r 2", "d 3", "9", "x 1", ""}}
	var out bytes.Buffer

	changed, err := Editor{In: in, Out: &out}.Edit(p)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, StatusPending, p.Steps[1].Status)
	assert.Empty(t, p.Steps[1].Output)
	assert.Contains(t, out.String(), "Invalid step.")
}

func TestEditingFailedCommandResetsStep(t *testing.T) {
	p := editablePlan()
	in := &scriptedInput{lines: []string{"2", "", "pwd -P", ""}}

	changed, err := Editor{In: in, Out: io.Discard}.Edit(p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "pwd -P", p.Steps[1].Command)
	assert.Equal(t, StatusPending, p.Steps[1].Status)
	assert.Empty(t, p.Steps[1].Output)
}

func TestEditEOFFinishes(t *testing.T) {
	changed, err := Editor{In: &scriptedInput{}, Out: io.Discard}.Edit(editablePlan())
	require.NoError(t, err)
	assert.False(t, changed)
}

type fixedPicker struct{ picks []int }

func (f *fixedPicker) PickStep(*Plan) (int, error) {
	if len(f.picks) == 0 {
		return -1, nil
	}
	next := f.picks[0]
	f.picks = f.picks[1:]
	return next, nil
}

func TestEditWithPicker(t *testing.T) {
	p := editablePlan()
	in := &scriptedInput{lines: []string{"say bye", "echo bye"}}
	changed, err := Editor{In: in, Out: io.Discard, Picker: &fixedPicker{picks: []int{2}}}.Edit(p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "say bye", p.Steps[2].Description)
	assert.Equal(t, "echo bye", p.Steps[2].Command)
}

func TestEditEmptyPlan(t *testing.T) {
	_, err := Editor{In: &scriptedInput{}, Out: io.Discard}.Edit(&Plan{})
	assert.ErrorIs(t, err, ErrNoPlan)
}

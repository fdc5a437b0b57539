package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ashwch/cortana/internal/plan"
	"github.com/ashwch/cortana/internal/safety"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainGate(input string) (PlainGate, *bytes.Buffer) {
	var out bytes.Buffer
	return PlainGate{In: NewLineReader(strings.NewReader(input), &out), Out: &out}, &out
}

func TestPlainGateAnswers(t *testing.T) {
	danger := safety.Decision{Verdict: safety.VerdictDanger, Reason: "potentially destructive command", Rule: "rm -rf"}
	cases := []struct {
		name  string
		input string
		req   Request
		want  Choice
	}{
		{"enter runs", "\n", Request{Command: "ls"}, ChoiceRun},
		{"y runs", "y\n", Request{Command: "ls"}, ChoiceRun},
		{"yes runs", "YES\n", Request{Command: "ls"}, ChoiceRun},
		{"n declines", "n\n", Request{Command: "ls"}, ChoiceDecline},
		{"no declines", " no \n", Request{Command: "ls"}, ChoiceDecline},
		{"eof declines", "", Request{Command: "ls"}, ChoiceDecline},
		{"retry then run", "maybe\n\n", Request{Command: "ls"}, ChoiceRun},
		{"three bad answers decline", "a\nb\nc\n\n", Request{Command: "ls"}, ChoiceDecline},
		{"skip only for steps", "s\nn\n", Request{Command: "ls"}, ChoiceDecline},
		{"step skip", "s\n", Request{Command: "ls", Step: true}, ChoiceSkip},
		{"danger needs yes", "\ny\nyes\n", Request{Command: "rm -rf build", Decision: danger}, ChoiceRun},
		{"danger enter is not enough", "\n\n\n", Request{Command: "rm -rf build", Decision: danger}, ChoiceDecline},
		{"high risk needs yes", "y\nn\n", Request{Command: "x", Risk: "high"}, ChoiceDecline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate, _ := plainGate(tc.input)
			answer, err := gate.Confirm(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, answer.Choice)
		})
	}
}

func TestPlainGateEditPrefillsAndKeepsBlank(t *testing.T) {
	gate, _ := plainGate("e\nls -la\n")
	answer, err := gate.Confirm(context.Background(), Request{Command: "ls", Step: true})
	require.NoError(t, err)
	assert.Equal(t, ChoiceEdit, answer.Choice)
	assert.Equal(t, "ls -la", answer.Command)

	gate, _ = plainGate("e\n\n")
	answer, err = gate.Confirm(context.Background(), Request{Command: "ls", Step: true})
	require.NoError(t, err)
	assert.Equal(t, "ls", answer.Command)
}

func TestPlainGatePrintsWarning(t *testing.T) {
	gate, out := plainGate("n\n")
	_, err := gate.Confirm(context.Background(), Request{
		Command:  "apt install jq",
		Decision: safety.Decision{Verdict: safety.VerdictConfirm, Rule: "apt install", Reason: "matches confirm rule"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Warning: matches confirm rule (apt install)")
}

func TestStepApproverMapsChoices(t *testing.T) {
	gate, _ := plainGate("e\necho hi\n")
	answer, err := StepApprover{Gate: gate}.ApproveStep(context.Background(), plan.StepPrompt{Index: 0, Total: 2, Command: "echo"})
	require.NoError(t, err)
	assert.Equal(t, plan.Answer{Action: plan.ActionEdit, Command: "echo hi"}, answer)

	gate, _ = plainGate("n\n")
	answer, err = StepApprover{Gate: gate}.ApproveStep(context.Background(), plan.StepPrompt{Command: "echo"})
	require.NoError(t, err)
	assert.Equal(t, plan.ActionDecline, answer.Action)
}

func TestAutoGateDeclinesDangerous(t *testing.T) {
	answer, _ := AutoGate{}.Confirm(context.Background(), Request{Command: "ls"})
	assert.Equal(t, ChoiceRun, answer.Choice)
	answer, _ = AutoGate{}.Confirm(context.Background(), Request{Command: "rm -rf /tmp/x", Decision: safety.Decision{Verdict: safety.VerdictDanger}})
	assert.Equal(t, ChoiceDecline, answer.Choice)
}

func TestBackendGatePlainUsesFallback(t *testing.T) {
	fallback, _ := plainGate("y\n")
	answer, err := BackendGate{Backend: BackendPlain, Fallback: fallback}.Confirm(context.Background(), Request{Command: "ls"})
	require.NoError(t, err)
	assert.Equal(t, ChoiceRun, answer.Choice)
}

func keyRunes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestBubbleConfirmModelMenu(t *testing.T) {
	m := newBubbleConfirmModel(Request{Command: "ls", Step: true})
	updated, _ := m.Update(keyRunes("s"))
	out := updated.(bubbleConfirmModel)
	assert.True(t, out.done)
	assert.Equal(t, ChoiceSkip, out.answer.Choice)

	updated, _ = newBubbleConfirmModel(Request{Command: "ls"}).Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ChoiceRun, updated.(bubbleConfirmModel).answer.Choice)

	// skip is ignored outside plans
	updated, _ = newBubbleConfirmModel(Request{Command: "ls"}).Update(keyRunes("s"))
	assert.False(t, updated.(bubbleConfirmModel).done)
}

func TestBubbleConfirmModelEdit(t *testing.T) {
	m := newBubbleConfirmModel(Request{Command: "ls", Step: true})
	updated, _ := m.Update(keyRunes("e"))
	out := updated.(bubbleConfirmModel)
	require.Equal(t, confirmModeEdit, out.mode)
	assert.Equal(t, "ls", out.input.Value())

	out.input.SetValue("ls -la")
	updated, _ = out.Update(tea.KeyMsg{Type: tea.KeyEnter})
	final := updated.(bubbleConfirmModel)
	assert.Equal(t, Answer{Choice: ChoiceEdit, Command: "ls -la"}, final.answer)
}

func TestBubbleConfirmModelDangerNeedsYes(t *testing.T) {
	req := Request{Command: "rm -rf build", Decision: safety.Decision{Verdict: safety.VerdictDanger}}
	m := newBubbleConfirmModel(req)
	require.Equal(t, confirmModeTypeYes, m.mode)

	m.input.SetValue("y")
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ChoiceDecline, updated.(bubbleConfirmModel).answer.Choice)

	m = newBubbleConfirmModel(req)
	m.input.SetValue("yes")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ChoiceRun, updated.(bubbleConfirmModel).answer.Choice)
}

func TestRequestHeading(t *testing.T) {
	text := requestHeading(Request{Command: "ls", Risk: "low"})
	assert.True(t, strings.HasPrefix(text, "Run this command?\n\nls"))
	assert.Contains(t, text, "risk: low")
}

func TestRendererPlainOutput(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, true)
	r.Assistant("Cortana", "Lists **files**")
	r.Command("ls -la")
	r.Outcome(false, 2, "")
	assert.Equal(t, "Cortana: Lists **files**\nCommand: ls -la\nexit 2\n", out.String())
}

func TestRefuseGateDeclines(t *testing.T) {
	var out bytes.Buffer
	answer, err := RefuseGate{Out: &out}.Confirm(context.Background(), Request{Command: "ls"})
	require.NoError(t, err)
	assert.Equal(t, ChoiceDecline, answer.Choice)
	assert.Contains(t, out.String(), "--yes")
}

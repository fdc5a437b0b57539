package plan

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Input reads one line. initial pre-fills the line where the reader
// supports it; an empty answer keeps the current value.
type Input interface {
	ReadLine(prompt, initial string) (string, error)
}

// Picker chooses a step to edit from a list. It returns -1 when the user
// is done.
type Picker interface {
	PickStep(p *Plan) (int, error)
}

type Editor struct {
	In     Input
	Out    io.Writer
	Picker Picker
}

// Edit lets the user change p in place. It returns whether anything
// changed; an EOF on input finishes like a blank line.
func (e Editor) Edit(p *Plan) (bool, error) {
	if p.Empty() {
		return false, ErrNoPlan
	}
	changed := false
	for {
		if e.Picker != nil {
			idx, err := e.Picker.PickStep(p)
			if err != nil {
				return changed, err
			}
			if idx < 0 {
				return changed, nil
			}
			ok, err := e.editStep(p, idx)
			if err != nil {
				return changed, err
			}
			changed = changed || ok
			continue
		}

		for i, step := range p.Steps {
			fmt.Fprintln(e.Out, step.Line(i+1))
		}
		choice, err := e.In.ReadLine("Edit step number, d N to delete, r N to reset (enter to finish): ", "")
		if errors.Is(err, io.EOF) {
			return changed, nil
		}
		if err != nil {
			return changed, err
		}
		choice = strings.TrimSpace(choice)
		if choice == "" {
			return changed, nil
		}

		op, arg := "e", choice
		if fields := strings.Fields(choice); len(fields) == 2 {
			op, arg = strings.ToLower(fields[0]), fields[1]
		}
		n, convErr := strconv.Atoi(arg)
		idx := n - 1
		if convErr != nil || idx < 0 || idx >= len(p.Steps) {
			fmt.Fprintln(e.Out, "Invalid step.")
			continue
		}

		switch op {
		case "d":
			_ = p.Delete(idx)
			changed = true
			if p.Empty() {
				fmt.Fprintln(e.Out, "Plan has no steps left.")
				return changed, nil
			}
		case "r":
			_ = p.Reset(idx)
			changed = true
		case "e":
			ok, err := e.editStep(p, idx)
			if err != nil {
				return changed, err
			}
			changed = changed || ok
		default:
			fmt.Fprintln(e.Out, "Invalid step.")
		}
	}
}

func (e Editor) editStep(p *Plan, idx int) (bool, error) {
	step := &p.Steps[idx]
	desc, err := e.readValue(fmt.Sprintf("Description [%s]: ", step.Description), step.Description)
	if err != nil {
		return false, err
	}
	cmd, err := e.readValue(fmt.Sprintf("Command [%s]: ", step.Command), step.Command)
	if err != nil {
		return false, err
	}
	changed := false
	if desc != "" && desc != step.Description {
		step.Description = desc
		changed = true
	}
	if cmd != "" && cmd != step.Command {
		step.Command = cmd
		changed = true
		// a corrected command gets another try on resume
		if step.Status == StatusFailed {
			_ = p.Reset(idx)
		}
	}
	if changed {
		p.touch()
	}
	return changed, nil
}

func (e Editor) readValue(prompt, current string) (string, error) {
	value, err := e.In.ReadLine(prompt, current)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// ErrInterrupted is returned when the user presses Ctrl+C at a prompt.
var ErrInterrupted = errors.New("input interrupted")

// LineInput reads one line. initial pre-fills the editable line where the
// terminal allows it.
type LineInput interface {
	ReadLine(prompt, initial string) (string, error)
}

// LineReader reads from the terminal with line editing and history, or
// from a plain reader when stdin is not a terminal.
type LineReader struct {
	state       *liner.State
	buffered    *bufio.Reader
	out         io.Writer
	historyPath string
}

// NewTerminalReader uses liner when stdin and stdout are terminals.
// historyPath may be empty.
func NewTerminalReader(historyPath string) *LineReader {
	if !IsTerminal(os.Stdin) || !IsTerminal(os.Stdout) || !liner.TerminalSupported() {
		return NewLineReader(os.Stdin, os.Stdout)
	}
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	r := &LineReader{state: state, out: os.Stdout, historyPath: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return r
}

func NewLineReader(in io.Reader, out io.Writer) *LineReader {
	return &LineReader{buffered: bufio.NewReader(in), out: out}
}

// Interactive reports whether line editing is available.
func (r *LineReader) Interactive() bool { return r.state != nil }

func (r *LineReader) ReadLine(prompt, initial string) (string, error) {
	if r.state != nil {
		var (
			line string
			err  error
		)
		if initial != "" {
			line, err = r.state.PromptWithSuggestion(prompt, initial, -1)
		} else {
			line, err = r.state.Prompt(prompt)
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", ErrInterrupted
		}
		return line, err
	}

	fmt.Fprint(r.out, prompt)
	line, err := r.buffered.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Complete offers words for tab completion when the line starts with one
// of their prefixes.
func (r *LineReader) Complete(words []string) {
	if r.state == nil {
		return
	}
	r.state.SetCompleter(func(line string) []string {
		var out []string
		for _, w := range words {
			if strings.HasPrefix(w, line) {
				out = append(out, w)
			}
		}
		return out
	})
}

// Remember adds a chat line to the editing history.
func (r *LineReader) Remember(line string) {
	if r.state != nil && strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
}

// Close restores the terminal and writes the history file.
func (r *LineReader) Close() error {
	if r.state == nil {
		return nil
	}
	if r.historyPath != "" {
		if f, err := os.OpenFile(r.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}
	return r.state.Close()
}

func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

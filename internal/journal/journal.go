// Package journal appends one JSON line per command the assistant handled,
// whether it ran, was declined, or was blocked.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashwch/cortana/internal/safety"
)

const maxCommandLength = 8192

// Decision records what happened to a proposed command.
type Decision string

const (
	DecisionExecuted  Decision = "executed"
	DecisionDeclined  Decision = "declined"
	DecisionBlocked   Decision = "blocked"
	DecisionSkipped   Decision = "skipped"
	DecisionSuggested Decision = "suggested"
)

type Event struct {
	Timestamp string   `json:"timestamp"`
	SessionID string   `json:"session_id,omitempty"`
	Source    string   `json:"source,omitempty"`
	Request   string   `json:"request,omitempty"`
	Command   string   `json:"command"`
	Decision  Decision `json:"decision"`
	Verdict   string   `json:"verdict,omitempty"`
	ExitCode  int      `json:"exit_code"`
	Success   bool     `json:"success"`
	Dir       string   `json:"dir,omitempty"`
	PlanID    string   `json:"plan_id,omitempty"`
	Duration  int64    `json:"duration_ms,omitempty"`
}

type Journal struct {
	mu     sync.Mutex
	path   string
	redact bool
}

func New(path string, redact bool) *Journal {
	return &Journal{path: path, redact: redact}
}

func (j *Journal) Path() string { return j.path }

// Record appends ev. Invocations of cortana itself are not journaled.
func (j *Journal) Record(ev Event) error {
	ev.Command = strings.TrimSpace(ev.Command)
	if ev.Command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if shouldIgnoreCommand(ev.Command) {
		return nil
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if ev.Decision == "" {
		ev.Decision = DecisionExecuted
	}
	if j.redact {
		ev.Command = strings.TrimSpace(safety.RedactText(ev.Command))
		ev.Request = safety.RedactText(ev.Request)
	}
	if len(ev.Command) > maxCommandLength {
		ev.Command = ev.Command[:maxCommandLength]
	}

	encoded, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not serialize event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("could not create journal directory: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("could not open journal: %w", err)
	}
	defer f.Close()
	if err := os.Chmod(j.path, 0o600); err != nil {
		return fmt.Errorf("could not secure journal permissions: %w", err)
	}
	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("could not write event: %w", err)
	}
	return nil
}

// Tail returns the last n events, oldest first. Unparseable lines are
// skipped.
func (j *Journal) Tail(n int) ([]Event, error) {
	var out []Event
	err := j.scan(func(ev Event) {
		out = append(out, ev)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	})
	return out, err
}

// LatestFailure returns the newest executed command that failed, limited
// to sessionID when it is set. It returns nil when there is none.
func (j *Journal) LatestFailure(sessionID string) (*Event, error) {
	var latest *Event
	err := j.scan(func(ev Event) {
		if ev.Decision != DecisionExecuted || ev.Success {
			return
		}
		if sessionID != "" && ev.SessionID != sessionID {
			return
		}
		candidate := ev
		latest = &candidate
	})
	return latest, err
}

func (j *Journal) scan(visit func(Event)) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not read journal: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		visit(ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not scan journal: %w", err)
	}
	return nil
}

func shouldIgnoreCommand(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return true
	}
	first := strings.ToLower(filepath.Base(PrimaryCommand(fields)))
	if first == "cortana" {
		return true
	}
	return strings.Contains(strings.ToLower(command), "go run ./cmd/cortana")
}

// PrimaryCommand returns the program a command line actually runs,
// skipping env assignments and wrappers such as sudo, env, time and nohup.
func PrimaryCommand(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	idx := 0
	for idx < len(fields) {
		token := strings.TrimSpace(fields[idx])
		if token == "" || isEnvAssignmentToken(token) {
			idx++
			continue
		}
		wrapper := strings.ToLower(filepath.Base(token))
		valued, ok := wrapperFlags[wrapper]
		if !ok {
			return token
		}
		idx = skipFlags(fields, idx+1, wrapper == "env", valued)
	}
	return fields[0]
}

// wrapperFlags lists the wrappers PrimaryCommand looks through, with the
// short flags of each that consume the next argument.
var wrapperFlags = map[string]string{
	"env":     "uSC",
	"sudo":    "ugCDprTU",
	"nice":    "n",
	"command": "",
	"time":    "fo",
	"nohup":   "",
	"builtin": "",
	"exec":    "a",
}

var longValued = map[string]bool{
	"--user": true, "--group": true, "--chdir": true, "--unset": true,
	"--adjustment": true, "--prompt": true, "--split-string": true,
}

func skipFlags(fields []string, idx int, assignments bool, valued string) int {
	for idx < len(fields) {
		next := strings.TrimSpace(fields[idx])
		switch {
		case next == "--":
			return idx + 1
		case next == "" || (assignments && isEnvAssignmentToken(next)):
			idx++
		case strings.HasPrefix(next, "-") && len(next) > 1:
			idx++
			// "-n 10" takes the next field, "-n10" and "--user=x" do not
			if len(next) == 2 && strings.ContainsRune(valued, rune(next[1])) || longValued[next] {
				idx++
			}
		default:
			return idx
		}
	}
	return idx
}

func isEnvAssignmentToken(token string) bool {
	if strings.HasPrefix(token, "-") {
		return false
	}
	eq := strings.IndexRune(token, '=')
	if eq <= 0 {
		return false
	}
	return strings.IndexAny(token[:eq], "/\\") == -1
}

// Package knowledge persists what cortana has learned about this machine:
// the system profile, past commands with their outcomes, and user facts.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashwch/cortana/internal/fsutil"
	"github.com/ashwch/cortana/internal/safety"
	"github.com/ashwch/cortana/internal/systemprofile"
	"go.uber.org/zap"
)

// Record is one executed command. The first three fields keep the names
// used by earlier versions of the file.
type Record struct {
	Command   string `json:"command"`
	Output    string `json:"output"`
	Success   bool   `json:"success"`
	ExitCode  int    `json:"exit_code"`
	Dir       string `json:"dir,omitempty"`
	Request   string `json:"request,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Base struct {
	System   systemprofile.Profile `json:"system"`
	Commands []Record              `json:"commands"`
	Facts    map[string]string     `json:"facts,omitempty"`
	Notes    []string              `json:"notes,omitempty"`
}

type Options struct {
	MaxCommands    int
	MaxOutputBytes int
	RefreshHours   int
	Redact         bool
	// Gather replaces systemprofile.Capture, mostly for tests.
	Gather func() systemprofile.Profile
	Logger *zap.Logger
}

// Status reports what Open had to do to produce a usable file.
type Status struct {
	Created    bool
	Reset      bool
	Refreshed  bool
	BackupPath string
}

type Store struct {
	mu     sync.Mutex
	path   string
	opts   Options
	base   Base
	logger *zap.Logger
}

const (
	defaultMaxCommands    = 500
	defaultMaxOutputBytes = 4000
)

// Open loads the knowledge file at path. A missing file is created with a
// fresh system profile; an unreadable one is moved aside to <path>.corrupt
// and replaced the same way.
func Open(path string, opts Options) (*Store, Status, error) {
	if opts.MaxCommands <= 0 {
		opts.MaxCommands = defaultMaxCommands
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutputBytes
	}
	if opts.Gather == nil {
		opts.Gather = systemprofile.Capture
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, opts: opts, logger: logger}

	var status Status
	payload, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.base = s.freshBase()
		status.Created = true
	case err != nil:
		return nil, Status{}, fmt.Errorf("could not read knowledge base: %w", err)
	default:
		var base Base
		if jsonErr := json.Unmarshal(payload, &base); jsonErr != nil {
			backup := path + ".corrupt"
			if renameErr := os.Rename(path, backup); renameErr == nil {
				status.BackupPath = backup
			}
			logger.Warn("knowledge base unreadable, reinitialising",
				zap.String("path", path), zap.String("backup", status.BackupPath), zap.Error(jsonErr))
			s.base = s.freshBase()
			status.Reset = true
		} else {
			s.base = base
			if s.base.System.IsZero() || s.base.System.IsStale(opts.RefreshHours) {
				s.base.System = opts.Gather()
				status.Refreshed = true
			}
		}
	}
	s.base.normalize()

	if status.Created || status.Reset || status.Refreshed {
		if err := s.saveLocked(); err != nil {
			return s, status, err
		}
	}
	return s, status, nil
}

func (s *Store) freshBase() Base {
	return Base{System: s.opts.Gather(), Commands: []Record{}}
}

func (s *Store) Path() string { return s.path }

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() Base {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.clone()
}

// Record appends a command outcome and saves the file. Output is redacted
// and truncated; the oldest records are dropped beyond MaxCommands.
func (s *Store) Record(rec Record) error {
	rec.Command = strings.TrimSpace(rec.Command)
	if rec.Command == "" {
		return fmt.Errorf("record command cannot be empty")
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	redactor := safety.Redactor{Enabled: s.opts.Redact}
	rec.Command = redactor.Redact(rec.Command)
	rec.Request = redactor.Redact(strings.TrimSpace(rec.Request))
	rec.Output = truncateOutput(redactor.Redact(rec.Output), s.opts.MaxOutputBytes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.Commands = append(s.base.Commands, rec)
	if over := len(s.base.Commands) - s.opts.MaxCommands; over > 0 {
		s.base.Commands = append([]Record(nil), s.base.Commands[over:]...)
	}
	return s.saveLocked()
}

func (s *Store) SetFact(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("fact key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Facts == nil {
		s.base.Facts = map[string]string{}
	}
	if value = strings.TrimSpace(value); value == "" {
		delete(s.base.Facts, key)
	} else {
		s.base.Facts[key] = value
	}
	return s.saveLocked()
}

func (s *Store) AddNote(note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.base.Notes {
		if strings.EqualFold(existing, note) {
			return nil
		}
	}
	s.base.Notes = append(s.base.Notes, note)
	return s.saveLocked()
}

// RefreshSystem re-gathers the system profile and saves.
func (s *Store) RefreshSystem() error {
	profile := s.opts.Gather()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.System = profile
	return s.saveLocked()
}

// Recent returns up to n of the newest records, newest first.
func (s *Store) Recent(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := s.base.Commands
	if n <= 0 || n > len(cmds) {
		n = len(cmds)
	}
	out := make([]Record, 0, n)
	for i := len(cmds) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, cmds[i])
	}
	return out
}

func (s *Store) saveLocked() error {
	s.base.normalize()
	payload, err := json.MarshalIndent(s.base, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode knowledge base: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, append(payload, '\n'), 0o600); err != nil {
		return fmt.Errorf("could not save knowledge base: %w", err)
	}
	return nil
}

func (b *Base) normalize() {
	if b.Commands == nil {
		b.Commands = []Record{}
	}
	b.System.Normalize()
	notes := b.Notes[:0]
	for _, note := range b.Notes {
		if note = strings.TrimSpace(note); note != "" {
			notes = append(notes, note)
		}
	}
	b.Notes = notes
	if len(b.Notes) == 0 {
		b.Notes = nil
	}
	if len(b.Facts) == 0 {
		b.Facts = nil
	}
}

func (b Base) clone() Base {
	out := b
	out.Commands = append([]Record(nil), b.Commands...)
	out.Notes = append([]string(nil), b.Notes...)
	out.System.Tools = append([]string(nil), b.System.Tools...)
	if b.Facts != nil {
		out.Facts = make(map[string]string, len(b.Facts))
		for k, v := range b.Facts {
			out.Facts[k] = v
		}
	}
	return out
}

// FactLines renders facts as sorted "key: value" lines.
func (b Base) FactLines() []string {
	keys := make([]string, 0, len(b.Facts))
	for key := range b.Facts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+": "+b.Facts[key])
	}
	return lines
}

func (b Base) SuccessRate() (ok, total int) {
	for _, rec := range b.Commands {
		if rec.Success {
			ok++
		}
	}
	return ok, len(b.Commands)
}

// truncateOutput keeps the head and tail of long output, which is where
// commands usually report what matters.
func truncateOutput(output string, max int) string {
	if max <= 0 || len(output) <= max {
		return output
	}
	marker := "\n...[truncated]...\n"
	if max <= len(marker)+2 {
		return output[:runeCut(output, max)]
	}
	keep := max - len(marker)
	head := runeCut(output, keep/2)
	start := len(output) - (keep - keep/2)
	for start < len(output) && !utf8.RuneStart(output[start]) {
		start++
	}
	return output[:head] + marker + output[start:]
}

// runeCut moves n back to the start of the rune it falls in.
func runeCut(s string, n int) int {
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

package safety

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verdict is the outcome of checking a command against the rules.
type Verdict string

const (
	VerdictOK      Verdict = "ok"
	VerdictAllow   Verdict = "allow"
	VerdictConfirm Verdict = "confirm"
	VerdictDanger  Verdict = "danger"
	VerdictBlock   Verdict = "block"
)

func (v Verdict) rank() int {
	switch v {
	case VerdictBlock:
		return 4
	case VerdictDanger:
		return 3
	case VerdictConfirm:
		return 2
	case VerdictAllow:
		return 1
	default:
		return 0
	}
}

// Decision carries the verdict plus the rule that produced it.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Rule    string  `json:"rule,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

func (d Decision) Blocked() bool { return d.Verdict == VerdictBlock }

// NeedsConfirmation reports whether the gate must be shown even in yolo mode.
func (d Decision) NeedsConfirmation() bool {
	return d.Verdict == VerdictConfirm || d.Verdict == VerdictDanger
}

// RuleSet is the user's allow/deny list, read from rules.yaml.
type RuleSet struct {
	Blocked       []string          `yaml:"blocked,omitempty" json:"blocked,omitempty"`
	Confirm       []string          `yaml:"confirm,omitempty" json:"confirm,omitempty"`
	Allowed       []string          `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	AllowlistOnly bool              `yaml:"allowlist_only,omitempty" json:"allowlist_only,omitempty"`
	Preferences   map[string]string `yaml:"preferences,omitempty" json:"preferences,omitempty"`
}

// LoadRules reads a rules file. A missing file is an empty rule set.
func LoadRules(path string) (RuleSet, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return RuleSet{}, nil
	}
	if err != nil {
		return RuleSet{}, fmt.Errorf("could not read rules file: %w", err)
	}
	return ParseRules(payload)
}

func ParseRules(payload []byte) (RuleSet, error) {
	var rules RuleSet
	if len(strings.TrimSpace(string(payload))) == 0 {
		return rules, nil
	}
	if err := yaml.Unmarshal(payload, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("could not parse rules file: %w", err)
	}
	for _, group := range [][]string{rules.Blocked, rules.Confirm, rules.Allowed} {
		for _, pattern := range group {
			if _, err := compilePattern(pattern); err != nil {
				return RuleSet{}, err
			}
		}
	}
	return rules, nil
}

// Check classifies command. Precedence is block > danger > confirm > allow > ok.
// With blockHighRisk set, danger is promoted to block.
func (r RuleSet) Check(command string, blockHighRisk bool) Decision {
	command = strings.TrimSpace(command)
	if command == "" {
		return Decision{Verdict: VerdictOK}
	}
	segments := SplitSegments(command)

	best := Decision{Verdict: VerdictOK}
	consider := func(d Decision) {
		if d.Verdict.rank() > best.Verdict.rank() {
			best = d
		}
	}

	if pattern, ok := matchAny(r.Blocked, segments); ok {
		consider(Decision{Verdict: VerdictBlock, Rule: pattern, Reason: "matches blocked rule"})
	}
	if reason, ok := DangerReason(command); ok {
		if blockHighRisk {
			consider(Decision{Verdict: VerdictBlock, Rule: reason, Reason: "high-risk command blocked by safety.block_high_risk"})
		} else {
			consider(Decision{Verdict: VerdictDanger, Rule: reason, Reason: "potentially destructive command"})
		}
	}
	if pattern, ok := matchAny(r.Confirm, segments); ok {
		consider(Decision{Verdict: VerdictConfirm, Rule: pattern, Reason: "matches confirm rule"})
	}

	allowed := len(r.Allowed) > 0 && allSegmentsAllowed(r.Allowed, segments)
	switch {
	case allowed:
		consider(Decision{Verdict: VerdictAllow, Reason: "matches allowed rule"})
	case r.AllowlistOnly:
		consider(Decision{Verdict: VerdictBlock, Reason: "not in allowed list (allowlist_only)"})
	}
	return best
}

// PreferenceLines renders preferences as "key: value" lines sorted by key.
func (r RuleSet) PreferenceLines() []string {
	keys := make([]string, 0, len(r.Preferences))
	for key := range r.Preferences {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+": "+r.Preferences[key])
	}
	return lines
}

func matchAny(patterns []string, segments []string) (string, bool) {
	for _, pattern := range patterns {
		m, err := compilePattern(pattern)
		if err != nil || m == nil {
			continue
		}
		if m.chain {
			if indexWords(chainWords(segments), m.words) >= 0 {
				return pattern, true
			}
			continue
		}
		for _, segment := range segments {
			if m.contains(segment) {
				return pattern, true
			}
		}
	}
	return "", false
}

func allSegmentsAllowed(patterns []string, segments []string) bool {
	if len(segments) == 0 {
		return false
	}
	whole := chainWords(segments)
	for _, pattern := range patterns {
		if m, err := compilePattern(pattern); err == nil && m != nil && m.chain && slices.Equal(m.words, whole) {
			return true
		}
	}
	for _, segment := range segments {
		ok := false
		for _, pattern := range patterns {
			m, err := compilePattern(pattern)
			if err != nil || m == nil || m.chain {
				continue
			}
			if m.prefixOf(segment) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// matcher is either a word sequence or a regular expression ("re:" prefix).
// A word pattern spanning several commands, like "make && make install",
// is a chain and is matched against the whole line.
type matcher struct {
	words []string
	chain bool
	re    *regexp.Regexp
}

func compilePattern(pattern string) (*matcher, error) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return nil, nil
	}
	if expr, ok := strings.CutPrefix(trimmed, "re:"); ok {
		re, err := regexp.Compile("(?i)" + strings.TrimSpace(expr))
		if err != nil {
			return nil, fmt.Errorf("invalid rule pattern %q: %w", pattern, err)
		}
		return &matcher{re: re}, nil
	}
	if parts := SplitSegments(trimmed); len(parts) > 1 {
		return &matcher{words: chainWords(parts), chain: true}, nil
	}
	return &matcher{words: Words(trimmed)}, nil
}

// chainWords joins the words of each segment with a marker between
// segments, so chains compare the same whichever separator was used.
func chainWords(segments []string) []string {
	var words []string
	for i, segment := range segments {
		if i > 0 {
			words = append(words, chainMark)
		}
		words = append(words, Words(segment)...)
	}
	return words
}

const chainMark = "\x00"

func (m *matcher) contains(segment string) bool {
	if m.re != nil {
		return m.re.MatchString(segment)
	}
	return indexWords(Words(segment), m.words) >= 0
}

func (m *matcher) prefixOf(segment string) bool {
	if m.re != nil {
		loc := m.re.FindStringIndex(segment)
		return loc != nil && loc[0] == 0
	}
	return indexWords(Words(segment), m.words) == 0
}

func indexWords(haystack, needle []string) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Words lowercases and splits text on whitespace, dropping surrounding quotes.
func Words(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, field := range fields {
		field = strings.Trim(field, `"'`)
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}

// SplitSegments breaks a shell line on ; && || | and newlines, ignoring
// separators inside quotes.
func SplitSegments(command string) []string {
	var (
		segments []string
		current  strings.Builder
		quote    rune
		escaped  bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			segments = append(segments, s)
		}
		current.Reset()
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case escaped:
			escaped = false
			current.WriteRune(r)
		case r == '\\' && quote != '\'':
			escaped = true
			current.WriteRune(r)
		case quote != 0:
			if r == quote {
				quote = 0
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			current.WriteRune(r)
		case r == ';' || r == '\n':
			flush()
		case r == '&' && i+1 < len(runes) && runes[i+1] == '&':
			flush()
			i++
		case r == '|':
			flush()
			if i+1 < len(runes) && runes[i+1] == '|' {
				i++
			}
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return segments
}

// StarterRules is written by `cortana rules init`.
const StarterRules = `# cortana safety rules
#
# Patterns are word sequences matched case-insensitively inside each part of
# a command line (split on ; && || |). Prefix a pattern with "re:" to use a
# regular expression instead.

# Never run these.
blocked:
  - "rm -rf /"
  - "mkfs"

# Always ask, even in yolo mode.
confirm:
  - "apt install"
  - "apt remove"
  - "git push --force"

# Commands that may run without asking when safety.auto_approve_allowed is on.
allowed:
  - "ls"
  - "pwd"
  - "git status"
  - "df -h"

# When true, anything not matched by "allowed" is blocked.
allowlist_only: false

# Preferences are shared with the assistant.
preferences:
  package_manager: apt
`

package provider

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/ashwch/cortana/internal/config"
	"github.com/ashwch/cortana/internal/executor"
)

var failedCommandPattern = regexp.MustCompile(`(?is)failed command:\s*"([^"]+)"`)

// taskSeparators split a multi-part request into plan steps.
var taskSeparators = regexp.MustCompile(`(?i)\s*(?:,\s*and then|,\s*then|\band then\b|\bthen\b|;|,\s*and\b|&&|,)\s*`)

//go:embed builtin_rules.json
var builtinRulesJSON []byte

var (
	builtinRulesOnce  sync.Once
	builtinRulesCache []builtinRule
	builtinRulesErr   error
)

type builtinRule struct {
	ID          string   `json:"id"`
	Intents     []string `json:"intents"`
	MatchAny    []string `json:"match_any"`
	MatchAll    []string `json:"match_all"`
	Regex       string   `json:"regex"`
	Command     string   `json:"command"`
	Explanation string   `json:"explanation"`
	Risk        string   `json:"risk"`

	re *regexp.Regexp
}

// packageCommands fill the {install}, {remove} and {update} placeholders
// per package manager.
var packageCommands = map[string]map[string]string{
	"apt":    {"install": "sudo apt install", "remove": "sudo apt remove", "update": "sudo apt update"},
	"dnf":    {"install": "sudo dnf install", "remove": "sudo dnf remove", "update": "sudo dnf check-update"},
	"yum":    {"install": "sudo yum install", "remove": "sudo yum remove", "update": "sudo yum check-update"},
	"pacman": {"install": "sudo pacman -S", "remove": "sudo pacman -R", "update": "sudo pacman -Sy"},
	"zypper": {"install": "sudo zypper install", "remove": "sudo zypper remove", "update": "sudo zypper refresh"},
	"apk":    {"install": "sudo apk add", "remove": "sudo apk del", "update": "sudo apk update"},
	"brew":   {"install": "brew install", "remove": "brew uninstall", "update": "brew update"},
}

// BuiltinAdapter answers common requests offline from a phrase table. It
// is the last resort when no AI provider is configured.
type BuiltinAdapter struct {
	name string
}

func NewBuiltinAdapter(name string, _ config.ProviderConfig) (Adapter, error) {
	if strings.TrimSpace(name) == "" {
		name = "builtin"
	}
	return &BuiltinAdapter{name: name}, nil
}

func (a *BuiltinAdapter) Name() string { return a.name }
func (a *BuiltinAdapter) Type() string { return "builtin" }

func (a *BuiltinAdapter) Complete(_ context.Context, req Request) (Reply, error) {
	rules, err := loadBuiltinRules()
	if err != nil {
		return Reply{}, err
	}
	switch req.Intent {
	case IntentFix:
		return a.fix(req)
	case IntentPlan:
		return a.plan(rules, req)
	case IntentChat, "":
		return a.chat(rules, req), nil
	default:
		return Reply{}, fmt.Errorf("unsupported builtin intent: %s", req.Intent)
	}
}

func (a *BuiltinAdapter) chat(rules []builtinRule, req Request) Reply {
	query := strings.TrimSpace(req.LastUser())
	if reply, ok := matchRules(rules, IntentChat, query, req.Context); ok {
		return reply
	}
	return Reply{
		Explanation: "I can only handle a few common requests without an AI provider. " +
			"Set OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY (or install the claude CLI) for full answers.",
	}
}

func (a *BuiltinAdapter) plan(rules []builtinRule, req Request) (Reply, error) {
	task := strings.TrimSpace(req.LastUser())
	parts := taskSeparators.Split(task, -1)
	steps := make([]Step, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		matched, ok := matchRules(rules, IntentPlan, part, req.Context)
		if !ok {
			return Reply{}, fmt.Errorf("builtin provider: no deterministic command for %q", part)
		}
		steps = append(steps, Step{Description: part, Command: matched.Command})
	}
	if len(steps) == 0 {
		return Reply{}, fmt.Errorf("builtin provider: empty task")
	}
	return Reply{Explanation: fmt.Sprintf("Plan with %d step(s).", len(steps)), Steps: steps}, nil
}

func (a *BuiltinAdapter) fix(req Request) (Reply, error) {
	command := contextString(req.Context, "failed_command")
	if command == "" {
		if m := failedCommandPattern.FindStringSubmatch(req.LastUser()); len(m) > 1 {
			command = strings.TrimSpace(m[1])
		}
	}
	if command == "" {
		return Reply{}, fmt.Errorf("builtin provider: no failed command to fix")
	}
	if suggested, reason := executor.SuggestFix(command, contextString(req.Context, "failed_output")); suggested != "" {
		return Reply{Explanation: reason, Command: suggested, Risk: "low"}, nil
	}
	return Reply{}, fmt.Errorf("builtin provider: no deterministic fix for %q", command)
}

func matchRules(rules []builtinRule, intent Intent, query string, ctx map[string]any) (Reply, bool) {
	low := strings.ToLower(query)
	for _, rule := range rules {
		if !rule.allows(intent) {
			continue
		}
		command, ok := rule.match(query, low)
		if !ok {
			continue
		}
		return Reply{
			Explanation: rule.Explanation,
			Command:     fillPlaceholders(command, ctx),
			Risk:        rule.Risk,
		}, true
	}
	return Reply{}, false
}

func (r builtinRule) allows(intent Intent) bool {
	for _, candidate := range r.Intents {
		if candidate == string(intent) {
			return true
		}
	}
	return false
}

// match reports whether the rule applies and returns its command with any
// regex captures expanded. Regexes run on the original text so file names
// keep their case.
func (r builtinRule) match(query, low string) (string, bool) {
	if len(r.MatchAny) > 0 {
		anyMatched := false
		for _, pattern := range r.MatchAny {
			if strings.Contains(low, pattern) {
				anyMatched = true
				break
			}
		}
		if !anyMatched {
			return "", false
		}
	}
	for _, pattern := range r.MatchAll {
		if !strings.Contains(low, pattern) {
			return "", false
		}
	}
	if r.re == nil {
		return r.Command, true
	}
	submatches := r.re.FindStringSubmatchIndex(query)
	if submatches == nil {
		return "", false
	}
	return string(r.re.ExpandString(nil, r.Command, query, submatches)), true
}

func fillPlaceholders(command string, ctx map[string]any) string {
	manager := contextString(ctx, "package_manager")
	cmds, ok := packageCommands[manager]
	if !ok {
		cmds = packageCommands["apt"]
	}
	osName := strings.ToLower(contextString(ctx, "os"))
	memory, ip := "free -h", "ip a"
	if strings.Contains(osName, "darwin") || strings.Contains(osName, "mac") {
		memory, ip = "vm_stat", "ifconfig"
	}
	return strings.NewReplacer(
		"{install}", cmds["install"],
		"{remove}", cmds["remove"],
		"{update}", cmds["update"],
		"{memory}", memory,
		"{ip}", ip,
	).Replace(command)
}

func contextString(ctx map[string]any, key string) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx[key].(string)
	return strings.TrimSpace(value)
}

func loadBuiltinRules() ([]builtinRule, error) {
	builtinRulesOnce.Do(func() {
		rules, err := parseBuiltinRules(builtinRulesJSON)
		if err != nil {
			builtinRulesErr = err
			return
		}
		if overridePath := strings.TrimSpace(os.Getenv("CORTANA_BUILTIN_RULES_FILE")); overridePath != "" {
			overrideBytes, err := os.ReadFile(overridePath)
			if err != nil {
				builtinRulesErr = fmt.Errorf("builtin provider: could not read CORTANA_BUILTIN_RULES_FILE: %w", err)
				return
			}
			overrideRules, err := parseBuiltinRules(overrideBytes)
			if err != nil {
				builtinRulesErr = fmt.Errorf("builtin provider: invalid CORTANA_BUILTIN_RULES_FILE: %w", err)
				return
			}
			// User rules take priority over the shipped ones.
			rules = append(overrideRules, rules...)
		}
		builtinRulesCache = rules
	})
	if builtinRulesErr != nil {
		return nil, builtinRulesErr
	}
	return builtinRulesCache, nil
}

func parseBuiltinRules(payload []byte) ([]builtinRule, error) {
	var rules []builtinRule
	if err := json.Unmarshal(payload, &rules); err != nil {
		return nil, fmt.Errorf("could not parse builtin rules JSON: %w", err)
	}
	out := make([]builtinRule, 0, len(rules))
	for _, rule := range rules {
		normalized, err := normalizeBuiltinRule(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	return out, nil
}

func normalizeBuiltinRule(in builtinRule) (builtinRule, error) {
	rule := in
	rule.ID = strings.TrimSpace(rule.ID)
	rule.Command = strings.TrimSpace(rule.Command)
	rule.Explanation = strings.TrimSpace(rule.Explanation)
	rule.Risk = strings.ToLower(strings.TrimSpace(rule.Risk))

	if rule.ID == "" {
		return builtinRule{}, fmt.Errorf("builtin rule missing id")
	}
	if rule.Command == "" {
		return builtinRule{}, fmt.Errorf("builtin rule %q missing command", rule.ID)
	}
	if len(rule.Intents) == 0 {
		rule.Intents = []string{string(IntentChat), string(IntentPlan)}
	}
	if rule.Explanation == "" {
		rule.Explanation = "Matched a builtin rule."
	}
	if rule.Risk == "" {
		rule.Risk = "low"
	}
	rule.MatchAny = normalizePatternList(rule.MatchAny)
	rule.MatchAll = normalizePatternList(rule.MatchAll)
	if pattern := strings.TrimSpace(rule.Regex); pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return builtinRule{}, fmt.Errorf("builtin rule %q has invalid regex: %w", rule.ID, err)
		}
		rule.re = re
	}
	if len(rule.MatchAny) == 0 && len(rule.MatchAll) == 0 && rule.re == nil {
		return builtinRule{}, fmt.Errorf("builtin rule %q has no match patterns", rule.ID)
	}
	return rule, nil
}

func normalizePatternList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if normalized := strings.ToLower(strings.TrimSpace(value)); normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

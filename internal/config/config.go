package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ashwch/cortana/internal/appdirs"
	"github.com/ashwch/cortana/internal/fsutil"
	"github.com/pelletier/go-toml/v2"
)

const (
	ModeConfirm = "confirm"
	ModeSuggest = "suggest"
	ModeYolo    = "yolo"
)

type ModelConfig struct {
	ProviderModel string `toml:"provider_model,omitempty" json:"provider_model,omitempty"`
	Speed         string `toml:"speed,omitempty" json:"speed,omitempty"`
	Description   string `toml:"description,omitempty" json:"description,omitempty"`
}

// ProviderConfig describes one AI backend. Type selects the adapter:
// openai, anthropic, gemini, command or builtin.
type ProviderConfig struct {
	Type      string                 `toml:"type,omitempty" json:"type,omitempty"`
	Command   string                 `toml:"command,omitempty" json:"command,omitempty"`
	Enabled   *bool                  `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Model     string                 `toml:"model" json:"model"`
	BaseURL   string                 `toml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey    string                 `toml:"api_key,omitempty" json:"-"`
	APIKeyEnv string                 `toml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	MaxTokens int                    `toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	ModelFlag string                 `toml:"model_flag,omitempty" json:"model_flag,omitempty"`
	Args      []string               `toml:"args,omitempty" json:"args,omitempty"`
	Models    map[string]ModelConfig `toml:"models,omitempty" json:"models,omitempty"`
}

type ChatConfig struct {
	Model       string `toml:"model" json:"model"`
	MaxHistory  int    `toml:"max_history" json:"max_history"`
	MaxTokens   int    `toml:"max_tokens" json:"max_tokens"`
	ShareOutput bool   `toml:"share_output" json:"share_output"`
}

type PlanConfig struct {
	Model           string `toml:"model" json:"model"`
	ConfirmEachStep bool   `toml:"confirm_each_step" json:"confirm_each_step"`
	MaxSteps        int    `toml:"max_steps" json:"max_steps"`
}

type SafetyConfig struct {
	RedactSecrets      bool   `toml:"redact_secrets" json:"redact_secrets"`
	BlockHighRisk      bool   `toml:"block_high_risk" json:"block_high_risk"`
	AutoApproveAllowed bool   `toml:"auto_approve_allowed" json:"auto_approve_allowed"`
	RulesFile          string `toml:"rules_file,omitempty" json:"rules_file,omitempty"`
}

type KnowledgeConfig struct {
	Path           string `toml:"path,omitempty" json:"path,omitempty"`
	MaxCommands    int    `toml:"max_commands" json:"max_commands"`
	MaxOutputBytes int    `toml:"max_output_bytes" json:"max_output_bytes"`
	RefreshHours   int    `toml:"refresh_hours" json:"refresh_hours"`
	PromptItems    int    `toml:"prompt_items" json:"prompt_items"`
	ShareSystem    bool   `toml:"share_system" json:"share_system"`
}

type ExecutorConfig struct {
	Shell           string `toml:"shell,omitempty" json:"shell,omitempty"`
	LoginShell      bool   `toml:"login_shell" json:"login_shell"`
	TimeoutSeconds  int    `toml:"timeout_seconds" json:"timeout_seconds"`
	TrackDir        bool   `toml:"track_dir" json:"track_dir"`
	MaxCaptureBytes int    `toml:"max_capture_bytes" json:"max_capture_bytes"`
}

type UIConfig struct {
	Backend  string `toml:"backend" json:"backend"`
	Markdown bool   `toml:"markdown" json:"markdown"`
}

type LogConfig struct {
	Level string `toml:"level" json:"level"`
	File  string `toml:"file,omitempty" json:"file,omitempty"`
}

type Config struct {
	Version       int                       `toml:"version" json:"version"`
	AssistantName string                    `toml:"assistant_name" json:"assistant_name"`
	Provider      string                    `toml:"provider" json:"provider"`
	Mode          string                    `toml:"mode" json:"mode"`
	Chat          ChatConfig                `toml:"chat" json:"chat"`
	Plan          PlanConfig                `toml:"plan" json:"plan"`
	Providers     map[string]ProviderConfig `toml:"providers" json:"providers"`
	Safety        SafetyConfig              `toml:"safety" json:"safety"`
	Knowledge     KnowledgeConfig           `toml:"knowledge" json:"knowledge"`
	Executor      ExecutorConfig            `toml:"executor" json:"executor"`
	UI            UIConfig                  `toml:"ui" json:"ui"`
	Log           LogConfig                 `toml:"log" json:"log"`
}

func Default() Config {
	return Config{
		Version:       1,
		AssistantName: "Cortana",
		Provider:      "auto",
		Mode:          ModeConfirm,
		Chat: ChatConfig{
			Model:       "auto-fast",
			MaxHistory:  40,
			MaxTokens:   1024,
			ShareOutput: true,
		},
		Plan: PlanConfig{
			Model:           "auto-main",
			ConfirmEachStep: true,
			MaxSteps:        12,
		},
		Providers: defaultProviderCatalog(),
		Safety: SafetyConfig{
			RedactSecrets:      true,
			BlockHighRisk:      false,
			AutoApproveAllowed: false,
		},
		Knowledge: KnowledgeConfig{
			MaxCommands:    500,
			MaxOutputBytes: 4000,
			RefreshHours:   168,
			PromptItems:    8,
			ShareSystem:    true,
		},
		Executor: ExecutorConfig{
			TrackDir:        true,
			MaxCaptureBytes: 256 * 1024,
		},
		UI: UIConfig{
			Backend:  "plain",
			Markdown: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultProviderCatalog() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": {
			Type:      "openai",
			Enabled:   boolPtr(true),
			Model:     "gpt-4o-mini",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Models: map[string]ModelConfig{
				"gpt-4o-mini": {ProviderModel: "gpt-4o-mini", Speed: "fast", Description: "Fast chat replies"},
				"gpt-4o":      {ProviderModel: "gpt-4o", Speed: "quality", Description: "Plans and fixes"},
			},
		},
		"anthropic": {
			Type:      "anthropic",
			Enabled:   boolPtr(true),
			Model:     "haiku",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			Models: map[string]ModelConfig{
				"haiku":  {ProviderModel: "claude-3-5-haiku-latest", Speed: "fast", Description: "Fast chat replies"},
				"sonnet": {ProviderModel: "claude-sonnet-4-5", Speed: "quality", Description: "Plans and fixes"},
			},
		},
		"gemini": {
			Type:      "gemini",
			Enabled:   boolPtr(true),
			Model:     "flash",
			APIKeyEnv: "GEMINI_API_KEY",
			Models: map[string]ModelConfig{
				"flash": {ProviderModel: "gemini-2.5-flash", Speed: "fast", Description: "Fast chat replies"},
				"pro":   {ProviderModel: "gemini-2.5-pro", Speed: "quality", Description: "Plans and fixes"},
			},
		},
		"claude": {
			Type:      "command",
			Command:   "claude",
			Enabled:   boolPtr(true),
			Model:     "sonnet",
			ModelFlag: "--model",
			Args:      []string{"-p", "--output-format", "json", "--model", "{model}", "{prompt}"},
			Models: map[string]ModelConfig{
				"sonnet": {ProviderModel: "sonnet", Speed: "balanced", Description: "Claude CLI default"},
				"haiku":  {ProviderModel: "haiku", Speed: "fast", Description: "Claude CLI fast"},
			},
		},
		"builtin": {
			Type:    "builtin",
			Enabled: boolPtr(true),
			Model:   "rules",
			Models: map[string]ModelConfig{
				"rules": {ProviderModel: "rules", Speed: "fast", Description: "Offline phrase rules"},
			},
		},
	}
}

// LoadOrCreate reads the user config, writing defaults on first run.
func LoadOrCreate() (Config, string, error) {
	path, err := appdirs.ConfigFilePath()
	if err != nil {
		return Config{}, "", err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if _, err := appdirs.EnsureConfigDir(); err != nil {
			return Config{}, "", err
		}
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return Config{}, "", err
		}
		return cfg, path, nil
	} else if err != nil {
		return Config{}, "", fmt.Errorf("could not stat config path: %w", err)
	}

	cfg, err := Load(path)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

func Load(path string) (Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(payload, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func Save(path string, cfg Config) error {
	cfg.normalize()
	payload, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("could not serialize config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, payload, 0o600); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()
	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if strings.TrimSpace(c.AssistantName) == "" {
		c.AssistantName = defaults.AssistantName
	}
	if strings.TrimSpace(c.Provider) == "" {
		c.Provider = defaults.Provider
	}
	c.Mode = normalizeMode(c.Mode, defaults.Mode)
	if c.Chat.Model == "" {
		c.Chat.Model = defaults.Chat.Model
	}
	if c.Chat.MaxHistory <= 0 {
		c.Chat.MaxHistory = defaults.Chat.MaxHistory
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = defaults.Chat.MaxTokens
	}
	if c.Plan.Model == "" {
		c.Plan.Model = defaults.Plan.Model
	}
	if c.Plan.MaxSteps <= 0 {
		c.Plan.MaxSteps = defaults.Plan.MaxSteps
	}
	if c.Knowledge.MaxCommands <= 0 {
		c.Knowledge.MaxCommands = defaults.Knowledge.MaxCommands
	}
	if c.Knowledge.MaxOutputBytes <= 0 {
		c.Knowledge.MaxOutputBytes = defaults.Knowledge.MaxOutputBytes
	}
	if c.Knowledge.RefreshHours <= 0 {
		c.Knowledge.RefreshHours = defaults.Knowledge.RefreshHours
	}
	if c.Knowledge.PromptItems <= 0 {
		c.Knowledge.PromptItems = defaults.Knowledge.PromptItems
	}
	if c.Executor.TimeoutSeconds < 0 {
		c.Executor.TimeoutSeconds = 0
	}
	if c.Executor.MaxCaptureBytes <= 0 {
		c.Executor.MaxCaptureBytes = defaults.Executor.MaxCaptureBytes
	}
	c.UI.Backend = normalizeUIBackend(c.UI.Backend, defaults.UI.Backend)
	c.Log.Level = normalizeLogLevel(c.Log.Level, defaults.Log.Level)

	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, def := range defaultProviderCatalog() {
		current, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = def
			continue
		}
		mergeProviderDefaults(&current, def)
		c.Providers[name] = current
	}

	for name, provider := range c.Providers {
		if provider.Type == "" {
			provider.Type = "command"
		}
		if provider.Type == "command" && provider.Command == "" {
			provider.Command = name
		}
		if provider.Enabled == nil {
			provider.Enabled = boolPtr(true)
		}
		if provider.Models == nil {
			provider.Models = map[string]ModelConfig{}
		}
		if provider.Model == "" {
			provider.Model = pickFirstModelAlias(provider.Models)
		}
		c.Providers[name] = provider
	}

	if c.Provider != "auto" {
		if _, ok := c.Providers[c.Provider]; !ok {
			c.Providers[c.Provider] = ProviderConfig{
				Type:      "command",
				Command:   c.Provider,
				Enabled:   boolPtr(true),
				ModelFlag: "--model",
				Models:    map[string]ModelConfig{},
			}
		}
	}
}

func mergeProviderDefaults(target *ProviderConfig, defaults ProviderConfig) {
	if target.Type == "" {
		target.Type = defaults.Type
	}
	if target.Command == "" {
		target.Command = defaults.Command
	}
	if target.Enabled == nil {
		target.Enabled = defaults.Enabled
	}
	if target.Model == "" {
		target.Model = defaults.Model
	}
	if target.BaseURL == "" {
		target.BaseURL = defaults.BaseURL
	}
	if target.APIKeyEnv == "" {
		target.APIKeyEnv = defaults.APIKeyEnv
	}
	if target.ModelFlag == "" {
		target.ModelFlag = defaults.ModelFlag
	}
	if len(target.Args) == 0 {
		target.Args = append([]string(nil), defaults.Args...)
	}
	if target.Models == nil {
		target.Models = map[string]ModelConfig{}
	}
	for alias, defModel := range defaults.Models {
		if _, ok := target.Models[alias]; !ok {
			target.Models[alias] = defModel
		}
	}
}

func (c *Config) Set(key, value string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	value = strings.TrimSpace(value)

	if strings.HasPrefix(key, "providers.") {
		if err := c.setProviderKey(key, value); err != nil {
			return err
		}
		c.normalize()
		return nil
	}

	var err error
	switch key {
	case "assistant_name":
		if value == "" {
			return fmt.Errorf("assistant_name cannot be empty")
		}
		c.AssistantName = value
	case "provider":
		c.Provider = strings.ToLower(value)
	case "mode":
		mode := normalizeMode(value, "")
		if mode == "" {
			return fmt.Errorf("mode must be one of confirm|suggest|yolo")
		}
		c.Mode = mode
	case "chat.model":
		c.Chat.Model = value
	case "chat.max_history":
		c.Chat.MaxHistory, err = parsePositive(key, value)
	case "chat.max_tokens":
		c.Chat.MaxTokens, err = parsePositive(key, value)
	case "chat.share_output":
		c.Chat.ShareOutput, err = parseBoolKey(key, value)
	case "plan.model":
		c.Plan.Model = value
	case "plan.confirm_each_step":
		c.Plan.ConfirmEachStep, err = parseBoolKey(key, value)
	case "plan.max_steps":
		c.Plan.MaxSteps, err = parsePositive(key, value)
	case "safety.redact_secrets":
		c.Safety.RedactSecrets, err = parseBoolKey(key, value)
	case "safety.block_high_risk":
		c.Safety.BlockHighRisk, err = parseBoolKey(key, value)
	case "safety.auto_approve_allowed":
		c.Safety.AutoApproveAllowed, err = parseBoolKey(key, value)
	case "safety.rules_file":
		c.Safety.RulesFile = value
	case "knowledge.path":
		c.Knowledge.Path = value
	case "knowledge.max_commands":
		c.Knowledge.MaxCommands, err = parsePositive(key, value)
	case "knowledge.max_output_bytes":
		c.Knowledge.MaxOutputBytes, err = parsePositive(key, value)
	case "knowledge.refresh_hours":
		c.Knowledge.RefreshHours, err = parsePositive(key, value)
	case "knowledge.prompt_items":
		c.Knowledge.PromptItems, err = parsePositive(key, value)
	case "knowledge.share_system":
		c.Knowledge.ShareSystem, err = parseBoolKey(key, value)
	case "executor.shell":
		c.Executor.Shell = value
	case "executor.login_shell":
		c.Executor.LoginShell, err = parseBoolKey(key, value)
	case "executor.track_dir":
		c.Executor.TrackDir, err = parseBoolKey(key, value)
	case "executor.timeout_seconds":
		n, convErr := strconv.Atoi(value)
		if convErr != nil || n < 0 {
			return fmt.Errorf("executor.timeout_seconds must be zero or a positive number")
		}
		c.Executor.TimeoutSeconds = n
	case "executor.max_capture_bytes":
		c.Executor.MaxCaptureBytes, err = parsePositive(key, value)
	case "ui.backend":
		backend := normalizeUIBackend(value, "")
		if backend == "" {
			return fmt.Errorf("ui.backend must be one of auto|bubbletea|huh|tview|plain")
		}
		c.UI.Backend = backend
	case "ui.markdown":
		c.UI.Markdown, err = parseBoolKey(key, value)
	case "log.level":
		level := normalizeLogLevel(value, "")
		if level == "" {
			return fmt.Errorf("log.level must be one of debug|info|warn|error")
		}
		c.Log.Level = level
	case "log.file":
		c.Log.File = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	c.normalize()
	return err
}

func (c *Config) setProviderKey(key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) < 3 {
		return fmt.Errorf("invalid provider key: %s", key)
	}
	providerName := parts[1]
	provider := c.ensureProvider(providerName)

	if len(parts) == 3 {
		switch parts[2] {
		case "model":
			provider.Model = value
		case "type":
			provider.Type = value
		case "command":
			provider.Command = value
		case "base_url":
			provider.BaseURL = strings.TrimRight(value, "/")
		case "api_key":
			provider.APIKey = value
		case "api_key_env":
			provider.APIKeyEnv = value
		case "model_flag":
			provider.ModelFlag = value
		case "max_tokens":
			n, err := parsePositive(key, value)
			if err != nil {
				return err
			}
			provider.MaxTokens = n
		case "enabled":
			b, err := parseBool(value)
			if err != nil {
				return fmt.Errorf("providers.%s.enabled must be boolean", providerName)
			}
			provider.Enabled = boolPtr(b)
		case "args":
			provider.Args = splitCommaList(value)
		default:
			return fmt.Errorf("unknown provider field: %s", parts[2])
		}
		c.Providers[providerName] = provider
		return nil
	}

	if len(parts) == 5 && parts[2] == "models" {
		alias := parts[3]
		model := provider.Models[alias]
		switch parts[4] {
		case "provider_model":
			model.ProviderModel = value
		case "speed":
			model.Speed = value
		case "description":
			model.Description = value
		default:
			return fmt.Errorf("unknown model field: %s", parts[4])
		}
		provider.Models[alias] = model
		c.Providers[providerName] = provider
		return nil
	}

	return fmt.Errorf("unsupported provider key path: %s", key)
}

func (c *Config) ensureProvider(name string) ProviderConfig {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	provider, ok := c.Providers[name]
	if !ok {
		provider = ProviderConfig{
			Type:      "command",
			Command:   name,
			Enabled:   boolPtr(true),
			ModelFlag: "--model",
		}
	}
	if provider.Models == nil {
		provider.Models = map[string]ModelConfig{}
	}
	c.Providers[name] = provider
	return provider
}

func (c Config) Get(key string) (string, error) {
	key = strings.TrimSpace(strings.ToLower(key))

	if strings.HasPrefix(key, "providers.") {
		return c.getProviderKey(key)
	}

	switch key {
	case "assistant_name":
		return c.AssistantName, nil
	case "provider":
		return c.Provider, nil
	case "mode":
		return c.Mode, nil
	case "chat.model":
		return c.Chat.Model, nil
	case "chat.max_history":
		return strconv.Itoa(c.Chat.MaxHistory), nil
	case "chat.max_tokens":
		return strconv.Itoa(c.Chat.MaxTokens), nil
	case "chat.share_output":
		return strconv.FormatBool(c.Chat.ShareOutput), nil
	case "plan.model":
		return c.Plan.Model, nil
	case "plan.confirm_each_step":
		return strconv.FormatBool(c.Plan.ConfirmEachStep), nil
	case "plan.max_steps":
		return strconv.Itoa(c.Plan.MaxSteps), nil
	case "safety.redact_secrets":
		return strconv.FormatBool(c.Safety.RedactSecrets), nil
	case "safety.block_high_risk":
		return strconv.FormatBool(c.Safety.BlockHighRisk), nil
	case "safety.auto_approve_allowed":
		return strconv.FormatBool(c.Safety.AutoApproveAllowed), nil
	case "safety.rules_file":
		return c.Safety.RulesFile, nil
	case "knowledge.path":
		return c.Knowledge.Path, nil
	case "knowledge.max_commands":
		return strconv.Itoa(c.Knowledge.MaxCommands), nil
	case "knowledge.max_output_bytes":
		return strconv.Itoa(c.Knowledge.MaxOutputBytes), nil
	case "knowledge.refresh_hours":
		return strconv.Itoa(c.Knowledge.RefreshHours), nil
	case "knowledge.prompt_items":
		return strconv.Itoa(c.Knowledge.PromptItems), nil
	case "knowledge.share_system":
		return strconv.FormatBool(c.Knowledge.ShareSystem), nil
	case "executor.shell":
		return c.Executor.Shell, nil
	case "executor.login_shell":
		return strconv.FormatBool(c.Executor.LoginShell), nil
	case "executor.track_dir":
		return strconv.FormatBool(c.Executor.TrackDir), nil
	case "executor.timeout_seconds":
		return strconv.Itoa(c.Executor.TimeoutSeconds), nil
	case "executor.max_capture_bytes":
		return strconv.Itoa(c.Executor.MaxCaptureBytes), nil
	case "ui.backend":
		return c.UI.Backend, nil
	case "ui.markdown":
		return strconv.FormatBool(c.UI.Markdown), nil
	case "log.level":
		return c.Log.Level, nil
	case "log.file":
		return c.Log.File, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func (c Config) getProviderKey(key string) (string, error) {
	parts := strings.Split(key, ".")
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid provider key: %s", key)
	}
	providerName := parts[1]
	provider, ok := c.Providers[providerName]
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", providerName)
	}

	if len(parts) == 3 {
		switch parts[2] {
		case "model":
			return provider.Model, nil
		case "type":
			return provider.Type, nil
		case "command":
			return provider.Command, nil
		case "base_url":
			return provider.BaseURL, nil
		case "api_key":
			if provider.APIKey == "" {
				return "", nil
			}
			return "[set]", nil
		case "api_key_env":
			return provider.APIKeyEnv, nil
		case "model_flag":
			return provider.ModelFlag, nil
		case "max_tokens":
			return strconv.Itoa(provider.MaxTokens), nil
		case "enabled":
			return strconv.FormatBool(provider.Enabled == nil || *provider.Enabled), nil
		case "args":
			return strings.Join(provider.Args, ","), nil
		default:
			return "", fmt.Errorf("unknown provider field: %s", parts[2])
		}
	}

	if len(parts) == 5 && parts[2] == "models" {
		model, ok := provider.Models[parts[3]]
		if !ok {
			return "", fmt.Errorf("unknown model alias: %s", parts[3])
		}
		switch parts[4] {
		case "provider_model":
			return model.ProviderModel, nil
		case "speed":
			return model.Speed, nil
		case "description":
			return model.Description, nil
		default:
			return "", fmt.Errorf("unknown model field: %s", parts[4])
		}
	}

	return "", fmt.Errorf("unsupported provider key path: %s", key)
}

func (c Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveAPIKey returns the inline key or the value of the configured
// environment variable.
func (p ProviderConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(p.APIKey); key != "" {
		return key
	}
	if env := strings.TrimSpace(p.APIKeyEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool: %s", value)
	}
}

func parseBoolKey(key, value string) (bool, error) {
	b, err := parseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be boolean", key)
	}
	return b, nil
}

func parsePositive(key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive number", key)
	}
	return n, nil
}

func splitCommaList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func pickFirstModelAlias(models map[string]ModelConfig) string {
	if len(models) == 0 {
		return ""
	}
	aliases := make([]string, 0, len(models))
	for alias := range models {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases[0]
}

func boolPtr(v bool) *bool {
	return &v
}

func normalizeMode(value, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case ModeConfirm, "ask":
		return ModeConfirm
	case ModeSuggest, "dry-run":
		return ModeSuggest
	case ModeYolo, "auto":
		return ModeYolo
	default:
		return strings.ToLower(strings.TrimSpace(fallback))
	}
}

func normalizeUIBackend(value string, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "auto", "bubbletea", "huh", "tview", "plain":
		return normalized
	default:
		return strings.ToLower(strings.TrimSpace(fallback))
	}
}

func normalizeLogLevel(value, fallback string) string {
	switch normalized := strings.ToLower(strings.TrimSpace(value)); normalized {
	case "debug", "info", "warn", "error":
		return normalized
	case "warning":
		return "warn"
	default:
		return strings.ToLower(strings.TrimSpace(fallback))
	}
}

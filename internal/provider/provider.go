package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwch/cortana/internal/config"
)

type Intent string

const (
	IntentChat Intent = "chat"
	IntentPlan Intent = "plan"
	IntentFix  Intent = "fix"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrAPIKeyMissing = errors.New("api key missing")
	ErrNoProvider    = errors.New("no provider available")
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one call to a model. System carries the rendered system
// prompt; Messages alternate user and assistant turns and end with a user
// turn.
type Request struct {
	Intent    Intent
	System    string
	Messages  []Message
	Model     string
	MaxTokens int
	Context   map[string]any
}

// LastUser returns the content of the final user turn.
func (r Request) LastUser() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

type Step struct {
	Description string `json:"description"`
	Command     string `json:"command"`
}

// Reply is the structured answer every adapter produces. Command is empty
// when the model only answered; Steps is set for multi-step tasks.
type Reply struct {
	Explanation string `json:"explanation"`
	Command     string `json:"command,omitempty"`
	Steps       []Step `json:"steps,omitempty"`
	Risk        string `json:"risk,omitempty"`
}

type Adapter interface {
	Name() string
	Type() string
	Complete(ctx context.Context, req Request) (Reply, error)
}

type HealthChecker interface {
	HealthCheck() error
}

type Factory func(name string, cfg config.ProviderConfig) (Adapter, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("openai", NewOpenAIAdapter)
	r.Register("anthropic", NewAnthropicAdapter)
	r.Register("gemini", NewGeminiAdapter)
	r.Register("command", NewCommandAdapter)
	r.Register("builtin", NewBuiltinAdapter)
	return r
}

func (r *Registry) Register(providerType string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[providerType] = factory
}

func (r *Registry) Build(name string, cfg config.ProviderConfig) (Adapter, error) {
	providerType := strings.ToLower(strings.TrimSpace(cfg.Type))
	if providerType == "" {
		providerType = "command"
	}
	factory, ok := r.factories[providerType]
	if !ok {
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
	return factory(name, cfg)
}

// Validate builds every enabled provider and runs its health check.
func (r *Registry) Validate(cfg config.Config) map[string]error {
	issues := map[string]error{}
	for _, name := range cfg.ProviderNames() {
		providerCfg := cfg.Providers[name]
		if !providerCfg.IsEnabled() {
			continue
		}
		adapter, err := r.Build(name, providerCfg)
		if err != nil {
			issues[name] = err
			continue
		}
		if checker, ok := adapter.(HealthChecker); ok {
			if err := checker.HealthCheck(); err != nil {
				issues[name] = err
			}
		}
	}
	return issues
}

// apiKeyCheck is the health check shared by the HTTP adapters.
func apiKeyCheck(cfg config.ProviderConfig) error {
	if cfg.ResolveAPIKey() != "" {
		return nil
	}
	if env := strings.TrimSpace(cfg.APIKeyEnv); env != "" {
		return fmt.Errorf("%w: set %s", ErrAPIKeyMissing, env)
	}
	return ErrAPIKeyMissing
}

func maxTokens(req Request, cfg config.ProviderConfig) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 1024
}

// alternating merges consecutive turns from the same role and drops
// leading assistant turns, which the Anthropic and Gemini APIs reject.
func alternating(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if len(out) == 0 && msg.Role != RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, Message{Role: msg.Role, Content: content})
	}
	return out
}

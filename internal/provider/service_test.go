package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashwch/cortana/internal/config"
)

func TestResolveModelAutoFastUsesFastAlias(t *testing.T) {
	cfg := config.ProviderConfig{
		Model: "gpt-4o",
		Models: map[string]config.ModelConfig{
			"gpt-4o":      {ProviderModel: "gpt-4o", Speed: "quality"},
			"gpt-4o-mini": {ProviderModel: "gpt-4o-mini", Speed: "fast"},
		},
	}
	if got := resolveModel(cfg, "auto-fast"); got != "gpt-4o-mini" {
		t.Fatalf("expected fast model gpt-4o-mini, got %q", got)
	}
}

func TestResolveModelAutoMainUsesQualityAlias(t *testing.T) {
	cfg := config.ProviderConfig{
		Model: "haiku",
		Models: map[string]config.ModelConfig{
			"sonnet": {ProviderModel: "claude-sonnet-4-5", Speed: "quality"},
			"haiku":  {ProviderModel: "claude-3-5-haiku-latest", Speed: "fast"},
		},
	}
	if got := resolveModel(cfg, "auto-main"); got != "claude-sonnet-4-5" {
		t.Fatalf("expected quality model, got %q", got)
	}
}

func TestResolveModelUnknownRequestFallsBackToProviderDefault(t *testing.T) {
	cfg := config.ProviderConfig{
		Model: "flash",
		Models: map[string]config.ModelConfig{
			"flash": {ProviderModel: "gemini-2.5-flash", Speed: "fast"},
		},
	}
	if got := resolveModel(cfg, "gpt-4o"); got != "gemini-2.5-flash" {
		t.Fatalf("expected provider default for unknown model, got %q", got)
	}
	if got := resolveModel(cfg, "auto-whatever"); got != "gemini-2.5-flash" {
		t.Fatalf("expected provider default for unknown auto alias, got %q", got)
	}
}

func TestResolveModelWithoutCatalogPassesThrough(t *testing.T) {
	if got := resolveModel(config.ProviderConfig{Model: "local"}, "llama3"); got != "llama3" {
		t.Fatalf("expected explicit model to pass through, got %q", got)
	}
}

func TestProviderOrderPutsBuiltinLast(t *testing.T) {
	cfg := config.Default()
	cfg.Providers["zz-local"] = config.ProviderConfig{Type: "openai", Model: "m"}
	order := providerOrder(cfg, "gemini")

	if order[0] != "gemini" {
		t.Fatalf("expected preferred provider first, got %v", order)
	}
	if order[len(order)-1] != "builtin" {
		t.Fatalf("expected builtin last, got %v", order)
	}
	joined := strings.Join(order, ",")
	if !strings.Contains(joined, "claude,zz-local,builtin") {
		t.Fatalf("expected custom providers before builtin, got %v", order)
	}
}

type fakeAdapter struct {
	name    string
	reply   Reply
	err     error
	health  error
	calls   *[]string
	lastReq *Request
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Type() string { return "fake" }
func (f *fakeAdapter) HealthCheck() error {
	return f.health
}
func (f *fakeAdapter) Complete(_ context.Context, req Request) (Reply, error) {
	*f.calls = append(*f.calls, f.name)
	if f.lastReq != nil {
		*f.lastReq = req
	}
	return f.reply, f.err
}

func fakeConfig(names ...string) config.Config {
	cfg := config.Config{Provider: names[0], Providers: map[string]config.ProviderConfig{}}
	for _, name := range names {
		cfg.Providers[name] = config.ProviderConfig{
			Type:  "fake",
			Model: "auto-fast",
			Models: map[string]config.ModelConfig{
				"small": {ProviderModel: name + "-small", Speed: "fast"},
			},
		}
	}
	return cfg
}

func TestServiceFallsBackOnFailureAndHealth(t *testing.T) {
	var calls []string
	var seen Request
	adapters := map[string]*fakeAdapter{
		"alpha": {name: "alpha", err: errors.New("boom"), calls: &calls},
		"beta":  {name: "beta", health: ErrAPIKeyMissing, calls: &calls},
		"gamma": {name: "gamma", reply: Reply{Command: " ls "}, calls: &calls, lastReq: &seen},
	}
	registry := &Registry{}
	registry.Register("fake", func(name string, _ config.ProviderConfig) (Adapter, error) {
		return adapters[name], nil
	})

	svc := NewService(registry, nil)
	reply, used, err := svc.Complete(context.Background(), fakeConfig("alpha", "beta", "gamma"), Request{Intent: IntentChat}, "")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if used != "gamma" {
		t.Fatalf("expected gamma to answer, got %q", used)
	}
	if strings.Join(calls, ",") != "alpha,gamma" {
		t.Fatalf("expected beta to be skipped by health check, calls=%v", calls)
	}
	if reply.Command != "ls" || reply.Explanation == "" {
		t.Fatalf("expected normalised reply, got %+v", reply)
	}
	if seen.Model != "gamma-small" {
		t.Fatalf("expected auto-fast to resolve to gamma-small, got %q", seen.Model)
	}
}

func TestServiceReportsAllFailures(t *testing.T) {
	var calls []string
	registry := &Registry{}
	registry.Register("fake", func(name string, _ config.ProviderConfig) (Adapter, error) {
		return &fakeAdapter{name: name, err: errors.New("down"), calls: &calls}, nil
	})
	_, _, err := NewService(registry, nil).Complete(context.Background(), fakeConfig("one", "two"), Request{}, "")
	if err == nil || !strings.Contains(err.Error(), "one: down") || !strings.Contains(err.Error(), "two: down") {
		t.Fatalf("expected combined failure, got %v", err)
	}
}

func TestServiceSkipsDisabledProviders(t *testing.T) {
	cfg := fakeConfig("only")
	disabled := false
	p := cfg.Providers["only"]
	p.Enabled = &disabled
	cfg.Providers["only"] = p

	_, _, err := NewService(&Registry{}, nil).Complete(context.Background(), cfg, Request{}, "")
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestRegistryValidateReportsMissingKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "sk-test")
	issues := NewRegistry().Validate(config.Default())
	if !errors.Is(issues["openai"], ErrAPIKeyMissing) {
		t.Fatalf("expected openai to report a missing key, got %v", issues["openai"])
	}
	if _, ok := issues["gemini"]; ok {
		t.Fatalf("expected gemini to be healthy, got %v", issues["gemini"])
	}
	if _, ok := issues["builtin"]; ok {
		t.Fatalf("builtin has no health check")
	}
}

func TestAlternatingMergesAndDropsLeadingAssistant(t *testing.T) {
	got := alternating([]Message{
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: " "},
		{Role: RoleAssistant, Content: "c"},
	})
	if len(got) != 2 || got[0].Content != "a\n\nb" || got[1].Content != "c" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

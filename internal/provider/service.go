package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/ashwch/cortana/internal/config"
	"go.uber.org/zap"
)

const defaultCallTimeout = 90 * time.Second

type Service struct {
	registry *Registry
	logger   *zap.Logger
	timeout  time.Duration
}

func NewService(registry *Registry, logger *zap.Logger) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: registry, logger: logger, timeout: defaultCallTimeout}
}

// Complete sends req to the first provider that answers, trying them in
// providerOrder. It returns the reply and the name of the provider used.
func (s *Service) Complete(ctx context.Context, cfg config.Config, req Request, preferredProvider string) (Reply, string, error) {
	order := providerOrder(cfg, preferredProvider)
	if len(order) == 0 {
		return Reply{}, "", fmt.Errorf("%w: no providers configured", ErrNoProvider)
	}

	issues := make([]string, 0, len(order))
	for _, name := range order {
		providerCfg := cfg.Providers[name]
		if !providerCfg.IsEnabled() {
			continue
		}

		adapter, err := s.registry.Build(name, providerCfg)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if checker, ok := adapter.(HealthChecker); ok {
			if err := checker.HealthCheck(); err != nil {
				s.logger.Debug("provider unavailable", zap.String("provider", name), zap.Error(err))
				issues = append(issues, fmt.Sprintf("%s: %v", name, err))
				continue
			}
		}

		providerReq := req
		providerReq.Model = resolveModel(providerCfg, req.Model)
		providerReq.Context = cloneContext(req.Context)

		started := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		reply, err := adapter.Complete(callCtx, providerReq)
		cancel()
		if err != nil {
			s.logger.Warn("provider call failed",
				zap.String("provider", name), zap.String("model", providerReq.Model), zap.Error(err))
			issues = append(issues, fmt.Sprintf("%s: %v", name, err))
			if ctx.Err() != nil {
				return Reply{}, "", ctx.Err()
			}
			continue
		}
		s.logger.Info("provider replied",
			zap.String("provider", name),
			zap.String("model", providerReq.Model),
			zap.String("intent", string(req.Intent)),
			zap.Duration("duration", time.Since(started)))
		return normalizeReply(reply), name, nil
	}

	if len(issues) == 0 {
		return Reply{}, "", fmt.Errorf("%w: every provider is disabled", ErrNoProvider)
	}
	return Reply{}, "", fmt.Errorf("all providers failed: %s", strings.Join(issues, " | "))
}

// providerOrder lists the preferred provider, the configured one, the
// well-known defaults, any other configured providers, and builtin last.
func providerOrder(cfg config.Config, preferredProvider string) []string {
	seen := map[string]struct{}{}
	order := make([]string, 0, len(cfg.Providers))

	add := func(name string) {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" || name == "auto" {
			return
		}
		if _, ok := cfg.Providers[name]; !ok {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}

	add(preferredProvider)
	add(cfg.Provider)
	for _, name := range []string{"openai", "anthropic", "gemini", "claude"} {
		add(name)
	}
	names := cfg.ProviderNames()
	for _, name := range names {
		if cfg.Providers[name].Type != "builtin" {
			add(name)
		}
	}
	for _, name := range names {
		add(name)
	}
	return order
}

// autoAliases maps each auto alias to the speed classes it accepts, best
// first.
var autoAliases = map[string][]string{
	"auto-fast": {"fast", "balanced"},
	"auto-main": {"quality", "balanced", "fast"},
}

// resolveModel turns a requested model or alias into the name the provider
// expects. Names the provider's model table does not know fall back to its
// default model.
func resolveModel(p config.ProviderConfig, requested string) string {
	model := strings.TrimSpace(requested)
	explicit := model != ""
	if !explicit {
		model = strings.TrimSpace(p.Model)
	}
	if speeds, ok := autoAliases[model]; ok {
		model = aliasBySpeed(p, speeds)
	} else if strings.HasPrefix(model, "auto-") {
		model = strings.TrimSpace(p.Model)
	}

	if explicit && !knownModel(p, model) {
		model = strings.TrimSpace(p.Model)
	}
	if !knownModel(p, model) {
		model = defaultAlias(p)
	}
	if def, ok := p.Models[model]; ok && strings.TrimSpace(def.ProviderModel) != "" {
		return strings.TrimSpace(def.ProviderModel)
	}
	return model
}

// knownModel reports whether model is an alias or a provider model name in
// the table. Without a table every name is accepted.
func knownModel(p config.ProviderConfig, model string) bool {
	model = strings.TrimSpace(model)
	if model == "" || len(p.Models) == 0 {
		return true
	}
	if _, ok := p.Models[model]; ok {
		return true
	}
	for _, def := range p.Models {
		if strings.EqualFold(strings.TrimSpace(def.ProviderModel), model) {
			return true
		}
	}
	return false
}

func defaultAlias(p config.ProviderConfig) string {
	if len(p.Models) == 0 {
		return strings.TrimSpace(p.Model)
	}
	if alias := aliasBySpeed(p, autoAliases["auto-main"]); alias != "" && knownModel(p, alias) {
		return alias
	}
	return slices.Sorted(maps.Keys(p.Models))[0]
}

// aliasBySpeed returns the first alias, in name order, of the best speed
// class present.
func aliasBySpeed(p config.ProviderConfig, speeds []string) string {
	if len(p.Models) == 0 {
		return strings.TrimSpace(p.Model)
	}
	aliases := slices.Sorted(maps.Keys(p.Models))
	for _, speed := range speeds {
		for _, alias := range aliases {
			if strings.EqualFold(strings.TrimSpace(p.Models[alias].Speed), speed) {
				return alias
			}
		}
	}
	return strings.TrimSpace(p.Model)
}

func cloneContext(in map[string]any) map[string]any {
	out := maps.Clone(in)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ashwch/cortana/internal/config"
)

type AnthropicAdapter struct {
	name string
	cfg  config.ProviderConfig
}

func NewAnthropicAdapter(name string, cfg config.ProviderConfig) (Adapter, error) {
	return &AnthropicAdapter{name: name, cfg: cfg}, nil
}

func (a *AnthropicAdapter) Name() string { return a.name }
func (a *AnthropicAdapter) Type() string { return "anthropic" }

func (a *AnthropicAdapter) HealthCheck() error { return apiKeyCheck(a.cfg) }

func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (Reply, error) {
	key := a.cfg.ResolveAPIKey()
	if key == "" {
		return Reply{}, apiKeyCheck(a.cfg)
	}
	opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
	if base := strings.TrimSpace(a.cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := anthropic.NewClient(opts...)

	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens(req, a.cfg)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, msg := range alternating(req.Messages) {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	if len(params.Messages) == 0 {
		return Reply{}, fmt.Errorf("request has no user message")
	}

	var text string
	err := withRetry(ctx, func() error {
		message, callErr := client.Messages.New(ctx, params)
		if callErr != nil {
			var apiErr *anthropic.Error
			if errors.As(callErr, &apiErr) {
				return &statusError{Provider: a.name, StatusCode: apiErr.StatusCode, Err: callErr}
			}
			return callErr
		}
		var parts []string
		for _, block := range message.Content {
			if block.Type == "text" {
				parts = append(parts, block.Text)
			}
		}
		if len(parts) == 0 {
			return fmt.Errorf("%s returned no text content", a.name)
		}
		text = strings.Join(parts, "\n")
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	reply, err := parseReply(text)
	if err != nil {
		return Reply{}, fmt.Errorf("%s returned unparseable output: %s", a.name, truncate(text, 800))
	}
	return reply, nil
}

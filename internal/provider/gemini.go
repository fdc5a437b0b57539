package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwch/cortana/internal/config"
	"google.golang.org/genai"
)

type GeminiAdapter struct {
	name string
	cfg  config.ProviderConfig
}

func NewGeminiAdapter(name string, cfg config.ProviderConfig) (Adapter, error) {
	return &GeminiAdapter{name: name, cfg: cfg}, nil
}

func (a *GeminiAdapter) Name() string { return a.name }
func (a *GeminiAdapter) Type() string { return "gemini" }

func (a *GeminiAdapter) HealthCheck() error { return apiKeyCheck(a.cfg) }

func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (Reply, error) {
	key := a.cfg.ResolveAPIKey()
	if key == "" {
		return Reply{}, apiKeyCheck(a.cfg)
	}
	clientCfg := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if base := strings.TrimSpace(a.cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create %s client: %w", a.name, err)
	}

	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range alternating(req.Messages) {
		var role genai.Role = genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	if len(contents) == 0 {
		return Reply{}, fmt.Errorf("request has no user message")
	}
	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  int32(maxTokens(req, a.cfg)),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	var text string
	err = withRetry(ctx, func() error {
		resp, callErr := client.Models.GenerateContent(ctx, model, contents, genCfg)
		if callErr != nil {
			var apiErr genai.APIError
			if errors.As(callErr, &apiErr) {
				return &statusError{Provider: a.name, StatusCode: apiErr.Code, Message: apiErr.Message, Err: callErr}
			}
			return callErr
		}
		text = resp.Text()
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%s returned no text content", a.name)
		}
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

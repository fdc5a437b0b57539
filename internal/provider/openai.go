package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashwch/cortana/internal/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter talks to any Chat Completions compatible endpoint.
type OpenAIAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewOpenAIAdapter(name string, cfg config.ProviderConfig) (Adapter, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &OpenAIAdapter{name: name, cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}, nil
}

func (a *OpenAIAdapter) Name() string { return a.name }
func (a *OpenAIAdapter) Type() string { return "openai" }

func (a *OpenAIAdapter) HealthCheck() error { return apiKeyCheck(a.cfg) }

type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (Reply, error) {
	key := a.cfg.ResolveAPIKey()
	if key == "" {
		return Reply{}, apiKeyCheck(a.cfg)
	}

	body := chatCompletionRequest{
		Model:          req.Model,
		MaxTokens:      maxTokens(req, a.cfg),
		ResponseFormat: &chatResponseFormat{Type: "json_object"},
	}
	if body.Model == "" {
		body.Model = a.cfg.Model
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Reply{}, err
	}

	var content string
	err = withRetry(ctx, func() error {
		var callErr error
		content, callErr = a.post(ctx, key, payload)
		return callErr
	})
	if err != nil {
		return Reply{}, err
	}
	reply, err := parseReply(content)
	if err != nil {
		return Reply{}, fmt.Errorf("%s returned unparseable output: %s", a.name, truncate(content, 800))
	}
	return reply, nil
}

func (a *OpenAIAdapter) post(ctx context.Context, key string, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		status := &statusError{Provider: a.name, StatusCode: resp.StatusCode}
		var errResp openAIErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != nil {
			status.Message = errResp.Error.Message
		} else {
			status.Message = truncate(string(raw), 300)
		}
		return "", status
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("could not decode %s response: %w", a.name, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", a.name)
	}
	return decoded.Choices[0].Message.Content, nil
}

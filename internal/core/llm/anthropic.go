package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jobfitai/jobfit-api/internal/core"
)

const ProviderAnthropic = "anthropic"

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

var _ core.LLMProvider = (*AnthropicProvider)(nil)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client    *http.Client
	baseURL   string
	sharedKey string
}

func NewAnthropicProvider(sharedKey string, timeout time.Duration) *AnthropicProvider {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		client:    &http.Client{Timeout: timeout},
		baseURL:   anthropicBaseURL,
		sharedKey: sharedKey,
	}
}

func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

type anthropicRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []anthropicMsg `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, req core.CompletionRequest) (core.CompletionResponse, error) {
	key := req.APIKey
	if key == "" {
		key = p.sharedKey
	}
	if key == "" {
		return core.CompletionResponse{}, fmt.Errorf("%w: no anthropic credential", core.ErrInvalidCredentials)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096 // the Messages API requires an explicit cap
	}

	var resp anthropicResponse
	err := postJSON(ctx, p.client, p.baseURL+"/messages",
		map[string]string{
			"x-api-key":         key,
			"anthropic-version": anthropicVersion,
		},
		anthropicRequest{
			Model:       req.Model,
			MaxTokens:   maxTokens,
			System:      req.System,
			Messages:    []anthropicMsg{{Role: "user", Content: req.Prompt}},
			Temperature: req.Temperature,
		}, &resp)
	if err != nil {
		return core.CompletionResponse{}, err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return core.CompletionResponse{}, fmt.Errorf("%w: empty content blocks", core.ErrProviderUnavailable)
	}

	return core.CompletionResponse{
		Text: b.String(),
		Usage: core.CompletionUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

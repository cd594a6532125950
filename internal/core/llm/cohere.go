package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jobfitai/jobfit-api/internal/core"
)

const ProviderCohere = "cohere"

const cohereBaseURL = "https://api.cohere.com/v1"

var _ core.LLMProvider = (*CohereProvider)(nil)

// CohereProvider talks to the Cohere Chat API.
type CohereProvider struct {
	client    *http.Client
	baseURL   string
	sharedKey string
}

func NewCohereProvider(sharedKey string, timeout time.Duration) *CohereProvider {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &CohereProvider{
		client:    &http.Client{Timeout: timeout},
		baseURL:   cohereBaseURL,
		sharedKey: sharedKey,
	}
}

func (p *CohereProvider) Name() string { return ProviderCohere }

type cohereChatRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Preamble    string  `json:"preamble,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type cohereChatResponse struct {
	Text string `json:"text"`
	Meta struct {
		BilledUnits struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

func (p *CohereProvider) Complete(ctx context.Context, req core.CompletionRequest) (core.CompletionResponse, error) {
	key := req.APIKey
	if key == "" {
		key = p.sharedKey
	}
	if key == "" {
		return core.CompletionResponse{}, fmt.Errorf("%w: no cohere credential", core.ErrInvalidCredentials)
	}

	var resp cohereChatResponse
	err := postJSON(ctx, p.client, p.baseURL+"/chat",
		map[string]string{"Authorization": "Bearer " + key},
		cohereChatRequest{
			Model:       req.Model,
			Message:     req.Prompt,
			Preamble:    req.System,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}, &resp)
	if err != nil {
		return core.CompletionResponse{}, err
	}
	if resp.Text == "" {
		return core.CompletionResponse{}, fmt.Errorf("%w: empty response text", core.ErrProviderUnavailable)
	}

	return core.CompletionResponse{
		Text: resp.Text,
		Usage: core.CompletionUsage{
			PromptTokens:     resp.Meta.BilledUnits.InputTokens,
			CompletionTokens: resp.Meta.BilledUnits.OutputTokens,
		},
	}, nil
}

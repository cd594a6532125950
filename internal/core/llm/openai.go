package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jobfitai/jobfit-api/internal/core"
)

const ProviderOpenAI = "openai"

const (
	openAIBaseURL        = "https://api.openai.com/v1"
	defaultOpenAIEmbed   = "text-embedding-3-small"
	defaultOpenAITimeout = 60 * time.Second
)

// Known dimensionalities for OpenAI embedding models.
var openAIEmbedDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

var (
	_ core.LLMProvider       = (*OpenAIProvider)(nil)
	_ core.EmbeddingProvider = (*OpenAIProvider)(nil)
)

// OpenAIProvider talks to the OpenAI REST API for completions and embeddings.
type OpenAIProvider struct {
	client     *http.Client
	baseURL    string
	sharedKey  string
	embedModel string
	embedDims  int
}

type OpenAIConfig struct {
	SharedKey  string
	BaseURL    string // override for Azure/compatible APIs
	EmbedModel string
	Timeout    time.Duration
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = defaultOpenAIEmbed
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	dims, ok := openAIEmbedDims[cfg.EmbedModel]
	if !ok {
		dims = 1536
	}
	return &OpenAIProvider{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		sharedKey:  cfg.SharedKey,
		embedModel: cfg.EmbedModel,
		embedDims:  dims,
	}
}

func (p *OpenAIProvider) Name() string    { return ProviderOpenAI }
func (p *OpenAIProvider) Dimensions() int { return p.embedDims }

func (p *OpenAIProvider) key(apiKey string) (string, error) {
	if apiKey != "" {
		return apiKey, nil
	}
	if p.sharedKey != "" {
		return p.sharedKey, nil
	}
	return "", fmt.Errorf("%w: no openai credential", core.ErrInvalidCredentials)
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, req core.CompletionRequest) (core.CompletionResponse, error) {
	key, err := p.key(req.APIKey)
	if err != nil {
		return core.CompletionResponse{}, err
	}

	messages := make([]openAIChatMsg, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIChatMsg{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIChatMsg{Role: "user", Content: req.Prompt})

	var resp openAIChatResponse
	err = postJSON(ctx, p.client, p.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + key},
		openAIChatRequest{
			Model:       req.Model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}, &resp)
	if err != nil {
		return core.CompletionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return core.CompletionResponse{}, fmt.Errorf("%w: no choices returned", core.ErrProviderUnavailable)
	}

	return core.CompletionResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: core.CompletionUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *OpenAIProvider) EmbedTexts(ctx context.Context, texts []string, apiKey string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	key, err := p.key(apiKey)
	if err != nil {
		return nil, err
	}

	var resp openAIEmbedResponse
	err = postJSON(ctx, p.client, p.baseURL+"/embeddings",
		map[string]string{"Authorization": "Bearer " + key},
		openAIEmbedRequest{Model: p.embedModel, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", core.ErrProviderUnavailable, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", core.ErrProviderUnavailable, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

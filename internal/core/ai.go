package core

import "context"

// EmbeddingProvider maps texts to fixed-dimensionality vectors.
// An empty apiKey selects the operator's shared credential.
type EmbeddingProvider interface {
	Name() string
	Dimensions() int
	EmbedTexts(ctx context.Context, texts []string, apiKey string) ([][]float32, error)
}

// CompletionRequest carries one prompt to an LLM provider.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	APIKey      string // per-request override; empty means shared credential
	MaxTokens   int
	Temperature float64
}

// CompletionUsage reports token counts when the provider exposes them.
type CompletionUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is the provider-neutral completion result.
type CompletionResponse struct {
	Text  string
	Usage CompletionUsage
}

// LLMProvider is the uniform surface over hosted model backends.
// Implementations translate their provider's failure modes into the
// sentinel errors in errors.go.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

package llm

import (
	"fmt"

	"github.com/jobfitai/jobfit-api/internal/config"
	"github.com/jobfitai/jobfit-api/internal/core"
)

// Registry maps provider IDs to their implementations. The orchestrator
// never branches on provider identity outside these lookups.
type Registry struct {
	llms      map[string]core.LLMProvider
	embedders map[string]core.EmbeddingProvider
	catalog   []ModelInfo
	shared    map[string]string
}

// NewRegistry wires every supported provider from config. Providers with no
// operator credential are still registered; calls through them require a
// personal key.
func NewRegistry(cfg *config.Config) *Registry {
	gemini := NewGeminiProvider(cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	openai := NewOpenAIProvider(OpenAIConfig{SharedKey: cfg.OpenAIAPIKey, Timeout: cfg.ProviderTimeout})
	anthropic := NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.ProviderTimeout)
	cohere := NewCohereProvider(cfg.CohereAPIKey, cfg.ProviderTimeout)

	return &Registry{
		llms: map[string]core.LLMProvider{
			ProviderGoogle:    gemini,
			ProviderOpenAI:    openai,
			ProviderAnthropic: anthropic,
			ProviderCohere:    cohere,
		},
		embedders: map[string]core.EmbeddingProvider{
			ProviderGoogle: gemini,
			ProviderOpenAI: openai,
		},
		catalog: DefaultCatalog,
		shared: map[string]string{
			ProviderGoogle:    cfg.GeminiAPIKey,
			ProviderOpenAI:    cfg.OpenAIAPIKey,
			ProviderAnthropic: cfg.AnthropicAPIKey,
			ProviderCohere:    cfg.CohereAPIKey,
		},
	}
}

// NewRegistryFrom builds a registry from explicit maps. Used by tests and
// by any caller that wants to stub a provider.
func NewRegistryFrom(llms map[string]core.LLMProvider, embedders map[string]core.EmbeddingProvider, catalog []ModelInfo, shared map[string]string) *Registry {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	if shared == nil {
		shared = map[string]string{}
	}
	return &Registry{llms: llms, embedders: embedders, catalog: catalog, shared: shared}
}

func (r *Registry) LLM(providerID string) (core.LLMProvider, error) {
	p, ok := r.llms[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", providerID)
	}
	return p, nil
}

func (r *Registry) Embedder(providerID string) (core.EmbeddingProvider, error) {
	p, ok := r.embedders[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q", providerID)
	}
	return p, nil
}

func (r *Registry) Catalog() []ModelInfo { return r.catalog }

// Credential resolves the API key for one (provider, model, userKey) triple
// against the catalog and the operator's shared credentials.
func (r *Registry) Credential(providerID, modelID, userKey string) (string, error) {
	return ResolveAPIKey(r.catalog, providerID, modelID, userKey, r.shared[providerID])
}

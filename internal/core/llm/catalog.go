package llm

import (
	"fmt"

	"github.com/jobfitai/jobfit-api/internal/core"
)

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	IsFree   bool   `json:"is_free"`
}

// DefaultCatalog is the model menu exposed to callers. Gemini models run on
// the operator's shared credential; everything else needs a personal key.
var DefaultCatalog = []ModelInfo{
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: ProviderGoogle, IsFree: true},
	{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", Provider: ProviderGoogle, IsFree: true},
	{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Provider: ProviderGoogle, IsFree: true},
	{ID: "gemini-1.5-flash-8b", Name: "Gemini 1.5 Flash-8B", Provider: ProviderGoogle, IsFree: true},
	{ID: "gpt-4o", Name: "GPT-4o", Provider: ProviderOpenAI},
	{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: ProviderOpenAI},
	{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Provider: ProviderOpenAI},
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: ProviderOpenAI},
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Provider: ProviderAnthropic},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", Provider: ProviderAnthropic},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", Provider: ProviderAnthropic},
	{ID: "command-r-plus-08-2024", Name: "Command R+", Provider: ProviderCohere},
	{ID: "command-r-08-2024", Name: "Command R", Provider: ProviderCohere},
}

// LookupModel finds modelID under providerID in the catalog.
func LookupModel(catalog []ModelInfo, providerID, modelID string) (ModelInfo, error) {
	for _, m := range catalog {
		if m.Provider == providerID && m.ID == modelID {
			return m, nil
		}
	}
	return ModelInfo{}, fmt.Errorf("%w: %s/%s", core.ErrModelNotFound, providerID, modelID)
}

// ResolveAPIKey picks the credential for one provider call. A personal key
// always wins; without one only free-tier models may ride the operator's
// shared credential. The decision is made before any network call so that a
// keyless request for a paid model fails fast.
func ResolveAPIKey(catalog []ModelInfo, providerID, modelID, userKey, sharedKey string) (string, error) {
	model, err := LookupModel(catalog, providerID, modelID)
	if err != nil {
		return "", err
	}
	if userKey != "" {
		return userKey, nil
	}
	if !model.IsFree {
		return "", fmt.Errorf("%w: model %s requires a personal API key", core.ErrInvalidCredentials, modelID)
	}
	if sharedKey == "" {
		return "", fmt.Errorf("%w: no shared credential configured for %s", core.ErrInvalidCredentials, providerID)
	}
	return sharedKey, nil
}

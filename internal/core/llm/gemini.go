package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jobfitai/jobfit-api/internal/core"
)

const ProviderGoogle = "google"

var (
	_ core.LLMProvider       = (*GeminiProvider)(nil)
	_ core.EmbeddingProvider = (*GeminiProvider)(nil)
)

// GeminiProvider serves both the completion and embedding capability sets
// through the genai SDK. The SDK binds a credential at client construction,
// so a per-request personal key gets its own short-lived client.
type GeminiProvider struct {
	sharedKey  string
	embedModel string
	embedDims  int
}

func NewGeminiProvider(sharedKey, embedModel string, embedDims int) *GeminiProvider {
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	if embedDims <= 0 {
		embedDims = 768
	}
	return &GeminiProvider{sharedKey: sharedKey, embedModel: embedModel, embedDims: embedDims}
}

func (g *GeminiProvider) Name() string    { return ProviderGoogle }
func (g *GeminiProvider) Dimensions() int { return g.embedDims }

func (g *GeminiProvider) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	key := apiKey
	if key == "" {
		key = g.sharedKey
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no gemini credential", core.ErrInvalidCredentials)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, classifyGenai(err)
	}
	return cl, nil
}

// EmbedTexts batches all texts in one request via BatchEmbedContents.
func (g *GeminiProvider) EmbedTexts(ctx context.Context, texts []string, apiKey string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	cl, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	em := cl.EmbeddingModel(g.embedModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classifyGenai(err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

func (g *GeminiProvider) Complete(ctx context.Context, req core.CompletionRequest) (core.CompletionResponse, error) {
	cl, err := g.client(ctx, req.APIKey)
	if err != nil {
		return core.CompletionResponse{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(req.Model)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.MaxTokens > 0 {
		mt := int32(req.MaxTokens)
		m.MaxOutputTokens = &mt
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		m.Temperature = &temp
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return core.CompletionResponse{}, classifyGenai(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return core.CompletionResponse{}, fmt.Errorf("%w: empty candidates", core.ErrProviderUnavailable)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	out := core.CompletionResponse{Text: b.String()}
	if resp.UsageMetadata != nil {
		out.Usage = core.CompletionUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func classifyGenai(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", classifyStatus(apiErr.Code), err)
	}
	return classifyTransport(err)
}

package retrieval

import (
	"context"
	"fmt"

	"github.com/jobfitai/jobfit-api/internal/core"
)

// DefaultTopK bounds how many resume chunks back one analysis.
const DefaultTopK = 6

// Engine answers "which resume chunks are most relevant to this job
// description" by embedding the query and searching the vector store.
type Engine struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
}

func NewEngine(embedder core.EmbeddingProvider, store core.VectorStore) *Engine {
	return &Engine{embedder: embedder, store: store}
}

// Retrieve embeds queryText and returns up to topK chunks of documentID,
// similarity-descending. Documents with fewer chunks return all of them.
func (e *Engine) Retrieve(ctx context.Context, queryText, documentID string, topK int, apiKey string) ([]core.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := e.embedder.EmbedTexts(ctx, []string{queryText}, apiKey)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: %w: empty embedding", core.ErrProviderUnavailable)
	}

	chunks, err := e.store.Query(ctx, documentID, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return chunks, nil
}

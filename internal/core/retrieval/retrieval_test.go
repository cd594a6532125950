package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/core/vectorstore"
)

// stubEmbedder returns canned vectors per input text.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 3 }

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string, _ string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func TestRetrieveOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "doc", []core.ChunkVector{
		{SequenceIndex: 0, Text: "cooking hobby", Vector: []float32{0, 1, 0}},
		{SequenceIndex: 1, Text: "python aws experience", Vector: []float32{1, 0, 0}},
		{SequenceIndex: 2, Text: "misc", Vector: []float32{0.5, 0.5, 0}},
	}))

	eng := NewEngine(&stubEmbedder{vectors: map[string][]float32{
		"python aws job": {1, 0, 0},
	}}, store)

	got, err := eng.Retrieve(ctx, "python aws job", "doc", 2, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "python aws experience", got[0].Text)
	assert.True(t, got[0].Score >= got[1].Score)
}

func TestRetrieveReturnsAllWhenFewerThanTopK(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "doc", []core.ChunkVector{
		{SequenceIndex: 0, Text: "only chunk", Vector: []float32{1, 0, 0}},
	}))

	eng := NewEngine(&stubEmbedder{vectors: map[string][]float32{}}, store)

	got, err := eng.Retrieve(ctx, "whatever", "doc", 8, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRetrieveNeverExceedsTopK(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	chunks := make([]core.ChunkVector, 20)
	for i := range chunks {
		chunks[i] = core.ChunkVector{SequenceIndex: i, Text: "c", Vector: []float32{1, 0, float32(i)}}
	}
	require.NoError(t, store.Put(ctx, "doc", chunks))

	eng := NewEngine(&stubEmbedder{vectors: map[string][]float32{}}, store)

	got, err := eng.Retrieve(ctx, "q", "doc", 0, "")
	require.NoError(t, err)
	assert.Len(t, got, DefaultTopK)
}

func TestRetrievePropagatesEmbedError(t *testing.T) {
	eng := NewEngine(&stubEmbedder{err: core.ErrProviderUnavailable}, vectorstore.NewMemoryStore())

	_, err := eng.Retrieve(context.Background(), "q", "doc", 3, "")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}

package vectorstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobfitai/jobfit-api/internal/core"
)

func vecs(vals ...[]float32) []core.ChunkVector {
	out := make([]core.ChunkVector, len(vals))
	for i, v := range vals {
		out[i] = core.ChunkVector{SequenceIndex: i, Text: "chunk", Vector: v}
	}
	return out
}

func TestMemoryStoreQueryRanksBySimilarity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "doc", vecs(
		[]float32{1, 0, 0},
		[]float32{0, 1, 0},
		[]float32{0.9, 0.1, 0},
	)))

	got, err := s.Query(ctx, "doc", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].SequenceIndex)
	assert.Equal(t, 2, got[1].SequenceIndex)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestMemoryStorePutIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	chunks := vecs([]float32{1, 0}, []float32{0, 1})

	require.NoError(t, s.Put(ctx, "doc", chunks))
	require.NoError(t, s.Put(ctx, "doc", chunks))

	got, err := s.Query(ctx, "doc", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStorePutOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "doc", []core.ChunkVector{
		{SequenceIndex: 0, Text: "old", Vector: []float32{1, 0}},
	}))
	require.NoError(t, s.Put(ctx, "doc", []core.ChunkVector{
		{SequenceIndex: 0, Text: "new", Vector: []float32{1, 0}},
	}))

	got, err := s.Query(ctx, "doc", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)
}

func TestMemoryStoreTieBreakBySequenceIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Identical vectors score identically; order must follow sequence index.
	require.NoError(t, s.Put(ctx, "doc", []core.ChunkVector{
		{SequenceIndex: 3, Text: "c3", Vector: []float32{1, 1}},
		{SequenceIndex: 1, Text: "c1", Vector: []float32{1, 1}},
		{SequenceIndex: 2, Text: "c2", Vector: []float32{1, 1}},
	}))

	got, err := s.Query(ctx, "doc", []float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].SequenceIndex, got[1].SequenceIndex, got[2].SequenceIndex})
}

func TestMemoryStoreTopKBounds(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "doc", vecs([]float32{1, 0}, []float32{0, 1})))

	got, err := s.Query(ctx, "doc", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2, "fewer chunks than topK returns all")

	got, err = s.Query(ctx, "other-doc", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			doc := []string{"a", "b"}[w%2]
			for i := 0; i < 50; i++ {
				_ = s.Put(ctx, doc, vecs([]float32{1, 0}, []float32{0, 1}))
				_, _ = s.Query(ctx, doc, []float32{1, 0}, 2)
			}
		}(w)
	}
	wg.Wait()

	got, err := s.Query(ctx, "a", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jobfitai/jobfit-api/internal/core"
)

var _ core.VectorStore = (*MemoryStore)(nil)

// MemoryStore is a brute-force cosine-similarity store for development and
// tests. Chunks are keyed by (documentID, sequenceIndex), so re-putting a
// document overwrites instead of duplicating.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[int]core.ChunkVector
	locks docLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[int]core.ChunkVector)}
}

func (s *MemoryStore) Put(ctx context.Context, documentID string, chunks []core.ChunkVector) error {
	if documentID == "" {
		return fmt.Errorf("empty document id")
	}

	// One writer per document; readers of other documents are unaffected.
	unlock := s.locks.lock(documentID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		doc = make(map[int]core.ChunkVector, len(chunks))
		s.docs[documentID] = doc
	}
	for _, ch := range chunks {
		doc[ch.SequenceIndex] = ch
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, documentID string, vector []float32, topK int) ([]core.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 6
	}

	s.mu.RLock()
	doc := s.docs[documentID]
	scored := make([]core.ScoredChunk, 0, len(doc))
	for _, ch := range doc {
		scored = append(scored, core.ScoredChunk{
			SequenceIndex: ch.SequenceIndex,
			Text:          ch.Text,
			Score:         Cosine(vector, ch.Vector),
		})
	}
	s.mu.RUnlock()

	// Similarity descending; equal scores keep document order.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].SequenceIndex < scored[j].SequenceIndex
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Cosine returns the cosine similarity of a and b, 0 for degenerate input.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// docLocks hands out one mutex per document ID.
type docLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *docLocks) lock(documentID string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	dm, ok := l.m[documentID]
	if !ok {
		dm = &sync.Mutex{}
		l.m[documentID] = dm
	}
	l.mu.Unlock()

	dm.Lock()
	return dm.Unlock
}

package vectorstore

import (
	"context"
	"time"

	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/models"
)

var _ core.VectorStore = (*PgStore)(nil)

// PgStore backs the VectorStore interface with the pgvector column managed
// by the database client. The upsert in UpsertDocumentChunks is keyed on
// (document_id, sequence_index), giving Put its idempotency; the per-doc
// lock keeps a concurrent Query from seeing a half-written chunk set while
// a transaction is still open.
type PgStore struct {
	db    core.DbClient
	locks docLocks
}

func NewPgStore(db core.DbClient) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Put(ctx context.Context, documentID string, chunks []core.ChunkVector) error {
	unlock := s.locks.lock(documentID)
	defer unlock()

	rows := make([]models.DocumentChunk, 0, len(chunks))
	now := time.Now()
	for _, ch := range chunks {
		rows = append(rows, models.DocumentChunk{
			DocumentID:    documentID,
			SequenceIndex: ch.SequenceIndex,
			Text:          ch.Text,
			Embedding:     ch.Vector,
			VectorDims:    len(ch.Vector),
			CreatedAt:     now,
		})
	}
	return s.db.UpsertDocumentChunks(ctx, rows)
}

func (s *PgStore) Query(ctx context.Context, documentID string, vector []float32, topK int) ([]core.ScoredChunk, error) {
	if topK <= 0 {
		topK = 6
	}
	rows, err := s.db.SearchDocumentChunks(ctx, documentID, vector, topK)
	if err != nil {
		return nil, err
	}

	out := make([]core.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.ScoredChunk{
			SequenceIndex: r.SequenceIndex,
			Text:          r.Text,
			Score:         Cosine(vector, r.Embedding),
		})
	}
	return out, nil
}

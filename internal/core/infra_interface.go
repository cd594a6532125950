package core

import (
	"context"
	"time"

	"github.com/jobfitai/jobfit-api/internal/models"
)

// ChunkVector is one embedded chunk handed to a vector store.
type ChunkVector struct {
	SequenceIndex int
	Text          string
	Vector        []float32
}

// ScoredChunk is a retrieval hit ranked by cosine similarity.
type ScoredChunk struct {
	SequenceIndex int
	Text          string
	Score         float64
}

// VectorStore persists chunk vectors per document and answers
// nearest-neighbour queries. Put is idempotent on
// (documentID, sequenceIndex) and holds a per-document write lock so a
// concurrent Query never observes a partial chunk set. Ties in Query are
// broken by ascending sequence index.
type VectorStore interface {
	Put(ctx context.Context, documentID string, chunks []ChunkVector) error
	Query(ctx context.Context, documentID string, vector []float32, topK int) ([]ScoredChunk, error)
}

// DocumentExtractor turns raw upload bytes into normalized text plus a
// sha256 content hash of that text.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (text string, contentHash string, err error)
}

// DbClient defines all persistence operations the service needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByHash(ctx context.Context, ownerID, contentHash string) (*models.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	DeleteDocumentsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	UpsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	CreateAnalysisRun(ctx context.Context, runID, requestID, documentID string, startedAt time.Time) error
	FinishAnalysisRun(ctx context.Context, runID, status string, result *models.AnalysisResult, finishedAt time.Time) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jobfitai/jobfit-api/internal/config"
	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, now()), COALESCE($5, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, owner_id, file_name, mime_type, byte_size, content_hash, extracted_text, storage_url, created_at)
		VALUES
			($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.OwnerID, doc.FileName, doc.MimeType, doc.ByteSize,
		doc.ContentHash, doc.ExtractedText, doc.StorageURL, doc.CreatedAt)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, COALESCE(owner_id::text, ''), file_name, mime_type, byte_size, content_hash, extracted_text, storage_url, created_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.OwnerID, &d.FileName, &d.MimeType, &d.ByteSize, &d.ContentHash, &d.ExtractedText, &d.StorageURL, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByHash(ctx context.Context, ownerID, contentHash string) (*models.Document, error) {
	const q = `
		SELECT id, COALESCE(owner_id::text, ''), file_name, mime_type, byte_size, content_hash, extracted_text, storage_url, created_at
		FROM documents
		WHERE (owner_id::text = $1 OR ($1 = '' AND owner_id IS NULL)) AND content_hash = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, ownerID, contentHash).Scan(
		&d.ID, &d.OwnerID, &d.FileName, &d.MimeType, &d.ByteSize, &d.ContentHash, &d.ExtractedText, &d.StorageURL, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	const q = `
		SELECT id, COALESCE(owner_id::text, ''), file_name, mime_type, byte_size, content_hash, storage_url, created_at
		FROM documents
		WHERE owner_id::text = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.FileName, &d.MimeType, &d.ByteSize, &d.ContentHash, &d.StorageURL, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocumentsOlderThan is the retention purge. Orphaned chunk sets are
// removed in the same transaction so retrieval never sees a hash whose
// document rows are gone.
func (c *DatabaseClient) DeleteDocumentsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE created_at < $1`, cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	n, _ := res.RowsAffected()

	const orphans = `
		DELETE FROM document_chunks ch
		WHERE NOT EXISTS (
			SELECT 1 FROM documents d WHERE d.content_hash = ch.document_id
		)
	`
	if _, err := tx.ExecContext(ctx, orphans); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return n, tx.Commit()
}

// Document chunks

// UpsertDocumentChunks writes a chunk set in one transaction, replacing any
// chunk that already exists at the same (document_id, sequence_index).
func (c *DatabaseClient) UpsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(document_id, sequence_index, text, embedding, vector_dims, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		ON CONFLICT (document_id, sequence_index) DO UPDATE
		SET text = EXCLUDED.text, embedding = EXCLUDED.embedding, vector_dims = EXCLUDED.vector_dims
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.DocumentID, ch.SequenceIndex, ch.Text, vec, len(ch.Embedding), ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchDocumentChunks finds the top-k most similar chunks within a chunk
// set for a query embedding. Cosine distance ascending, ties broken by
// sequence index.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT document_id, sequence_index, text, embedding, vector_dims
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY embedding <=> $2 ASC, sequence_index ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.DocumentID, &ch.SequenceIndex, &ch.Text, &emb, &ch.VectorDims); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Analysis runs

func (c *DatabaseClient) CreateAnalysisRun(ctx context.Context, runID, requestID, documentID string, startedAt time.Time) error {
	const q = `
		INSERT INTO analysis_runs (id, request_id, document_id, status, started_at)
		VALUES ($1, $2, $3, 'running', COALESCE($4, now()))
	`
	_, err := c.db.ExecContext(ctx, q, runID, requestID, documentID, startedAt)
	return err
}

func (c *DatabaseClient) FinishAnalysisRun(ctx context.Context, runID, status string, result *models.AnalysisResult, finishedAt time.Time) error {
	var payload []byte
	if result != nil {
		var err error
		payload, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}
	const q = `
		UPDATE analysis_runs
		SET status = $2, result = $3, finished_at = COALESCE($4, now())
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, runID, status, payload, finishedAt)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("analysis run not found: %s", runID)
	}
	return nil
}

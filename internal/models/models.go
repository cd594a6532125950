package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded resume after text extraction.
// Immutable once extracted; removal is handled by the retention purge job.
type Document struct {
	ID            string    `db:"id" json:"id"`
	OwnerID       string    `db:"owner_id" json:"owner_id"`
	FileName      string    `db:"file_name" json:"file_name"`
	MimeType      string    `db:"mime_type" json:"mime_type"`
	ByteSize      int64     `db:"byte_size" json:"byte_size"`
	ContentHash   string    `db:"content_hash" json:"content_hash"` // sha256 of the extracted text
	ExtractedText string    `db:"extracted_text" json:"-"`
	StorageURL    string    `db:"storage_url" json:"storage_url,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DocumentChunk is one fixed-window slice of a document's text plus its embedding.
type DocumentChunk struct {
	DocumentID    string    `db:"document_id" json:"document_id"`
	SequenceIndex int       `db:"sequence_index" json:"sequence_index"`
	Text          string    `db:"text" json:"text"`
	Embedding     []float32 `db:"embedding" json:"-"` // pgvector column
	VectorDims    int       `db:"vector_dims" json:"vector_dims"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AnalysisRequest captures one caller submission. Immutable; drives one run.
type AnalysisRequest struct {
	ID                 string `json:"id"`
	ResumeDocumentID   string `json:"resume_document_id"`
	JobDescriptionText string `json:"job_description_text"`
	ProviderID         string `json:"provider_id"`
	ModelID            string `json:"model_id"`
	UserSuppliedAPIKey string `json:"-"`
}

// AnalysisResult is the final, all-or-nothing output of a completed run.
type AnalysisResult struct {
	FitScore            int       `json:"fit_score"`
	Strengths           []string  `json:"strengths"`
	Gaps                []string  `json:"gaps"`
	Suggestions         []string  `json:"suggestions"`
	KeywordGaps         []string  `json:"keyword_gaps"`
	TailoredResumeText  string    `json:"tailored_resume"`
	ProviderID          string    `json:"provider_id"`
	ModelID             string    `json:"model_id"`
	GeneratedAt         time.Time `json:"generated_at"`
}

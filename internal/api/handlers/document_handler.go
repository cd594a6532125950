package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mw "github.com/jobfitai/jobfit-api/internal/api/middlewares"
	"github.com/jobfitai/jobfit-api/internal/api/response"
	"github.com/jobfitai/jobfit-api/internal/config"
	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/models"
)

type DocumentHandler struct {
	dbclient     core.DbClient
	objectclient core.ObjectClient // optional; nil disables archival
	extractor    core.DocumentExtractor
	cfg          *config.Config
	logger       *zap.Logger
}

func NewDocumentHandler(dbclient core.DbClient, objectclient core.ObjectClient, extractor core.DocumentExtractor, cfg *config.Config, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, objectclient: objectclient, extractor: extractor, cfg: cfg, logger: logger}
}

// ParseDocument extracts text from an uploaded resume without running an
// analysis. Lets the UI show the extracted text before the user commits.
func (h *DocumentHandler) ParseDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid multipart form", nil)
		return
	}

	userID, ok := mw.UserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "user not found in context", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "a file field is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "could not read upload", nil)
		return
	}
	if len(data) > maxUploadBytes {
		response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Sprintf("file exceeds %d bytes", maxUploadBytes), nil)
		return
	}

	contentType := header.Header.Get("Content-Type")
	text, hash, err := h.extractor.Extract(r.Context(), data, contentType)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUnsupportedFormat):
			response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", "this file type is not supported", nil)
		default:
			response.Error(w, http.StatusUnprocessableEntity, "EXTRACTION_FAILED", "could not extract text from the file", nil)
		}
		return
	}

	doc := &models.Document{
		ID:            uuid.NewString(),
		OwnerID:       userID,
		FileName:      header.Filename,
		MimeType:      contentType,
		ByteSize:      int64(len(data)),
		ContentHash:   hash,
		ExtractedText: text,
		CreatedAt:     time.Now(),
	}

	if h.objectclient != nil {
		key := fmt.Sprintf("%s/%s/%s", userID, doc.ID, filepath.Base(header.Filename))
		uploadCtx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()
		url, err := h.objectclient.UploadFile(uploadCtx, h.cfg.BucketName, key, data, contentType)
		if err != nil {
			h.logger.Warn("archive upload", zap.String("document_id", doc.ID), zap.Error(err))
		} else {
			doc.StorageURL = url
		}
	}

	if err := h.dbclient.CreateDocument(r.Context(), doc); err != nil {
		h.logger.Error("persist document", zap.String("document_id", doc.ID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "failed to store document metadata", nil)
		return
	}

	response.Created(w, map[string]any{
		"document":       doc,
		"extracted_text": text,
	})
}

// ListDocuments returns the caller's parsed documents, newest first.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "user not found in context", nil)
		return
	}

	documents, err := h.dbclient.ListDocumentsByOwner(r.Context(), userID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "failed to list documents", nil)
		return
	}
	if documents == nil {
		documents = []models.Document{}
	}
	response.JSON(w, documents)
}

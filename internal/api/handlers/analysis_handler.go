package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	mw "github.com/jobfitai/jobfit-api/internal/api/middlewares"
	"github.com/jobfitai/jobfit-api/internal/api/response"
	"github.com/jobfitai/jobfit-api/internal/config"
	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/core/pipeline"
)

const maxUploadBytes = 20 << 20 // 20 MB

// RunStatusReader answers status polls for runs this process no longer
// holds, from the Redis mirror.
type RunStatusReader interface {
	GetRunStatus(ctx context.Context, runID string) (string, bool)
}

type AnalysisHandler struct {
	orch   *pipeline.Orchestrator
	status RunStatusReader // optional
	cfg    *config.Config
	logger *zap.Logger
}

func NewAnalysisHandler(orch *pipeline.Orchestrator, status RunStatusReader, cfg *config.Config, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{orch: orch, status: status, cfg: cfg, logger: logger}
}

// Models lists the selectable models.
func (h *AnalysisHandler) Models(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.orch.Catalog())
}

// parseAnalyzeRequest accepts either a multipart form (resume file upload)
// or a JSON body (pasted resume text). Provider and model default from
// config when omitted.
func (h *AnalysisHandler) parseAnalyzeRequest(r *http.Request) (pipeline.Request, error) {
	var req pipeline.Request

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return req, fmt.Errorf("invalid multipart form")
		}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
			if err != nil {
				return req, fmt.Errorf("read upload: %v", err)
			}
			if len(data) > maxUploadBytes {
				return req, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
			}
			req.FileBytes = data
			req.FileName = header.Filename
			req.MimeType = header.Header.Get("Content-Type")
		}
		req.ResumeText = r.FormValue("resume_text")
		req.JobDescription = r.FormValue("job_description")
		req.ProviderID = r.FormValue("provider")
		req.ModelID = r.FormValue("model")
		req.APIKey = r.FormValue("api_key")
	} else {
		var body struct {
			ResumeText     string `json:"resume_text"`
			JobDescription string `json:"job_description"`
			Provider       string `json:"provider"`
			Model          string `json:"model"`
			APIKey         string `json:"api_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, fmt.Errorf("invalid JSON body")
		}
		req.ResumeText = body.ResumeText
		req.JobDescription = body.JobDescription
		req.ProviderID = body.Provider
		req.ModelID = body.Model
		req.APIKey = body.APIKey
	}

	if req.ProviderID == "" {
		req.ProviderID = h.cfg.DefaultProvider
	}
	if req.ModelID == "" {
		req.ModelID = h.cfg.DefaultModel
	}
	if userID, ok := mw.UserID(r); ok {
		req.OwnerID = userID
	}
	return req, nil
}

// Analyze runs the full pipeline synchronously and returns the result.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseAnalyzeRequest(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	run, err := h.orch.Start(r.Context(), req)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	result, err := run.Wait(r.Context())
	if err != nil {
		if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
			// Caller went away; let the run finish in the background.
			return
		}
		writePipelineError(w, err)
		return
	}
	response.JSON(w, map[string]any{"run_id": run.ID, "result": result})
}

// AnalyzeStream runs the pipeline and streams progress events over SSE.
// Closing the connection cancels the run.
func (h *AnalysisHandler) AnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseAnalyzeRequest(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported", nil)
		return
	}

	run, err := h.orch.Start(r.Context(), req)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := run.Subscribe()
	for {
		select {
		case <-r.Context().Done():
			run.Cancel()
			return
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("marshal progress event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// GetRun reports a run's current snapshot, including the result once the
// run has completed.
func (h *AnalysisHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, ok := h.orch.Get(runID)
	if !ok {
		// Another instance (or a previous process) may have run it; the
		// status mirror still answers.
		if h.status != nil {
			if status, found := h.status.GetRunStatus(r.Context(), runID); found {
				response.JSON(w, map[string]string{"id": runID, "overall_status": status})
				return
			}
		}
		response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "no run with this id", nil)
		return
	}
	response.JSON(w, run.Snapshot())
}

// CancelRun requests cancellation; the in-flight stage finishes, nothing
// further starts.
func (h *AnalysisHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, ok := h.orch.Get(runID)
	if !ok {
		response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "no run with this id", nil)
		return
	}
	run.Cancel()
	response.Accepted(w, map[string]string{"run_id": runID, "status": "cancelling"})
}

// writePipelineError maps the pipeline error taxonomy onto HTTP statuses.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrModelNotFound):
		response.Error(w, http.StatusNotFound, "MODEL_NOT_FOUND", "unknown provider or model", nil)
	case errors.Is(err, core.ErrInvalidCredentials):
		response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "this model requires a valid API key", nil)
	case errors.Is(err, core.ErrUnsupportedFormat):
		response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", "this file type is not supported", nil)
	case errors.Is(err, core.ErrExtractionFailed):
		response.Error(w, http.StatusUnprocessableEntity, "EXTRACTION_FAILED", "could not extract text from the resume", nil)
	case errors.Is(err, core.ErrRateLimited):
		response.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "the provider is rate limiting requests, try again shortly", nil)
	case errors.Is(err, core.ErrProviderUnavailable):
		response.Error(w, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "the AI provider is not available", nil)
	case errors.Is(err, core.ErrCancelled):
		response.Error(w, http.StatusConflict, "RUN_CANCELLED", "the analysis was cancelled", nil)
	default:
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	}
}

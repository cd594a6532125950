package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/core/chunker"
	"github.com/jobfitai/jobfit-api/internal/core/extract"
	"github.com/jobfitai/jobfit-api/internal/core/llm"
	"github.com/jobfitai/jobfit-api/internal/core/retrieval"
	"github.com/jobfitai/jobfit-api/internal/models"
)

// embedBatchSize bounds how many chunks go to the embedding provider per
// call; embedConcurrency bounds the in-flight batch requests.
const (
	embedBatchSize   = 16
	embedConcurrency = 4
)

// StatusSink mirrors run status transitions to a fast store (Redis) so
// status polls don't hit the run registry or the database.
type StatusSink interface {
	SetRunStatus(ctx context.Context, runID, status string)
	IsEmbedded(ctx context.Context, providerID, contentHash string) bool
	MarkEmbedded(ctx context.Context, providerID, contentHash string)
}

// Options tunes the orchestrator.
type Options struct {
	EmbedProviderID    string
	ChunkSize          int
	TopK               int
	MaxRetries         int // retries after the first attempt, for retryable errors
	BackoffBase        time.Duration
	ProviderTimeout    time.Duration
	FallbackProviderID string
	FallbackModelID    string
}

// Request is one caller submission: a resume (raw file or text), a job
// description and a model choice.
type Request struct {
	OwnerID        string
	FileBytes      []byte
	FileName       string
	MimeType       string
	ResumeText     string
	JobDescription string
	ProviderID     string
	ModelID        string
	APIKey         string
}

// Orchestrator drives the six-stage analysis pipeline and is the sole
// mutator of its runs. Independent runs execute concurrently; within a run
// the stages are strictly sequential.
type Orchestrator struct {
	registry  *llm.Registry
	extractor core.DocumentExtractor
	store     core.VectorStore
	db        core.DbClient // optional
	status    StatusSink    // optional
	logger    *zap.Logger
	opts      Options

	mu   sync.RWMutex
	runs map[string]*Run
}

func NewOrchestrator(registry *llm.Registry, extractor core.DocumentExtractor, store core.VectorStore, db core.DbClient, status StatusSink, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 45 * time.Second
	}
	if opts.EmbedProviderID == "" {
		opts.EmbedProviderID = llm.ProviderGoogle
	}
	return &Orchestrator{
		registry:  registry,
		extractor: extractor,
		store:     store,
		db:        db,
		status:    status,
		logger:    logger,
		opts:      opts,
		runs:      make(map[string]*Run),
	}
}

// Catalog exposes the registry's model menu.
func (o *Orchestrator) Catalog() []llm.ModelInfo {
	return o.registry.Catalog()
}

// Get returns a live or finished run by ID.
func (o *Orchestrator) Get(runID string) (*Run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.runs[runID]
	return r, ok
}

// Start validates the request, registers a run and executes it in the
// background. Subscribe/Wait on the returned run for progress.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Run, error) {
	if strings.TrimSpace(req.JobDescription) == "" {
		return nil, fmt.Errorf("job description is required")
	}
	if len(req.FileBytes) == 0 && strings.TrimSpace(req.ResumeText) == "" {
		return nil, fmt.Errorf("resume file or text is required")
	}
	if _, err := llm.LookupModel(o.registry.Catalog(), req.ProviderID, req.ModelID); err != nil {
		return nil, err
	}
	if _, err := o.registry.LLM(req.ProviderID); err != nil {
		return nil, err
	}

	run := newRun(uuid.NewString(), uuid.NewString())
	o.mu.Lock()
	o.runs[run.ID] = run
	o.mu.Unlock()

	o.setStatus(run.ID, string(RunRunning))
	if o.db != nil {
		if err := o.db.CreateAnalysisRun(ctx, run.ID, run.RequestID, "", time.Now()); err != nil {
			o.logger.Warn("persist run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	go o.execute(run, req)
	return run, nil
}

// runState carries intermediate stage outputs across the run. Reusing them
// is what lets a provider fallback restart analyze without recomputing the
// earlier stages.
type runState struct {
	resumeText   string
	contentHash  string
	documentID   string
	chunks       []string
	retrieved    []core.ScoredChunk
	analysis     analysisOutput
	usedProvider string
	usedModel    string
	evidence     int
	fitScore     int
	keywordGaps  []string
	result       *models.AnalysisResult
}

func (o *Orchestrator) execute(run *Run, req Request) {
	ctx := context.Background()
	current := StageParse

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in pipeline run", zap.String("run_id", run.ID), zap.Any("panic", r))
			o.fail(ctx, run, current, fmt.Errorf("internal error: %v", r))
		}
	}()

	state := &runState{usedProvider: req.ProviderID, usedModel: req.ModelID}
	steps := []struct {
		id StageID
		fn func(context.Context, *Run, *runState) error
	}{
		{StageParse, func(c context.Context, r *Run, s *runState) error { return o.parse(c, r, s, req) }},
		{StageEmbed, func(c context.Context, r *Run, s *runState) error { return o.embed(c, r, s, req) }},
		{StageRetrieve, func(c context.Context, r *Run, s *runState) error { return o.retrieve(c, r, s, req) }},
		{StageAnalyze, func(c context.Context, r *Run, s *runState) error { return o.analyze(c, r, s, req) }},
		{StageScore, func(c context.Context, r *Run, s *runState) error { return o.score(c, r, s, req) }},
		{StageGenerate, func(c context.Context, r *Run, s *runState) error { return o.generate(c, r, s, req) }},
	}

	for _, step := range steps {
		if run.isCancelled() {
			o.cancel(ctx, run)
			return
		}
		current = step.id
		run.setStage(step.id, StageRunning, 0, "")
		if err := step.fn(ctx, run, state); err != nil {
			run.setStage(step.id, StageError, run.Snapshot().stageProgress(step.id), err.Error())
			o.fail(ctx, run, step.id, err)
			return
		}
		run.setStage(step.id, StageCompleted, 100, "")
	}

	if run.isCancelled() {
		o.cancel(ctx, run)
		return
	}

	run.finish(RunCompleted, state.result, nil)
	o.setStatus(run.ID, string(RunCompleted))
	if o.db != nil {
		if err := o.db.FinishAnalysisRun(ctx, run.ID, string(RunCompleted), state.result, time.Now()); err != nil {
			o.logger.Warn("persist run result", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	o.logger.Info("run completed",
		zap.String("run_id", run.ID),
		zap.Int("fit_score", state.result.FitScore),
		zap.String("provider", state.result.ProviderID))
}

func (s RunSnapshot) stageProgress(id StageID) int {
	for _, st := range s.Stages {
		if st.ID == id {
			return st.Progress
		}
	}
	return 0
}

func (o *Orchestrator) fail(ctx context.Context, run *Run, stage StageID, err error) {
	run.finish(RunFailed, nil, fmt.Errorf("stage %s: %w", stage, err))
	o.setStatus(run.ID, string(RunFailed))
	if o.db != nil {
		_ = o.db.FinishAnalysisRun(ctx, run.ID, string(RunFailed), nil, time.Now())
	}
	o.logger.Warn("run failed", zap.String("run_id", run.ID), zap.String("stage", string(stage)), zap.Error(err))
}

func (o *Orchestrator) cancel(ctx context.Context, run *Run) {
	run.finish(RunCancelled, nil, core.ErrCancelled)
	o.setStatus(run.ID, string(RunCancelled))
	if o.db != nil {
		_ = o.db.FinishAnalysisRun(ctx, run.ID, string(RunCancelled), nil, time.Now())
	}
	o.logger.Info("run cancelled", zap.String("run_id", run.ID))
}

func (o *Orchestrator) setStatus(runID, status string) {
	if o.status != nil {
		o.status.SetRunStatus(context.Background(), runID, status)
	}
}

// parse extracts text and the content hash from the submitted resume.
func (o *Orchestrator) parse(ctx context.Context, run *Run, state *runState, req Request) error {
	if req.ResumeText != "" {
		text := strings.TrimSpace(strings.ReplaceAll(req.ResumeText, "\r\n", "\n"))
		if text == "" {
			return fmt.Errorf("%w: empty resume text", core.ErrExtractionFailed)
		}
		state.resumeText = text
		state.contentHash = extract.HashText(text)
	} else {
		text, hash, err := o.extractor.Extract(ctx, req.FileBytes, req.MimeType)
		if err != nil {
			return err
		}
		state.resumeText = text
		state.contentHash = hash
	}
	run.setStage(StageParse, StageRunning, 80, "")

	// The vector store is keyed by content hash so identical resumes share
	// one chunk set regardless of upload container.
	state.documentID = state.contentHash

	if o.db != nil {
		doc := &models.Document{
			ID:            uuid.NewString(),
			OwnerID:       req.OwnerID,
			FileName:      req.FileName,
			MimeType:      req.MimeType,
			ByteSize:      int64(len(req.FileBytes)),
			ContentHash:   state.contentHash,
			ExtractedText: state.resumeText,
			CreatedAt:     time.Now(),
		}
		existing, err := o.db.GetDocumentByHash(ctx, req.OwnerID, state.contentHash)
		if err == nil && existing == nil {
			if err := o.db.CreateDocument(ctx, doc); err != nil {
				o.logger.Warn("persist document", zap.Error(err))
			}
		}
	}
	return nil
}

// embed chunks the resume and writes chunk vectors to the store. When the
// cache says this (provider, hash) pair was already embedded into a
// persistent store, the provider round trip is skipped.
func (o *Orchestrator) embed(ctx context.Context, run *Run, state *runState, req Request) error {
	state.chunks = chunker.Split(state.resumeText, o.opts.ChunkSize)
	if len(state.chunks) == 0 {
		return fmt.Errorf("%w: no chunks produced", core.ErrExtractionFailed)
	}

	if o.status != nil && o.db != nil && o.status.IsEmbedded(ctx, o.opts.EmbedProviderID, state.contentHash) {
		o.logger.Debug("embedding cache hit", zap.String("content_hash", state.contentHash))
		return nil
	}

	embedder, err := o.registry.Embedder(o.opts.EmbedProviderID)
	if err != nil {
		return err
	}
	apiKey := o.embedAPIKey(req)

	// Batches embed concurrently; vector slots are preallocated per chunk
	// so no two goroutines touch the same index.
	vectors := make([]core.ChunkVector, len(state.chunks))
	var (
		mu       sync.Mutex
		embedded int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(state.chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(state.chunks) {
			end = len(state.chunks)
		}
		start, end := start, end
		batch := state.chunks[start:end]

		g.Go(func() error {
			var out [][]float32
			err := o.withRetry(gctx, run, StageEmbed, func(c context.Context) error {
				var eerr error
				out, eerr = embedder.EmbedTexts(c, batch, apiKey)
				return eerr
			})
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			if len(out) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d chunks", core.ErrProviderUnavailable, len(out), len(batch))
			}
			for i, vec := range out {
				vectors[start+i] = core.ChunkVector{SequenceIndex: start + i, Text: batch[i], Vector: vec}
			}

			// Progress is emitted under mu so it never moves backwards.
			mu.Lock()
			embedded += len(batch)
			run.setStage(StageEmbed, StageRunning, embedded*90/len(state.chunks), "")
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := o.store.Put(ctx, state.documentID, vectors); err != nil {
		return fmt.Errorf("store vectors: %w", err)
	}
	if o.status != nil && o.db != nil {
		o.status.MarkEmbedded(ctx, o.opts.EmbedProviderID, state.contentHash)
	}
	return nil
}

// embedAPIKey forwards the caller's key to the embedder only when the
// caller selected the same provider the embedder runs on.
func (o *Orchestrator) embedAPIKey(req Request) string {
	if req.ProviderID == o.opts.EmbedProviderID {
		return req.APIKey
	}
	return ""
}

func (o *Orchestrator) retrieve(ctx context.Context, run *Run, state *runState, req Request) error {
	embedder, err := o.registry.Embedder(o.opts.EmbedProviderID)
	if err != nil {
		return err
	}
	engine := retrieval.NewEngine(embedder, o.store)

	var chunks []core.ScoredChunk
	err = o.withRetry(ctx, run, StageRetrieve, func(c context.Context) error {
		var rerr error
		chunks, rerr = engine.Retrieve(c, req.JobDescription, state.documentID, o.opts.TopK, o.embedAPIKey(req))
		return rerr
	})
	if err != nil {
		return err
	}
	state.retrieved = chunks
	return nil
}

// analyze asks the selected model to critique the fit. Retryable failures
// back off up to MaxRetries; once the primary is exhausted a configured
// fallback pair restarts this stage only, reusing all earlier outputs.
func (o *Orchestrator) analyze(ctx context.Context, run *Run, state *runState, req Request) error {
	candidates := []struct{ provider, model, userKey string }{
		{req.ProviderID, req.ModelID, req.APIKey},
	}
	if o.opts.FallbackProviderID != "" && !(o.opts.FallbackProviderID == req.ProviderID && o.opts.FallbackModelID == req.ModelID) {
		candidates = append(candidates, struct{ provider, model, userKey string }{
			o.opts.FallbackProviderID, o.opts.FallbackModelID, "",
		})
	}

	chunkTexts := make([]string, len(state.retrieved))
	for i, c := range state.retrieved {
		chunkTexts[i] = c.Text
	}
	prompt := buildAnalysisPrompt(chunkTexts, req.JobDescription)

	var lastErr error
	for i, cand := range candidates {
		if i > 0 {
			// Fallback restart: analyze re-enters running, nothing else reruns.
			o.logger.Info("analyze fallback",
				zap.String("run_id", run.ID),
				zap.String("provider", cand.provider),
				zap.String("model", cand.model))
			run.setStage(StageAnalyze, StageRunning, 0, "")
		}

		// Credential and lookup failures abort the run; falling back on
		// them would silently swap the caller's model choice.
		apiKey, err := o.registry.Credential(cand.provider, cand.model, cand.userKey)
		if err != nil {
			return err
		}
		provider, err := o.registry.LLM(cand.provider)
		if err != nil {
			return err
		}

		var resp core.CompletionResponse
		err = o.withRetry(ctx, run, StageAnalyze, func(c context.Context) error {
			var cerr error
			resp, cerr = provider.Complete(c, core.CompletionRequest{
				Model:       cand.model,
				System:      rolePrompt,
				Prompt:      prompt,
				APIKey:      apiKey,
				Temperature: 0.3,
			})
			return cerr
		})
		if err == nil {
			state.analysis = parseAnalysis(resp.Text)
			state.usedProvider = cand.provider
			state.usedModel = cand.model
			return nil
		}
		lastErr = err
		if !core.Retryable(err) {
			// Credential and configuration errors are not fallback material.
			return err
		}
	}
	return lastErr
}

// score derives the fit score from keyword evidence and the model's own
// assessment. Runs locally, no provider call.
func (o *Orchestrator) score(_ context.Context, run *Run, state *runState, req Request) error {
	keywords := Keywords(req.JobDescription)
	evidence, gaps := EvidenceScore(state.resumeText, keywords)
	run.setStage(StageScore, StageRunning, 60, "")

	state.evidence = evidence
	state.keywordGaps = gaps
	state.fitScore = BlendScore(state.analysis.ModelScore, evidence)
	return nil
}

// generate produces the tailored resume and assembles the final result.
func (o *Orchestrator) generate(ctx context.Context, run *Run, state *runState, req Request) error {
	// The personal key belongs to the provider the caller chose; after a
	// fallback switch it must not leak to the fallback provider.
	userKey := req.APIKey
	if state.usedProvider != req.ProviderID {
		userKey = ""
	}
	apiKey, err := o.registry.Credential(state.usedProvider, state.usedModel, userKey)
	if err != nil {
		return err
	}
	provider, err := o.registry.LLM(state.usedProvider)
	if err != nil {
		return err
	}

	var resp core.CompletionResponse
	err = o.withRetry(ctx, run, StageGenerate, func(c context.Context) error {
		var cerr error
		resp, cerr = provider.Complete(c, core.CompletionRequest{
			Model:       state.usedModel,
			System:      rolePrompt,
			Prompt:      buildTailorPrompt(state.resumeText, req.JobDescription),
			APIKey:      apiKey,
			Temperature: 0.4,
		})
		return cerr
	})
	if err != nil {
		return fmt.Errorf("generate tailored resume: %w", err)
	}

	state.result = &models.AnalysisResult{
		FitScore:           state.fitScore,
		Strengths:          state.analysis.Strengths,
		Gaps:               state.analysis.Gaps,
		Suggestions:        state.analysis.Suggestions,
		KeywordGaps:        state.keywordGaps,
		TailoredResumeText: strings.TrimSpace(resp.Text),
		ProviderID:         state.usedProvider,
		ModelID:            state.usedModel,
		GeneratedAt:        time.Now(),
	}
	return nil
}

// withRetry runs fn with the provider timeout, retrying retryable errors
// with exponential backoff. Non-retryable errors return immediately.
func (o *Orchestrator) withRetry(ctx context.Context, run *Run, stage StageID, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			o.logger.Debug("retrying stage call",
				zap.String("run_id", run.ID),
				zap.String("stage", string(stage)),
				zap.Int("attempt", attempt))
			select {
			case <-time.After(backoffDelay(o.opts.BackoffBase, attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		cctx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
		err := fn(cctx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !core.Retryable(err) {
			return err
		}
	}
	return lastErr
}

// backoffDelay doubles the base per prior attempt: base, 2*base, 4*base...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

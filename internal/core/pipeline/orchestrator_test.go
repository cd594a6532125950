package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/core/llm"
	"github.com/jobfitai/jobfit-api/internal/core/vectorstore"
)

const analysisJSON = `{"strengths": ["solid python"], "gaps": ["no kubernetes"], "suggestions": ["add metrics"], "model_score": 80}`

// fakeLLM answers canned responses, consuming errs one per call first.
type fakeLLM struct {
	mu           sync.Mutex
	errs         []error
	calls        int
	analysisText string
	tailorText   string
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req core.CompletionRequest) (core.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return core.CompletionResponse{}, err
		}
	}
	if strings.Contains(req.Prompt, "tailored version") {
		return core.CompletionResponse{Text: f.tailorText}, nil
	}
	return core.CompletionResponse{Text: f.analysisText}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEmbedder emits deterministic vectors. When gate is set, every call
// blocks until the gate closes.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (f *fakeEmbedder) Name() string    { return "fake-embed" }
func (f *fakeEmbedder) Dimensions() int { return 4 }

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string, _ string) ([][]float32, error) {
	f.mu.Lock()
	gate := f.gate
	f.calls++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := [4]float32{1, 0, 0, 0}
		for j, r := range t {
			v[1+(j%3)] += float32(r % 13)
		}
		out[i] = v[:]
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{analysisText: analysisJSON, tailorText: "Tailored Resume\nPython, AWS."}
}

func testRegistry(google, openai core.LLMProvider, emb core.EmbeddingProvider) *llm.Registry {
	return llm.NewRegistryFrom(
		map[string]core.LLMProvider{llm.ProviderGoogle: google, llm.ProviderOpenAI: openai},
		map[string]core.EmbeddingProvider{llm.ProviderGoogle: emb},
		nil,
		map[string]string{llm.ProviderGoogle: "operator-gemini-key"},
	)
}

func testOptions() Options {
	return Options{
		EmbedProviderID: llm.ProviderGoogle,
		ChunkSize:       40,
		TopK:            3,
		MaxRetries:      2,
		BackoffBase:     time.Millisecond,
		ProviderTimeout: 2 * time.Second,
	}
}

const testResume = `Senior backend engineer. Eight years building Python services on AWS.
Designed event pipelines with SQS and Lambda, PostgreSQL schemas, Terraform deployments.
Led a team of four, mentored juniors, ran incident response.`

const testJobDescription = `Looking for a Python developer with AWS experience.
Must know PostgreSQL and Terraform. Kubernetes is a plus.`

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = run.Wait(ctx)
	require.NotEqual(t, RunRunning, run.Snapshot().Overall, "run did not finish in time")
}

func TestRunHappyPath(t *testing.T) {
	google := newFakeLLM()
	orch := NewOrchestrator(testRegistry(google, newFakeLLM(), &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-2.0-flash",
	})
	require.NoError(t, err)
	waitDone(t, run)

	snap := run.Snapshot()
	require.Equal(t, RunCompleted, snap.Overall)
	require.NotNil(t, snap.Result)

	res := snap.Result
	assert.GreaterOrEqual(t, res.FitScore, 50)
	assert.NotContains(t, res.KeywordGaps, "python")
	assert.NotContains(t, res.KeywordGaps, "aws")
	assert.Contains(t, res.KeywordGaps, "kubernetes")
	assert.Equal(t, llm.ProviderGoogle, res.ProviderID)
	assert.Equal(t, "gemini-2.0-flash", res.ModelID)
	assert.NotEmpty(t, res.TailoredResumeText)
	assert.Equal(t, []string{"solid python"}, res.Strengths)

	for _, st := range snap.Stages {
		assert.Equal(t, StageCompleted, st.Status, string(st.ID))
	}
	// analyze plus generate
	assert.Equal(t, 2, google.callCount())
}

func TestRunPaidModelWithoutKeyFailsBeforeProviderCall(t *testing.T) {
	openai := newFakeLLM()
	orch := NewOrchestrator(testRegistry(newFakeLLM(), openai, &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderOpenAI,
		ModelID:        "gpt-4o",
	})
	require.NoError(t, err)
	waitDone(t, run)

	snap := run.Snapshot()
	assert.Equal(t, RunFailed, snap.Overall)
	assert.Nil(t, snap.Result)
	assert.Equal(t, 0, openai.callCount())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, runErr := run.Wait(ctx)
	assert.ErrorIs(t, runErr, core.ErrInvalidCredentials)
}

func TestRunUnknownModelRejectedAtStart(t *testing.T) {
	orch := NewOrchestrator(testRegistry(newFakeLLM(), newFakeLLM(), &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	_, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-99-ultra",
	})
	assert.ErrorIs(t, err, core.ErrModelNotFound)
}

func TestRunRetriesRateLimitThenSucceeds(t *testing.T) {
	google := newFakeLLM()
	google.errs = []error{core.ErrRateLimited, core.ErrRateLimited, nil}
	orch := NewOrchestrator(testRegistry(google, newFakeLLM(), &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-2.0-flash",
	})
	require.NoError(t, err)
	waitDone(t, run)

	snap := run.Snapshot()
	assert.Equal(t, RunCompleted, snap.Overall)
	// two rate limited attempts, one analyze success, one generate
	assert.Equal(t, 4, google.callCount())
}

func TestRunCancelStopsBeforeNextStage(t *testing.T) {
	gate := make(chan struct{})
	emb := &fakeEmbedder{gate: gate}
	google := newFakeLLM()
	orch := NewOrchestrator(testRegistry(google, newFakeLLM(), emb),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-2.0-flash",
	})
	require.NoError(t, err)

	// Cancel while the embed stage is blocked inside the provider call,
	// then let it finish.
	run.Cancel()
	close(gate)
	waitDone(t, run)

	snap := run.Snapshot()
	assert.Equal(t, RunCancelled, snap.Overall)
	assert.Nil(t, snap.Result)
	// retrieve never ran, so the embedder saw only the chunk batches
	for _, st := range snap.Stages {
		if st.ID == StageRetrieve || st.ID == StageAnalyze {
			assert.Equal(t, StagePending, st.Status, string(st.ID))
		}
	}
	assert.Equal(t, 0, google.callCount())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, runErr := run.Wait(ctx)
	assert.ErrorIs(t, runErr, core.ErrCancelled)
}

func TestRunFallbackRestartsAnalyzeOnly(t *testing.T) {
	openai := newFakeLLM()
	openai.errs = []error{core.ErrProviderUnavailable, core.ErrProviderUnavailable, core.ErrProviderUnavailable}
	google := newFakeLLM()

	opts := testOptions()
	opts.FallbackProviderID = llm.ProviderGoogle
	opts.FallbackModelID = "gemini-2.0-flash"

	emb := &fakeEmbedder{}
	orch := NewOrchestrator(testRegistry(google, openai, emb),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), opts)

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderOpenAI,
		ModelID:        "gpt-4o",
		APIKey:         "sk-user",
	})
	require.NoError(t, err)

	events := run.Subscribe()
	waitDone(t, run)

	snap := run.Snapshot()
	require.Equal(t, RunCompleted, snap.Overall)
	assert.Equal(t, llm.ProviderGoogle, snap.Result.ProviderID)
	assert.Equal(t, "gemini-2.0-flash", snap.Result.ModelID)
	assert.Equal(t, 3, openai.callCount())

	// The restart shows up as analyze going back to running; no earlier
	// stage reruns with it. The embedder served one chunk batch plus the
	// retrieval query, nothing more.
	analyzeRunning := 0
	for ev := range events {
		if ev.StageID == StageAnalyze && ev.Status == StageRunning && ev.Progress == 0 {
			analyzeRunning++
		}
	}
	assert.GreaterOrEqual(t, analyzeRunning, 2)
	assert.Equal(t, 2, emb.callCount())
}

func TestRunNonRetryableErrorSkipsFallback(t *testing.T) {
	openai := newFakeLLM()
	openai.errs = []error{core.ErrInvalidCredentials}
	google := newFakeLLM()

	opts := testOptions()
	opts.FallbackProviderID = llm.ProviderGoogle
	opts.FallbackModelID = "gemini-2.0-flash"

	orch := NewOrchestrator(testRegistry(google, openai, &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), opts)

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderOpenAI,
		ModelID:        "gpt-4o",
		APIKey:         "sk-bad",
	})
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, RunFailed, run.Snapshot().Overall)
	assert.Equal(t, 0, google.callCount())
}

func TestRunEventStreamIsOrderedWithSingleTerminalEvent(t *testing.T) {
	orch := NewOrchestrator(testRegistry(newFakeLLM(), newFakeLLM(), &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-2.0-flash",
	})
	require.NoError(t, err)

	var events []ProgressEvent
	for ev := range run.Subscribe() {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	stageIndex := make(map[StageID]int, len(StageOrder))
	for i, id := range StageOrder {
		stageIndex[id] = i
	}

	terminal := 0
	maxStage := 0
	lastProgress := map[StageID]int{}
	for _, ev := range events {
		if ev.Overall != "" {
			terminal++
			continue
		}
		idx := stageIndex[ev.StageID]
		assert.GreaterOrEqual(t, idx, maxStage, "stage went backwards: %s", ev.StageID)
		if idx > maxStage {
			maxStage = idx
		}
		assert.GreaterOrEqual(t, ev.Progress, lastProgress[ev.StageID], "progress regressed in %s", ev.StageID)
		lastProgress[ev.StageID] = ev.Progress
	}
	assert.Equal(t, 1, terminal)
	assert.NotZero(t, events[len(events)-1].Overall, "terminal event must be last")
	assert.Equal(t, RunCompleted, events[len(events)-1].Overall)
	assert.NotNil(t, events[len(events)-1].Result)
}

func TestRunLateSubscriberReplaysHistory(t *testing.T) {
	orch := NewOrchestrator(testRegistry(newFakeLLM(), newFakeLLM(), &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-2.0-flash",
	})
	require.NoError(t, err)
	waitDone(t, run)

	var events []ProgressEvent
	for ev := range run.Subscribe() {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, RunCompleted, events[len(events)-1].Overall)

	seen := map[StageID]bool{}
	for _, ev := range events {
		if ev.Status == StageCompleted {
			seen[ev.StageID] = true
		}
	}
	for _, id := range StageOrder {
		assert.True(t, seen[id], "missing completed event for %s", id)
	}
}

func TestRunRejectsEmptyInput(t *testing.T) {
	orch := NewOrchestrator(testRegistry(newFakeLLM(), newFakeLLM(), &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	_, err := orch.Start(context.Background(), Request{
		ResumeText: testResume,
		ProviderID: llm.ProviderGoogle,
		ModelID:    "gemini-2.0-flash",
	})
	assert.Error(t, err)

	_, err = orch.Start(context.Background(), Request{
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-2.0-flash",
	})
	assert.Error(t, err)
}

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, 500*time.Millisecond, backoffDelay(base, 0))
	assert.Equal(t, time.Second, backoffDelay(base, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 3))
}

func TestRunGetReturnsRegisteredRun(t *testing.T) {
	orch := NewOrchestrator(testRegistry(newFakeLLM(), newFakeLLM(), &fakeEmbedder{}),
		nil, vectorstore.NewMemoryStore(), nil, nil, zap.NewNop(), testOptions())

	run, err := orch.Start(context.Background(), Request{
		ResumeText:     testResume,
		JobDescription: testJobDescription,
		ProviderID:     llm.ProviderGoogle,
		ModelID:        "gemini-2.0-flash",
	})
	require.NoError(t, err)
	waitDone(t, run)

	got, ok := orch.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, run.ID, got.ID)

	_, ok = orch.Get("nope")
	assert.False(t, ok)
}

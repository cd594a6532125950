package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/jobfitai/jobfit-api/internal/models"
)

// StageID identifies one pipeline stage.
type StageID string

const (
	StageParse    StageID = "parse"
	StageEmbed    StageID = "embed"
	StageRetrieve StageID = "retrieve"
	StageAnalyze  StageID = "analyze"
	StageScore    StageID = "score"
	StageGenerate StageID = "generate"
)

// StageOrder is the fixed, total execution order of a run.
var StageOrder = []StageID{StageParse, StageEmbed, StageRetrieve, StageAnalyze, StageScore, StageGenerate}

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageError     StageStatus = "error"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ProgressEvent is one record in a run's event stream. The terminal record
// (and only the terminal record) carries Overall, plus Result when the run
// completed.
type ProgressEvent struct {
	RunID       string                 `json:"run_id"`
	StageID     StageID                `json:"stage_id,omitempty"`
	Status      StageStatus            `json:"status,omitempty"`
	Progress    int                    `json:"progress"`
	Timestamp   time.Time              `json:"timestamp"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
	Overall     RunStatus              `json:"overall_status,omitempty"`
	Result      *models.AnalysisResult `json:"result,omitempty"`
}

// StageState is the mutable record of one stage within a run.
type StageState struct {
	ID        StageID     `json:"id"`
	Status    StageStatus `json:"status"`
	Progress  int         `json:"progress"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Run is one pipeline instance. The orchestrator is its sole mutator;
// everyone else observes it through Subscribe, Wait and Snapshot.
type Run struct {
	ID        string
	RequestID string

	mu        sync.Mutex
	stages    map[StageID]*StageState
	overall   RunStatus
	result    *models.AnalysisResult
	runErr    error
	startedAt time.Time
	history   []ProgressEvent
	subs      []chan ProgressEvent
	cancelled bool
	done      chan struct{}
}

func newRun(id, requestID string) *Run {
	stages := make(map[StageID]*StageState, len(StageOrder))
	for _, s := range StageOrder {
		stages[s] = &StageState{ID: s, Status: StagePending}
	}
	return &Run{
		ID:        id,
		RequestID: requestID,
		stages:    stages,
		overall:   RunRunning,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Subscribe returns a channel that replays all events emitted so far and
// then delivers live events in emission order. The channel closes after the
// terminal event.
func (r *Run) Subscribe() <-chan ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan ProgressEvent, 256+len(r.history))
	for _, ev := range r.history {
		ch <- ev
	}
	if r.overall != RunRunning {
		close(ch)
		return ch
	}
	r.subs = append(r.subs, ch)
	return ch
}

// Cancel requests cancellation. The currently running stage finishes (an
// external call already dispatched cannot be recalled; its result is
// discarded), and no further stage starts.
func (r *Run) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// Wait blocks until the run reaches a terminal state or ctx expires.
func (r *Run) Wait(ctx context.Context) (*models.AnalysisResult, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.runErr
}

// Snapshot returns a point-in-time copy of the run for status endpoints.
type RunSnapshot struct {
	ID        string                 `json:"id"`
	RequestID string                 `json:"request_id"`
	Overall   RunStatus              `json:"overall_status"`
	Stages    []StageState           `json:"stages"`
	StartedAt time.Time              `json:"started_at"`
	Result    *models.AnalysisResult `json:"result,omitempty"`
}

func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RunSnapshot{
		ID:        r.ID,
		RequestID: r.RequestID,
		Overall:   r.overall,
		StartedAt: r.startedAt,
		Result:    r.result,
	}
	for _, id := range StageOrder {
		snap.Stages = append(snap.Stages, *r.stages[id])
	}
	return snap
}

func (r *Run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// emit records ev and fans it out to every subscriber. Events are emitted
// under the run's sequential execution, so subscribers observe stage order
// and non-decreasing progress within a stage.
func (r *Run) emit(ev ProgressEvent) {
	ev.RunID = r.ID
	ev.Timestamp = time.Now()

	r.mu.Lock()
	r.history = append(r.history, ev)
	subs := make([]chan ProgressEvent, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Subscriber stopped draining; dropping beats blocking the run.
		}
	}
}

func (r *Run) setStage(id StageID, status StageStatus, progress int, errDetail string) {
	r.mu.Lock()
	st := r.stages[id]
	if status == StageRunning && st.StartedAt == nil {
		now := time.Now()
		st.StartedAt = &now
	}
	st.Status = status
	st.Progress = progress
	st.Error = errDetail
	r.mu.Unlock()

	r.emit(ProgressEvent{StageID: id, Status: status, Progress: progress, ErrorDetail: errDetail})
}

// finish moves the run to a terminal state, emits the terminal event and
// closes all subscriber channels.
func (r *Run) finish(status RunStatus, result *models.AnalysisResult, err error) {
	r.mu.Lock()
	if r.overall != RunRunning {
		r.mu.Unlock()
		return
	}
	r.overall = status
	r.result = result
	r.runErr = err
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	ev := ProgressEvent{Overall: status, Result: result}
	if err != nil {
		ev.ErrorDetail = err.Error()
	}
	ev.RunID = r.ID
	ev.Timestamp = time.Now()

	r.mu.Lock()
	r.history = append(r.history, ev)
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
	}
	close(r.done)
}

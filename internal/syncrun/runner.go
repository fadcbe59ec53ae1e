// Package syncrun drives the preview and chunked apply of statement
// reconciliation changes.
//
// States move idle -> loading -> preview -> applying -> done | partial | error.
// Chunks are applied serially in ascending index; a failed chunk does not stop
// the ones after it.
package syncrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vanshika/payrecon/backend/internal/audit"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/reconcile"
	"github.com/vanshika/payrecon/backend/internal/retry"
)

// State of the runner.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StatePreview  State = "preview"
	StateApplying State = "applying"
	StateDone     State = "done"
	StatePartial  State = "partial"
	StateError    State = "error"
)

// Chunk statuses.
const (
	ChunkPending = "pending"
	ChunkApplied = "applied"
	ChunkFailed  = "failed"
)

// DefaultBatchSize is the number of changes submitted per chunk.
const DefaultBatchSize = 50

var (
	// ErrBusy is returned while a preview or apply is in flight.
	ErrBusy = errors.New("sync already in progress")
	// ErrNoPreview is returned when apply is requested without a current preview.
	ErrNoPreview = errors.New("no preview to apply")
	// ErrNothingSelected is returned when the selection resolves to no changes.
	ErrNothingSelected = errors.New("no changes selected")
	// ErrNothingToRetry is returned when there are no failed chunks.
	ErrNothingToRetry = errors.New("no failed chunks to retry")
)

var tracer = otel.Tracer("payrecon/syncrun")

// Period is the statement date range, From inclusive and To exclusive.
type Period struct {
	From time.Time
	To   time.Time
}

// Loader computes the change list for a period.
type Loader interface {
	LoadChanges(ctx context.Context, period Period) ([]domain.SyncChange, error)
}

// ChunkRequest is one submission to an Applier.
type ChunkRequest struct {
	BatchID string
	Index   int
	Period  Period
	Changes []domain.SyncChange
}

// UIDs lists the change uids in the chunk.
func (r ChunkRequest) UIDs() []string {
	uids := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		uids[i] = c.UID
	}
	return uids
}

// Applier applies one chunk and reports how many changes took effect.
// Errors that implement retry.Transient with true are retried.
type Applier interface {
	ApplyChunk(ctx context.Context, req ChunkRequest) (int, error)
}

// Auditor records chunk outcomes. Optional.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Chunk is the bookkeeping for one submitted slice of the selection.
type Chunk struct {
	Index    int
	UIDs     []string
	Status   string
	Attempts int
	Applied  int
	Error    string
}

// Snapshot is a copy of the runner state.
type Snapshot struct {
	State      State
	BatchID    string
	Period     Period
	Changes    []domain.SyncChange
	Summary    reconcile.Summary
	Selected   int
	Chunks     []Chunk
	Applied    int
	Errors     int
	FailedUIDs []string
	LastError  string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// FailedChunks counts chunks that did not apply.
func (s Snapshot) FailedChunks() int {
	n := 0
	for _, c := range s.Chunks {
		if c.Status == ChunkFailed {
			n++
		}
	}
	return n
}

// Options configures a Runner.
type Options struct {
	BatchSize int
	Policy    retry.Policy
	Sleeper   retry.Sleeper
	Auditor   Auditor
	Logger    *slog.Logger
}

// Runner is shared by every caller; one preview or apply runs at a time.
type Runner struct {
	loader  Loader
	applier Applier
	opts    Options
	nowFn   func() time.Time
	newID   func() string

	mu       sync.Mutex
	state    State
	batchID  string
	period   Period
	changes  []domain.SyncChange
	selected map[string]domain.SyncChange
	chunks   []Chunk
	lastErr  string
	started  *time.Time
	finished *time.Time
}

// NewRunner creates an idle runner.
func NewRunner(loader Loader, applier Applier, opts Options) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Sleeper == nil {
		opts.Sleeper = retry.ContextSleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		loader:  loader,
		applier: applier,
		opts:    opts,
		nowFn:   time.Now,
		newID:   uuid.NewString,
		state:   StateIdle,
	}
}

// WithClock overrides the time source.
func (r *Runner) WithClock(fn func() time.Time) {
	if fn != nil {
		r.nowFn = fn
	}
}

// Snapshot returns the current state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      r.state,
		BatchID:    r.batchID,
		Period:     r.period,
		Changes:    r.changes,
		Summary:    reconcile.Summarize(r.changes),
		Selected:   len(r.selected),
		Chunks:     make([]Chunk, len(r.chunks)),
		LastError:  r.lastErr,
		StartedAt:  r.started,
		FinishedAt: r.finished,
	}
	for i, c := range r.chunks {
		c.UIDs = append([]string(nil), c.UIDs...)
		s.Chunks[i] = c
		switch c.Status {
		case ChunkApplied:
			s.Applied += c.Applied
		case ChunkFailed:
			s.Errors += len(c.UIDs)
			s.FailedUIDs = append(s.FailedUIDs, c.UIDs...)
		}
	}
	return s
}

func (r *Runner) busyLocked() bool {
	return r.state == StateLoading || r.state == StateApplying
}

// Preview loads a fresh change list for the period, discarding any previous run.
func (r *Runner) Preview(ctx context.Context, period Period) (Snapshot, error) {
	r.mu.Lock()
	if r.busyLocked() {
		r.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	r.resetLocked()
	r.state = StateLoading
	r.period = period
	r.mu.Unlock()

	ctx, span := tracer.Start(ctx, "syncrun.Preview", trace.WithAttributes(
		attribute.String("period.from", period.From.Format(time.DateOnly)),
		attribute.String("period.to", period.To.Format(time.DateOnly)),
	))
	defer span.End()

	changes, err := r.loader.LoadChanges(ctx, period)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.state = StateError
		r.lastErr = err.Error()
		return r.snapshotLocked(), fmt.Errorf("load changes: %w", err)
	}
	span.SetAttributes(attribute.Int("changes", len(changes)))
	r.changes = changes
	r.state = StatePreview
	return r.snapshotLocked(), nil
}

// Apply submits the selected changes of the current preview. A nil or empty
// uids selects only safe changes; explicit uids opt in to dangerous ones.
func (r *Runner) Apply(ctx context.Context, uids []string) (Snapshot, error) {
	r.mu.Lock()
	if r.busyLocked() {
		r.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	if r.state != StatePreview {
		r.mu.Unlock()
		return Snapshot{}, ErrNoPreview
	}
	if len(uids) == 0 {
		uids = reconcile.SelectSafe(r.changes)
	}
	selected := reconcile.Select(r.changes, uids)
	if len(selected) == 0 {
		r.mu.Unlock()
		return Snapshot{}, ErrNothingSelected
	}

	r.selected = make(map[string]domain.SyncChange, len(selected))
	for _, c := range selected {
		r.selected[c.UID] = c
	}
	r.chunks = chunk(selected, r.opts.BatchSize)
	r.batchID = r.newID()
	r.lastErr = ""
	now := r.nowFn().UTC()
	r.started = &now
	r.finished = nil
	r.state = StateApplying
	pending := indexes(r.chunks)
	r.mu.Unlock()

	return r.run(ctx, pending)
}

// RetryFailed resubmits exactly the uids of the chunks that failed.
func (r *Runner) RetryFailed(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	if r.busyLocked() {
		r.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	var failed []int
	if r.state == StatePartial || r.state == StateError {
		for i, c := range r.chunks {
			if c.Status == ChunkFailed {
				failed = append(failed, i)
			}
		}
	}
	if len(failed) == 0 {
		r.mu.Unlock()
		return Snapshot{}, ErrNothingToRetry
	}
	for _, i := range failed {
		r.chunks[i].Status = ChunkPending
		r.chunks[i].Error = ""
		r.chunks[i].Attempts = 0
	}
	r.lastErr = ""
	r.finished = nil
	r.state = StateApplying
	r.mu.Unlock()

	return r.run(ctx, failed)
}

// Reset returns to idle and forgets the preview and all chunk bookkeeping.
func (r *Runner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busyLocked() {
		return ErrBusy
	}
	r.resetLocked()
	return nil
}

func (r *Runner) resetLocked() {
	r.state = StateIdle
	r.batchID = ""
	r.period = Period{}
	r.changes = nil
	r.selected = nil
	r.chunks = nil
	r.lastErr = ""
	r.started = nil
	r.finished = nil
}

func (r *Runner) run(ctx context.Context, pending []int) (Snapshot, error) {
	r.mu.Lock()
	batchID, period := r.batchID, r.period
	r.mu.Unlock()

	ctx, span := tracer.Start(ctx, "syncrun.Apply", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("chunks", len(pending)),
	))
	defer span.End()

	logger := r.opts.Logger.With("component", "syncrun", "batch_id", batchID)

	for _, i := range pending {
		r.mu.Lock()
		c := r.chunks[i]
		changes := make([]domain.SyncChange, 0, len(c.UIDs))
		for _, uid := range c.UIDs {
			changes = append(changes, r.selected[uid])
		}
		r.mu.Unlock()

		req := ChunkRequest{BatchID: batchID, Index: c.Index, Period: period, Changes: changes}
		applied, res := r.applyChunk(ctx, req)

		r.mu.Lock()
		chunk := &r.chunks[i]
		chunk.Attempts = res.Attempts
		if res.Err != nil {
			chunk.Status = ChunkFailed
			chunk.Error = res.Err.Error()
			chunk.Applied = 0
		} else {
			chunk.Status = ChunkApplied
			chunk.Applied = applied
		}
		entry := auditEntry(batchID, *chunk)
		r.mu.Unlock()

		if res.Err != nil {
			logger.Warn("chunk failed", "chunk", c.Index, "attempts", res.Attempts, "error", res.Err)
		} else {
			logger.Info("chunk applied", "chunk", c.Index, "applied", applied, "attempts", res.Attempts)
		}
		if r.opts.Auditor != nil {
			if err := r.opts.Auditor.Record(ctx, entry); err != nil {
				logger.Error("audit record failed", "chunk", c.Index, "error", err)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = finalState(r.chunks)
	now := r.nowFn().UTC()
	r.finished = &now
	snap := r.snapshotLocked()
	switch r.state {
	case StateError:
		r.lastErr = fmt.Sprintf("all %d chunks failed", len(r.chunks))
		snap.LastError = r.lastErr
		span.SetStatus(codes.Error, r.lastErr)
	case StatePartial:
		span.SetStatus(codes.Error, "partial")
	}
	span.SetAttributes(attribute.Int("applied", snap.Applied), attribute.Int("errors", snap.Errors))
	logger.Info("sync finished", "state", r.state, "applied", snap.Applied, "errors", snap.Errors)
	return snap, nil
}

func (r *Runner) applyChunk(ctx context.Context, req ChunkRequest) (int, retry.Result) {
	ctx, span := tracer.Start(ctx, "syncrun.ApplyChunk", trace.WithAttributes(
		attribute.Int("chunk.index", req.Index),
		attribute.Int("chunk.size", len(req.Changes)),
	))
	defer span.End()

	var applied int
	res := retry.Do(ctx, r.opts.Policy, r.opts.Sleeper, func(ctx context.Context, n int) error {
		var err error
		applied, err = r.applier.ApplyChunk(ctx, req)
		if err != nil {
			span.AddEvent("attempt failed", trace.WithAttributes(attribute.Int("attempt", n)))
		}
		return err
	})
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return applied, res
}

func auditEntry(batchID string, c Chunk) audit.Entry {
	outcome := audit.OutcomeApplied
	if c.Status == ChunkFailed {
		outcome = audit.OutcomeFailed
	}
	return audit.Entry{
		BatchID:    batchID,
		ChunkIndex: c.Index,
		UIDs:       append([]string(nil), c.UIDs...),
		Outcome:    outcome,
		Applied:    c.Applied,
		Attempts:   c.Attempts,
		Error:      c.Error,
	}
}

func finalState(chunks []Chunk) State {
	failed := 0
	for _, c := range chunks {
		if c.Status == ChunkFailed {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StateDone
	case failed == len(chunks):
		return StateError
	default:
		return StatePartial
	}
}

func chunk(changes []domain.SyncChange, size int) []Chunk {
	var chunks []Chunk
	for start := 0; start < len(changes); start += size {
		end := start + size
		if end > len(changes) {
			end = len(changes)
		}
		uids := make([]string, 0, end-start)
		for _, c := range changes[start:end] {
			uids = append(uids, c.UID)
		}
		chunks = append(chunks, Chunk{Index: len(chunks), UIDs: uids, Status: ChunkPending})
	}
	return chunks
}

func indexes(chunks []Chunk) []int {
	out := make([]int, len(chunks))
	for i := range chunks {
		out[i] = i
	}
	return out
}

// Package board implements the concurrency-safe transition engine that
// owns every task and the background monitor that detects stuck work.
//
// The board is the only place that mutates task state. Every mutating
// operation runs its validation, mutation, audit append, and persistence
// call inside one critical section, then releases the lock before any
// assistant call or hook dispatch. Assistant results are written back
// under a second, brief critical section so slow I/O never blocks other
// board operations.
package board

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowboard/flowboard/internal/assist"
	"github.com/flowboard/flowboard/internal/hooks"
	"github.com/flowboard/flowboard/internal/observability"
	"github.com/flowboard/flowboard/internal/storage"
	"github.com/flowboard/flowboard/internal/task"
)

// Option configures a Board.
type Option func(*Board)

// WithGenerator sets the code generation assistant invoked after a task
// enters in_progress.
func WithGenerator(g assist.Generator) Option {
	return func(b *Board) { b.generator = g }
}

// WithReviewer sets the reviewer assistant invoked after a task enters
// review.
func WithReviewer(r assist.Reviewer) Option {
	return func(b *Board) { b.reviewer = r }
}

// WithStore sets the persistence sink. Defaults to storage.NullStore.
func WithStore(s storage.Store) Option {
	return func(b *Board) { b.store = s }
}

// WithHooks sets the hook registry. Defaults to a fresh empty registry.
func WithHooks(r *hooks.Registry) Option {
	return func(b *Board) { b.hooks = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *observability.Logger) Option {
	return func(b *Board) { b.log = l }
}

// WithMetrics sets an optional metrics collector.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(b *Board) { b.metrics = m }
}

// WithClock overrides the time source. Tests use this to age tasks
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// WithTasks seeds the board with a previously persisted collection,
// e.g. the result of storage.Store.Load at startup.
func WithTasks(tasks []*task.Task) Option {
	return func(b *Board) {
		for _, t := range tasks {
			b.tasks[t.ID] = t.Clone()
		}
	}
}

// Board is the authoritative owner of every task: the single point of
// transition legality and admission enforcement.
type Board struct {
	mu    sync.Mutex
	tasks map[string]*task.Task

	wipLimit  int
	generator assist.Generator
	reviewer  assist.Reviewer
	store     storage.Store
	hooks     *hooks.Registry
	metrics   *observability.MetricsCollector
	log       *observability.Logger
	now       func() time.Time
}

// New creates a board with the given WIP limit.
func New(wipLimit int, opts ...Option) (*Board, error) {
	if wipLimit <= 0 {
		return nil, fmt.Errorf("wip limit must be positive, got %d", wipLimit)
	}
	b := &Board{
		tasks:    make(map[string]*task.Task),
		wipLimit: wipLimit,
		store:    storage.NullStore{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = observability.NewLogger("board", nil)
	}
	if b.hooks == nil {
		b.hooks = hooks.NewRegistry(b.log.Component("hooks"))
	}
	return b, nil
}

// Hooks returns the board's hook registry for listener registration.
func (b *Board) Hooks() *hooks.Registry { return b.hooks }

// WIPLimit returns the configured in-progress cap.
func (b *Board) WIPLimit() int { return b.wipLimit }

// CreateTask creates a new task in backlog. Dependency IDs are not
// validated here; they are resolved lazily when the task is started.
func (b *Board) CreateTask(ctx context.Context, title, description string, dependsOn []string) (*task.Task, error) {
	b.mu.Lock()
	t := task.New(title, description, dependsOn)
	for b.tasks[t.ID] != nil {
		t.ID = task.NewID() // id collision, roll again
	}
	t.CreatedAt = b.now().UTC()
	b.record(t, "", task.StageBacklog, "created")
	b.tasks[t.ID] = t
	b.persist(ctx)
	snap := t.Clone()
	b.mu.Unlock()

	b.log.Info("task created", "task_id", snap.ID, "title", title, "deps", snap.DependsOn)
	b.count(task.StageBacklog)
	b.hooks.Fire(ctx, hooks.EventTransition, snap)
	return snap, nil
}

// StartWork moves a backlog task to in_progress after checking its
// dependencies and the WIP limit, then runs the generation assistant
// outside the lock. If the assistant fails, the transition stands: the
// committed task is returned together with the generation error so the
// caller can retry the enrichment.
func (b *Board) StartWork(ctx context.Context, taskID string) (*task.Task, error) {
	b.mu.Lock()
	t, err := b.get(taskID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if err := assertStage(t, task.StageBacklog); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	for _, dep := range t.DependsOn {
		d, ok := b.tasks[dep]
		if !ok || d.Stage != task.StageDone {
			b.mu.Unlock()
			return nil, &task.UnresolvedDependencyError{ID: taskID, Dependency: dep}
		}
	}
	wip := b.countStage(task.StageInProgress)
	if wip >= b.wipLimit {
		b.mu.Unlock()
		return nil, &task.WIPLimitError{Current: wip, Limit: b.wipLimit}
	}

	// Commit the stage before releasing the lock so concurrent callers
	// observe the updated count.
	t.Stage = task.StageInProgress
	b.record(t, task.StageBacklog, task.StageInProgress, "")
	b.persist(ctx)
	snap := t.Clone()
	b.mu.Unlock()

	b.log.Transition(taskID, string(task.StageBacklog), string(task.StageInProgress),
		"wip", wip+1, "wip_limit", b.wipLimit)
	b.count(task.StageInProgress)
	b.hooks.Fire(ctx, hooks.EventTransition, snap)

	if b.generator == nil {
		return snap, nil
	}

	// Run the assistant outside the lock: pure I/O, no shared state.
	start := b.now()
	artifact, err := b.generator.Generate(ctx, snap.Description)
	if b.metrics != nil {
		b.metrics.Record(observability.MetricAssistMs,
			float64(b.now().Sub(start).Milliseconds()),
			observability.Labels{"kind": "generate"})
	}
	if err != nil {
		b.log.Warn("generation failed", "task_id", taskID, "error", err.Error())
		return snap, fmt.Errorf("generate artifact for %q: %w", taskID, err)
	}

	b.mu.Lock()
	t.Artifact = artifact
	b.persist(ctx)
	snap = t.Clone()
	b.mu.Unlock()

	b.log.Debug("artifact recorded", "task_id", taskID)
	return snap, nil
}

// StartReview moves an in_progress task to review, then runs the
// reviewer assistant outside the lock. A reviewer failure leaves the
// committed transition in place and is returned alongside the task.
func (b *Board) StartReview(ctx context.Context, taskID string) (*task.Task, error) {
	b.mu.Lock()
	t, err := b.get(taskID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if err := assertStage(t, task.StageInProgress); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	t.Stage = task.StageReview
	b.record(t, task.StageInProgress, task.StageReview, "")
	b.persist(ctx)
	snap := t.Clone()
	b.mu.Unlock()

	b.log.Transition(taskID, string(task.StageInProgress), string(task.StageReview))
	b.count(task.StageReview)
	b.hooks.Fire(ctx, hooks.EventTransition, snap)

	if b.reviewer == nil {
		return snap, nil
	}

	start := b.now()
	notes, err := b.reviewer.Review(ctx, snap.Description, snap.Artifact)
	if b.metrics != nil {
		b.metrics.Record(observability.MetricAssistMs,
			float64(b.now().Sub(start).Milliseconds()),
			observability.Labels{"kind": "review"})
	}
	if err != nil {
		b.log.Warn("review failed", "task_id", taskID, "error", err.Error())
		return snap, fmt.Errorf("review %q: %w", taskID, err)
	}

	b.mu.Lock()
	t.ReviewNotes = notes
	b.persist(ctx)
	snap = t.Clone()
	b.mu.Unlock()

	b.log.Debug("review notes recorded", "task_id", taskID)
	return snap, nil
}

// Approve moves a review task to done.
func (b *Board) Approve(ctx context.Context, taskID string) (*task.Task, error) {
	b.mu.Lock()
	t, err := b.get(taskID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if err := assertStage(t, task.StageReview); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	t.Stage = task.StageDone
	b.record(t, task.StageReview, task.StageDone, "")
	b.persist(ctx)
	snap := t.Clone()
	b.mu.Unlock()

	b.log.Transition(taskID, string(task.StageReview), string(task.StageDone))
	b.count(task.StageDone)
	b.hooks.Fire(ctx, hooks.EventTransition, snap)
	b.hooks.Fire(ctx, hooks.EventDone, snap)
	return snap, nil
}

// Reject returns a review task to backlog, incrementing its retry count
// and recording the reason in the audit trail. This is the only
// backward-moving transition; the freed capacity needs no bookkeeping
// because stage counts are always computed live.
func (b *Board) Reject(ctx context.Context, taskID, reason string) (*task.Task, error) {
	b.mu.Lock()
	t, err := b.get(taskID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if err := assertStage(t, task.StageReview); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	t.Stage = task.StageBacklog
	t.RetryCount++
	b.record(t, task.StageReview, task.StageBacklog, reason)
	b.persist(ctx)
	snap := t.Clone()
	b.mu.Unlock()

	b.log.Info("task rejected", "task_id", taskID, "reason", reason, "retry", snap.RetryCount)
	if b.metrics != nil {
		b.metrics.Record(observability.MetricRejections, 1, nil)
	}
	b.hooks.Fire(ctx, hooks.EventRejected, snap)
	return snap, nil
}

// GetTask returns a snapshot of one task.
func (b *Board) GetTask(taskID string) (*task.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.get(taskID)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// ListTasks returns snapshots of every task, ordered by creation time.
func (b *Board) ListTasks() []*task.Task {
	b.mu.Lock()
	out := make([]*task.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, t.Clone())
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// TasksByStage returns snapshots of tasks currently in the given stage.
func (b *Board) TasksByStage(stage task.Stage) []*task.Task {
	var out []*task.Task
	for _, t := range b.ListTasks() {
		if t.Stage == stage {
			out = append(out, t)
		}
	}
	return out
}

// FindStale returns tasks stuck in in_progress longer than threshold,
// measured from the most recent audit entry into that stage. A task
// created long ago but started recently is not stale.
func (b *Board) FindStale(threshold time.Duration) []*task.Task {
	cutoff := b.now().Add(-threshold)

	b.mu.Lock()
	defer b.mu.Unlock()

	var stale []*task.Task
	for _, t := range b.tasks {
		if t.Stage != task.StageInProgress {
			continue
		}
		entered, ok := t.LastEnteredInProgress()
		if !ok {
			continue // no entry record, cannot judge staleness
		}
		if entered.Before(cutoff) {
			stale = append(stale, t.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale
}

// ---------------------------------------------------------------------------
// Internal helpers. All must be called with b.mu held.
// ---------------------------------------------------------------------------

func (b *Board) get(taskID string) (*task.Task, error) {
	t, ok := b.tasks[taskID]
	if !ok {
		return nil, &task.NotFoundError{ID: taskID}
	}
	return t, nil
}

func assertStage(t *task.Task, expected task.Stage) error {
	if t.Stage != expected {
		return &task.InvalidTransitionError{ID: t.ID, Current: t.Stage, Expected: expected}
	}
	return nil
}

func (b *Board) countStage(stage task.Stage) int {
	n := 0
	for _, t := range b.tasks {
		if t.Stage == stage {
			n++
		}
	}
	return n
}

// record appends an audit entry to the task's history.
func (b *Board) record(t *task.Task, from, to task.Stage, note string) {
	t.History = append(t.History, task.AuditEntry{
		FromStage: from,
		ToStage:   to,
		Timestamp: b.now().UTC(),
		Note:      note,
	})
}

// persist saves the full collection. Failures are logged, not surfaced:
// the in-memory mutation stands (fail-open by policy).
func (b *Board) persist(ctx context.Context) {
	snapshot := make([]*task.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		snapshot = append(snapshot, t.Clone())
	}
	if err := b.store.Save(ctx, snapshot); err != nil {
		b.log.Error("persist failed", "tasks", len(snapshot), "error", err.Error())
		if b.metrics != nil {
			b.metrics.Record(observability.MetricPersistErrs, 1, nil)
		}
	}
}

// count records a transition metric point, if metrics are configured.
func (b *Board) count(to task.Stage) {
	if b.metrics == nil {
		return
	}
	b.metrics.Record(observability.MetricTransitions, 1,
		observability.Labels{"to": string(to)})
	b.metrics.Increment("transitions_total")
}

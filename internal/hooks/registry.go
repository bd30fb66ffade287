// Package hooks decouples side effects from board logic.
//
// The board fires events; listeners react. Nothing inside the board
// knows or cares what happens downstream. Listener failures are
// contained: one listener's fault never reaches its siblings or the
// board operation that triggered the event.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowboard/flowboard/internal/observability"
	"github.com/flowboard/flowboard/internal/task"
)

// Event names recognized by the registry.
const (
	EventTransition = "on_transition"
	EventDone       = "on_done"
	EventRejected   = "on_rejected"
	EventStaleTask  = "on_stale_task"
)

// Listener reacts to a board event. It receives a snapshot of the task;
// mutating it has no effect on board state.
type Listener func(ctx context.Context, t *task.Task) error

// UnknownEventError indicates a registration for an event name outside
// the recognized set.
type UnknownEventError struct {
	Event string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown hook event %q", e.Event)
}

// Registry maps event names to ordered listener lists.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	log       *observability.Logger
}

// NewRegistry creates a registry with the fixed event set and no listeners.
func NewRegistry(log *observability.Logger) *Registry {
	if log == nil {
		log = observability.NewLogger("hooks", nil)
	}
	return &Registry{
		listeners: map[string][]Listener{
			EventTransition: nil,
			EventDone:       nil,
			EventRejected:   nil,
			EventStaleTask:  nil,
		},
		log: log,
	}
}

// Register appends a listener to the named event's list.
func (r *Registry) Register(event string, l Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[event]; !ok {
		return &UnknownEventError{Event: event}
	}
	r.listeners[event] = append(r.listeners[event], l)
	return nil
}

// Fire invokes every listener registered for the event, in registration
// order, passing the task snapshot. Each invocation runs inside its own
// failure boundary: an error (or panic) is logged and the next listener
// still runs. Fire itself never fails.
func (r *Registry) Fire(ctx context.Context, event string, t *task.Task) {
	r.mu.RLock()
	ls := r.listeners[event]
	r.mu.RUnlock()

	for i, l := range ls {
		if err := r.invoke(ctx, l, t); err != nil {
			r.log.Error("hook listener failed",
				"event", event,
				"listener", i,
				"task_id", t.ID,
				"error", err.Error(),
			)
		}
	}
}

// invoke runs a single listener, converting a panic into an error so a
// misbehaving listener cannot take down the caller.
func (r *Registry) invoke(ctx context.Context, l Listener, t *task.Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return l(ctx, t.Clone())
}

// LogListener returns a built-in listener that logs every event it sees.
func LogListener(log *observability.Logger) Listener {
	return func(_ context.Context, t *task.Task) error {
		log.Info("task event", "task_id", t.ID, "stage", string(t.Stage))
		return nil
	}
}

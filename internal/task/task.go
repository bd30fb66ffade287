// Package task defines the core domain model for the Flowboard system:
// the Task entity, its pipeline Stage, the append-only audit trail, and
// the domain error types the board surfaces.
//
// Nothing here imports from the rest of the module; this is the
// innermost layer and has zero side effects.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage is one of the four fixed pipeline positions a task occupies.
type Stage string

const (
	StageBacklog    Stage = "backlog"
	StageInProgress Stage = "in_progress"
	StageReview     Stage = "review"
	StageDone       Stage = "done"
)

// Stages lists all stages in pipeline order.
func Stages() []Stage {
	return []Stage{StageBacklog, StageInProgress, StageReview, StageDone}
}

// ParseStage converts a string into a Stage.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages() {
		if Stage(s) == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// AuditEntry is a single immutable record of a stage transition.
// FromStage is empty for the initial "created" entry.
type AuditEntry struct {
	FromStage Stage     `json:"from_stage,omitempty"`
	ToStage   Stage     `json:"to_stage"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

func (e AuditEntry) String() string {
	arrow := ""
	if e.FromStage != "" {
		arrow = string(e.FromStage) + " -> "
	}
	note := ""
	if e.Note != "" {
		note = " (" + e.Note + ")"
	}
	return fmt.Sprintf("[%s] %s%s%s", e.Timestamp.Format(time.RFC3339), arrow, e.ToStage, note)
}

// Task represents one unit of work moving through the pipeline.
//
// A Task is mutated exclusively by the board's transition operations;
// everything handed outside the board is a deep copy.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Stage       Stage        `json:"stage"`
	CreatedAt   time.Time    `json:"created_at"`
	Artifact    string       `json:"artifact,omitempty"`     // set by the generation assistant
	ReviewNotes string       `json:"review_notes,omitempty"` // set by the reviewer assistant
	DependsOn   []string     `json:"depends_on,omitempty"`   // task IDs that must be Done first
	RetryCount  int          `json:"retry_count"`
	History     []AuditEntry `json:"history"`
}

// New creates a Task in Backlog with a fresh identifier.
// Dependency IDs are not validated here; resolution happens when the
// task is started.
func New(title, description string, dependsOn []string) *Task {
	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	return &Task{
		ID:          NewID(),
		Title:       title,
		Description: description,
		Stage:       StageBacklog,
		CreatedAt:   time.Now().UTC(),
		DependsOn:   deps,
	}
}

// NewID allocates a short unique task identifier (8-char UUID prefix).
func NewID() string {
	return uuid.NewString()[:8]
}

// Clone returns a deep copy, safe to hand to callers and hook listeners.
func (t *Task) Clone() *Task {
	c := *t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.History = append([]AuditEntry(nil), t.History...)
	return &c
}

// LastEnteredInProgress returns the timestamp of the most recent
// transition into in_progress, scanning the history backward.
// The second return is false if the task never entered in_progress.
func (t *Task) LastEnteredInProgress() (time.Time, bool) {
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i].ToStage == StageInProgress {
			return t.History[i].Timestamp, true
		}
	}
	return time.Time{}, false
}

func (t *Task) String() string {
	deps := ""
	if len(t.DependsOn) > 0 {
		deps = fmt.Sprintf(" deps=%v", t.DependsOn)
	}
	retry := ""
	if t.RetryCount > 0 {
		retry = fmt.Sprintf(" retry=%d", t.RetryCount)
	}
	return fmt.Sprintf("[%s] %q — %s%s%s", t.ID, t.Title, t.Stage, deps, retry)
}

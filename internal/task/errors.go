package task

import "fmt"

// NotFoundError indicates the referenced task ID has no task.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %q not found", e.ID)
}

// InvalidTransitionError indicates an operation was attempted from a
// stage that does not permit it.
type InvalidTransitionError struct {
	ID       string
	Current  Stage
	Expected Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %q is in %q, expected %q", e.ID, e.Current, e.Expected)
}

// WIPLimitError indicates the in-progress cap is already saturated.
type WIPLimitError struct {
	Current int
	Limit   int
}

func (e *WIPLimitError) Error() string {
	return fmt.Sprintf("wip limit reached (%d/%d): finish or review a task before starting a new one", e.Current, e.Limit)
}

// UnresolvedDependencyError indicates a task cannot start because a
// dependency is missing or not yet done. Dependency names the first
// unmet dependency ID found.
type UnresolvedDependencyError struct {
	ID         string
	Dependency string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("task %q is blocked by unfinished dependency %q", e.ID, e.Dependency)
}

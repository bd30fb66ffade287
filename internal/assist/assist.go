// Package assist defines the board's external collaborators: the code
// generator that runs after a task enters in_progress, and the reviewer
// that runs after it enters review.
//
// Both contracts are narrow text-to-text calls with no side effects on
// board state. Swap the implementation injected into the board to change
// behaviour without touching any board logic.
package assist

import "context"

// Generator produces an artifact for a task description.
type Generator interface {
	Generate(ctx context.Context, description string) (string, error)
}

// Reviewer produces review notes for a description and its artifact.
type Reviewer interface {
	Review(ctx context.Context, description, artifact string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, description string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, description string) (string, error) {
	return f(ctx, description)
}

// ReviewerFunc adapts a function to the Reviewer interface.
type ReviewerFunc func(ctx context.Context, description, artifact string) (string, error)

func (f ReviewerFunc) Review(ctx context.Context, description, artifact string) (string, error) {
	return f(ctx, description, artifact)
}

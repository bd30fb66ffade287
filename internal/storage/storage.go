// Package storage persists board state.
//
// The Store interface is the primary abstraction: the board hands it the
// full task collection after every mutation and asks it for the previous
// snapshot at startup. SQLiteStore is the default implementation using
// pure-Go SQLite (modernc.org/sqlite); JSONStore writes a single JSON
// snapshot file and NullStore discards everything (useful in tests).
//
// The board treats persistence as fail-open: a Save error is logged by
// the caller, never rolled back.
package storage

import (
	"context"

	"github.com/flowboard/flowboard/internal/task"
)

// Store is the persistence sink for board snapshots.
type Store interface {
	// Save durably writes the full task collection. The slice contains
	// snapshots owned by the store for the duration of the call.
	Save(ctx context.Context, tasks []*task.Task) error

	// Load returns the most recently saved collection, or an empty
	// slice if nothing has been saved yet.
	Load(ctx context.Context) ([]*task.Task, error)

	// Close shuts down the store.
	Close() error
}

// NullStore discards saves and loads nothing.
type NullStore struct{}

func (NullStore) Save(context.Context, []*task.Task) error { return nil }

func (NullStore) Load(context.Context) ([]*task.Task, error) { return nil, nil }

func (NullStore) Close() error { return nil }

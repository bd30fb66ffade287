package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/flowboard/flowboard/internal/task"
)

// JSONStore persists the board as a single indented JSON file keyed by
// task ID, the format the board historically used. Writes go through a
// temp file and rename so a crash never leaves a torn snapshot.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONStore creates a store writing to the given file path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Save writes the full collection as indented JSON.
func (s *JSONStore) Save(_ context.Context, tasks []*task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	data, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot back. A missing file is not an error; it
// returns an empty collection.
func (s *JSONStore) Load(_ context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var byID map[string]*task.Task
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %q: %w", s.path, err)
	}

	tasks := make([]*task.Task, 0, len(byID))
	for _, t := range byID {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Close is a no-op for the file-backed store.
func (s *JSONStore) Close() error { return nil }

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowboard/flowboard/internal/task"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed store.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL,
		stage        TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		artifact     TEXT,
		review_notes TEXT,
		depends_on   TEXT,
		retry_count  INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS audit (
		task_id    TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		from_stage TEXT,
		to_stage   TEXT NOT NULL,
		timestamp  TEXT NOT NULL,
		note       TEXT,
		PRIMARY KEY (task_id, seq)
	);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save replaces the stored snapshot with the given task collection,
// tasks and audit trails both, in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, tasks []*task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM audit"); err != nil {
		return fmt.Errorf("clear audit: %w", err)
	}

	for _, t := range tasks {
		deps, err := json.Marshal(t.DependsOn)
		if err != nil {
			return fmt.Errorf("marshal deps for %q: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, title, description, stage, created_at,
				artifact, review_notes, depends_on, retry_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Description, string(t.Stage),
			t.CreatedAt.UTC().Format(time.RFC3339Nano),
			t.Artifact, t.ReviewNotes, string(deps), t.RetryCount,
		)
		if err != nil {
			return fmt.Errorf("insert task %q: %w", t.ID, err)
		}

		for i, e := range t.History {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO audit (task_id, seq, from_stage, to_stage, timestamp, note)
				VALUES (?, ?, ?, ?, ?, ?)`,
				t.ID, i, string(e.FromStage), string(e.ToStage),
				e.Timestamp.UTC().Format(time.RFC3339Nano), e.Note,
			)
			if err != nil {
				return fmt.Errorf("insert audit %q[%d]: %w", t.ID, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load reads back the stored task collection with audit trails attached.
func (s *SQLiteStore) Load(ctx context.Context) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, stage, created_at,
			artifact, review_notes, depends_on, retry_count
		FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	byID := make(map[string]*task.Task)

	for rows.Next() {
		var t task.Task
		var stage, createdAt string
		var artifact, reviewNotes, deps sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &stage, &createdAt,
			&artifact, &reviewNotes, &deps, &t.RetryCount); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Stage = task.Stage(stage)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		t.Artifact = artifact.String
		t.ReviewNotes = reviewNotes.String
		if deps.Valid && deps.String != "" {
			if err := json.Unmarshal([]byte(deps.String), &t.DependsOn); err != nil {
				return nil, fmt.Errorf("unmarshal deps for %q: %w", t.ID, err)
			}
		}
		tasks = append(tasks, &t)
		byID[t.ID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	audit, err := s.db.QueryContext(ctx, `
		SELECT task_id, from_stage, to_stage, timestamp, note
		FROM audit ORDER BY task_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer audit.Close()

	for audit.Next() {
		var taskID, fromStage, toStage, ts string
		var note sql.NullString
		if err := audit.Scan(&taskID, &fromStage, &toStage, &ts, &note); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		t, ok := byID[taskID]
		if !ok {
			continue // orphaned audit row
		}
		entry := task.AuditEntry{
			FromStage: task.Stage(fromStage),
			ToStage:   task.Stage(toStage),
			Note:      note.String,
		}
		entry.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		t.History = append(t.History, entry)
	}
	if err := audit.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

// Close shuts down the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/flowboard/flowboard/internal/task"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTasks() []*task.Task {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := task.New("A", "first task", nil)
	a.CreatedAt = base
	a.Stage = task.StageDone
	a.Artifact = "func a() {}"
	a.ReviewNotes = "fine"
	a.History = []task.AuditEntry{
		{ToStage: task.StageBacklog, Timestamp: base, Note: "created"},
		{FromStage: task.StageBacklog, ToStage: task.StageInProgress, Timestamp: base.Add(time.Minute)},
		{FromStage: task.StageInProgress, ToStage: task.StageReview, Timestamp: base.Add(2 * time.Minute)},
		{FromStage: task.StageReview, ToStage: task.StageDone, Timestamp: base.Add(3 * time.Minute)},
	}

	b := task.New("B", "second task", []string{a.ID})
	b.CreatedAt = base.Add(time.Second)
	b.RetryCount = 2
	b.History = []task.AuditEntry{
		{ToStage: task.StageBacklog, Timestamp: base.Add(time.Second), Note: "created"},
	}

	return []*task.Task{a, b}
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tasks := sampleTasks()

	if err := s.Save(ctx, tasks); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d tasks, want 2", len(loaded))
	}

	// Ordered by creation time.
	a, b := loaded[0], loaded[1]
	if a.ID != tasks[0].ID || b.ID != tasks[1].ID {
		t.Fatalf("order = %s, %s", a.ID, b.ID)
	}

	if a.Stage != task.StageDone {
		t.Errorf("a.Stage = %q", a.Stage)
	}
	if a.Artifact != "func a() {}" || a.ReviewNotes != "fine" {
		t.Errorf("a artifact/notes = %q / %q", a.Artifact, a.ReviewNotes)
	}
	if len(a.History) != 4 {
		t.Fatalf("a.History length = %d", len(a.History))
	}
	if a.History[0].Note != "created" || a.History[0].FromStage != "" {
		t.Errorf("a.History[0] = %+v", a.History[0])
	}
	if a.History[3].ToStage != task.StageDone {
		t.Errorf("a.History[3] = %+v", a.History[3])
	}
	if !a.History[1].Timestamp.Equal(tasks[0].History[1].Timestamp) {
		t.Errorf("timestamp drift: %v vs %v", a.History[1].Timestamp, tasks[0].History[1].Timestamp)
	}

	if b.RetryCount != 2 {
		t.Errorf("b.RetryCount = %d", b.RetryCount)
	}
	if len(b.DependsOn) != 1 || b.DependsOn[0] != a.ID {
		t.Errorf("b.DependsOn = %v", b.DependsOn)
	}
}

func TestSQLiteStore_SaveReplacesSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, sampleTasks()); err != nil {
		t.Fatal(err)
	}

	only := task.New("solo", "d", nil)
	only.History = []task.AuditEntry{{ToStage: task.StageBacklog, Timestamp: time.Now(), Note: "created"}}
	if err := s.Save(ctx, []*task.Task{only}); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].ID != only.ID {
		t.Fatalf("loaded = %v; Save must replace, not append", loaded)
	}
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	s := newTestStore(t)

	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded = %v", loaded)
	}
}

func TestSQLiteStore_SaveEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, sampleTasks()); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, nil); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded = %v after saving empty snapshot", loaded)
	}
}

func TestSQLiteStore_ImplementsStore(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*JSONStore)(nil)
	var _ Store = NullStore{}
}

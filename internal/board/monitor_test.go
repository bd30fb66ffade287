package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowboard/flowboard/internal/hooks"
	"github.com/flowboard/flowboard/internal/task"
)

func TestStaleMonitor_FiresStaleHook(t *testing.T) {
	clk := newFakeClock()
	b := newTestBoard(t, 3, WithClock(clk.Now))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk, _ := b.CreateTask(ctx, "t", "d", nil)
	b.StartWork(ctx, tk.ID)
	clk.Advance(10 * time.Minute)

	staleCh := make(chan *task.Task, 10)
	b.Hooks().Register(hooks.EventStaleTask, func(_ context.Context, st *task.Task) error {
		staleCh <- st
		return nil
	})

	m := NewStaleMonitor(b, 5*time.Minute, 10*time.Millisecond, testLogger())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case st := <-staleCh:
		if st.ID != tk.ID {
			t.Errorf("stale task = %q, want %q", st.ID, tk.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never fired on_stale_task")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancellation")
	}
}

func TestStaleMonitor_NoFireWhenNothingStale(t *testing.T) {
	clk := newFakeClock()
	b := newTestBoard(t, 3, WithClock(clk.Now))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk, _ := b.CreateTask(ctx, "t", "d", nil)
	b.StartWork(ctx, tk.ID)

	fired := make(chan struct{}, 1)
	b.Hooks().Register(hooks.EventStaleTask, func(context.Context, *task.Task) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})

	m := NewStaleMonitor(b, time.Hour, 10*time.Millisecond, testLogger())
	go m.Run(ctx)

	select {
	case <-fired:
		t.Fatal("fired on_stale_task for a fresh task")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStaleMonitor_CancelDuringSleep(t *testing.T) {
	b := newTestBoard(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	m := NewStaleMonitor(b, time.Minute, time.Hour, testLogger())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor did not unwind promptly mid-sleep")
	}
}

func TestStaleMonitor_SurvivesFailingListener(t *testing.T) {
	clk := newFakeClock()
	b := newTestBoard(t, 3, WithClock(clk.Now))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk, _ := b.CreateTask(ctx, "t", "d", nil)
	b.StartWork(ctx, tk.ID)
	clk.Advance(time.Hour)

	staleCh := make(chan string, 10)
	b.Hooks().Register(hooks.EventStaleTask, func(context.Context, *task.Task) error {
		return errors.New("pager down")
	})
	b.Hooks().Register(hooks.EventStaleTask, func(_ context.Context, st *task.Task) error {
		staleCh <- st.ID
		return nil
	})

	m := NewStaleMonitor(b, time.Minute, 10*time.Millisecond, testLogger())
	go m.Run(ctx)

	// The failing sibling must not stop dispatch, and the monitor keeps
	// ticking: expect at least two dispatches.
	for i := 0; i < 2; i++ {
		select {
		case <-staleCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("dispatch %d never happened", i+1)
		}
	}
}

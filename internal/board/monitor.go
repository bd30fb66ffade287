package board

import (
	"context"
	"time"

	"github.com/flowboard/flowboard/internal/hooks"
	"github.com/flowboard/flowboard/internal/observability"
)

// StaleMonitor periodically asks the board for tasks stuck in
// in_progress and fires an on_stale_task hook per task found.
//
// It holds no lock of its own: each tick costs one FindStale read plus
// hook dispatch. A failing tick is logged and the loop continues; only
// context cancellation stops it.
type StaleMonitor struct {
	board     *Board
	threshold time.Duration
	interval  time.Duration
	log       *observability.Logger
	metrics   *observability.MetricsCollector
}

// NewStaleMonitor creates a monitor for the given board.
func NewStaleMonitor(b *Board, threshold, interval time.Duration, log *observability.Logger) *StaleMonitor {
	if log == nil {
		log = observability.NewLogger("stale-monitor", nil)
	}
	return &StaleMonitor{
		board:     b,
		threshold: threshold,
		interval:  interval,
		log:       log,
		metrics:   b.metrics,
	}
}

// Run polls until ctx is cancelled. The first check happens only after
// one full interval has elapsed. Run blocks; start it in a goroutine.
func (m *StaleMonitor) Run(ctx context.Context) error {
	m.log.Info("stale monitor started",
		"threshold", m.threshold.String(),
		"interval", m.interval.String(),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("stale monitor stopped")
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one poll-and-dispatch cycle. A panic from the scan or
// dispatch is contained so the monitor survives to the next tick.
func (m *StaleMonitor) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Error("stale monitor tick panicked", "panic", rec)
		}
	}()

	stale := m.board.FindStale(m.threshold)
	if len(stale) == 0 {
		return
	}

	m.log.Warn("stale tasks detected", "count", len(stale))
	if m.metrics != nil {
		m.metrics.Record(observability.MetricStale, float64(len(stale)), nil)
	}
	for _, t := range stale {
		m.board.hooks.Fire(ctx, hooks.EventStaleTask, t)
	}
}

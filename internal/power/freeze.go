package power

import (
	"context"
	"log/slog"
	"time"

	"github.com/punchd/punchd/internal/clock"
	"github.com/punchd/punchd/internal/session"
)

// FreezeWatcher notices that the process lost the CPU for much longer than
// one tick, which is how suspend or hibernate shows up on platforms without
// a power signal. On thaw it emits a resume boundary so reconciliation runs;
// where a real power monitor also fired, the second reconcile is a no-op.
type FreezeWatcher struct {
	Interval time.Duration // tick cadence, default 1s
	Slack    time.Duration // tolerated scheduling delay, default 5s
	Clock    clock.Clock
	Logger   *slog.Logger
}

func (w *FreezeWatcher) Name() string { return "freeze" }

func (w *FreezeWatcher) Run(ctx context.Context, emit func(Boundary)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	slack := w.Slack
	if slack <= 0 {
		slack = 5 * time.Second
	}
	clk := w.Clock
	if clk == nil {
		clk = clock.System()
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := clk.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := clk.Now()
			if gap := now.Sub(last); gap > interval+slack {
				logger.Info("tick gap detected, assuming thaw", "gap", gap)
				emit(Boundary{Kind: IdleEnd, Source: session.SourceResume, At: now})
			}
			last = now
		}
	}
}

package power

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/punchd/punchd/internal/session"
)

// InputWatcher polls the input idle probe and turns threshold crossings into
// boundaries: user-inactive when the reading climbs past Threshold,
// user-active when the reading falls back (input resumed). Every reading is
// also passed to OnSample when set, so the owner can publish it.
type InputWatcher struct {
	Probe     Probe
	Interval  time.Duration // poll cadence, default 1s
	Threshold time.Duration // inactivity boundary, default 60s
	Logger    *slog.Logger

	OnSample func(time.Duration)
}

func (w *InputWatcher) Name() string { return "input-idle" }

func (w *InputWatcher) Run(ctx context.Context, emit func(Boundary)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	threshold := w.Threshold
	if threshold <= 0 {
		threshold = time.Minute
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if w.Probe == nil {
		return ErrProbeUnsupported
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		prev    time.Duration
		inIdle  bool
		errOnce bool
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			idle, err := w.Probe.IdleDuration()
			if err != nil {
				if errors.Is(err, ErrProbeUnsupported) {
					logger.Info("input idle probe unsupported, watcher disabled")
					return err
				}
				if !errOnce {
					logger.Warn("input idle probe failed", "error", err)
					errOnce = true
				}
				continue
			}
			errOnce = false

			if w.OnSample != nil {
				w.OnSample(idle)
			}

			switch {
			case !inIdle && idle >= threshold:
				inIdle = true
				emit(Boundary{Kind: IdleStart, Source: session.SourceUserInactive, At: time.Now()})
			case inIdle && idle < prev:
				inIdle = false
				emit(Boundary{Kind: IdleEnd, Source: session.SourceUserActive, At: time.Now()})
			}
			prev = idle
		}
	}
}

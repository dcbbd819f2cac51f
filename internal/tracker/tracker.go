package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/punchd/punchd/internal/clock"
	"github.com/punchd/punchd/internal/feed"
	"github.com/punchd/punchd/internal/journal"
	"github.com/punchd/punchd/internal/metrics"
	"github.com/punchd/punchd/internal/power"
	"github.com/punchd/punchd/internal/session"
	"github.com/punchd/punchd/internal/statestore"
)

var (
	// ErrAlreadyRunning is returned by StartTracking while a session is active.
	ErrAlreadyRunning = errors.New("a session is already running")
	// ErrNotRunning is returned by StopTracking when no session is active.
	ErrNotRunning = errors.New("no session is running")
)

// Config holds the tunable gap thresholds and the heartbeat cadence.
type Config struct {
	// IdleThreshold is the largest gap a running session survives.
	IdleThreshold time.Duration
	// TamperThreshold is the largest wall/monotonic divergence treated as
	// ordinary clock drift rather than a clock adjustment.
	TamperThreshold time.Duration
	// HeartbeatEvery is the activity refresh cadence.
	HeartbeatEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = time.Minute
	}
	if c.TamperThreshold <= 0 {
		c.TamperThreshold = 30 * time.Second
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = time.Second
	}
	return c
}

// Tracker owns the session lifecycle: it runs the heartbeat while a session
// is active, stamps idle boundaries reported by the power monitors, and
// reconciles activity gaps against the persisted record.
type Tracker struct {
	mu     sync.Mutex
	store  *statestore.Store
	clk    clock.Clock
	hub    *feed.Hub
	logger *slog.Logger
	cfg    Config

	procStartMs int64

	sinks []journal.Sink

	hb *heartbeat

	monCancel context.CancelFunc
	monWG     sync.WaitGroup
}

// New builds a Tracker on top of an opened record store. A nil clock means
// the system clock, a nil logger means slog.Default().
func New(store *statestore.Store, clk clock.Clock, cfg Config, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	hub := feed.NewHub()
	hub.OnDrop = func(k feed.Kind) { metrics.IncFeedDrop(string(k)) }
	return &Tracker{
		store:       store,
		clk:         clk,
		hub:         hub,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		procStartMs: clk.Now().UnixMilli(),
	}
}

// SetJournalSinks configures the sinks that receive session and idle events.
// Passing none clears the list.
func (t *Tracker) SetJournalSinks(sinks ...journal.Sink) {
	t.mu.Lock()
	t.sinks = append([]journal.Sink(nil), sinks...)
	t.mu.Unlock()
}

// UpdateConfig replaces the gap thresholds. The heartbeat cadence of a
// session that is already running is left untouched.
func (t *Tracker) UpdateConfig(cfg Config) {
	t.mu.Lock()
	t.cfg = cfg.withDefaults()
	t.mu.Unlock()
}

// Feed returns the hub carrying idle events and input samples.
func (t *Tracker) Feed() *feed.Hub { return t.hub }

// InstanceID returns the stable per-install identifier.
func (t *Tracker) InstanceID() string { return t.store.InstanceID() }

// StartTracking begins a session for the given external log id and returns
// the instance id. The start is committed synchronously so a crash right
// after the call still leaves a running record behind.
func (t *Tracker) StartTracking(logID, taskID string) (string, error) {
	if logID == "" {
		return "", errors.New("logId must not be empty")
	}
	t.mu.Lock()
	if t.hb != nil {
		t.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	now := t.clk.Now()
	nowMs := now.UnixMilli()
	monoMs := t.clk.Monotonic().Milliseconds()
	err := t.store.ForceWrite(func(s *statestore.State) {
		s.TimerRunning = true
		s.CurrentLogID = logID
		s.TaskID = taskID
		s.SessionStartedAt = nowMs
		s.ProcessStartTime = t.procStartMs
		s.LastActiveAt = nowMs
		s.LastActiveAtMono = monoMs
		s.LastEventSource = session.SourceHeartbeat
	})
	if err != nil {
		t.mu.Unlock()
		metrics.IncForcedWriteFailure()
		return "", fmt.Errorf("commit session start: %w", err)
	}
	hb := newHeartbeat(t.store, t.clk, t.cfg.HeartbeatEvery)
	hb.logID, hb.taskID, hb.startedAt = logID, taskID, now
	t.hb = hb
	hb.start()
	sinks := t.journalSinksLocked()
	instanceID := t.store.InstanceID()
	t.mu.Unlock()

	metrics.SetSessionRunning(true)
	t.logger.Info("tracking started", "logId", logID, "taskId", taskID)
	t.sendJournal(sinks, journal.Event{
		Type:       journal.EventStarted,
		OccurredAt: now.UTC(),
		InstanceID: instanceID,
		LogID:      logID,
		TaskID:     taskID,
	})
	return instanceID, nil
}

// StopTracking ends the running session. reportedIdle carries the final
// accumulated idle seconds a client chose to submit alongside the stop.
func (t *Tracker) StopTracking(reportedIdle *uint64) error {
	t.mu.Lock()
	if t.hb == nil {
		t.mu.Unlock()
		return ErrNotRunning
	}
	hb := t.hb
	t.hb = nil
	hb.stop()
	logID, taskID := hb.logID, hb.taskID
	err := t.store.ForceWrite(func(s *statestore.State) {
		s.TimerRunning = false
		s.CurrentLogID = ""
		s.TaskID = ""
		s.SessionStartedAt = 0
	})
	sinks := t.journalSinksLocked()
	instanceID := t.store.InstanceID()
	now := t.clk.Now()
	t.mu.Unlock()

	if err != nil {
		metrics.IncForcedWriteFailure()
		t.logger.Error("commit session stop failed", "logId", logID, "error", err)
	}
	metrics.SetSessionRunning(false)
	t.logger.Info("tracking stopped", "logId", logID)
	t.sendJournal(sinks, journal.Event{
		Type:                journal.EventStopped,
		OccurredAt:          now.UTC(),
		InstanceID:          instanceID,
		LogID:               logID,
		TaskID:              taskID,
		ReportedIdleSeconds: reportedIdle,
	})
	if err != nil {
		return fmt.Errorf("commit session stop: %w", err)
	}
	return nil
}

// Status describes the persisted record plus the in-memory session, if any.
type Status struct {
	Record  statestore.State `json:"record"`
	Session *session.Session `json:"session,omitempty"`
}

// Status returns a snapshot of the record and the running session.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Status{Record: t.store.State()}
	if t.hb != nil {
		st.Session = &session.Session{
			InstanceID: st.Record.InstanceID,
			LogID:      t.hb.logID,
			TaskID:     t.hb.taskID,
			StartedAt:  t.hb.startedAt,
			Running:    true,
		}
	}
	return st
}

// HandleBoundary reacts to one idle boundary from a power monitor or the
// input watcher. Idle starts are stamped into the record, idle ends trigger
// a reconciliation.
func (t *Tracker) HandleBoundary(b power.Boundary) {
	switch b.Kind {
	case power.IdleStart:
		t.markIdleStart(b.Source)
	case power.IdleEnd:
		t.logger.Debug("idle end observed", "source", b.Source)
		t.Reconcile()
	}
}

// markIdleStart pins the boundary source and the moment activity stopped.
// The write is synchronous: the process may be about to freeze or die.
func (t *Tracker) markIdleStart(src session.Source) {
	t.mu.Lock()
	nowMs := t.clk.Now().UnixMilli()
	monoMs := t.clk.Monotonic().Milliseconds()
	err := t.store.ForceWrite(func(s *statestore.State) {
		s.LastEventSource = src
		s.LastActiveAt = nowMs
		s.LastActiveAtMono = monoMs
	})
	t.mu.Unlock()
	if err != nil {
		metrics.IncForcedWriteFailure()
		t.logger.Error("idle-start commit failed", "source", src, "error", err)
		return
	}
	t.logger.Info("idle start", "source", src)
}

// PublishSample forwards one input idle reading to the feed. Samples are
// only meaningful while a session is running.
func (t *Tracker) PublishSample(idle time.Duration) {
	t.mu.Lock()
	hb := t.hb
	nowMs := t.clk.Now().UnixMilli()
	t.mu.Unlock()
	if hb == nil {
		return
	}
	t.hub.Publish(feed.NewSample(session.Sample{
		LogID:       hb.logID,
		IdleSeconds: uint64(idle / time.Second),
		At:          nowMs,
	}))
}

// StartMonitors runs each monitor until ctx is cancelled or Shutdown is
// called, feeding their boundaries into HandleBoundary.
func (t *Tracker) StartMonitors(ctx context.Context, monitors ...power.Monitor) {
	t.mu.Lock()
	if t.monCancel != nil {
		t.mu.Unlock()
		return
	}
	mctx, cancel := context.WithCancel(ctx)
	t.monCancel = cancel
	t.mu.Unlock()

	for _, mon := range monitors {
		if mon == nil {
			continue
		}
		t.monWG.Add(1)
		go func(m power.Monitor) {
			defer t.monWG.Done()
			if err := m.Run(mctx, t.HandleBoundary); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Warn("monitor stopped", "monitor", m.Name(), "error", err)
			}
		}(mon)
	}
}

// Shutdown stamps a shutdown boundary for a running session, stops the
// monitors and the heartbeat, and closes the feed. The record keeps
// timerRunning so the next start reconciles the gap.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	running := t.hb != nil
	cancel := t.monCancel
	t.monCancel = nil
	t.mu.Unlock()

	if running {
		t.markIdleStart(session.SourceShutdown)
	}
	if cancel != nil {
		cancel()
	}
	t.monWG.Wait()

	t.mu.Lock()
	if t.hb != nil {
		t.hb.stop()
		t.hb = nil
	}
	t.mu.Unlock()
	t.hub.Close()
}

func (t *Tracker) journalSinksLocked() []journal.Sink {
	return append([]journal.Sink(nil), t.sinks...)
}

func (t *Tracker) sendJournal(sinks []journal.Sink, ev journal.Event) {
	if len(sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range sinks {
		if err := s.Send(ctx, ev); err != nil {
			t.logger.Warn("journal send failed", "type", ev.Type, "error", err)
		}
	}
}

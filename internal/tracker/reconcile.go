package tracker

import (
	"time"

	"github.com/punchd/punchd/internal/feed"
	"github.com/punchd/punchd/internal/journal"
	"github.com/punchd/punchd/internal/metrics"
	"github.com/punchd/punchd/internal/session"
	"github.com/punchd/punchd/internal/statestore"
)

// Reconcile measures the gap since the last persisted activity and decides
// whether the running session survived it. Gaps within the idle threshold
// refresh the record; larger gaps close the session and emit exactly one
// idle event. Without a running record this is a no-op, so calling it twice
// for the same gap is safe.
func (t *Tracker) Reconcile() {
	t.mu.Lock()
	ev, taskID := t.reconcileLocked()
	sinks := t.journalSinksLocked()
	instanceID := t.store.InstanceID()
	t.mu.Unlock()
	t.emitIdle(ev, taskID, sinks, instanceID)
}

// Startup runs the once-per-process reconciliation and adopts a session
// that survived it, so a daemon restart inside a short gap does not orphan
// a running timer.
func (t *Tracker) Startup() {
	t.mu.Lock()
	ev, taskID := t.reconcileLocked()
	var adopted string
	if st := t.store.State(); st.TimerRunning && t.hb == nil {
		now := t.clk.Now()
		err := t.store.ForceWrite(func(s *statestore.State) {
			s.LastActiveAt = now.UnixMilli()
			s.LastActiveAtMono = t.clk.Monotonic().Milliseconds()
			s.LastEventSource = session.SourceHeartbeat
			s.ProcessStartTime = t.procStartMs
		})
		if err != nil {
			metrics.IncForcedWriteFailure()
			t.logger.Error("session adoption commit failed", "logId", st.CurrentLogID, "error", err)
		}
		hb := newHeartbeat(t.store, t.clk, t.cfg.HeartbeatEvery)
		hb.logID, hb.taskID = st.CurrentLogID, st.TaskID
		hb.startedAt = now
		if st.SessionStartedAt > 0 {
			hb.startedAt = time.UnixMilli(st.SessionStartedAt)
		}
		t.hb = hb
		hb.start()
		adopted = st.CurrentLogID
	}
	sinks := t.journalSinksLocked()
	instanceID := t.store.InstanceID()
	t.mu.Unlock()

	t.emitIdle(ev, taskID, sinks, instanceID)
	if adopted != "" {
		metrics.SetSessionRunning(true)
		t.logger.Info("adopted running session", "logId", adopted)
	}
}

// reconcileLocked applies the gap decision to the record and returns the
// idle event to emit, if any, along with the task id captured before the
// record was cleared.
func (t *Tracker) reconcileLocked() (*session.IdleEvent, string) {
	st := t.store.State()
	if !st.TimerRunning {
		metrics.IncReconcile(metrics.ReconcileNoop)
		return nil, ""
	}

	nowMs := t.clk.Now().UnixMilli()
	monoMs := t.clk.Monotonic().Milliseconds()

	systemGap := nowMs - st.LastActiveAt
	monotonicGap := monoMs - st.LastActiveAtMono

	gap := monotonicGap
	tampering := false
	if monoMs < st.LastActiveAtMono {
		// The monotonic scale restarted with the machine. Only the wall
		// clock still spans the gap, and tampering cannot be judged
		// against a dead scale.
		gap = systemGap
		t.logger.Info("monotonic scale restarted, measuring gap on wall clock",
			"systemGapMs", systemGap)
	} else {
		d := systemGap - monotonicGap
		if d < 0 {
			d = -d
		}
		tampering = d > t.cfg.TamperThreshold.Milliseconds()
	}
	if gap < 0 {
		gap = 0
	}

	if gap <= t.cfg.IdleThreshold.Milliseconds() {
		t.store.Put(func(s *statestore.State) {
			s.LastActiveAt = nowMs
			s.LastActiveAtMono = monoMs
			s.LastEventSource = session.SourceHeartbeat
		})
		metrics.IncReconcile(metrics.ReconcileResumed)
		t.logger.Debug("gap absorbed", "gapMs", gap, "clockTampering", tampering)
		return nil, ""
	}

	ev := &session.IdleEvent{
		IdleSeconds:    uint64(gap / 1000),
		Source:         st.LastEventSource,
		StartedAt:      st.LastActiveAt,
		EndedAt:        nowMs,
		LogID:          st.CurrentLogID,
		GapDetected:    true,
		ClockTampering: tampering,
	}

	if t.hb != nil {
		t.hb.stop()
		t.hb = nil
	}
	if err := t.store.ForceWrite(func(s *statestore.State) {
		s.TimerRunning = false
		s.CurrentLogID = ""
		s.TaskID = ""
		s.SessionStartedAt = 0
		s.LastActiveAt = nowMs
		s.LastActiveAtMono = monoMs
	}); err != nil {
		metrics.IncForcedWriteFailure()
		t.logger.Error("session close commit failed", "error", err)
	}
	metrics.IncReconcile(metrics.ReconcileClosed)
	return ev, st.TaskID
}

func (t *Tracker) emitIdle(ev *session.IdleEvent, taskID string, sinks []journal.Sink, instanceID string) {
	if ev == nil {
		return
	}
	t.hub.Publish(feed.NewIdleEvent(*ev))
	metrics.IncIdleEvent(string(ev.Source))
	metrics.ObserveIdleGap(float64(ev.IdleSeconds))
	if ev.ClockTampering {
		metrics.IncClockTampering()
	}
	metrics.SetSessionRunning(false)
	t.logger.Info("idle gap closed session",
		"idleSeconds", ev.IdleSeconds,
		"source", ev.Source,
		"clockTampering", ev.ClockTampering,
		"logId", ev.LogID)
	t.sendJournal(sinks, journal.Event{
		Type:       journal.EventIdle,
		OccurredAt: t.clk.Now().UTC(),
		InstanceID: instanceID,
		LogID:      ev.LogID,
		TaskID:     taskID,
		Idle:       ev,
	})
}

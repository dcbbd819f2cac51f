// Package accumulator merges the two idle signals a client sees into one
// per-session total: reconciled idle events for gaps the machine slept
// through, and 1 Hz input samples for time the user simply stepped away.
// A sample run that collapses back to zero is folded into the total once,
// and spans already counted by a reconciled event are not counted again.
package accumulator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/punchd/punchd/internal/clock"
	"github.com/punchd/punchd/internal/session"
)

const (
	recordFile = "idle_accumulator.json"

	// hardIdleFloorSeconds is the smallest reconciled gap counted as hard
	// idle, and the smallest sample run worth folding or displaying.
	hardIdleFloorSeconds = 60

	// suppressWindow guards against double counting when a reconciled
	// event arrives without a usable time window.
	suppressWindow = 2 * time.Second

	// maxFinalSeconds caps the submitted total at 48 hours.
	maxFinalSeconds = 48 * 60 * 60
)

// Window is a wall-clock span, in unix milliseconds, already counted by a
// reconciled idle event.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type sessionState struct {
	Accumulated   uint64   `json:"accumulatedIdleSeconds"`
	LastSample    uint64   `json:"lastIdleSample"`
	SuppressUntil int64    `json:"suppressUntil,omitempty"`
	Covered       []Window `json:"coveredWindows,omitempty"`
}

// Accumulator tracks idle totals per session log id and persists them so a
// client restart does not lose the count.
type Accumulator struct {
	mu     sync.Mutex
	path   string
	clk    clock.Clock
	logger *slog.Logger
	states map[string]*sessionState
}

// Open loads persisted totals from dir, starting fresh when the file is
// missing or unreadable.
func Open(dir string, clk clock.Clock, logger *slog.Logger) (*Accumulator, error) {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create accumulator dir: %w", err)
	}
	a := &Accumulator{
		path:   filepath.Join(dir, recordFile),
		clk:    clk,
		logger: logger,
		states: make(map[string]*sessionState),
	}
	raw, err := os.ReadFile(a.path)
	switch {
	case err == nil:
		if uerr := sonic.Unmarshal(raw, &a.states); uerr != nil {
			logger.Warn("idle totals unreadable, starting fresh", "path", a.path, "error", uerr)
			a.states = make(map[string]*sessionState)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read idle totals: %w", err)
	}
	return a, nil
}

func (a *Accumulator) state(logID string) *sessionState {
	st, ok := a.states[logID]
	if !ok {
		st = &sessionState{}
		a.states[logID] = st
	}
	return st
}

// ApplyEvent counts a reconciled idle event. Only events of at least a
// minute from a lock, suspend or shutdown boundary add hard idle; everything
// else is already covered by the sample stream.
func (a *Accumulator) ApplyEvent(ev session.IdleEvent) {
	if ev.LogID == "" || ev.IdleSeconds < hardIdleFloorSeconds || !ev.Source.HardIdle() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(ev.LogID)
	st.Accumulated += ev.IdleSeconds
	if ev.EndedAt > ev.StartedAt && ev.StartedAt > 0 {
		st.Covered = append(st.Covered, Window{Start: ev.StartedAt, End: ev.EndedAt})
	} else {
		st.SuppressUntil = a.clk.Now().Add(suppressWindow).UnixMilli()
	}
	a.saveLocked()
}

// ApplySample feeds one input idle reading. A drop below the previous
// reading folds the finished run into the total, minus any span a
// reconciled event already counted.
func (a *Accumulator) ApplySample(sm session.Sample) {
	if sm.LogID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(sm.LogID)
	prev := st.LastSample
	st.LastSample = sm.IdleSeconds
	if sm.IdleSeconds >= prev || prev < hardIdleFloorSeconds {
		a.saveLocked()
		return
	}

	at := sm.At
	if at == 0 {
		at = a.clk.Now().UnixMilli()
	}
	if at >= st.SuppressUntil {
		spanStart := at - int64(prev)*1000
		fold := int64(prev) - overlapSeconds(spanStart, at, st.Covered)
		if fold > 0 {
			st.Accumulated += uint64(fold)
		}
	}
	st.Covered = nil
	st.SuppressUntil = 0
	a.saveLocked()
}

// overlapSeconds returns how much of [spanStart, spanEnd] the covered
// windows already account for.
func overlapSeconds(spanStart, spanEnd int64, ws []Window) int64 {
	var total int64
	for _, w := range ws {
		s, e := w.Start, w.End
		if s < spanStart {
			s = spanStart
		}
		if e > spanEnd {
			e = spanEnd
		}
		if e > s {
			total += e - s
		}
	}
	return total / 1000
}

// Accumulated returns the folded total for a session.
func (a *Accumulator) Accumulated(logID string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[logID]; ok {
		return st.Accumulated
	}
	return 0
}

// Displayed returns the total a client should show right now: the folded
// idle plus the current run once it is long enough to matter.
func (a *Accumulator) Displayed(logID string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[logID]
	if !ok {
		return 0
	}
	v := st.Accumulated
	if st.LastSample >= hardIdleFloorSeconds {
		v += st.LastSample
	}
	return v
}

// Finalize closes out a session: the displayed total is clamped to the
// session duration, capped at 48 hours, and the session entry is dropped.
func (a *Accumulator) Finalize(logID string, sessionDuration time.Duration) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[logID]
	if !ok {
		return 0
	}
	v := st.Accumulated
	if st.LastSample >= hardIdleFloorSeconds {
		v += st.LastSample
	}
	if sessionDuration < 0 {
		sessionDuration = 0
	}
	if limit := uint64(sessionDuration / time.Second); v > limit {
		v = limit
	}
	if v > maxFinalSeconds {
		v = maxFinalSeconds
	}
	delete(a.states, logID)
	a.saveLocked()
	return v
}

// saveLocked writes the totals through a temp file swap so a crash mid-write
// leaves the previous file intact.
func (a *Accumulator) saveLocked() {
	raw, err := sonic.MarshalIndent(a.states, "", "  ")
	if err != nil {
		a.logger.Warn("encode idle totals failed", "error", err)
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".idle_accumulator-*.tmp")
	if err != nil {
		a.logger.Warn("persist idle totals failed", "error", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		a.logger.Warn("persist idle totals failed", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		a.logger.Warn("persist idle totals failed", "error", err)
		return
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		_ = os.Remove(tmpName)
		a.logger.Warn("persist idle totals failed", "error", err)
	}
}

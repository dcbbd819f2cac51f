package accumulator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchd/punchd/internal/clock"
	"github.com/punchd/punchd/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAccumulator(t *testing.T, clk *clock.Manual) *Accumulator {
	t.Helper()
	a, err := Open(t.TempDir(), clk, discardLogger())
	require.NoError(t, err)
	return a
}

func sampleAt(clk *clock.Manual, logID string, seconds uint64) session.Sample {
	return session.Sample{LogID: logID, IdleSeconds: seconds, At: clk.Now().UnixMilli()}
}

func TestSoftSampleRunFoldsOnce(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	for _, s := range []uint64{0, 5, 30, 65, 70, 2, 0} {
		a.ApplySample(sampleAt(clk, "log-1", s))
		clk.Advance(time.Second)
	}

	assert.Equal(t, uint64(70), a.Accumulated("log-1"))
}

func TestShortRunNotFolded(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	for _, s := range []uint64{0, 20, 40, 59, 3, 0} {
		a.ApplySample(sampleAt(clk, "log-1", s))
		clk.Advance(time.Second)
	}

	assert.Equal(t, uint64(0), a.Accumulated("log-1"))
}

func TestHardEventAddsOnlyHardSources(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	now := clk.Now().UnixMilli()
	a.ApplyEvent(session.IdleEvent{
		LogID: "log-1", IdleSeconds: 120, Source: session.SourceSuspend,
		StartedAt: now - 120_000, EndedAt: now, GapDetected: true,
	})
	assert.Equal(t, uint64(120), a.Accumulated("log-1"))

	// Below the floor or from a soft source: not counted here.
	a.ApplyEvent(session.IdleEvent{LogID: "log-1", IdleSeconds: 30, Source: session.SourceSuspend})
	a.ApplyEvent(session.IdleEvent{LogID: "log-1", IdleSeconds: 300, Source: session.SourceUserInactive})
	assert.Equal(t, uint64(120), a.Accumulated("log-1"))
}

func TestFoldSkipsSpanCoveredByEvent(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	// The user walks away; samples climb to 40s, then the machine sleeps
	// for 120s. The input counter keeps running through the sleep, so the
	// post-resume samples continue where the whole absence left off.
	for _, s := range []uint64{0, 20, 40} {
		a.ApplySample(sampleAt(clk, "log-1", s))
		clk.Advance(20 * time.Second)
	}
	suspendStart := clk.Now().UnixMilli()
	clk.Advance(120 * time.Second)
	a.ApplyEvent(session.IdleEvent{
		LogID: "log-1", IdleSeconds: 120, Source: session.SourceSuspend,
		StartedAt: suspendStart, EndedAt: clk.Now().UnixMilli(), GapDetected: true,
	})
	assert.Equal(t, uint64(120), a.Accumulated("log-1"))

	a.ApplySample(sampleAt(clk, "log-1", 180))
	clk.Advance(time.Second)
	a.ApplySample(sampleAt(clk, "log-1", 181))
	clk.Advance(time.Second)
	a.ApplySample(sampleAt(clk, "log-1", 0))

	// 181s counted in total: 120 by the event, 61 by the fold.
	assert.Equal(t, uint64(181), a.Accumulated("log-1"))
}

func TestFoldSuppressedRightAfterWindowlessEvent(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	a.ApplySample(sampleAt(clk, "log-1", 80))
	a.ApplyEvent(session.IdleEvent{LogID: "log-1", IdleSeconds: 90, Source: session.SourceLock})
	assert.Equal(t, uint64(90), a.Accumulated("log-1"))

	// The event carried no window, so the fold arriving within the guard
	// window is assumed to be the same gap.
	clk.Advance(time.Second)
	a.ApplySample(sampleAt(clk, "log-1", 0))
	assert.Equal(t, uint64(90), a.Accumulated("log-1"))

	// A later run folds normally again.
	a.ApplySample(sampleAt(clk, "log-1", 75))
	clk.Advance(3 * time.Second)
	a.ApplySample(sampleAt(clk, "log-1", 0))
	assert.Equal(t, uint64(165), a.Accumulated("log-1"))
}

func TestDisplayedIncludesLongCurrentRun(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	a.ApplyEvent(session.IdleEvent{
		LogID: "log-1", IdleSeconds: 70, Source: session.SourceLock,
		StartedAt: 1, EndedAt: 70_001,
	})
	a.ApplySample(sampleAt(clk, "log-1", 30))
	assert.Equal(t, uint64(70), a.Displayed("log-1"))

	a.ApplySample(sampleAt(clk, "log-1", 65))
	assert.Equal(t, uint64(135), a.Displayed("log-1"))
}

func TestFinalizeClampsAndDropsSession(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	a.ApplyEvent(session.IdleEvent{
		LogID: "log-1", IdleSeconds: 500, Source: session.SourceSuspend,
		StartedAt: 1, EndedAt: 500_001,
	})
	got := a.Finalize("log-1", 300*time.Second)
	assert.Equal(t, uint64(300), got)
	assert.Equal(t, uint64(0), a.Accumulated("log-1"))

	a.ApplyEvent(session.IdleEvent{
		LogID: "log-2", IdleSeconds: 200_000, Source: session.SourceSuspend,
		StartedAt: 1, EndedAt: 200_000_001,
	})
	got = a.Finalize("log-2", 300_000*time.Second)
	assert.Equal(t, uint64(maxFinalSeconds), got)
}

func TestTotalsSurviveReopen(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	dir := t.TempDir()

	a, err := Open(dir, clk, discardLogger())
	require.NoError(t, err)
	a.ApplyEvent(session.IdleEvent{
		LogID: "log-1", IdleSeconds: 90, Source: session.SourceShutdown,
		StartedAt: 1, EndedAt: 90_001,
	})

	b, err := Open(dir, clk, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(90), b.Accumulated("log-1"))
}

func TestSessionsAreIndependent(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	a := newTestAccumulator(t, clk)

	a.ApplyEvent(session.IdleEvent{
		LogID: "log-1", IdleSeconds: 100, Source: session.SourceLock,
		StartedAt: 1, EndedAt: 100_001,
	})
	assert.Equal(t, uint64(100), a.Accumulated("log-1"))
	assert.Equal(t, uint64(0), a.Accumulated("log-2"))
}

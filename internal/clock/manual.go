package clock

import (
	"sync"
	"time"
)

// Manual is a hand-advanced Clock for tests.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	mono time.Duration
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Monotonic() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mono
}

// Advance moves the wall clock and the monotonic reading together, the way
// real time passes.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.mono += d
}

// AdvanceWall moves only the wall clock, the way a clock adjustment does.
func (m *Manual) AdvanceWall(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// SetMonotonic overwrites the monotonic reading, the way a reboot does.
func (m *Manual) SetMonotonic(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mono = d
}

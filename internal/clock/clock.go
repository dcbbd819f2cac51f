// Package clock supplies the two time sources gap measurement compares: the
// system wall clock and a monotonic reading that keeps counting across
// suspend where the platform can provide one.
package clock

import "time"

// Clock is the time source pair injected into components that measure gaps.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// Monotonic returns a reading that never goes backwards and is immune
	// to wall-clock adjustment. Where the platform source covers sleep
	// (CLOCK_BOOTTIME, GetTickCount64) the reading also advances while the
	// machine is suspended.
	Monotonic() time.Duration
}

type systemClock struct {
	start time.Time
}

// System returns the platform clock. On Linux the monotonic reading comes
// from CLOCK_BOOTTIME, on Windows from GetTickCount64; elsewhere it degrades
// to process uptime, which restarts with the process.
func System() Clock {
	return systemClock{start: time.Now()}
}

func (c systemClock) Now() time.Time { return time.Now() }

func (c systemClock) Monotonic() time.Duration {
	if d, ok := bootMonotonic(); ok {
		return d
	}
	return time.Since(c.start)
}

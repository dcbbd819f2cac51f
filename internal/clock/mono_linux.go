//go:build linux

package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// bootMonotonic reads CLOCK_BOOTTIME, which includes time spent suspended.
func bootMonotonic() (time.Duration, bool) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0, false
	}
	return time.Duration(ts.Nano()), true
}

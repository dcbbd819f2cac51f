//go:build windows

package clock

import (
	"syscall"
	"time"
)

var (
	kernel32       = syscall.NewLazyDLL("kernel32.dll")
	getTickCount64 = kernel32.NewProc("GetTickCount64")
)

// bootMonotonic reads GetTickCount64, which includes time spent suspended.
func bootMonotonic() (time.Duration, bool) {
	ticks, _, _ := getTickCount64.Call()
	if ticks == 0 {
		return 0, false
	}
	return time.Duration(ticks) * time.Millisecond, true
}

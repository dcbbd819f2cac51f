//go:build !linux

package power

import "log/slog"

// OSMonitors returns the power monitors available on this platform. Where no
// native power signal source is wired up, the freeze watcher covers suspend
// detection.
func OSMonitors(_ *slog.Logger) []Monitor {
	return nil
}

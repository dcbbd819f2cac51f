//go:build linux

package power

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/punchd/punchd/internal/session"
)

// DBusMonitor turns logind sleep/shutdown signals and desktop screensaver
// lock signals into boundaries. Lock detection is best effort: desktops
// disagree on the screensaver interface, so both the freedesktop and the
// GNOME names are matched.
type DBusMonitor struct {
	Logger *slog.Logger
}

func (m *DBusMonitor) Name() string { return "dbus" }

func (m *DBusMonitor) Run(ctx context.Context, emit func(Boundary)) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	system, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	defer func() { _ = system.Close() }()

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		if err := system.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember(member),
		); err != nil {
			return fmt.Errorf("match %s: %w", member, err)
		}
	}
	sysCh := make(chan *dbus.Signal, 16)
	system.Signal(sysCh)

	var sesCh chan *dbus.Signal
	sessionBus, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.Info("session bus unavailable, lock signals disabled", "error", err)
	} else {
		defer func() { _ = sessionBus.Close() }()
		for _, iface := range []string{"org.freedesktop.ScreenSaver", "org.gnome.ScreenSaver"} {
			if err := sessionBus.AddMatchSignal(
				dbus.WithMatchInterface(iface),
				dbus.WithMatchMember("ActiveChanged"),
			); err != nil {
				logger.Debug("screensaver match failed", "interface", iface, "error", err)
			}
		}
		sesCh = make(chan *dbus.Signal, 16)
		sessionBus.Signal(sesCh)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sysCh:
			if !ok {
				return nil
			}
			m.handleSignal(sig, emit)
		case sig, ok := <-sesCh:
			if !ok {
				sesCh = nil
				continue
			}
			m.handleSignal(sig, emit)
		}
	}
}

func (m *DBusMonitor) handleSignal(sig *dbus.Signal, emit func(Boundary)) {
	if sig == nil || len(sig.Body) == 0 {
		return
	}
	flag, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	now := time.Now()

	switch {
	case sig.Name == "org.freedesktop.login1.Manager.PrepareForSleep":
		if flag {
			emit(Boundary{Kind: IdleStart, Source: session.SourceSuspend, At: now})
		} else {
			emit(Boundary{Kind: IdleEnd, Source: session.SourceResume, At: now})
		}
	case sig.Name == "org.freedesktop.login1.Manager.PrepareForShutdown":
		if flag {
			emit(Boundary{Kind: IdleStart, Source: session.SourceShutdown, At: now})
		}
	case strings.HasSuffix(sig.Name, ".ActiveChanged"):
		if flag {
			emit(Boundary{Kind: IdleStart, Source: session.SourceLock, At: now})
		} else {
			emit(Boundary{Kind: IdleEnd, Source: session.SourceUnlock, At: now})
		}
	}
}

// OSMonitors returns the power monitors available on this platform.
func OSMonitors(logger *slog.Logger) []Monitor {
	return []Monitor{&DBusMonitor{Logger: logger}}
}

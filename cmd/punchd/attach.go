package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/punchd/punchd/internal/accumulator"
	"github.com/punchd/punchd/internal/clock"
	"github.com/punchd/punchd/internal/config"
	"github.com/punchd/punchd/internal/session"
	"github.com/punchd/punchd/pkg/client"
)

// Attach starts or adopts a session and follows the daemon's event stream,
// folding idle events and input samples into the local accumulator. Ctrl+C
// stops the session and submits the accumulated idle total.
func (c command) Attach(f AttachFlags) error {
	api, err := c.dial(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}

	dataDir := f.DataDir
	if dataDir == "" {
		cfg, err := config.Default()
		if err != nil {
			return err
		}
		dataDir = cfg.DataDir
	}
	acc, err := accumulator.Open(dataDir, clock.System(), quietLogger())
	if err != nil {
		return fmt.Errorf("open idle accumulator: %w", err)
	}

	// Subscribe before starting so the first samples are not missed.
	ctx := context.Background()
	fd, err := api.Feed(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = fd.Close() }()

	st, err := api.Status(ctx)
	if err != nil {
		return err
	}

	var (
		logID     string
		startedAt time.Time
	)
	switch {
	case st.Session != nil && st.Session.Running:
		if f.LogID != "" && f.LogID != st.Session.LogID {
			return fmt.Errorf("a session for %s is already running", st.Session.LogID)
		}
		logID = st.Session.LogID
		startedAt = st.Session.StartedAt
		fmt.Printf("Attached to running session %s\n", logID)
	case f.LogID == "":
		return fmt.Errorf("no session is running; --log-id is required to start one")
	default:
		if _, err := api.Start(ctx, f.LogID, f.TaskID); err != nil {
			return err
		}
		logID = f.LogID
		startedAt = time.Now()
		fmt.Printf("Tracking %s\n", logID)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	envCh := make(chan client.Envelope)
	errCh := make(chan error, 1)
	go func() {
		for {
			env, err := fd.Next()
			if err != nil {
				errCh <- err
				return
			}
			envCh <- env
		}
	}()

	view := newStatusView(os.Stdout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var currentIdle uint64
	redraw := func() {
		view.update(statusLine(logID, time.Since(startedAt), acc.Displayed(logID), currentIdle))
	}
	redraw()

	for {
		select {
		case env := <-envCh:
			switch env.Type {
			case client.KindSample:
				if env.Sample == nil || env.Sample.LogID != logID {
					continue
				}
				currentIdle = env.Sample.IdleSeconds
				acc.ApplySample(toSample(*env.Sample))
				redraw()
			case client.KindIdleEvent:
				if env.IdleEvent == nil || env.IdleEvent.LogID != logID {
					continue
				}
				return c.finishClosed(acc, *env.IdleEvent, startedAt)
			}

		case <-ticker.C:
			redraw()

		case err := <-errCh:
			view.done()
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Println("Daemon is shutting down; the session stays open and resumes with it")
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)

		case <-sigCh:
			view.done()
			total := acc.Finalize(logID, time.Since(startedAt))
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := api.Stop(stopCtx, &total)
			cancel()
			if err != nil {
				return err
			}
			fmt.Printf("Tracking stopped after %s (%d idle seconds submitted)\n",
				formatHMS(time.Since(startedAt)), total)
			return nil
		}
	}
}

// finishClosed handles the daemon closing the session after a reconciled gap.
func (c command) finishClosed(acc *accumulator.Accumulator, ev client.IdleEvent, startedAt time.Time) error {
	acc.ApplyEvent(toIdleEvent(ev))

	endedAt := time.UnixMilli(ev.EndedAt)
	away := time.Duration(ev.IdleSeconds) * time.Second
	fmt.Printf("Session closed by the daemon: away %s (%s)\n", formatHMS(away), ev.Source)
	if ev.ClockTampering {
		fmt.Println("Warning: the system clock changed during the absence; the monotonic gap was used")
	}

	total := acc.Finalize(ev.LogID, endedAt.Sub(startedAt))
	fmt.Printf("Tracked %s with %d idle seconds\n", formatHMS(endedAt.Sub(startedAt)), total)
	return nil
}

func toSample(sm client.Sample) session.Sample {
	return session.Sample{LogID: sm.LogID, IdleSeconds: sm.IdleSeconds, At: sm.At}
}

func toIdleEvent(ev client.IdleEvent) session.IdleEvent {
	return session.IdleEvent{
		IdleSeconds:    ev.IdleSeconds,
		Source:         session.Source(ev.Source),
		StartedAt:      ev.StartedAt,
		EndedAt:        ev.EndedAt,
		LogID:          ev.LogID,
		GapDetected:    ev.GapDetected,
		ClockTampering: ev.ClockTampering,
	}
}

// statusLine builds the single-line live view.
func statusLine(logID string, elapsed time.Duration, idleTotal, currentIdle uint64) string {
	line := fmt.Sprintf("▶ %s  elapsed %s  idle %s",
		logID, formatHMS(elapsed), formatHMS(time.Duration(idleTotal)*time.Second))
	if currentIdle > 0 {
		line += fmt.Sprintf("  (idle now %ds)", currentIdle)
	}
	return line
}

// statusView rewrites one terminal line in place; on a non-terminal it stays
// silent so piped output only carries the lifecycle messages.
type statusView struct {
	out   io.Writer
	tty   bool
	width int
}

func newStatusView(out *os.File) *statusView {
	fd := int(out.Fd())
	v := &statusView{out: out, tty: term.IsTerminal(fd)}
	if v.tty {
		if w, _, err := term.GetSize(fd); err == nil {
			v.width = w
		}
	}
	if v.width <= 0 {
		v.width = 80
	}
	return v
}

func (v *statusView) update(line string) {
	if !v.tty {
		return
	}
	line = runewidth.Truncate(line, v.width-1, "…")
	_, _ = fmt.Fprintf(v.out, "\r\033[K%s", line)
}

func (v *statusView) done() {
	if v.tty {
		_, _ = fmt.Fprint(v.out, "\r\033[K")
	}
}

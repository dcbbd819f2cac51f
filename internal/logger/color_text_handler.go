package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ColorTextHandler writes an ANSI-colored level prefix ahead of each line and
// delegates the record to a plain slog.TextHandler. The escape codes never
// enter the record, so the text handler's attribute quoting leaves them
// intact and color renders on a terminal.
type ColorTextHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	inner slog.Handler
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	return &ColorTextHandler{
		mu:    &sync.Mutex{},
		out:   w,
		inner: slog.NewTextHandler(w, opts),
	}
}

// Enabled implements slog.Handler
func (h *ColorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	// Pick color based on level
	var colorCode string
	switch r.Level {
	case slog.LevelDebug:
		colorCode = "\033[36m" // Cyan
	case slog.LevelInfo:
		colorCode = "\033[32m" // Green
	case slog.LevelWarn:
		colorCode = "\033[33m" // Yellow
	case slog.LevelError:
		colorCode = "\033[31m" // Red
	default:
		colorCode = "\033[0m" // Reset/default
	}

	// One lock spans the prefix and the record so concurrent lines do not
	// interleave.
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := fmt.Fprintf(h.out, "%s%s\033[0m  ", colorCode, r.Level.String()); err != nil {
		return err
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{mu: h.mu, out: h.out, inner: h.inner.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{mu: h.mu, out: h.out, inner: h.inner.WithGroup(name)}
}

package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const colorReset = "\033[0m"

// ColorTextHandler is a slog.TextHandler whose lines start with an ANSI
// colored level name. The prefix is written to the writer directly; the text
// handler would quote escape codes placed in the message.
type ColorTextHandler struct {
	inner    slog.Handler
	w        io.Writer
	mu       *sync.Mutex // shared by handlers derived with WithAttrs/WithGroup
	showTime bool
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	return &ColorTextHandler{inner: slog.NewTextHandler(w, opts), w: w, mu: &sync.Mutex{}, showTime: showTime}
}

func (h *ColorTextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.showTime {
		// slog handlers omit a zero time.
		r.Time = time.Time{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, levelColor(r.Level)+r.Level.String()+colorReset+" "); err != nil {
		return err
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs keeps the color wrapper; the embedded TextHandler would drop it.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{inner: h.inner.WithAttrs(attrs), w: h.w, mu: h.mu, showTime: h.showTime}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{inner: h.inner.WithGroup(name), w: h.w, mu: h.mu, showTime: h.showTime}
}

func levelColor(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "\033[36m" // Cyan
	case l < slog.LevelWarn:
		return "\033[32m" // Green
	case l < slog.LevelError:
		return "\033[33m" // Yellow
	default:
		return "\033[31m" // Red
	}
}

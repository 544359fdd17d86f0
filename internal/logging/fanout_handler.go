package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler writes each record to every sink whose level admits it. The
// daemon uses it to pair the console handler with the per-run JSON file.
type teeHandler []slog.Handler

func newTeeHandler(sinks ...slog.Handler) slog.Handler {
	var out teeHandler
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	switch len(out) {
	case 0:
		return NoopHandler{}
	case 1:
		return out[0]
	}
	return out
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range t {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, sink := range t {
		if !sink.Enabled(ctx, record.Level) {
			continue
		}
		// Handlers may retain the record's attrs, so each gets its own copy.
		if err := sink.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(sink slog.Handler) slog.Handler { return sink.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(sink slog.Handler) slog.Handler { return sink.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, sink := range t {
		next[i] = fn(sink)
	}
	return next
}

// TeeLogger returns a logger that writes to base's handler and each extra
// sink. Each sink keeps its own level.
func TeeLogger(base *slog.Logger, sinks ...slog.Handler) *slog.Logger {
	if base != nil {
		sinks = append([]slog.Handler{base.Handler()}, sinks...)
	}
	return slog.New(newTeeHandler(sinks...))
}

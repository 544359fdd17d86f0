package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatalf("expected NoopHandler when every sink is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newTeeHandler(nil, inner, nil); h != inner {
		t.Fatalf("expected single sink returned unwrapped")
	}
}

func TestTeeLoggerRespectsPerHandlerLevels(t *testing.T) {
	var console, file bytes.Buffer
	consoleLevel := new(slog.LevelVar)
	consoleLevel.Set(slog.LevelInfo)
	base := slog.New(newPrettyHandler(&console, consoleLevel, false))
	fileHandler := slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := TeeLogger(base, fileHandler)
	logger.Debug("only in file")
	logger.Info("in both", slog.String(FieldComponent, "workflow"))

	if strings.Contains(console.String(), "only in file") {
		t.Fatalf("console should filter debug, got %q", console.String())
	}
	if !strings.Contains(console.String(), "workflow: in both") {
		t.Fatalf("console missing info line, got %q", console.String())
	}
	if !strings.Contains(file.String(), "only in file") || !strings.Contains(file.String(), "in both") {
		t.Fatalf("file should receive both lines, got %q", file.String())
	}
}

func TestTeeLoggerCarriesGroupAttrs(t *testing.T) {
	var a, b bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewJSONHandler(&a, nil)), slog.NewJSONHandler(&b, nil))
	logger.With(slog.String(FieldGroupID, "2024.05.01-09.00.00")).Info("tick")
	for _, out := range []string{a.String(), b.String()} {
		if !strings.Contains(out, `"group_id":"2024.05.01-09.00.00"`) {
			t.Fatalf("expected group attr in %q", out)
		}
	}
}

type failingSink struct{ err error }

func (failingSink) Enabled(context.Context, slog.Level) bool    { return true }
func (f failingSink) Handle(context.Context, slog.Record) error { return f.err }
func (f failingSink) WithAttrs([]slog.Attr) slog.Handler        { return f }
func (f failingSink) WithGroup(string) slog.Handler             { return f }

func TestTeeHandlerKeepsWritingAfterSinkError(t *testing.T) {
	var buf bytes.Buffer
	diskFull := errors.New("disk full")
	h := newTeeHandler(failingSink{err: diskFull}, slog.NewJSONHandler(&buf, nil))
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "segment downloaded", 0))
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected sink error surfaced, got %v", err)
	}
	if !strings.Contains(buf.String(), "segment downloaded") {
		t.Fatalf("expected second sink to receive record, got %q", buf.String())
	}
}

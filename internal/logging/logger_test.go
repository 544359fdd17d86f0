package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/services"
)

func newFileLogger(t *testing.T) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	read := func() string {
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(data)
	}
	return logPath, read
}

func TestNewFromConfigWritesJSONRunLog(t *testing.T) {
	cfg := config.Default()
	logPath := filepath.Join(t.TempDir(), logging.RunLogName(time.Now()))

	logger, err := logging.NewFromConfig(cfg.Logging, "debug", logPath, false)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Debug("segment listed", logging.String(logging.FieldComponent, "download"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &payload); err != nil {
		t.Fatalf("run log should hold JSON records, got %q: %v", content, err)
	}
	if payload[logging.KeyLevel] != "debug" || payload[logging.FieldComponent] != "download" {
		t.Fatalf("unexpected run log record %v", payload)
	}
}

func TestNewFromConfigWithoutRunLog(t *testing.T) {
	logger, err := logging.NewFromConfig(config.Default().Logging, "", "", false)
	if err != nil || logger == nil {
		t.Fatalf("expected console logger, got %v, %v", logger, err)
	}
	cfg := config.Default().Logging
	cfg.Format = "xml"
	if _, err := logging.NewFromConfig(cfg, "", "", false); err == nil {
		t.Fatal("expected unknown console format rejected")
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := read(); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := read(); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersGroupNextToComponent(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithGroupID(context.Background(), "2024.05.01-10.00.00")
	ctx = services.WithStage(ctx, "combining")
	component := logging.NewComponentLogger(logger, "combine")
	logging.WithContext(ctx, component).Info("combine started", logging.Int("segments", 3))

	content := read()
	if !strings.Contains(content, "combine[2024.05.01-10.00.00]: combine started") {
		t.Fatalf("expected component and group prefix, got %q", content)
	}
	if !strings.Contains(content, "stage=combining") || !strings.Contains(content, "segments=3") {
		t.Fatalf("expected structured fields, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("disk low", logging.String(logging.FieldEventType, "disk_low"))

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if payload["level"] != "warn" || payload["msg"] != "disk low" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
}

func TestJSONRecordKeysWithSource(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", Development: true, OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("boundary resolved",
		logging.String("source", "interactive"),
		slog.Group("boundary", slog.String("msg", "kept")),
	)

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	src, _ := payload[logging.KeySource].(string)
	if !strings.HasPrefix(src, "logger_test.go:") {
		t.Fatalf("expected short source location, got %v", payload)
	}
	if payload["source"] != "interactive" || payload[logging.KeyMessage] != "boundary resolved" {
		t.Fatalf("caller attrs clobbered: %v", payload)
	}
	group, _ := payload["boundary"].(map[string]any)
	if group["msg"] != "kept" {
		t.Fatalf("grouped attrs should keep their keys, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "camera unreachable", "camera_unavailable", logging.Error(errors.New("dial tcp: timeout")))

	content := read()
	for _, fragment := range []string{"event_type=camera_unavailable", "error_hint=", "impact="} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
}

func TestComponentLevelsOverride(t *testing.T) {
	logPath, read := newFileLogger(t)
	levels := logging.NewComponentLevels("info", map[string]string{"download": "debug"})
	if levels.LowestName() != "debug" {
		t.Fatalf("expected lowest level debug, got %q", levels.LowestName())
	}
	base, err := logging.New(logging.Options{Format: "console", Level: levels.LowestName(), OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	levels.Logger(base, "download").Debug("download detail")
	levels.Logger(base, "combine").Debug("combine detail")

	content := read()
	if !strings.Contains(content, "download detail") {
		t.Fatalf("expected overridden component debug line, got %q", content)
	}
	if strings.Contains(content, "combine detail") {
		t.Fatalf("expected default component to filter debug, got %q", content)
	}
}

func TestPruneRunLogsKeepsCurrentRun(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	stale := filepath.Join(dir, logging.RunLogName(started))
	linked := filepath.Join(dir, logging.RunLogName(started.Add(time.Hour)))
	current := filepath.Join(dir, logging.RunLogName(started.Add(2*time.Hour)))
	fresh := filepath.Join(dir, logging.RunLogName(started.Add(3*time.Hour)))
	unrelated := filepath.Join(dir, "camera-notes.log")
	past := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{stale, linked, current, fresh, unrelated} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if path == fresh {
			continue
		}
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	pointer := filepath.Join(dir, "soccercam.log")
	if err := os.Symlink(linked, pointer); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	removed := logging.PruneRunLogs(logging.NewNop(), dir, 7, current, pointer)

	if removed != 1 {
		t.Fatalf("expected one run log removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale run log removed, stat err=%v", err)
	}
	for _, path := range []string{linked, current, fresh, unrelated} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", filepath.Base(path), err)
		}
	}
}

func TestPruneRunLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logging.RunLogName(time.Now()))
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().AddDate(0, -6, 0)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if removed := logging.PruneRunLogs(logging.NewNop(), dir, 0); removed != 0 {
		t.Fatalf("expected pruning disabled, removed %d", removed)
	}
}

func TestRunLogNameMatchesPattern(t *testing.T) {
	name := logging.RunLogName(time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("EDT", -4*3600)))
	if name != "soccercam-20240501T130000.000Z.log" {
		t.Fatalf("unexpected run log name %q", name)
	}
	if ok, _ := filepath.Match(logging.RunLogPattern, name); !ok {
		t.Fatalf("run log name %q does not match %q", name, logging.RunLogPattern)
	}
}

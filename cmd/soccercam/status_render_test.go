package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mblakley/soccer-cam/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Soccer-cam", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Soccer-cam:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Camera", statusOK, "Connected", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "FFmpeg", Available: false, Severity: "error"},
		{Name: "FFprobe", Available: true, Command: "ffprobe"},
	}
	summary := api.DependencySummary{Severity: "error", Detail: "1/2 available"}
	lines := dependencyLines(deps, summary, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[ERROR] 1/2 available") {
		t.Fatalf("expected summary line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not available") {
		t.Fatalf("expected error detail, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready (command: ffprobe)") {
		t.Fatalf("expected ready detail, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "Missing dependencies:") || !strings.Contains(lines[3], "FFmpeg") {
		t.Fatalf("expected missing dependencies line, got %q", lines[3])
	}
}

func TestBuildStageRowsFollowsLifecycle(t *testing.T) {
	rows := buildStageRows(map[string]int{
		"complete":            2,
		"error":               1,
		"downloading":         1,
		"awaiting_match_info": 0,
	})
	got := make([]string, 0, len(rows))
	for _, row := range rows {
		got = append(got, row[0]+"="+row[1])
	}
	want := "downloading=1 complete=2 error=1"
	if strings.Join(got, " ") != want {
		t.Fatalf("rows = %q, want %q", strings.Join(got, " "), want)
	}
}

func TestStageKind(t *testing.T) {
	cases := map[string]statusKind{
		"complete":             statusOK,
		"awaiting_match_info":  statusWarn,
		"resolving_boundaries": statusWarn,
		"combining":            statusInfo,
	}
	for stage, want := range cases {
		if got := stageKind(stage, false); got != want {
			t.Fatalf("stageKind(%s) = %v, want %v", stage, got, want)
		}
	}
	if stageKind("complete", true) != statusError {
		t.Fatal("failed groups render as errors")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.failedGroup(t)
	missing := filepath.Join(t.TempDir(), "absent.sock")

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== System Status ==")
	requireContains(t, out, "Not running")
	requireContains(t, out, "== Dependencies ==")
	requireContains(t, out, "error")

	out, _, err = runCLI(t, []string{"status", "--json"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var snapshot struct {
		Daemon api.DaemonStatus
	}
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if snapshot.Daemon.Running || snapshot.Daemon.Workflow.GroupsByStage["error"] != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot.Daemon)
	}
}

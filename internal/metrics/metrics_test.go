package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mblakley/soccer-cam/internal/state"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.DownloadFinished("downloaded", 2048)
	m.DownloadFinished("failed", 0)
	m.DownloadRetried()
	m.ToolRun("combine", 3*time.Second, nil)
	m.ToolRun("trim", time.Second, errors.New("exit status 1"))
	m.CameraEvent("connected")
	m.JobFailed("combine", "not_found")

	if got := testutil.ToFloat64(m.downloads.WithLabelValues("downloaded")); got != 1 {
		t.Fatalf("expected 1 downloaded, got %v", got)
	}
	if got := testutil.ToFloat64(m.downloadBytes); got != 2048 {
		t.Fatalf("expected 2048 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.toolRuns.WithLabelValues("trim", "failure")); got != 1 {
		t.Fatalf("expected 1 failed trim, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobFailures.WithLabelValues("combine", "not_found")); got != 1 {
		t.Fatalf("expected 1 combine job failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.cameraConnected); got != 1 {
		t.Fatalf("expected camera connected gauge 1, got %v", got)
	}

	refreshed := false
	handler := m.Handler(func() {
		refreshed = true
		m.SetGroupsByStage(map[string]int{"downloading": 2})
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !refreshed {
		t.Fatal("expected refresh before scrape")
	}
	if !strings.Contains(string(body), `soccercam_groups{stage="downloading"} 2`) {
		t.Fatalf("expected groups gauge in exposition, got:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Second)
	m.SegmentDiscovered()
	m.DownloadFinished("failed", 0)
	m.ToolRun("combine", time.Second, nil)
	m.JobFailed("trim", "configuration")
	m.SetGroupsByStage(map[string]int{"complete": 1})
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}

func TestObserverCountsTransitionsAndFailures(t *testing.T) {
	m := New()
	observe := m.Observer()

	before := state.Group{ID: "g", Stage: state.StageDownloaded}
	after := before
	after.Stage = state.StageCombining
	observe(before, after)

	failed := after
	failed.Error = &state.ErrorInfo{Stage: state.StageCombining, Reason: state.ReasonToolFailure}
	observe(after, failed)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("combining")); got != 1 {
		t.Fatalf("expected one combining transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.groupErrors.WithLabelValues("combining", state.ReasonToolFailure)); got != 1 {
		t.Fatalf("expected one failure, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.Observer()(before, after)
}

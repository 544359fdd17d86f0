package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/state"
)

func TestObserverRecordsLifecycle(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	store, err := state.Open(filepath.Join(dir, "groups"), state.WithObserver(j.Observer(nil)))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	id := state.GroupID(start)
	if _, err := store.Create(id, state.Segment{Name: "a", File: "a.mp4", Start: start, End: start.Add(time.Minute)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Update(id, func(g *state.Group) error {
		g.Stage = state.StageDownloading
		g.Segments[0].State = state.SegmentDownloaded
		g.Closed = true
		g.ClosedReason = state.ClosedQuiescent
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.Update(id, func(g *state.Group) error {
		g.Error = &state.ErrorInfo{Stage: state.StageDownloading, Reason: state.ReasonToolFailure, At: time.Now()}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.ResetError(id); err != nil {
		t.Fatalf("ResetError: %v", err)
	}

	entries, err := j.History(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var events []string
	for _, e := range entries {
		events = append(events, e.Event)
	}
	want := []string{
		journal.EventCreated,
		journal.EventStage,
		journal.EventClosed,
		journal.EventSegment,
		journal.EventError,
		journal.EventReset,
	}
	if len(events) != len(want) {
		t.Fatalf("unexpected events %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (all: %v)", i, events[i], want[i], events)
		}
	}
	if entries[1].FromStage != "discovering" || entries[1].ToStage != "downloading" {
		t.Fatalf("unexpected stage entry %+v", entries[1])
	}

	latest, err := j.History(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(latest) != 2 || latest[1].Event != journal.EventReset {
		t.Fatalf("expected newest two entries oldest first, got %+v", latest)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Record(context.Background(), journal.Entry{GroupID: "g", Event: journal.EventStage, ToStage: "combined"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = j.Close()

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.History(context.Background(), "g", 0)
	if err != nil || len(entries) != 1 || entries[0].ToStage != "combined" || entries[0].At.IsZero() {
		t.Fatalf("unexpected entries %+v (%v)", entries, err)
	}
}

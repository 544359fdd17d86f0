package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/api"
	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/state"
)

func seedStore(t *testing.T) (*state.Store, *journal.Journal, string) {
	t.Helper()
	j, err := journal.Open(t.TempDir() + "/journal.db")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	store, err := state.Open(t.TempDir(), state.WithObserver(j.Observer(nil)))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	id := state.GroupID(start)
	if _, err := store.Create(id, state.Segment{
		Name:  "2024-05-01/10.00.00-10.30.00.dav",
		File:  "10.00.00-10.30.00.mp4",
		Start: start,
		End:   start.Add(30 * time.Minute),
		State: state.SegmentDownloaded,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Update(id, func(g *state.Group) error {
		g.Closed = true
		g.ClosedReason = state.ClosedQuiescent
		g.Stage = state.StageCombining
		g.CombineAttempts = 3
		g.Error = &state.ErrorInfo{Stage: state.StageCombining, Reason: state.ReasonToolFailure, At: start}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return store, j, id
}

func TestGroupServiceListAndDescribe(t *testing.T) {
	store, j, id := seedStore(t)
	svc := api.NewGroupService(store, j, nil)
	ctx := context.Background()

	groups, err := svc.List(ctx)
	if err != nil || len(groups) != 1 {
		t.Fatalf("List = %v, %v", groups, err)
	}
	if groups[0].Label != "Failed in Combining (tool_failure)" {
		t.Fatalf("unexpected label %q", groups[0].Label)
	}

	filtered, err := svc.List(ctx, state.StageTrimming)
	if err != nil || len(filtered) != 0 {
		t.Fatalf("expected no trimming groups, got %v, %v", filtered, err)
	}

	resp, err := svc.Describe(ctx, id)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if resp.Group.Error == nil || resp.Group.Error.Reason != state.ReasonToolFailure {
		t.Fatalf("expected sticky error, got %+v", resp.Group.Error)
	}
	if _, err := svc.Describe(ctx, "1999.01.01-00.00.00"); !errors.Is(err, api.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestGroupServiceResetClearsErrorAndJournals(t *testing.T) {
	store, j, id := seedStore(t)
	svc := api.NewGroupService(store, j, nil)
	ctx := context.Background()

	resp, err := svc.Reset(ctx, id)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if resp.Group.Error != nil || resp.Group.Stage != string(state.StageCombining) || resp.Group.CombineAttempts != 0 {
		t.Fatalf("unexpected group after reset: %+v", resp.Group)
	}
	if _, err := svc.Reset(ctx, id); err == nil {
		t.Fatal("expected second reset to fail")
	}

	history, err := svc.History(ctx, id, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	last := history.Entries[len(history.Entries)-1]
	if last.Event != journal.EventReset {
		t.Fatalf("expected reset last, got %+v", history.Entries)
	}
}

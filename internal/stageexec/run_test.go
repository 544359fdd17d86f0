package stageexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/state"
)

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.events = append(r.events, event)
	return nil
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, Backoff: time.Minute, MaxBackoff: 5 * time.Minute}
	want := []time.Duration{0, time.Minute, 2 * time.Minute, 4 * time.Minute, 5 * time.Minute, 5 * time.Minute}
	for attempt, expected := range want {
		if got := p.Delay(attempt); got != expected {
			t.Fatalf("Delay(%d) = %s, want %s", attempt, got, expected)
		}
	}
}

func newGroup(t *testing.T) (*state.Store, string) {
	t.Helper()
	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	id := state.GroupID(start)
	if _, err := store.Create(id, state.Segment{Name: "a", File: "a.mp4", Start: start, End: start.Add(time.Minute)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Update(id, func(g *state.Group) error {
		g.Stage = state.StageCombining
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return store, id
}

func TestRunRetriesThenFailsSticky(t *testing.T) {
	store, id := newGroup(t)
	notifier := &recordingNotifier{}
	now := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	opts := Options{
		Store:     store,
		Notifier:  notifier,
		Stage:     state.StageCombining,
		Operation: "combine",
		GroupID:   id,
		Counter:   CombineAttempts,
		Policy:    Policy{MaxAttempts: 3, Backoff: time.Minute, MaxBackoff: time.Hour},
		Now:       func() time.Time { return now },
	}
	toolErr := services.Wrap(services.ErrExternalTool, "combine", "ffmpeg", "", errors.New("exit status 1"))
	fail := func(context.Context) error { return toolErr }

	err := Run(context.Background(), opts, fail)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected tool error, got %v", err)
	}
	if !Recorded(err) {
		t.Fatal("expected the failure to be marked as recorded")
	}
	g, _ := store.Get(id)
	if g.CombineAttempts != 1 || !g.NextAttemptAt.Equal(now.Add(time.Minute)) || g.Error != nil {
		t.Fatalf("unexpected group after first failure: %+v", g)
	}
	if Due(g, now) || !Due(g, now.Add(time.Minute)) {
		t.Fatal("retry should wait for the backoff")
	}

	_ = Run(context.Background(), opts, fail)
	g, _ = store.Get(id)
	if !g.NextAttemptAt.Equal(now.Add(2 * time.Minute)) {
		t.Fatalf("expected doubled backoff, got %s", g.NextAttemptAt)
	}

	_ = Run(context.Background(), opts, fail)
	g, _ = store.Get(id)
	if g.Error == nil || g.Error.Stage != state.StageCombining || g.Error.Reason != state.ReasonToolFailure {
		t.Fatalf("expected sticky tool failure, got %+v", g.Error)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventGroupFailed {
		t.Fatalf("expected one failure notification, got %v", notifier.events)
	}
}

func TestRunCancellationKeepsAttempts(t *testing.T) {
	store, id := newGroup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, Options{
		Store:   store,
		Stage:   state.StageCombining,
		GroupID: id,
		Counter: CombineAttempts,
		Policy:  Policy{MaxAttempts: 1},
	}, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if Recorded(err) {
		t.Fatal("cancellation should not be marked as recorded")
	}
	g, _ := store.Get(id)
	if g.CombineAttempts != 0 || g.Error != nil {
		t.Fatalf("cancellation should not count: %+v", g)
	}
}

func TestFailMissingInputIsSticky(t *testing.T) {
	store, id := newGroup(t)
	notifier := &recordingNotifier{}
	missing := services.Wrap(services.ErrNotFound, "combining", "combine", "segment file a.mp4 is missing", nil)
	err := Fail(context.Background(), Options{
		Store:     store,
		Notifier:  notifier,
		Stage:     state.StageCombining,
		Operation: "combine",
		GroupID:   id,
		Counter:   CombineAttempts,
		Policy:    Policy{MaxAttempts: 3, Backoff: time.Minute},
	}, missing)
	if !errors.Is(err, services.ErrNotFound) || !Recorded(err) {
		t.Fatalf("expected recorded not-found error, got %v", err)
	}
	g, _ := store.Get(id)
	if g.Error == nil || g.Error.Reason != string(services.KindNotFound) || g.CombineAttempts != 1 {
		t.Fatalf("expected sticky not_found error after one attempt, got %+v", g)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventGroupFailed {
		t.Fatalf("expected one failure notification, got %v", notifier.events)
	}
}

func TestRunSuccessLeavesGroupAlone(t *testing.T) {
	store, id := newGroup(t)
	before, _ := store.Get(id)
	if err := Run(context.Background(), Options{Store: store, GroupID: id, Counter: CombineAttempts}, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	after, _ := store.Get(id)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatal("successful step should not write the group")
	}
}

package boundary_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/mblakley/soccer-cam/internal/boundary"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/state"
)

const gameLength = 90 * time.Minute

type fakeChannel struct {
	polls   int
	enabled bool
	origin  time.Time
	prompts []notifications.Prompt
	feed    []notifications.Response
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{enabled: true, origin: time.Now().Add(time.Second)}
}

func (f *fakeChannel) Enabled() bool { return f.enabled }

func (f *fakeChannel) SendPrompt(_ context.Context, p notifications.Prompt) error {
	f.prompts = append(f.prompts, p)
	f.push(notifications.AnswerPrompted, p.Token)
	return nil
}

func (f *fakeChannel) PollResponses(context.Context) ([]notifications.Response, error) {
	f.polls++
	return append([]notifications.Response(nil), f.feed...), nil
}

func (f *fakeChannel) push(answer notifications.Answer, token string) {
	n := len(f.feed)
	f.feed = append(f.feed, notifications.Response{
		ID:     fmt.Sprintf("m%03d", n),
		Token:  token,
		Answer: answer,
		At:     f.origin.Add(time.Duration(n) * time.Second),
	})
}

func (f *fakeChannel) lastToken(side boundary.Side) string {
	for i := len(f.prompts) - 1; i >= 0; i-- {
		_, s, _, err := boundary.ParseToken(f.prompts[i].Token)
		if err == nil && s == side {
			return f.prompts[i].Token
		}
	}
	return ""
}

type fixedProber time.Duration

func (p fixedProber) Duration(context.Context, string) (time.Duration, error) {
	return time.Duration(p), nil
}

type fileSnapshotter struct{ taken []time.Duration }

func (s *fileSnapshotter) Snapshot(_ context.Context, _ string, at time.Duration, out string) error {
	s.taken = append(s.taken, at)
	return os.WriteFile(out, []byte("jpeg"), 0o644)
}

func resolvingGroup(t *testing.T, store *state.Store, info matchinfo.Info) state.Group {
	t.Helper()
	return resolvingGroupAt(t, store, time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local), info)
}

func resolvingGroupAt(t *testing.T, store *state.Store, start time.Time, info matchinfo.Info) state.Group {
	t.Helper()
	id := state.GroupID(start)
	if _, err := store.Create(id, state.Segment{
		Name:  "/mnt/sd/2024-05-01/10.00.00-11.30.00.dav",
		File:  "10.00.00-11.30.00.mp4",
		Start: start,
		End:   start.Add(gameLength),
		State: state.SegmentDownloaded,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := matchinfo.Save(store.GroupDir(id), info); err != nil {
		t.Fatalf("Save: %v", err)
	}
	group, err := store.Update(id, func(g *state.Group) error {
		g.Closed = true
		g.ClosedReason = state.ClosedQuiescent
		g.Stage = state.StageResolvingBoundaries
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return group
}

func newResolver(store *state.Store, channel notifications.BoundaryChannel, snaps *fileSnapshotter) *boundary.Resolver {
	return newResolverFor(store, channel, snaps, gameLength)
}

func newResolverFor(store *state.Store, channel notifications.BoundaryChannel, snaps *fileSnapshotter, duration time.Duration) *boundary.Resolver {
	opts := boundary.Options{
		Store:   store,
		Channel: channel,
		Prober:  fixedProber(duration),
		Config:  config.Boundary{StepSeconds: 300, DefaultGameMinutes: 90},
	}
	if snaps != nil {
		opts.Snapshots = snaps
	}
	return boundary.New(opts)
}

var teams = matchinfo.Info{Team: "FC United", Opponent: "City Kickers", Location: "Home Field"}

func TestInteractiveSearch(t *testing.T) {
	convey.Convey("Given a group waiting on interactive boundaries", t, func() {
		store, err := state.Open(t.TempDir())
		convey.So(err, convey.ShouldBeNil)
		group := resolvingGroup(t, store, teams)
		channel := newFakeChannel()
		snaps := &fileSnapshotter{}
		resolver := newResolver(store, channel, snaps)
		ctx := context.Background()

		tick := func() boundary.Result {
			current, _ := store.Get(group.ID)
			result, err := resolver.Resolve(ctx, current)
			convey.So(err, convey.ShouldBeNil)
			return result
		}

		result := tick()
		convey.So(result.Pending, convey.ShouldBeTrue)
		convey.So(len(channel.prompts), convey.ShouldEqual, 2)
		convey.So(channel.prompts[0].Token, convey.ShouldEqual, group.ID+"/start/0")
		convey.So(channel.prompts[1].Token, convey.ShouldEqual, group.ID+"/end/5400")
		convey.So(channel.prompts[0].ImagePath, convey.ShouldNotBeEmpty)

		convey.Convey("A quiet tick does not prompt again", func() {
			convey.So(tick().Pending, convey.ShouldBeTrue)
			convey.So(len(channel.prompts), convey.ShouldEqual, 2)
		})

		convey.Convey("Replies no, no, yes from the start settle the start at 10 minutes", func() {
			channel.push(notifications.AnswerNo, channel.lastToken(boundary.SideStart))
			tick()
			convey.So(channel.lastToken(boundary.SideStart), convey.ShouldEqual, group.ID+"/start/300")

			channel.push(notifications.AnswerNo, channel.lastToken(boundary.SideStart))
			tick()
			convey.So(channel.lastToken(boundary.SideStart), convey.ShouldEqual, group.ID+"/start/600")

			channel.push(notifications.AnswerYes, channel.lastToken(boundary.SideStart))
			channel.push(notifications.AnswerYes, channel.lastToken(boundary.SideEnd))
			result := tick()
			convey.So(result.Pending, convey.ShouldBeFalse)
			convey.So(result.Start, convey.ShouldEqual, 10*time.Minute)
			convey.So(result.End, convey.ShouldEqual, gameLength)
			convey.So(result.Source, convey.ShouldEqual, state.BoundarySourceInteractive)

			stored, _ := store.Get(group.ID)
			convey.So(stored.Stage, convey.ShouldEqual, state.StageTrimming)
			convey.So(stored.Boundaries.StartSeconds, convey.ShouldEqual, int64(600))

			info, _, err := matchinfo.Load(store.GroupDir(group.ID))
			convey.So(err, convey.ShouldBeNil)
			convey.So(info.StartOffset, convey.ShouldEqual, "10:00")
			convey.So(info.EndOffset, convey.ShouldEqual, "01:30:00")
		})

		convey.Convey("Stale, foreign and malformed replies change nothing", func() {
			first := channel.lastToken(boundary.SideStart)
			channel.push(notifications.AnswerNo, first)
			tick()
			channel.push(notifications.AnswerYes, first)
			channel.push(notifications.AnswerYes, "2023.01.01-00.00.00/start/300")
			channel.push(notifications.AnswerYes, "garbage")
			convey.So(tick().Pending, convey.ShouldBeTrue)
			convey.So(resolver.Candidates(group.ID), convey.ShouldContain,
				boundary.NewCandidate(group.ID, boundary.SideStart, 5*time.Minute))
		})

		convey.Convey("A restarted resolver rebuilds the search from replayed replies", func() {
			channel.push(notifications.AnswerNo, channel.lastToken(boundary.SideStart))
			tick()
			sent := len(channel.prompts)

			restarted := newResolver(store, channel, snaps)
			current, _ := store.Get(group.ID)
			result, err := restarted.Resolve(ctx, current)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Pending, convey.ShouldBeTrue)
			convey.So(len(channel.prompts), convey.ShouldEqual, sent)
			convey.So(restarted.Candidates(group.ID), convey.ShouldContain,
				boundary.NewCandidate(group.ID, boundary.SideStart, 5*time.Minute))
		})

		convey.Convey("A not-a-game reply fails the group", func() {
			channel.push(notifications.AnswerNotAGame, channel.lastToken(boundary.SideEnd))
			result := tick()
			convey.So(result.Failed, convey.ShouldBeTrue)
			convey.So(result.Reason, convey.ShouldEqual, state.ReasonNotAGame)

			stored, _ := store.Get(group.ID)
			convey.So(stored.Error, convey.ShouldNotBeNil)
			convey.So(stored.Error.Stage, convey.ShouldEqual, state.StageResolvingBoundaries)
			convey.So(stored.Error.Reason, convey.ShouldEqual, state.ReasonNotAGame)
		})
	})
}

func TestInteractiveSearchFractionalDuration(t *testing.T) {
	convey.Convey("Given a combined file that runs a fraction past a whole second", t, func() {
		store, err := state.Open(t.TempDir())
		convey.So(err, convey.ShouldBeNil)
		group := resolvingGroup(t, store, teams)
		channel := newFakeChannel()
		resolver := newResolverFor(store, channel, nil, gameLength+400*time.Millisecond)
		ctx := context.Background()

		result, err := resolver.Resolve(ctx, group)
		convey.So(err, convey.ShouldBeNil)
		convey.So(result.Pending, convey.ShouldBeTrue)
		convey.So(channel.lastToken(boundary.SideEnd), convey.ShouldEqual, group.ID+"/end/5400")

		convey.Convey("Confirming both prompted offsets settles the group", func() {
			channel.push(notifications.AnswerYes, channel.lastToken(boundary.SideStart))
			channel.push(notifications.AnswerYes, channel.lastToken(boundary.SideEnd))
			current, _ := store.Get(group.ID)
			result, err := resolver.Resolve(ctx, current)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Pending, convey.ShouldBeFalse)
			convey.So(result.Start, convey.ShouldEqual, time.Duration(0))
			convey.So(result.End, convey.ShouldEqual, gameLength)

			stored, _ := store.Get(group.ID)
			convey.So(stored.Stage, convey.ShouldEqual, state.StageTrimming)
		})
	})
}

func TestRepliesFetchedOncePerRound(t *testing.T) {
	convey.Convey("Given two groups waiting on the same reply channel", t, func() {
		store, err := state.Open(t.TempDir())
		convey.So(err, convey.ShouldBeNil)
		first := resolvingGroup(t, store, teams)
		second := resolvingGroupAt(t, store, time.Date(2024, 5, 2, 10, 0, 0, 0, time.Local), teams)
		channel := newFakeChannel()
		resolver := newResolver(store, channel, nil)
		ctx := context.Background()

		round := func() map[string]boundary.Result {
			replies, err := resolver.FetchReplies(ctx)
			convey.So(err, convey.ShouldBeNil)
			out := make(map[string]boundary.Result)
			for _, id := range []string{first.ID, second.ID} {
				current, _ := store.Get(id)
				result, err := resolver.ResolveWith(ctx, current, replies)
				convey.So(err, convey.ShouldBeNil)
				out[id] = result
			}
			return out
		}

		round()
		convey.So(channel.polls, convey.ShouldEqual, 1)
		convey.So(len(channel.prompts), convey.ShouldEqual, 4)

		convey.Convey("Replies reach only the group their token names", func() {
			channel.push(notifications.AnswerYes, channel.lastToken(boundary.SideStart))
			channel.push(notifications.AnswerYes, channel.lastToken(boundary.SideEnd))
			results := round()
			convey.So(channel.polls, convey.ShouldEqual, 2)
			convey.So(results[second.ID].Pending, convey.ShouldBeFalse)
			convey.So(results[first.ID].Pending, convey.ShouldBeTrue)
		})
	})
}

func TestDisabledChannelLeavesGroupPending(t *testing.T) {
	convey.Convey("Without a notification channel the group waits", t, func() {
		store, err := state.Open(t.TempDir())
		convey.So(err, convey.ShouldBeNil)
		group := resolvingGroup(t, store, teams)
		channel := newFakeChannel()
		channel.enabled = false
		resolver := newResolver(store, channel, nil)

		for i := 0; i < 2; i++ {
			result, err := resolver.Resolve(context.Background(), group)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Pending, convey.ShouldBeTrue)
		}
		convey.So(channel.prompts, convey.ShouldBeEmpty)
		stored, _ := store.Get(group.ID)
		convey.So(stored.Stage, convey.ShouldEqual, state.StageResolvingBoundaries)
	})
}

func TestStaticBoundaries(t *testing.T) {
	convey.Convey("Given match info with a start offset", t, func() {
		store, err := state.Open(t.TempDir())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("The end defaults to start plus the game length, clamped to the recording", func() {
			info := teams
			info.StartOffset = "10:00"
			group := resolvingGroup(t, store, info)
			result, err := newResolver(store, nil, nil).Resolve(context.Background(), group)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Start, convey.ShouldEqual, 10*time.Minute)
			convey.So(result.End, convey.ShouldEqual, gameLength)
			convey.So(result.Source, convey.ShouldEqual, state.BoundarySourceStatic)

			stored, _ := store.Get(group.ID)
			convey.So(stored.Stage, convey.ShouldEqual, state.StageTrimming)
		})

		convey.Convey("An explicit end offset and total duration are honoured", func() {
			info := teams
			info.StartOffset = "05:00"
			info.EndOffset = "01:20:30"
			group := resolvingGroup(t, store, info)
			result, err := newResolver(store, nil, nil).Resolve(context.Background(), group)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.End, convey.ShouldEqual, 80*time.Minute+30*time.Second)
		})

		convey.Convey("A total duration written as HH:MM:SS sets the end", func() {
			info := teams
			info.StartOffset = "10:00"
			info.TotalDuration = "01:00:00"
			group := resolvingGroup(t, store, info)
			result, err := newResolver(store, nil, nil).Resolve(context.Background(), group)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Pending, convey.ShouldBeFalse)
			convey.So(result.End, convey.ShouldEqual, 70*time.Minute)
		})

		convey.Convey("A malformed offset is a configuration problem and the group waits", func() {
			info := teams
			info.StartOffset = "ten minutes"
			group := resolvingGroup(t, store, info)
			result, err := newResolver(store, nil, nil).Resolve(context.Background(), group)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(result.Pending, convey.ShouldBeTrue)
			stored, _ := store.Get(group.ID)
			convey.So(stored.Stage, convey.ShouldEqual, state.StageResolvingBoundaries)
		})
	})
}

func TestTokens(t *testing.T) {
	token := boundary.Token("2024.05.01-10.00.00", boundary.SideEnd, 85*time.Minute)
	if token != "2024.05.01-10.00.00/end/5100" {
		t.Fatalf("unexpected token %q", token)
	}
	group, side, offset, err := boundary.ParseToken(token)
	if err != nil || group != "2024.05.01-10.00.00" || side != boundary.SideEnd || offset != 85*time.Minute {
		t.Fatalf("ParseToken = %q %q %s %v", group, side, offset, err)
	}
	for _, bad := range []string{"", "a/b", "g/middle/10", "g/start/-5", "g/start/x"} {
		if _, _, _, err := boundary.ParseToken(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

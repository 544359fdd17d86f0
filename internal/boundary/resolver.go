package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/state"
)

const (
	stageName   = "resolving_boundaries"
	defaultStep = 5 * time.Minute
)

// Snapshotter grabs a still frame for a prompt.
type Snapshotter interface {
	Snapshot(ctx context.Context, in string, at time.Duration, out string) error
}

// DurationProber measures the combined artifact.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Result reports what one Resolve call decided.
type Result struct {
	Pending bool
	Failed  bool
	Reason  string
	Start   time.Duration
	End     time.Duration
	Source  string
}

// Options wires a Resolver.
type Options struct {
	Store     *state.Store
	Channel   notifications.BoundaryChannel
	Snapshots Snapshotter
	Prober    DurationProber
	Config    config.Boundary
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Resolver owns the in-memory boundary searches. Resolve is called from the
// scheduling tick and never blocks waiting for a human.
type Resolver struct {
	store      *state.Store
	channel    notifications.BoundaryChannel
	snapshots  Snapshotter
	prober     DurationProber
	step       time.Duration
	gameLength time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu       sync.Mutex
	searches map[string]*search
	idle     map[string]bool
}

func New(opts Options) *Resolver {
	step := opts.Config.Step()
	if step <= 0 {
		step = defaultStep
	}
	channel := opts.Channel
	if channel == nil {
		channel = notifications.NewBoundaryChannel(config.Notifications{}, 0)
	}
	return &Resolver{
		store:      opts.Store,
		channel:    channel,
		snapshots:  opts.Snapshots,
		prober:     opts.Prober,
		step:       step,
		gameLength: opts.Config.DefaultGameLength(),
		logger:     logging.NewComponentLogger(opts.Logger, "boundary"),
		metrics:    opts.Metrics,
		now:        time.Now,
		searches:   make(map[string]*search),
		idle:       make(map[string]bool),
	}
}

// Replies is one read of the reply channel, keyed by the group named in
// each token.
type Replies map[string][]notifications.Response

// FetchReplies polls the reply channel once. A scheduling tick calls it a
// single time and hands the result to ResolveWith for every waiting group.
func (r *Resolver) FetchReplies(ctx context.Context) (Replies, error) {
	out := make(Replies)
	if !r.channel.Enabled() {
		return out, nil
	}
	responses, err := r.channel.PollResponses(ctx)
	if err != nil {
		return out, err
	}
	for _, resp := range responses {
		group, _, _, err := ParseToken(resp.Token)
		if err != nil {
			r.logger.Debug("ignoring boundary reply", logging.Error(err))
			continue
		}
		out[group] = append(out[group], resp)
	}
	return out, nil
}

// Resolve advances boundary resolution for a group in resolving_boundaries,
// polling the reply channel itself.
func (r *Resolver) Resolve(ctx context.Context, g state.Group) (Result, error) {
	return r.ResolveWith(ctx, g, nil)
}

// ResolveWith is Resolve with replies already fetched. Static offsets resolve
// at once; otherwise the group's replies are applied and any side without an
// outstanding prompt is asked about. When both sides settle the boundaries
// are persisted and the group moves to trimming. A nil replies polls the
// channel.
func (r *Resolver) ResolveWith(ctx context.Context, g state.Group, replies Replies) (Result, error) {
	if g.Failed() || g.Stage != state.StageResolvingBoundaries {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "resolve",
			fmt.Sprintf("group %s is %s", g.ID, g.Display()), nil)
	}
	dir := r.store.GroupDir(g.ID)
	info, _, err := matchinfo.Load(dir)
	if err != nil {
		return Result{Pending: true}, err
	}
	artifact := ArtifactPath(r.store, g)
	if info.Static() {
		return r.resolveStatic(ctx, g, info, artifact)
	}
	return r.resolveInteractive(ctx, g, info, artifact, replies)
}

// ArtifactPath returns the group's combined file.
func ArtifactPath(store *state.Store, g state.Group) string {
	if g.Artifact != "" {
		return g.Artifact
	}
	return filepath.Join(store.GroupDir(g.ID), state.CombinedFileName)
}

// Candidates lists the offsets still being asked about for a group.
func (r *Resolver) Candidates(id string) []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.searches[id]
	if !ok {
		return nil
	}
	var out []Candidate
	for _, side := range s.sides {
		if !side.resolved {
			out = append(out, NewCandidate(id, side.side, side.candidate))
		}
	}
	return out
}

// Forget drops any search state for a group.
func (r *Resolver) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.searches, id)
	delete(r.idle, id)
}

func (r *Resolver) resolveStatic(ctx context.Context, g state.Group, info matchinfo.Info, artifact string) (Result, error) {
	start, err := matchinfo.ParseOffset(info.StartOffset)
	if err != nil {
		return Result{Pending: true}, err
	}
	var end time.Duration
	if info.EndOffset != "" {
		if end, err = matchinfo.ParseOffset(info.EndOffset); err != nil {
			return Result{Pending: true}, err
		}
	} else {
		length, err := info.GameLength(r.gameLength)
		if err != nil {
			return Result{Pending: true}, err
		}
		end = start + length
	}
	duration, err := r.prober.Duration(ctx, artifact)
	if err != nil {
		return Result{Pending: true}, err
	}
	start, end = clamp(start, duration), clamp(end, duration)
	if end <= start {
		return Result{Pending: true}, services.Wrap(services.ErrConfiguration, stageName, "static",
			fmt.Sprintf("end %s is not after start %s", matchinfo.FormatOffset(end), matchinfo.FormatOffset(start)), nil)
	}
	return r.commit(g, start, end, state.BoundarySourceStatic)
}

func (r *Resolver) resolveInteractive(ctx context.Context, g state.Group, info matchinfo.Info, artifact string, replies Replies) (Result, error) {
	logger := r.logger.With(logging.GroupID(g.ID))

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.channel.Enabled() {
		if !r.idle[g.ID] {
			r.idle[g.ID] = true
			logging.WarnWithContext(logger, "boundary prompts unavailable", "boundary_channel_disabled",
				logging.String(logging.FieldErrorHint, "set notifications.ntfy_topic or fill start_time_offset in match_info.ini"),
				logging.String(logging.FieldImpact, "group waits in resolving_boundaries"),
			)
		}
		return Result{Pending: true}, nil
	}
	delete(r.idle, g.ID)

	s, ok := r.searches[g.ID]
	if !ok {
		duration, err := r.prober.Duration(ctx, artifact)
		if err != nil {
			return Result{Pending: true}, err
		}
		s = newSearch(duration, g.UpdatedAt.Truncate(time.Second))
		r.searches[g.ID] = s
		logger.Info("boundary search started",
			logging.Duration("duration", duration),
			logging.Duration("step", r.step),
		)
	}

	if replies == nil {
		fetched, err := r.FetchReplies(ctx)
		if err != nil {
			return Result{Pending: true}, err
		}
		replies = fetched
	}
	responses := append([]notifications.Response(nil), replies[g.ID]...)
	sort.SliceStable(responses, func(i, j int) bool { return responses[i].At.Before(responses[j].At) })
	for _, resp := range responses {
		r.handle(logger, g.ID, s, resp)
	}

	if s.notAGame {
		delete(r.searches, g.ID)
		return r.fail(g, state.ReasonNotAGame, "reported as not a game")
	}
	startSide, endSide := s.sides[0], s.sides[1]
	if startSide.resolved && endSide.resolved {
		if endSide.value <= startSide.value {
			delete(r.searches, g.ID)
			return r.fail(g, state.ReasonInvalidBoundaries,
				fmt.Sprintf("end %s is not after start %s", matchinfo.FormatOffset(endSide.value), matchinfo.FormatOffset(startSide.value)))
		}
		info.StartOffset = matchinfo.FormatOffset(startSide.value)
		info.EndOffset = matchinfo.FormatOffset(endSide.value)
		if err := matchinfo.Save(r.store.GroupDir(g.ID), info); err != nil {
			return Result{Pending: true}, err
		}
		delete(r.searches, g.ID)
		return r.commit(g, startSide.value, endSide.value, state.BoundarySourceInteractive)
	}

	for _, side := range s.sides {
		if side.resolved || side.prompted {
			continue
		}
		if err := r.prompt(ctx, logger, g, artifact, s.duration, side); err != nil {
			return Result{Pending: true}, err
		}
		side.prompted = true
	}
	return Result{Pending: true}, nil
}

func (r *Resolver) handle(logger *slog.Logger, id string, s *search, resp notifications.Response) {
	if resp.ID != "" {
		if _, dup := s.seen[resp.ID]; dup {
			return
		}
	}
	group, side, offset, err := ParseToken(resp.Token)
	if err != nil {
		logger.Debug("ignoring boundary reply", logging.Error(err))
		return
	}
	if group != id {
		return
	}
	if resp.ID != "" {
		s.seen[resp.ID] = struct{}{}
	}
	if resp.At.Before(s.since) {
		logger.Debug("ignoring reply from before search", logging.String("token", resp.Token))
		return
	}
	if err := s.apply(side, offset, resp.Answer, r.step); err != nil {
		logger.Debug("ignoring boundary reply",
			logging.String("token", resp.Token),
			logging.String("answer", string(resp.Answer)),
			logging.Error(err),
		)
		r.metrics.ResponseHandled("ignored")
		return
	}
	r.metrics.ResponseHandled(string(resp.Answer))
	if resp.Answer != notifications.AnswerPrompted {
		logger.Info("boundary reply applied",
			logging.String("side", string(side)),
			logging.String("offset", matchinfo.FormatOffset(offset)),
			logging.String("answer", string(resp.Answer)),
		)
	}
}

func (r *Resolver) prompt(ctx context.Context, logger *slog.Logger, g state.Group, artifact string, duration time.Duration, side *sideSearch) error {
	candidate := NewCandidate(g.ID, side.side, side.candidate)
	image := ""
	if r.snapshots != nil {
		at := candidate.Offset
		if at >= duration && duration > time.Second {
			at = duration - time.Second
		}
		path := filepath.Join(r.store.GroupDir(g.ID),
			fmt.Sprintf("boundary_%s_%d.jpg", side.side, int64(candidate.Offset/time.Second)))
		if err := r.snapshots.Snapshot(ctx, artifact, at, path); err != nil {
			logging.WarnWithContext(logger, "snapshot failed; prompting without image", "boundary_snapshot_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "prompt is sent as text only"),
			)
		} else {
			image = path
		}
	}
	err := r.channel.SendPrompt(ctx, notifications.Prompt{
		Token:     candidate.Token,
		Title:     fmt.Sprintf("Game %s? %s", side.side, g.ID),
		Question:  fmt.Sprintf("Is the game in progress at %s?", matchinfo.FormatOffset(candidate.Offset)),
		ImagePath: image,
	})
	r.metrics.NotificationSent("prompt", err)
	if err != nil {
		return err
	}
	r.metrics.PromptSent(string(side.side))
	logger.Info("boundary prompt sent",
		logging.String("side", string(side.side)),
		logging.String("offset", matchinfo.FormatOffset(candidate.Offset)),
		logging.String("token", candidate.Token),
	)
	return nil
}

func (r *Resolver) commit(g state.Group, start, end time.Duration, source string) (Result, error) {
	_, err := r.store.Update(g.ID, func(next *state.Group) error {
		next.Boundaries = &state.Boundaries{
			StartSeconds: int64(start / time.Second),
			EndSeconds:   int64(end / time.Second),
			Source:       source,
		}
		next.Stage = state.StageTrimming
		return nil
	})
	if err != nil {
		return Result{Pending: true}, err
	}
	r.logger.Info("boundaries resolved",
		logging.GroupID(g.ID),
		logging.String("start", matchinfo.FormatOffset(start)),
		logging.String("end", matchinfo.FormatOffset(end)),
		logging.String("source", source),
	)
	return Result{Start: start, End: end, Source: source}, nil
}

func (r *Resolver) fail(g state.Group, reason, message string) (Result, error) {
	_, err := r.store.Update(g.ID, func(next *state.Group) error {
		next.Error = &state.ErrorInfo{
			Stage:   state.StageResolvingBoundaries,
			Reason:  reason,
			Message: message,
			At:      r.now(),
		}
		return nil
	})
	if err != nil {
		return Result{Pending: true}, err
	}
	logging.WarnWithContext(r.logger, "boundary resolution failed", "boundary_failed",
		logging.GroupID(g.ID),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "group will not be trimmed"),
		logging.String(logging.FieldErrorHint, "fix match_info.ini and reset the group"),
	)
	return Result{Failed: true, Reason: reason}, nil
}

func clamp(d, duration time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if duration > 0 && d > duration {
		return duration
	}
	return d
}

// Package combine concatenates a group's downloaded segments into one
// artifact.
package combine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/stage"
	"github.com/mblakley/soccer-cam/internal/stageexec"
	"github.com/mblakley/soccer-cam/internal/state"
)

// TempFileName is the in-progress output; it only becomes combined.mp4 once
// the combiner exits cleanly.
const TempFileName = "combined.tmp.mp4"

// Combiner runs the per-segment remux and the concat step.
type Combiner interface {
	Convert(ctx context.Context, in, out string) error
	Combine(ctx context.Context, ordered []string, out string) error
}

// davExt marks a segment still in the camera's container. It is remuxed to
// MP4 before the concat and the DAV file removed.
const davExt = ".dav"

// input is one concat source. source is the DAV file that still has to be
// converted into path; it is empty once path exists.
type input struct {
	source string
	path   string
}

// Options wires a Worker.
type Options struct {
	Store    *state.Store
	Tool     Combiner
	Config   config.Processing
	Notifier notifications.Service
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Worker combines closed, fully downloaded groups.
type Worker struct {
	store    *state.Store
	tool     Combiner
	policy   stageexec.Policy
	notifier notifications.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(opts Options) *Worker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		store:    opts.Store,
		tool:     opts.Tool,
		policy:   stageexec.PolicyFrom(opts.Config),
		notifier: opts.Notifier,
		logger:   logging.NewComponentLogger(opts.Logger, "combine"),
		metrics:  opts.Metrics,
		now:      now,
	}
}

// Ready reports whether a group may be combined now.
func (w *Worker) Ready(g state.Group) bool {
	if g.Failed() || !g.Closed || !g.AllDownloaded() {
		return false
	}
	if g.Stage != state.StageDownloaded && g.Stage != state.StageCombining {
		return false
	}
	return stageexec.Due(g, w.now())
}

// Combine writes combined.mp4 for the group and advances it to combined.
// A previous run that finished the file but crashed before recording the
// stage is picked up from the .combined marker without rerunning the tool.
func (w *Worker) Combine(ctx context.Context, g state.Group) (string, error) {
	if !g.Closed || !g.AllDownloaded() {
		return "", services.Wrap(services.ErrValidation, "combining", "combine",
			fmt.Sprintf("group %s is not closed and fully downloaded", g.ID), nil)
	}
	dir := w.store.GroupDir(g.ID)
	artifact := filepath.Join(dir, state.CombinedFileName)

	if _, ok := w.store.MarkerTime(g.ID, state.CombinedMarker); ok && fileExists(artifact) {
		w.logger.Info("combined artifact already present", logging.GroupID(g.ID))
		return artifact, w.advance(g.ID, artifact)
	}

	if g.Stage != state.StageCombining {
		if _, err := w.store.Update(g.ID, func(next *state.Group) error {
			next.Stage = state.StageCombining
			return nil
		}); err != nil {
			return "", err
		}
	}

	opts := stageexec.Options{
		Logger:    w.logger,
		Store:     w.store,
		Notifier:  w.notifier,
		Metrics:   w.metrics,
		Stage:     state.StageCombining,
		Operation: "combine",
		GroupID:   g.ID,
		Counter:   stageexec.CombineAttempts,
		Policy:    w.policy,
		Now:       w.now,
	}
	inputs := make([]input, 0, len(g.Segments))
	ordered := make([]string, 0, len(g.Segments))
	for _, seg := range g.Segments {
		in, ok := resolveInput(w.store.SegmentPath(g.ID, seg))
		if !ok {
			return "", stageexec.Fail(ctx, opts, services.Wrap(services.ErrNotFound, "combining", "combine",
				fmt.Sprintf("segment file %s is missing", seg.File), nil))
		}
		inputs = append(inputs, in)
		ordered = append(ordered, in.path)
	}

	tmp := filepath.Join(dir, TempFileName)
	err := stageexec.Run(ctx, opts, func(ctx context.Context) error {
		for _, in := range inputs {
			if in.source == "" {
				continue
			}
			if err := w.convert(ctx, g.ID, in); err != nil {
				return err
			}
		}
		_ = os.Remove(tmp)
		if err := w.tool.Combine(ctx, ordered, tmp); err != nil {
			_ = os.Remove(tmp)
			return err
		}
		if err := os.Rename(tmp, artifact); err != nil {
			return services.Wrap(services.ErrTransientIO, "combining", "rename", "", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := w.store.WriteMarker(g.ID, state.CombinedMarker, w.now()); err != nil {
		return "", err
	}
	return artifact, w.advance(g.ID, artifact)
}

// resolveInput maps a segment file to the MP4 the concat reads. A DAV file
// whose MP4 already exists was converted by an earlier attempt.
func resolveInput(path string) (input, bool) {
	if !strings.EqualFold(filepath.Ext(path), davExt) {
		return input{path: path}, fileExists(path)
	}
	converted := strings.TrimSuffix(path, filepath.Ext(path)) + ".mp4"
	if fileExists(converted) {
		return input{path: converted}, true
	}
	return input{source: path, path: converted}, fileExists(path)
}

func (w *Worker) convert(ctx context.Context, id string, in input) error {
	tmp := strings.TrimSuffix(in.path, ".mp4") + ".tmp.mp4"
	_ = os.Remove(tmp)
	if err := w.tool.Convert(ctx, in.source, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, in.path); err != nil {
		return services.Wrap(services.ErrTransientIO, "combining", "rename", "", err)
	}
	if err := os.Remove(in.source); err != nil {
		w.logger.Debug("dav file not removed", logging.GroupID(id), logging.Error(err))
	}
	w.logger.Info("segment converted",
		logging.GroupID(id),
		logging.String(logging.FieldSegment, filepath.Base(in.path)),
	)
	return nil
}

func (w *Worker) advance(id, artifact string) error {
	_, err := w.store.Update(id, func(next *state.Group) error {
		next.Stage = state.StageCombined
		next.Artifact = artifact
		next.NextAttemptAt = time.Time{}
		return nil
	})
	return err
}

// HealthCheck reports whether a combiner is wired.
func (w *Worker) HealthCheck(context.Context) stage.Health {
	if w == nil || w.tool == nil {
		return stage.Unhealthy("combine", "combiner unavailable")
	}
	return stage.Healthy("combine")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

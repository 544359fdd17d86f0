// Package finalize trims a combined recording to the game, gives it its
// canonical name and marks the group complete.
package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/fileutil"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/stage"
	"github.com/mblakley/soccer-cam/internal/stageexec"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/textutil"
)

const (
	// TempFileName holds the trim output until the tool exits cleanly.
	TempFileName = "trimmed.tmp.mp4"
	dateLayout   = "01-02-2006"
	rawSuffix    = " raw"
)

// Trimmer cuts [start, end) out of a file.
type Trimmer interface {
	Trim(ctx context.Context, in string, start, end time.Duration, out string) error
}

// Options wires a Worker.
type Options struct {
	Store    *state.Store
	Tool     Trimmer
	Config   config.Processing
	Notifier notifications.Service
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Worker finalizes groups in trimming.
type Worker struct {
	store    *state.Store
	tool     Trimmer
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
		logger:   logging.NewComponentLogger(opts.Logger, "finalize"),
		metrics:  opts.Metrics,
		now:      now,
	}
}

// CanonicalName builds "<team> vs <opponent> (<location>) <MM-DD-YYYY>" with
// each component compacted for use in a file name.
func CanonicalName(info matchinfo.Info, played time.Time) string {
	return fmt.Sprintf("%s vs %s (%s) %s",
		textutil.CompactName(info.Team),
		textutil.CompactName(info.Opponent),
		textutil.CompactName(info.Location),
		played.Format(dateLayout),
	)
}

// Ready reports whether a group may be finalized now.
func (w *Worker) Ready(g state.Group) bool {
	return !g.Failed() && g.Stage == state.StageTrimming && g.Boundaries != nil && stageexec.Due(g, w.now())
}

// Finalize trims the combined artifact to [start, end), writes the canonical
// and raw outputs, records .completed and advances the group to complete.
func (w *Worker) Finalize(ctx context.Context, g state.Group, start, end time.Duration) error {
	dir := w.store.GroupDir(g.ID)
	info, _, err := matchinfo.Load(dir)
	if err != nil {
		return err
	}
	if !info.Populated() {
		return services.Wrap(services.ErrConfiguration, "trimming", "finalize",
			"match info missing "+strings.Join(info.Missing(), ", "), nil)
	}

	artifact := g.Artifact
	if artifact == "" {
		artifact = filepath.Join(dir, state.CombinedFileName)
	}
	name := CanonicalName(info, g.FirstStart())
	output := filepath.Join(dir, name+".mp4")
	raw := filepath.Join(dir, name+rawSuffix+".mp4")
	tmp := filepath.Join(dir, TempFileName)

	if w.store.IsCompleted(g.ID) {
		w.logger.Info("completion marker present", logging.GroupID(g.ID))
		return w.complete(ctx, g, output, raw)
	}
	if g.Stage != state.StageTrimming {
		return services.Wrap(services.ErrValidation, "trimming", "finalize",
			fmt.Sprintf("group %s is %s", g.ID, g.Display()), nil)
	}

	err = stageexec.Run(ctx, stageexec.Options{
		Logger:    w.logger,
		Store:     w.store,
		Notifier:  w.notifier,
		Metrics:   w.metrics,
		Stage:     state.StageTrimming,
		Operation: "trim",
		GroupID:   g.ID,
		Counter:   stageexec.TrimAttempts,
		Policy:    w.policy,
		Now:       w.now,
	}, func(ctx context.Context) error {
		if _, err := os.Stat(artifact); err != nil {
			return services.Wrap(services.ErrNotFound, "trimming", "finalize", "combined artifact missing", err)
		}
		_ = os.Remove(tmp)
		if err := w.tool.Trim(ctx, artifact, start, end, tmp); err != nil {
			_ = os.Remove(tmp)
			return err
		}
		if err := os.Rename(tmp, output); err != nil {
			return services.Wrap(services.ErrTransientIO, "trimming", "rename", "", err)
		}
		linked, err := fileutil.LinkOrCopy(artifact, raw)
		if err != nil {
			return services.Wrap(services.ErrTransientIO, "trimming", "raw copy", "", err)
		}
		w.logger.Debug("raw output written", logging.GroupID(g.ID), logging.Bool("hard_link", linked))
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.store.WriteMarker(g.ID, state.CompletedMarker, w.now()); err != nil {
		return err
	}
	return w.complete(ctx, g, output, raw)
}

func (w *Worker) complete(ctx context.Context, g state.Group, output, raw string) error {
	if g.Stage == state.StageComplete {
		return nil
	}
	if _, err := w.store.Update(g.ID, func(next *state.Group) error {
		next.Stage = state.StageComplete
		next.Output = output
		next.RawOutput = raw
		next.NextAttemptAt = time.Time{}
		return nil
	}); err != nil {
		return err
	}
	w.logger.Info("group complete",
		logging.GroupID(g.ID),
		logging.String("output", output),
		logging.String(logging.FieldEventType, "group_complete"),
	)
	if w.notifier != nil {
		err := w.notifier.Publish(ctx, notifications.EventGroupCompleted, notifications.Payload{
			"group":  g.ID,
			"output": filepath.Base(output),
		})
		w.metrics.NotificationSent(string(notifications.EventGroupCompleted), err)
		if err != nil {
			w.logger.Debug("completion notification failed", logging.Error(err))
		}
	}
	return nil
}

// HealthCheck reports whether a trimmer is wired.
func (w *Worker) HealthCheck(context.Context) stage.Health {
	if w == nil || w.tool == nil {
		return stage.Unhealthy("finalize", "trimmer unavailable")
	}
	return stage.Healthy("finalize")
}

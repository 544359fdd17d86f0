package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mblakley/soccer-cam/internal/boundary"
	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/stageexec"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/workpool"
)

// Operation names held in the in-flight set.
const (
	opCombine = "combine"
	opTrim    = "trim"
)

// listOverlap re-lists a little before the newest downloaded segment so a
// segment that was still being written last time is seen complete.
const listOverlap = time.Minute

// Tick runs one scheduling pass. Ticks never overlap; a call made while
// another tick is running waits for it.
func (m *Manager) Tick(ctx context.Context) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	started := time.Now()
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	var errs []error
	if remote, err := m.listRemote(ctx, logger); err != nil {
		errs = append(errs, err)
	} else if len(remote) > 0 {
		result, err := m.downloads.Poll(ctx, remote)
		if err != nil {
			errs = append(errs, err)
		}
		if result.Discovered > 0 || len(result.Scheduled) > 0 {
			logger.Info("camera poll",
				logging.String(logging.FieldEventType, "camera_poll"),
				logging.Int("listed", len(remote)),
				logging.Int("discovered", result.Discovered),
				logging.Int("new_groups", len(result.NewGroups)),
				logging.Int("scheduled", len(result.Scheduled)),
				logging.Int("deferred", result.Deferred),
			)
		}
	}

	if closed, err := m.engine.CloseIdle(m.now()); err != nil {
		errs = append(errs, err)
	} else if len(closed) > 0 {
		logger.Debug("groups closed", logging.Int("count", len(closed)))
	}

	groups := m.store.List()
	replies := m.fetchReplies(ctx, logger, groups)
	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		if err := m.advance(ctx, logger, g, replies); err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", g.ID, err))
		}
	}

	m.refreshGauges()
	m.metrics.ObserveTick(time.Since(started))

	err := errors.Join(errs...)
	m.mu.Lock()
	m.lastTick = m.now()
	m.ticks++
	m.lastErr = err
	m.mu.Unlock()
	return err
}

// listRemote probes the camera and lists segments since the newest
// downloaded one, or over the lookback window on a fresh store. An
// unreachable camera is not an error for the tick; local groups still move.
func (m *Manager) listRemote(ctx context.Context, logger *slog.Logger) ([]camera.Segment, error) {
	if m.adapter == nil {
		return nil, nil
	}
	if m.monitor != nil {
		if err := m.monitor.Check(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("camera unavailable; skipping listing", logging.Error(err))
			return nil, nil
		}
	}
	now := m.now()
	since := now.Add(-m.lookback)
	if latest, ok := m.store.LatestVideo(); ok {
		since = latest.Add(-listOverlap)
	}
	remote, err := m.adapter.ListSegments(ctx, since, now)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.WarnWithContext(logger, "camera listing failed", "camera_list_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldImpact, "new recordings are picked up on a later tick"),
		)
		return nil, nil
	}
	return remote, nil
}

// fetchReplies reads the boundary reply channel once per tick, and only when
// some group is waiting on it. A failed read leaves every group pending for
// this tick.
func (m *Manager) fetchReplies(ctx context.Context, logger *slog.Logger, groups []state.Group) boundary.Replies {
	waiting := false
	for _, g := range groups {
		if !g.Terminal() && g.Stage == state.StageResolvingBoundaries {
			waiting = true
			break
		}
	}
	if !waiting {
		return boundary.Replies{}
	}
	replies, err := m.resolver.FetchReplies(ctx)
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(logger, "boundary reply poll failed", "boundary_poll_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldImpact, "boundary replies are read on the next tick"),
		)
	}
	return replies
}

// advance starts the next step for one group. Groups with a sticky error,
// completed groups, and groups holding an in-flight operation are left alone.
func (m *Manager) advance(ctx context.Context, logger *slog.Logger, g state.Group, replies boundary.Replies) error {
	if g.Terminal() {
		return nil
	}
	if _, busy := m.inflight.Holding(g.ID); busy {
		return nil
	}
	if m.store.IsCompleted(g.ID) && g.Stage != state.StageTrimming {
		return nil
	}
	logger = logger.With(logging.GroupID(g.ID))

	switch g.Stage {
	case state.StageDiscovering, state.StageDownloading:
		return m.downloads.Promote(g.ID)
	case state.StageDownloaded, state.StageCombining:
		if m.combiner.Ready(g) {
			m.submitMedia(logger, g, opCombine, func(ctx context.Context) {
				_, err := m.combiner.Combine(ctx, g)
				m.jobDone(ctx, logger, g.ID, opCombine, err)
			})
		}
	case state.StageCombined:
		return m.requestMatchInfo(ctx, logger, g)
	case state.StageAwaitingMatchInfo:
		return m.checkMatchInfo(logger, g)
	case state.StageResolvingBoundaries:
		result, err := m.resolver.ResolveWith(ctx, g, replies)
		if err != nil {
			if services.Classify(err) == services.KindConfiguration {
				logging.WarnWithContext(logger, "boundary configuration invalid", "boundary_config_invalid",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the offsets in match_info.ini"),
				)
				return nil
			}
			return err
		}
		if !result.Pending {
			m.resolver.Forget(g.ID)
		}
	case state.StageTrimming:
		if m.finalizer.Ready(g) {
			start, end := g.Boundaries.Start(), g.Boundaries.End()
			m.submitMedia(logger, g, opTrim, func(ctx context.Context) {
				m.jobDone(ctx, logger, g.ID, opTrim, m.finalizer.Finalize(ctx, g, start, end))
			})
		}
	}
	return nil
}

// submitMedia queues job on the media pool under the group's in-flight key.
// A full pool leaves the group for a later tick.
func (m *Manager) submitMedia(logger *slog.Logger, g state.Group, op string, job workpool.Job) {
	if workpool.Submit(m.mediaPool, m.inflight, g.ID, op, job) {
		logger.Debug("media job queued", logging.String("operation", op))
		return
	}
	logger.Debug("media pool full; deferring", logging.String("operation", op))
}

// jobDone reports what a media job returned. Failures the retry policy
// already logged and shutdown cancellations are skipped. A configuration
// problem, such as match info emptied after boundaries resolved, is warned
// about once and then waits until the job next succeeds.
func (m *Manager) jobDone(ctx context.Context, logger *slog.Logger, id, op string, err error) {
	key := id + "/" + op
	if err == nil {
		m.blockedMu.Lock()
		delete(m.blocked, key)
		m.blockedMu.Unlock()
		return
	}
	if ctx.Err() != nil || stageexec.Recorded(err) {
		return
	}
	kind := services.Classify(err)
	m.metrics.JobFailed(op, string(kind))
	if kind == services.KindConfiguration {
		m.blockedMu.Lock()
		seen := m.blocked[key]
		m.blocked[key] = true
		m.blockedMu.Unlock()
		if seen {
			logger.Debug("media job still blocked", logging.String("operation", op), logging.Error(err))
			return
		}
		logging.WarnWithContext(logger, "media job blocked on configuration", "media_job_blocked",
			logging.String("operation", op),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "complete match_info.ini for this group"),
			logging.String(logging.FieldImpact, "group waits in its stage"),
		)
		return
	}
	logging.WarnWithContext(logger, "media job failed", "media_job_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.ErrorKind(err),
		logging.String(logging.FieldImpact, "job is retried on the next tick"),
	)
}

// blockedOn reports whether a group's media job is waiting on configuration.
func (m *Manager) blockedOn(id, op string) bool {
	m.blockedMu.Lock()
	defer m.blockedMu.Unlock()
	return m.blocked[id+"/"+op]
}

// requestMatchInfo writes the match info template, prefilled from the
// schedule when a fixture overlaps the recording, and moves the group to
// awaiting_match_info. The operator is notified only when fields are missing.
func (m *Manager) requestMatchInfo(ctx context.Context, logger *slog.Logger, g state.Group) error {
	dir := m.store.GroupDir(g.ID)
	var prefill matchinfo.Info
	if m.schedule != nil {
		game, ok, err := m.schedule.Find(ctx, g.FirstStart(), g.LastEnd())
		switch {
		case err != nil:
			logger.Warn("schedule lookup failed", logging.Error(err))
		case ok:
			prefill = matchinfo.Prefill(prefill, game)
		}
	}
	if _, err := matchinfo.EnsureTemplate(dir, prefill); err != nil {
		return err
	}
	info, _, err := matchinfo.Load(dir)
	if err != nil {
		return err
	}
	if _, err := m.store.Update(g.ID, func(next *state.Group) error {
		next.Stage = state.StageAwaitingMatchInfo
		return nil
	}); err != nil {
		return err
	}
	if info.Populated() {
		return nil
	}
	logger.Info("match info needed",
		logging.String(logging.FieldEventType, "match_info_needed"),
		logging.String("path", matchinfo.Path(dir)),
	)
	m.publish(ctx, logger, notifications.EventMatchInfoNeeded, notifications.Payload{
		"group":   g.ID,
		"missing": info.Missing(),
		"path":    matchinfo.Path(dir),
	})
	return nil
}

func (m *Manager) checkMatchInfo(logger *slog.Logger, g state.Group) error {
	info, _, err := matchinfo.Load(m.store.GroupDir(g.ID))
	if err != nil {
		if services.Classify(err) == services.KindConfiguration {
			logger.Debug("match info unreadable", logging.Error(err))
			return nil
		}
		return err
	}
	if !info.Populated() {
		return nil
	}
	_, err = m.store.Update(g.ID, func(next *state.Group) error {
		next.Stage = state.StageResolvingBoundaries
		return nil
	})
	if err == nil {
		logger.Info("match info complete",
			logging.String(logging.FieldEventType, "match_info_complete"),
			logging.Bool("static_offsets", info.Static()),
		)
	}
	return err
}

func (m *Manager) refreshGauges() {
	counts := make(map[string]int)
	for _, s := range state.Stages() {
		counts[string(s)] = 0
	}
	counts["error"] = 0
	for _, g := range m.store.List() {
		if g.Failed() {
			counts["error"]++
			continue
		}
		counts[string(g.Stage)]++
	}
	m.metrics.SetGroupsByStage(counts)
	m.metrics.SetPoolBusy(DownloadPool, m.downloadPool.Busy())
	m.metrics.SetPoolBusy(MediaPool, m.mediaPool.Busy())
}

// RefreshMetrics updates the stage and pool gauges outside a tick, for
// scrapes that land between polls.
func (m *Manager) RefreshMetrics() {
	m.refreshGauges()
}

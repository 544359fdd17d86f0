// Package download transfers camera segments into their group directories.
//
// Poll records newly listed segments through the grouping engine and
// schedules one job per group on the download pool. A job walks the group's
// eligible segments in order, retrying each transfer a fixed number of times
// before marking it failed; failed segments are picked up again on the next
// poll.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/grouping"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/workpool"
)

const partSuffix = ".part"

// errStopped means the pool stopped between attempts; the segment goes back
// to pending rather than failed.
var errStopped = errors.New("download stopped before retry")

// PollResult summarizes one Poll call.
type PollResult struct {
	Discovered int
	NewGroups  []string
	Scheduled  []string
	Deferred   int
}

// Manager owns segment download state.
type Manager struct {
	store    *state.Store
	engine   *grouping.Engine
	adapter  camera.Adapter
	pool     *workpool.Pool
	inflight *workpool.Inflight
	cfg      config.Download
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Options wires a Manager.
type Options struct {
	Store    *state.Store
	Engine   *grouping.Engine
	Adapter  camera.Adapter
	Pool     *workpool.Pool
	Inflight *workpool.Inflight
	Config   config.Download
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func New(opts Options) *Manager {
	inflight := opts.Inflight
	if inflight == nil {
		inflight = workpool.NewInflight()
	}
	return &Manager{
		store:    opts.Store,
		engine:   opts.Engine,
		adapter:  opts.Adapter,
		pool:     opts.Pool,
		inflight: inflight,
		cfg:      opts.Config,
		logger:   logging.NewComponentLogger(opts.Logger, "download"),
		metrics:  opts.Metrics,
	}
}

// Poll records the remote listing and schedules downloads for every group
// with eligible segments. A full pool defers the remaining groups to the next
// poll. Errors recording individual segments are joined and returned after
// scheduling so one bad entry never blocks the rest.
func (m *Manager) Poll(ctx context.Context, remote []camera.Segment) (PollResult, error) {
	var result PollResult
	var errs []error
	for _, seg := range remote {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, known := m.store.GroupForSegment(seg.Name); known {
			continue
		}
		id, created, err := m.engine.Assign(seg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Discovered++
		m.metrics.SegmentDiscovered()
		if created {
			result.NewGroups = append(result.NewGroups, id)
		}
	}

	for _, group := range m.store.List() {
		if err := m.Promote(group.ID); err != nil {
			errs = append(errs, err)
		}
		if !needsDownload(group) {
			continue
		}
		if _, busy := m.inflight.Holding(group.ID); busy {
			continue
		}
		if group.Stage == state.StageDiscovering {
			if _, err := m.store.Update(group.ID, func(g *state.Group) error {
				g.Stage = state.StageDownloading
				return nil
			}); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		id := group.ID
		if !workpool.Submit(m.pool, m.inflight, id, "download", func(ctx context.Context) {
			m.runGroup(ctx, id)
		}) {
			result.Deferred++
			continue
		}
		result.Scheduled = append(result.Scheduled, id)
	}
	return result, errors.Join(errs...)
}

// Promote advances a closed group whose segments are all on disk to
// downloaded.
func (m *Manager) Promote(id string) error {
	group, ok := m.store.Get(id)
	if !ok || group.Failed() || !group.Closed || !group.AllDownloaded() {
		return nil
	}
	if group.Stage != state.StageDiscovering && group.Stage != state.StageDownloading {
		return nil
	}
	_, err := m.store.Update(id, func(g *state.Group) error {
		g.Stage = state.StageDownloaded
		return nil
	})
	if err == nil {
		m.logger.Info("all segments downloaded",
			logging.GroupID(id),
			logging.Int("segments", len(group.Segments)),
			logging.String(logging.FieldEventType, "group_downloaded"),
		)
	}
	return err
}

func needsDownload(g state.Group) bool {
	if g.Terminal() {
		return false
	}
	if g.Stage != state.StageDiscovering && g.Stage != state.StageDownloading {
		return false
	}
	for _, seg := range g.Segments {
		if seg.Eligible() {
			return true
		}
	}
	return false
}

func (m *Manager) runGroup(ctx context.Context, id string) {
	ctx = services.WithGroupID(ctx, id)
	logger := m.logger.With(logging.GroupID(id))
	tried := map[string]bool{}
	for {
		if ctx.Err() != nil {
			return
		}
		group, ok := m.store.Get(id)
		if !ok || group.Terminal() {
			return
		}
		seg, ok := nextEligible(group, tried)
		if !ok {
			break
		}
		tried[seg.Name] = true
		m.downloadSegment(ctx, logger, id, seg)
	}
	if err := m.Promote(id); err != nil {
		logging.WarnWithContext(logger, "group promotion failed", "download_promote_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "group stays in downloading until the next poll"),
		)
	}
}

// nextEligible picks the earliest pending segment, then the earliest failed
// one. Segments already tried by this job are skipped so a failure waits for
// the next poll.
func nextEligible(g state.Group, tried map[string]bool) (state.Segment, bool) {
	for _, seg := range g.Segments {
		if seg.State == state.SegmentPending && !tried[seg.Name] {
			return seg, true
		}
	}
	for _, seg := range g.Segments {
		if seg.State == state.SegmentFailed && !tried[seg.Name] {
			return seg, true
		}
	}
	return state.Segment{}, false
}

func (m *Manager) downloadSegment(ctx context.Context, logger *slog.Logger, id string, seg state.Segment) {
	segLogger := logger.With(logging.String(logging.FieldSegment, seg.Name))
	dest := m.store.SegmentPath(id, seg)

	if seg.Size > 0 {
		if info, err := os.Stat(dest); err == nil && info.Size() == seg.Size {
			m.finish(segLogger, id, seg, seg.Size, nil)
			return
		}
	}

	if _, err := m.store.Update(id, func(g *state.Group) error {
		return setSegment(g, seg.Name, func(s *state.Segment) { s.State = state.SegmentDownloading })
	}); err != nil {
		logging.WarnWithContext(segLogger, "cannot mark segment downloading", "download_state_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment skipped until the next poll"),
		)
		return
	}

	written, err := m.transferWithRetry(ctx, segLogger, seg, dest)
	m.finish(segLogger, id, seg, written, err)
}

func (m *Manager) finish(logger *slog.Logger, id string, seg state.Segment, written int64, err error) {
	update := func(s *state.Segment) {
		switch {
		case err == nil:
			s.State = state.SegmentDownloaded
			s.LastError = ""
			if written > 0 {
				s.Size = written
			}
		case errors.Is(err, errStopped):
			s.State = state.SegmentPending
		default:
			s.State = state.SegmentFailed
			s.Failures++
			s.LastError = err.Error()
		}
	}
	if _, uerr := m.store.Update(id, func(g *state.Group) error {
		return setSegment(g, seg.Name, update)
	}); uerr != nil {
		logging.ErrorWithContext(logger, "segment state update failed", "download_state_failed",
			logging.Error(uerr),
			logging.String(logging.FieldImpact, "segment will be retried after restart"),
		)
		return
	}

	switch {
	case err == nil:
		m.metrics.DownloadFinished("downloaded", written)
		if aerr := m.store.AdvanceLatestVideo(seg.End); aerr != nil {
			logger.Debug("latest video mark not advanced", logging.Error(aerr))
		}
		logger.Info("segment downloaded",
			logging.Int64("bytes", written),
			logging.String(logging.FieldEventType, "segment_downloaded"),
		)
	case errors.Is(err, errStopped):
		m.metrics.DownloadFinished("abandoned", 0)
		logger.Info("download abandoned for shutdown", logging.String(logging.FieldEventType, "segment_download_abandoned"))
	default:
		m.metrics.DownloadFinished("failed", 0)
		logging.WarnWithContext(logger, "segment download failed", "segment_download_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.Int("attempts", m.attempts()),
			logging.String(logging.FieldImpact, "segment stays eligible and is retried on the next poll"),
			logging.String(logging.FieldErrorHint, "check camera connectivity"),
		)
	}
}

func (m *Manager) attempts() int {
	if m.cfg.RetryAttempts < 0 {
		return 1
	}
	return m.cfg.RetryAttempts + 1
}

// transferWithRetry runs up to RetryAttempts+1 transfers. Each attempt runs
// detached from ctx so a stop request never truncates a file mid-write;
// cancellation is only honored between attempts.
func (m *Manager) transferWithRetry(ctx context.Context, logger *slog.Logger, seg state.Segment, dest string) (int64, error) {
	attempts := m.attempts()
	delay := m.cfg.RetryDelay()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		written, err := m.transfer(context.WithoutCancel(ctx), seg, dest)
		if err == nil {
			return written, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		m.metrics.DownloadRetried()
		logger.Debug("transfer attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("retry_in", delay),
			logging.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return 0, errStopped
		}
	}
	return 0, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transfer streams one segment into dest+".part" and renames it into place
// once the byte count matches what the camera reported.
func (m *Manager) transfer(ctx context.Context, seg state.Segment, dest string) (int64, error) {
	body, expected, err := m.adapter.Fetch(ctx, camera.Segment{
		Name:  seg.Name,
		Start: seg.Start,
		End:   seg.End,
		Size:  seg.Size,
	})
	if err != nil {
		return 0, err
	}
	defer body.Close()

	part := dest + partSuffix
	file, err := os.Create(part)
	if err != nil {
		return 0, services.Wrap(services.ErrTransientIO, "download", "create", part, err)
	}
	written, copyErr := io.Copy(file, body)
	syncErr := file.Sync()
	closeErr := file.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		_ = os.Remove(part)
		return 0, services.Wrap(services.ErrTransientIO, "download", "write", seg.Name, err)
	}
	if m.cfg.VerifySize && expected > 0 && written != expected {
		_ = os.Remove(part)
		return 0, services.Wrap(services.ErrTransientIO, "download", "verify",
			fmt.Sprintf("%s: wrote %d of %d bytes", seg.Name, written, expected), nil)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return 0, services.Wrap(services.ErrTransientIO, "download", "rename", dest, err)
	}
	return written, nil
}

func setSegment(g *state.Group, name string, fn func(*state.Segment)) error {
	idx := g.SegmentIndex(name)
	if idx < 0 {
		return fmt.Errorf("%w: segment %s not in group %s", services.ErrNotFound, name, g.ID)
	}
	fn(&g.Segments[idx])
	return nil
}

// Package grouping clusters camera segments into recording groups by
// temporal continuity and decides when a group is closed.
package grouping

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/state"
)

// Engine assigns segments to groups. Assign and CloseIdle are serialized.
type Engine struct {
	store      *state.Store
	threshold  time.Duration
	quiescence time.Duration
	logger     *slog.Logger

	mu sync.Mutex
}

func New(store *state.Store, cfg config.Grouping, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		threshold:  cfg.ContinuityThreshold(),
		quiescence: cfg.QuiescenceWindow(),
		logger:     logging.NewComponentLogger(logger, "grouping"),
	}
}

// Assign records seg in the group it continues, or starts a new group. A
// segment that is already known returns its owner with created=false.
func (e *Engine) Assign(seg camera.Segment) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.store.GroupForSegment(seg.Name); ok {
		return id, false, nil
	}
	if !seg.End.After(seg.Start) {
		return "", false, fmt.Errorf("segment %s: end %s is not after start %s", seg.Name, seg.End, seg.Start)
	}
	if _, exists := e.store.Get(state.GroupID(seg.Start)); exists {
		return "", false, fmt.Errorf("segment %s: %w: %s", seg.Name, state.ErrGroupExists, state.GroupID(seg.Start))
	}

	groups := e.store.List()
	open, hasOpen := newest(groups)

	if hasOpen && !seg.Start.Before(open.FirstStart()) {
		if !open.Closed && e.continues(open, seg) {
			return open.ID, false, e.appendSegment(open.ID, seg)
		}
		if !open.Closed {
			if err := e.close(open.ID, state.ClosedSuperseded); err != nil {
				return "", false, err
			}
		}
		id, err := e.create(seg, false)
		return id, err == nil, err
	}

	// Older than the open group: late listing or a backfill after downtime.
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g.Closed || g.Terminal() || seg.Start.Before(g.FirstStart()) {
			continue
		}
		if e.continues(g, seg) {
			return g.ID, false, e.appendSegment(g.ID, seg)
		}
	}
	id, err := e.create(seg, hasOpen)
	return id, err == nil, err
}

// CloseIdle closes every open group whose last segment ended at least one
// quiescence window before now, and every open group that is older than the
// newest group. It returns the IDs it closed.
func (e *Engine) CloseIdle(now time.Time) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups := e.store.List()
	latest, ok := newest(groups)
	if !ok {
		return nil, nil
	}
	var closed []string
	var errs []error
	for _, g := range groups {
		if g.Closed || len(g.Segments) == 0 {
			continue
		}
		reason := ""
		switch {
		case now.Sub(g.LastEnd()) >= e.quiescence:
			reason = state.ClosedQuiescent
		case g.ID != latest.ID && latest.FirstStart().After(g.LastEnd()):
			reason = state.ClosedSuperseded
		}
		if reason == "" {
			continue
		}
		if err := e.close(g.ID, reason); err != nil {
			errs = append(errs, err)
			continue
		}
		closed = append(closed, g.ID)
	}
	return closed, errors.Join(errs...)
}

func (e *Engine) continues(g state.Group, seg camera.Segment) bool {
	gap := seg.Start.Sub(g.LastEnd())
	return gap <= e.threshold && gap >= -e.threshold
}

func (e *Engine) appendSegment(id string, seg camera.Segment) error {
	_, err := e.store.Update(id, func(g *state.Group) error {
		g.Segments = append(g.Segments, toStateSegment(seg))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %s to %s: %w", seg.Name, id, err)
	}
	e.logger.Debug("segment appended",
		logging.GroupID(id),
		logging.String(logging.FieldSegment, seg.Name),
	)
	return nil
}

func (e *Engine) create(seg camera.Segment, superseded bool) (string, error) {
	id := state.GroupID(seg.Start)
	if _, err := e.store.Create(id, toStateSegment(seg)); err != nil {
		return "", fmt.Errorf("create group for %s: %w", seg.Name, err)
	}
	e.logger.Info("recording group created",
		logging.GroupID(id),
		logging.String(logging.FieldSegment, seg.Name),
		logging.String(logging.FieldEventType, "group_created"),
	)
	if superseded {
		if err := e.close(id, state.ClosedSuperseded); err != nil {
			return id, err
		}
	}
	return id, nil
}

func (e *Engine) close(id, reason string) error {
	_, err := e.store.Update(id, func(g *state.Group) error {
		g.Closed = true
		g.ClosedReason = reason
		return nil
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", id, err)
	}
	e.logger.Info("recording group closed",
		logging.GroupID(id),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "group_closed"),
	)
	return nil
}

// newest returns the group whose last segment ends latest.
func newest(groups []state.Group) (state.Group, bool) {
	var best state.Group
	found := false
	for _, g := range groups {
		if len(g.Segments) == 0 {
			continue
		}
		if !found || g.LastEnd().After(best.LastEnd()) {
			best = g
			found = true
		}
	}
	return best, found
}

func toStateSegment(seg camera.Segment) state.Segment {
	return state.Segment{
		Name:  seg.Name,
		File:  seg.FileName(),
		Start: seg.Start,
		End:   seg.End,
		Size:  seg.Size,
		State: state.SegmentPending,
	}
}

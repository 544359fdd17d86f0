package api

import (
	"sort"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/boundary"
	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
	"github.com/mblakley/soccer-cam/internal/stage"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/workflow"
)

// FromGroup converts a group record into its transport form.
func FromGroup(g state.Group) Group {
	dto := Group{
		ID:              g.ID,
		Stage:           string(g.Stage),
		Label:           stage.Describe(g),
		Closed:          g.Closed,
		ClosedReason:    g.ClosedReason,
		Segments:        make([]Segment, 0, len(g.Segments)),
		SegmentCounts:   make(map[string]int),
		CombineAttempts: g.CombineAttempts,
		TrimAttempts:    g.TrimAttempts,
		NextAttemptAt:   formatTime(g.NextAttemptAt),
		Artifact:        g.Artifact,
		Output:          g.Output,
		RawOutput:       g.RawOutput,
		CreatedAt:       formatTime(g.CreatedAt),
		UpdatedAt:       formatTime(g.UpdatedAt),
	}
	if len(g.Segments) > 0 {
		dto.RecordedFrom = formatTime(g.FirstStart())
		dto.RecordedUntil = formatTime(g.LastEnd())
	}
	for _, seg := range g.Segments {
		dto.Segments = append(dto.Segments, Segment{
			Name:      seg.Name,
			File:      seg.File,
			Start:     formatTime(seg.Start),
			End:       formatTime(seg.End),
			Size:      seg.Size,
			State:     string(seg.State),
			Failures:  seg.Failures,
			LastError: seg.LastError,
		})
	}
	for st, count := range g.CountSegments() {
		dto.SegmentCounts[string(st)] = count
	}
	if g.Error != nil {
		dto.Error = &GroupError{
			Stage:   string(g.Error.Stage),
			Reason:  g.Error.Reason,
			Message: g.Error.Message,
			At:      formatTime(g.Error.At),
		}
	}
	if b := g.Boundaries; b != nil {
		dto.Boundaries = &Boundaries{
			StartSeconds: b.StartSeconds,
			EndSeconds:   b.EndSeconds,
			Start:        matchinfo.FormatOffset(b.Start()),
			End:          matchinfo.FormatOffset(b.End()),
			Source:       b.Source,
		}
	}
	return dto
}

// FromGroups converts a slice of groups preserving order.
func FromGroups(groups []state.Group) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, FromGroup(g))
	}
	return out
}

// FromCandidates converts open boundary questions.
func FromCandidates(candidates []boundary.Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Candidate{
			Side:   string(c.Side),
			Offset: matchinfo.FormatOffset(c.Offset),
			Token:  c.Token,
		})
	}
	return out
}

// FromHistory converts journal entries.
func FromHistory(entries []journal.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:        e.ID,
			Group:     e.GroupID,
			At:        formatTime(e.At),
			Event:     e.Event,
			FromStage: e.FromStage,
			ToStage:   e.ToStage,
			Detail:    e.Detail,
		})
	}
	return out
}

// FromStatusSummary converts the scheduler summary.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:         summary.Running,
		LastError:       summary.LastError,
		LastTick:        formatTime(summary.LastTick),
		Ticks:           summary.Ticks,
		CameraConnected: summary.CameraConnected,
		GroupsByStage:   make(map[string]int, len(summary.GroupsByStage)),
		Failed:          summary.Failed,
		StageHealth:     StageHealthSlice(summary.StageHealth),
	}
	for name, count := range summary.GroupsByStage {
		status.GroupsByStage[name] = count
	}
	for _, held := range summary.Inflight {
		status.Inflight = append(status.Inflight, InflightOp{Group: held.Key, Operation: held.Op})
	}
	for _, pool := range summary.Pools {
		status.Pools = append(status.Pools, PoolStatus{Name: pool.Name, Size: pool.Size, Busy: pool.Busy})
	}
	for _, evt := range summary.CameraEvents {
		status.CameraEvents = append(status.CameraEvents, CameraEvent{
			At:      formatTime(evt.At),
			Type:    evt.Type,
			Message: evt.Message,
		})
	}
	return status
}

// StageHealthSlice orders the health map by name.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		if strings.TrimSpace(h.Name) == "" {
			h.Name = name
		}
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseStages turns filter values into stages, skipping blanks. Unknown
// names are an error.
func ParseStages(values []string) ([]state.Stage, error) {
	var out []state.Stage
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			st, err := state.ParseStage(part)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}

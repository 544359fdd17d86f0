package state

import (
	"fmt"
	"sort"
	"time"
)

// IDLayout formats a group's first segment start into its identifier and
// directory name.
const IDLayout = "2006.01.02-15.04.05"

// Stage is a recording group's lifecycle position.
type Stage string

const (
	StageDiscovering         Stage = "discovering"
	StageDownloading         Stage = "downloading"
	StageDownloaded          Stage = "downloaded"
	StageCombining           Stage = "combining"
	StageCombined            Stage = "combined"
	StageAwaitingMatchInfo   Stage = "awaiting_match_info"
	StageResolvingBoundaries Stage = "resolving_boundaries"
	StageTrimming            Stage = "trimming"
	StageComplete            Stage = "complete"
)

var stageOrder = []Stage{
	StageDiscovering,
	StageDownloading,
	StageDownloaded,
	StageCombining,
	StageCombined,
	StageAwaitingMatchInfo,
	StageResolvingBoundaries,
	StageTrimming,
	StageComplete,
}

// Stages lists every stage in lifecycle order.
func Stages() []Stage {
	return append([]Stage(nil), stageOrder...)
}

// Rank returns the stage's position in the lifecycle, or -1 when unknown.
func (s Stage) Rank() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Rank() >= 0 }

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle
// monotonic. Staying put is allowed.
func (s Stage) CanAdvanceTo(next Stage) bool {
	from, to := s.Rank(), next.Rank()
	if from < 0 || to < 0 {
		return false
	}
	return to >= from
}

// ParseStage converts a stored name into a Stage.
func ParseStage(value string) (Stage, error) {
	stage := Stage(value)
	if !stage.Valid() {
		return "", fmt.Errorf("unknown stage %q", value)
	}
	return stage, nil
}

// SegmentState tracks a remote segment's transfer.
type SegmentState string

const (
	SegmentPending     SegmentState = "pending"
	SegmentDownloading SegmentState = "downloading"
	SegmentDownloaded  SegmentState = "downloaded"
	SegmentFailed      SegmentState = "failed"
)

// Segment is one camera-produced recording file.
type Segment struct {
	Name      string       `json:"name"`
	File      string       `json:"file"`
	Start     time.Time    `json:"start"`
	End       time.Time    `json:"end"`
	Size      int64        `json:"size,omitempty"`
	State     SegmentState `json:"state"`
	Failures  int          `json:"failures,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// Duration returns the segment's recorded length.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Eligible reports whether the segment still needs a transfer attempt.
func (s Segment) Eligible() bool {
	return s.State == SegmentPending || s.State == SegmentFailed
}

// Error reasons recorded on sticky failures.
const (
	ReasonToolFailure       = "tool_failure"
	ReasonNotAGame          = "not_a_game"
	ReasonMissingOutput     = "missing_output"
	ReasonInvalidBoundaries = "invalid_boundaries"
)

// ErrorInfo is a sticky failure. Only a manual reset clears it.
type ErrorInfo struct {
	Stage   Stage     `json:"stage"`
	Reason  string    `json:"reason"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

func (e ErrorInfo) String() string {
	return fmt.Sprintf("error(%s, %s)", e.Stage, e.Reason)
}

// Boundary sources.
const (
	BoundarySourceStatic      = "static"
	BoundarySourceInteractive = "interactive"
)

// Boundaries are the resolved game start and end offsets into the combined
// artifact.
type Boundaries struct {
	StartSeconds int64  `json:"start_seconds"`
	EndSeconds   int64  `json:"end_seconds"`
	Source       string `json:"source"`
}

func (b Boundaries) Start() time.Duration { return time.Duration(b.StartSeconds) * time.Second }

func (b Boundaries) End() time.Duration { return time.Duration(b.EndSeconds) * time.Second }

// Closed reasons.
const (
	ClosedQuiescent  = "quiescent"
	ClosedSuperseded = "superseded"
)

// Group is the durable record for one contiguous recording session.
type Group struct {
	Version         int         `json:"version"`
	ID              string      `json:"id"`
	Stage           Stage       `json:"stage"`
	Error           *ErrorInfo  `json:"error,omitempty"`
	Closed          bool        `json:"closed"`
	ClosedReason    string      `json:"closed_reason,omitempty"`
	Segments        []Segment   `json:"segments"`
	CombineAttempts int         `json:"combine_attempts,omitempty"`
	TrimAttempts    int         `json:"trim_attempts,omitempty"`
	NextAttemptAt   time.Time   `json:"next_attempt_at,omitzero"`
	Boundaries      *Boundaries `json:"boundaries,omitempty"`
	Artifact        string      `json:"artifact,omitempty"`
	Output          string      `json:"output,omitempty"`
	RawOutput       string      `json:"raw_output,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

const schemaVersion = 1

// FirstStart is the start of the earliest segment.
func (g Group) FirstStart() time.Time {
	if len(g.Segments) == 0 {
		return time.Time{}
	}
	return g.Segments[0].Start
}

// LastEnd is the end of the latest segment.
func (g Group) LastEnd() time.Time {
	var last time.Time
	for _, seg := range g.Segments {
		if seg.End.After(last) {
			last = seg.End
		}
	}
	return last
}

// Failed reports whether the group carries a sticky error.
func (g Group) Failed() bool { return g.Error != nil }

// Terminal reports whether no further automatic processing applies.
func (g Group) Terminal() bool { return g.Failed() || g.Stage == StageComplete }

// AllDownloaded reports whether every segment is on disk.
func (g Group) AllDownloaded() bool {
	if len(g.Segments) == 0 {
		return false
	}
	for _, seg := range g.Segments {
		if seg.State != SegmentDownloaded {
			return false
		}
	}
	return true
}

// SegmentIndex returns the index of the named segment or -1.
func (g Group) SegmentIndex(name string) int {
	for i, seg := range g.Segments {
		if seg.Name == name {
			return i
		}
	}
	return -1
}

// CountSegments tallies segments by state.
func (g Group) CountSegments() map[SegmentState]int {
	counts := make(map[SegmentState]int, 4)
	for _, seg := range g.Segments {
		counts[seg.State]++
	}
	return counts
}

// Display renders the stage, folding in the sticky error when present.
func (g Group) Display() string {
	if g.Error != nil {
		return g.Error.String()
	}
	return string(g.Stage)
}

// Clone returns a deep copy.
func (g Group) Clone() Group {
	out := g
	out.Segments = append([]Segment(nil), g.Segments...)
	if g.Error != nil {
		errCopy := *g.Error
		out.Error = &errCopy
	}
	if g.Boundaries != nil {
		b := *g.Boundaries
		out.Boundaries = &b
	}
	return out
}

func (g *Group) sortSegments() {
	sort.SliceStable(g.Segments, func(i, j int) bool {
		return g.Segments[i].Start.Before(g.Segments[j].Start)
	})
}

// GroupID derives the group identifier from its first segment start.
func GroupID(start time.Time) string {
	return start.In(time.Local).Format(IDLayout)
}

// ParseGroupID converts a group identifier back into a local time.
func ParseGroupID(id string) (time.Time, error) {
	return time.ParseInLocation(IDLayout, id, time.Local)
}

package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Group describes a recording group in a transport-friendly format.
type Group struct {
	ID              string         `json:"id"`
	Stage           string         `json:"stage"`
	Label           string         `json:"label"`
	Closed          bool           `json:"closed"`
	ClosedReason    string         `json:"closedReason,omitempty"`
	Error           *GroupError    `json:"error,omitempty"`
	Segments        []Segment      `json:"segments"`
	SegmentCounts   map[string]int `json:"segmentCounts"`
	RecordedFrom    string         `json:"recordedFrom,omitempty"`
	RecordedUntil   string         `json:"recordedUntil,omitempty"`
	CombineAttempts int            `json:"combineAttempts,omitempty"`
	TrimAttempts    int            `json:"trimAttempts,omitempty"`
	NextAttemptAt   string         `json:"nextAttemptAt,omitempty"`
	Boundaries      *Boundaries    `json:"boundaries,omitempty"`
	Artifact        string         `json:"artifact,omitempty"`
	Output          string         `json:"output,omitempty"`
	RawOutput       string         `json:"rawOutput,omitempty"`
	CreatedAt       string         `json:"createdAt,omitempty"`
	UpdatedAt       string         `json:"updatedAt,omitempty"`
}

// Segment captures one camera file's transfer state.
type Segment struct {
	Name      string `json:"name"`
	File      string `json:"file"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Size      int64  `json:"size,omitempty"`
	State     string `json:"state"`
	Failures  int    `json:"failures,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// GroupError is a sticky failure.
type GroupError struct {
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	At      string `json:"at,omitempty"`
}

// Boundaries are the resolved game offsets in seconds.
type Boundaries struct {
	StartSeconds int64  `json:"startSeconds"`
	EndSeconds   int64  `json:"endSeconds"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Source       string `json:"source"`
}

// Candidate is an outstanding boundary question.
type Candidate struct {
	Side   string `json:"side"`
	Offset string `json:"offset"`
	Token  string `json:"token"`
}

// WorkflowStatus summarizes scheduler state.
type WorkflowStatus struct {
	Running         bool           `json:"running"`
	LastError       string         `json:"lastError,omitempty"`
	LastTick        string         `json:"lastTick,omitempty"`
	Ticks           int            `json:"ticks"`
	CameraConnected bool           `json:"cameraConnected"`
	GroupsByStage   map[string]int `json:"groupsByStage"`
	Failed          int            `json:"failed"`
	Inflight        []InflightOp   `json:"inflight,omitempty"`
	Pools           []PoolStatus   `json:"pools"`
	StageHealth     []StageHealth  `json:"stageHealth"`
	CameraEvents    []CameraEvent  `json:"cameraEvents,omitempty"`
}

// InflightOp names the operation a group currently holds.
type InflightOp struct {
	Group     string `json:"group"`
	Operation string `json:"operation"`
}

// PoolStatus reports one worker pool's occupancy.
type PoolStatus struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Busy int    `json:"busy"`
}

// CameraEvent is a reachability transition.
type CameraEvent struct {
	At      string `json:"at"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// StageHealth mirrors readiness reporting for workers and dependencies.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// DependencySummary aggregates dependency readiness for status output.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// StatusLine is one labelled row of the status display.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StorageDir   string             `json:"storageDir"`
	JournalPath  string             `json:"journalPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HistoryEntry is one journal transition.
type HistoryEntry struct {
	ID        int64  `json:"id"`
	Group     string `json:"group"`
	At        string `json:"at"`
	Event     string `json:"event"`
	FromStage string `json:"fromStage,omitempty"`
	ToStage   string `json:"toStage,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// GroupListResponse wraps a collection of groups.
type GroupListResponse struct {
	Groups []Group `json:"groups"`
}

// GroupResponse wraps a single group with its open boundary questions.
type GroupResponse struct {
	Group      Group       `json:"group"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// HistoryResponse wraps journal entries, oldest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ResetResponse reports the group after a reset.
type ResetResponse struct {
	Group Group `json:"group"`
}

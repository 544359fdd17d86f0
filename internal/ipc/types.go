package ipc

import "github.com/mblakley/soccer-cam/internal/api"

// ServiceName is the RPC receiver name the daemon registers.
const ServiceName = "SoccerCam"

// StopRequest asks the daemon to stop processing and exit.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status as served over HTTP.
type StatusResponse = api.DaemonStatus

// Group mirrors the HTTP API group DTO for IPC callers.
type Group = api.Group

// StageHealth describes readiness of a lifecycle worker or dependency.
type StageHealth = api.StageHealth

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// GroupListRequest filters groups by stage name.
type GroupListRequest struct {
	Stages []string `json:"stages"`
}

// GroupListResponse contains the matching groups.
type GroupListResponse = api.GroupListResponse

// GroupRequest names one group.
type GroupRequest struct {
	ID string `json:"id"`
}

// GroupResponse contains one group and its open boundary questions.
type GroupResponse = api.GroupResponse

// ResetResponse reports the group after its error was cleared.
type ResetResponse = api.ResetResponse

// HistoryRequest fetches journal entries. An empty ID reads every group.
type HistoryRequest struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

// HistoryResponse contains journal entries, oldest first.
type HistoryResponse = api.HistoryResponse

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

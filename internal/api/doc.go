// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal group records into transport-friendly
// DTOs so the CLI and HTTP consumers render them without coupling to the
// state package.
//
// # Key Types
//
// Group: transport representation of a recording group with its segments,
// sticky error, boundaries, and outputs.
//
// WorkflowStatus: scheduler running state, per-stage counts, pool occupancy,
// and stage health.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// HistoryEntry: one journal transition.
//
// # Converters
//
// FromGroup: state.Group -> Group with a human stage label.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// StageHealthSlice: deterministic ordering of the stage health map.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Stages are exposed as their stored snake_case
// names with a separate label. Timestamps use RFC3339 with milliseconds.
package api

// Package logging assembles structured slog loggers and formatting helpers used
// across soccer-cam services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker code can automatically
// tag log lines with group IDs, stages, and correlation IDs. Per-component
// level overrides let an operator turn on debug output for one worker without
// flooding the rest of the log. The package also provides a no-op logger for
// tests and wiring code that cannot fail.
package logging

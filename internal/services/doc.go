// Package services defines shared utilities consumed by the lifecycle workers
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp group IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, so the workflow can tell a
//     flaky transfer from a failed tool run or a missing match file.
//
// Use these helpers when wiring new worker logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services

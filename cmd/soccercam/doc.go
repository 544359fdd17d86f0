// Package main hosts the soccercam CLI.
//
// The Cobra command tree controls the daemon process, inspects recording
// groups over IPC (or straight from the storage directory when the daemon is
// down), edits match info, and scaffolds configuration. Command handlers stay
// thin; the work lives in the internal packages.
package main

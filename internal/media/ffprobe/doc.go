// Package ffprobe wraps ffprobe's JSON output.
//
// The lifecycle engine only needs container duration (boundary search starts
// the end side at the artifact length, static boundaries are clamped to it),
// but the decoded Result keeps stream details for the status surfaces.
package ffprobe

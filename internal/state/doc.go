// Package state is the durable record of every recording group.
//
// Each group lives in its own directory under the storage root, named by the
// start time of its first segment, with a state.json describing its segments,
// lifecycle stage, sticky error, retry counters, and resolved boundaries. The
// Store keeps an in-memory mirror plus a segment-name index and writes every
// change with a temp-file rename, so a crash at any point leaves either the old
// or the new record on disk, never a torn one.
//
// Marker files (.combined, .completed) hold the RFC 3339 time the step
// finished; a .completed marker short-circuits all further processing.
package state

// Package logs reads the daemon's JSON log files for the CLI.
//
// Tail returns the last N records (or everything after a byte offset) with
// bounded memory, optionally waiting for new records to arrive. A Filter
// narrows records to one group, component, or minimum level, and Format
// renders a JSON record in the same shape the console handler prints.
package logs

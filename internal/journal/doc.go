// Package journal keeps an append-only SQLite history of group transitions.
//
// state.json stays the source of truth for where a group is; the journal
// answers how it got there. Entries are derived from store observer
// callbacks, so every persisted change is recorded without the workers
// knowing about the journal. Schema changes bump schemaVersion; the history
// is disposable and users delete journal.db to adopt a new schema.
package journal

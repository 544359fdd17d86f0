package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/state"
)

// Event kinds.
const (
	EventCreated    = "created"
	EventStage      = "stage"
	EventClosed     = "closed"
	EventSegment    = "segment"
	EventRetry      = "retry"
	EventBoundaries = "boundaries"
	EventError      = "error"
	EventReset      = "reset"
)

// Entry is one recorded transition.
type Entry struct {
	ID        int64     `json:"id"`
	GroupID   string    `json:"group_id"`
	At        time.Time `json:"at"`
	Event     string    `json:"event"`
	FromStage string    `json:"from_stage,omitempty"`
	ToStage   string    `json:"to_stage,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Journal appends transitions to SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// Record appends entries in one transaction.
func (j *Journal) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		at := e.At
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transitions (group_id, at, event, from_stage, to_stage, detail)
             VALUES (?, ?, ?, ?, ?, ?)`,
			e.GroupID,
			at.UTC().Format(time.RFC3339Nano),
			e.Event,
			nullableString(e.FromStage),
			nullableString(e.ToStage),
			nullableString(e.Detail),
		); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal: %w", err)
	}
	return nil
}

// History returns entries oldest first. An empty groupID returns every
// group's entries; limit <= 0 returns all of them, otherwise the newest limit
// entries.
func (j *Journal) History(ctx context.Context, groupID string, limit int) ([]Entry, error) {
	query := `SELECT id, group_id, at, event, from_stage, to_stage, detail FROM transitions`
	var args []any
	if groupID = strings.TrimSpace(groupID); groupID != "" {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			at               string
			from, to, detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &at, &e.Event, &from, &to, &detail); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = parsed
		}
		e.FromStage, e.ToStage, e.Detail = from.String, to.String, detail.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Observer returns a store observer that records every change. Write
// failures are logged and otherwise ignored.
func (j *Journal) Observer(logger *slog.Logger) state.Observer {
	logger = logging.NewComponentLogger(logger, "journal")
	return func(before, after state.Group) {
		entries := Diff(before, after)
		if len(entries) == 0 {
			return
		}
		if err := j.Record(context.Background(), entries...); err != nil {
			logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
				logging.GroupID(after.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "history for this change is missing"),
			)
		}
	}
}

// Diff derives journal entries from one store change.
func Diff(before, after state.Group) []Entry {
	at := after.UpdatedAt
	entry := func(event, detail string) Entry {
		return Entry{
			GroupID:   after.ID,
			At:        at,
			Event:     event,
			FromStage: string(before.Stage),
			ToStage:   string(after.Stage),
			Detail:    detail,
		}
	}

	if before.ID == "" {
		return []Entry{entry(EventCreated, fmt.Sprintf("first segment %s", firstSegment(after)))}
	}

	var out []Entry
	if before.Error != nil && after.Error == nil {
		out = append(out, entry(EventReset, fmt.Sprintf("cleared %s", before.Error)))
	}
	if before.Stage != after.Stage {
		out = append(out, entry(EventStage, ""))
	}
	if !before.Closed && after.Closed {
		out = append(out, entry(EventClosed, after.ClosedReason))
	}
	for _, seg := range after.Segments {
		idx := before.SegmentIndex(seg.Name)
		switch {
		case idx < 0:
			out = append(out, entry(EventSegment, fmt.Sprintf("%s added", seg.Name)))
		case before.Segments[idx].State != seg.State && (seg.State == state.SegmentDownloaded || seg.State == state.SegmentFailed):
			detail := fmt.Sprintf("%s %s", seg.Name, seg.State)
			if seg.State == state.SegmentFailed {
				detail = fmt.Sprintf("%s failed(%d): %s", seg.Name, seg.Failures, seg.LastError)
			}
			out = append(out, entry(EventSegment, detail))
		}
	}
	if after.CombineAttempts > before.CombineAttempts {
		out = append(out, entry(EventRetry, fmt.Sprintf("combine attempt %d failed", after.CombineAttempts)))
	}
	if after.TrimAttempts > before.TrimAttempts {
		out = append(out, entry(EventRetry, fmt.Sprintf("trim attempt %d failed", after.TrimAttempts)))
	}
	if before.Boundaries == nil && after.Boundaries != nil {
		b := after.Boundaries
		out = append(out, entry(EventBoundaries, fmt.Sprintf("%s-%s (%s)", b.Start(), b.End(), b.Source)))
	}
	if before.Error == nil && after.Error != nil {
		detail := after.Error.String()
		if after.Error.Message != "" {
			detail += ": " + after.Error.Message
		}
		out = append(out, entry(EventError, detail))
	}
	return out
}

func firstSegment(g state.Group) string {
	if len(g.Segments) == 0 {
		return "none"
	}
	return g.Segments[0].Name
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

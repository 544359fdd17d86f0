package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLogPattern matches the per-run daemon log files written to the log
// directory.
const RunLogPattern = "soccercam-*.log"

// RunLogName returns the file name for a daemon run started at the given
// time.
func RunLogName(started time.Time) string {
	return "soccercam-" + started.UTC().Format("20060102T150405.000Z") + ".log"
}

// PruneRunLogs removes run logs in dir whose modification time is older than
// retentionDays and returns how many were removed. Paths in keep survive
// regardless of age, and so does the target of any symlink among them. A
// retentionDays of zero or less disables pruning.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, keep ...string) int {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	kept := keepSet(keep)
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var removed int
	var reclaimed int64
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if matched, _ := filepath.Match(RunLogPattern, entry.Name()); !matched {
			continue
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if isKept(kept, path) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old run log remains on disk"),
			)
			continue
		}
		removed++
		reclaimed += info.Size()
	}
	if removed > 0 && logger != nil {
		logger.Info("run logs pruned",
			String(FieldEventType, "log_pruned"),
			String("log_dir", dir),
			Int("removed", removed),
			Int64("bytes_reclaimed", reclaimed),
			Int("retention_days", retentionDays),
		)
	}
	return removed
}

func keepSet(paths []string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		out[absPath(path)] = struct{}{}
		if target, err := filepath.EvalSymlinks(path); err == nil {
			out[absPath(target)] = struct{}{}
		}
	}
	return out
}

func isKept(kept map[string]struct{}, path string) bool {
	if _, ok := kept[path]; ok {
		return true
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		_, ok := kept[absPath(resolved)]
		return ok
	}
	return false
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

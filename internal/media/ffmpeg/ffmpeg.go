// Package ffmpeg runs the external converter, combiner and trimmer.
//
// Video is always stream-copied. Convert re-encodes only the audio of a
// camera DAV file to AAC so the MP4 container accepts it. Outputs are
// written to the path the caller gives, so callers own the temp-then-rename
// step.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/services"
)

// ListFileName is the concat list written next to the combined output.
const ListFileName = "filelist.txt"

// CommandRunner executes a binary with args. Tests substitute it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Tool converts, combines, trims and snapshots media files.
type Tool struct {
	binary string
	logger *slog.Logger
	run    CommandRunner
}

func New(binary string, logger *slog.Logger) *Tool {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Tool{
		binary: binary,
		logger: logging.NewComponentLogger(logger, "ffmpeg"),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (t *Tool) WithCommandRunner(r CommandRunner) *Tool {
	if t != nil && r != nil {
		t.run = r
	}
	return t
}

// Binary returns the configured ffmpeg executable.
func (t *Tool) Binary() string { return t.binary }

// Convert remuxes a DAV segment into out as MP4.
func (t *Tool) Convert(ctx context.Context, in, out string) error {
	return t.exec(ctx, "convert", ConvertArgs(in, out))
}

// Combine concatenates ordered inputs into out. The concat list is written
// to the output directory and removed afterwards.
func (t *Tool) Combine(ctx context.Context, ordered []string, out string) error {
	if len(ordered) == 0 {
		return services.Wrap(services.ErrValidation, "combining", "combine", "no input segments", nil)
	}
	listPath := filepath.Join(filepath.Dir(out), ListFileName)
	if err := os.WriteFile(listPath, []byte(ConcatList(ordered)), 0o644); err != nil {
		return services.Wrap(services.ErrTransientIO, "combining", "combine", "write concat list", err)
	}
	defer os.Remove(listPath)

	return t.exec(ctx, "combine", CombineArgs(listPath, out))
}

// Trim copies [start, end) of in into out.
func (t *Tool) Trim(ctx context.Context, in string, start, end time.Duration, out string) error {
	if end <= start {
		return services.Wrap(services.ErrValidation, "trimming", "trim",
			fmt.Sprintf("end %s is not after start %s", end, start), nil)
	}
	return t.exec(ctx, "trim", TrimArgs(in, start, end, out))
}

// Snapshot writes a single JPEG frame taken at offset at.
func (t *Tool) Snapshot(ctx context.Context, in string, at time.Duration, out string) error {
	return t.exec(ctx, "snapshot", SnapshotArgs(in, at, out))
}

func (t *Tool) exec(ctx context.Context, operation string, args []string) error {
	started := time.Now()
	t.logger.Debug("running ffmpeg",
		logging.String("operation", operation),
		logging.String("args", strings.Join(args, " ")),
	)
	if err := t.run(ctx, t.binary, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, operation, "ffmpeg", "", err)
	}
	t.logger.Debug("ffmpeg finished",
		logging.String("operation", operation),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// ConcatList renders the concat demuxer list. Single quotes inside paths are
// escaped the way the demuxer expects.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func ConvertArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		out,
	}
}

func CombineArgs(listPath, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		out,
	}
}

func TrimArgs(in string, start, end time.Duration, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", FormatOffset(start),
		"-to", FormatOffset(end),
		"-i", in,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		out,
	}
}

func SnapshotArgs(in string, at time.Duration, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", FormatOffset(at),
		"-i", in,
		"-vframes", "1",
		"-q:v", "2",
		out,
	}
}

// FormatOffset renders d as HH:MM:SS.mmm.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	frac := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, frac)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}


package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/services"
)

const KindDirectory = "directory"

// Directory imports segments from a mounted SD card or NAS export that keeps
// the camera's layout: a YYYY-MM-DD directory somewhere above files named
// HH.MM.SS-HH.MM.SS[...].dav (or .mp4).
type Directory struct {
	root string
}

func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

func (d *Directory) Kind() string { return KindDirectory }

func (d *Directory) Available(ctx context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "camera", "directory", d.root, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "camera", "directory", d.root+" is not a directory", nil)
	}
	return ctx.Err()
}

var (
	segmentNamePattern = regexp.MustCompile(`^(\d{2}\.\d{2}\.\d{2})-(\d{2}\.\d{2}\.\d{2})`)
	datePattern        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

func (d *Directory) ListSegments(ctx context.Context, since, until time.Time) ([]Segment, error) {
	var segments []Segment
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".dav" && ext != ".mp4" {
			return nil
		}
		seg, ok := parseSegmentPath(d.root, path)
		if !ok {
			return nil
		}
		if info, err := entry.Info(); err == nil {
			seg.Size = info.Size()
		}
		segments = append(segments, seg)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransientIO, "camera", "directory", "walk", err)
	}
	sortSegments(segments)
	return filterWindow(segments, since, until), nil
}

func (d *Directory) Fetch(ctx context.Context, seg Segment) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	file, err := os.Open(filepath.Join(d.root, filepath.FromSlash(seg.Name)))
	if err != nil {
		return nil, 0, services.Wrap(services.ErrTransientIO, "camera", "directory", "open "+seg.Name, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, services.Wrap(services.ErrTransientIO, "camera", "directory", "stat "+seg.Name, err)
	}
	return file, info.Size(), nil
}

func parseSegmentPath(root, path string) (Segment, bool) {
	match := segmentNamePattern.FindStringSubmatch(filepath.Base(path))
	if match == nil {
		return Segment{}, false
	}
	var day string
	for dir := filepath.Dir(path); dir != root && dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if datePattern.MatchString(filepath.Base(dir)) {
			day = filepath.Base(dir)
			break
		}
	}
	if day == "" {
		return Segment{}, false
	}
	start, err := time.ParseInLocation("2006-01-02 15.04.05", day+" "+match[1], time.Local)
	if err != nil {
		return Segment{}, false
	}
	end, err := time.ParseInLocation("2006-01-02 15.04.05", day+" "+match[2], time.Local)
	if err != nil {
		return Segment{}, false
	}
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Segment{}, false
	}
	return Segment{Name: filepath.ToSlash(rel), Start: start, End: end}, true
}

// String identifies the adapter in logs.
func (d *Directory) String() string {
	return fmt.Sprintf("directory(%s)", d.root)
}

package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
)

// TimeLayout is how cameras report segment boundaries, in local time.
const TimeLayout = "2006-01-02 15:04:05"

// Segment describes one recording file as the device reports it.
type Segment struct {
	Name  string
	Start time.Time
	End   time.Time
	Size  int64
}

// FileName is the local file name used when the segment is downloaded.
func (s Segment) FileName() string {
	base := path.Base(strings.ReplaceAll(s.Name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return s.Start.In(time.Local).Format("15.04.05") + ".dav"
	}
	return base
}

// Adapter is the capability set every supported recording device provides.
type Adapter interface {
	// Kind names the variant for logs and metrics.
	Kind() string
	// Available reports nil when the device can be reached.
	Available(ctx context.Context) error
	// ListSegments returns segments that overlap [since, until]. A zero since
	// means no lower bound.
	ListSegments(ctx context.Context, since, until time.Time) ([]Segment, error)
	// Fetch opens the segment's content. The returned size is the expected
	// byte count, or -1 when the device does not say.
	Fetch(ctx context.Context, seg Segment) (io.ReadCloser, int64, error)
}

// New builds the adapter selected by camera.type.
func New(cfg config.Camera, logger *slog.Logger) (Adapter, error) {
	switch cfg.Type {
	case KindDahua:
		return NewDahua(cfg, logger), nil
	case KindDirectory:
		return NewDirectory(cfg.SourceDir), nil
	default:
		return nil, fmt.Errorf("unsupported camera type %q", cfg.Type)
	}
}

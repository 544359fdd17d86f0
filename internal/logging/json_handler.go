package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Keys of the JSON log record. The logs package reads run logs back using
// the same names.
const (
	KeyTime    = "ts"
	KeyLevel   = "level"
	KeyMessage = "msg"
	KeySource  = "src"
)

// newJSONHandler writes one object per line with UTC timestamps and
// lowercase levels.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: renameJSONAttr,
	})
}

func renameJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String(KeyTime, attr.Value.Time().UTC().Format(time.RFC3339))
		}
		attr.Key = KeyTime
	case slog.LevelKey:
		return slog.String(KeyLevel, strings.ToLower(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = KeyMessage
	case slog.SourceKey:
		attr.Key = KeySource
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}

package logging

import (
	"context"
	"log/slog"
	"strings"
)

// levelOverrideHandler enforces a per-logger minimum level while delegating
// output to the wrapped handler (which should be configured with the most
// verbose level needed globally).
type levelOverrideHandler struct {
	next  slog.Handler
	level slog.Level
}

func newLevelOverrideHandler(next slog.Handler, level slog.Level) slog.Handler {
	if next == nil {
		return NoopHandler{}
	}
	return &levelOverrideHandler{next: next, level: level}
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{
		next:  h.next.WithAttrs(attrs),
		level: h.level,
	}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{
		next:  h.next.WithGroup(name),
		level: h.level,
	}
}

func (h *levelOverrideHandler) CloneWithLevel(level slog.Level) slog.Handler {
	return &levelOverrideHandler{
		next:  h.next,
		level: level,
	}
}

// WithLevelOverride returns a logger that enforces the provided minimum level
// while preserving existing attributes and handler wiring.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return slog.New(newLevelOverrideHandler(nil, level))
	}
	if cloner, ok := logger.Handler().(interface{ CloneWithLevel(slog.Level) slog.Handler }); ok {
		return slog.New(cloner.CloneWithLevel(level))
	}
	return slog.New(newLevelOverrideHandler(logger.Handler(), level))
}

// ComponentLevels resolves the minimum level for each component logger from
// the global level plus logging.component_overrides.
type ComponentLevels struct {
	Default   slog.Level
	Overrides map[string]slog.Level
}

// NewComponentLevels parses the configured level names.
func NewComponentLevels(global string, overrides map[string]string) ComponentLevels {
	levels := ComponentLevels{
		Default:   parseLevel(global),
		Overrides: make(map[string]slog.Level, len(overrides)),
	}
	for component, name := range overrides {
		levels.Overrides[strings.ToLower(strings.TrimSpace(component))] = parseLevel(name)
	}
	return levels
}

// Lowest returns the most verbose level any component needs. Handlers must be
// built at this level so overrides can lower a component below the default.
func (c ComponentLevels) Lowest() slog.Level {
	lowest := c.Default
	for _, level := range c.Overrides {
		if level < lowest {
			lowest = level
		}
	}
	return lowest
}

// LowestName is Lowest formatted for Options.Level.
func (c ComponentLevels) LowestName() string {
	return strings.ToLower(c.Lowest().String())
}

// Logger returns a component logger filtered at that component's level.
func (c ComponentLevels) Logger(base *slog.Logger, component string) *slog.Logger {
	level, ok := c.Overrides[strings.ToLower(component)]
	if !ok {
		level = c.Default
	}
	return WithLevelOverride(NewComponentLogger(base, component), level)
}

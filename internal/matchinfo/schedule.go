package matchinfo

import (
	"context"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
)

// Game is a scheduled fixture.
type Game struct {
	Start    time.Time
	Length   time.Duration
	Team     string
	Opponent string
	Location string
}

// End is when the fixture is expected to finish.
func (g Game) End() time.Time { return g.Start.Add(g.Length) }

// ScheduleLookup finds the fixture recorded between start and end.
type ScheduleLookup interface {
	Find(ctx context.Context, start, end time.Time) (Game, bool, error)
}

// ConfigSchedule serves fixtures listed under [[schedule.games]].
type ConfigSchedule struct {
	games []Game
}

// NewConfigSchedule parses the configured fixtures. Entries that fail to
// parse were already rejected by config validation and are skipped.
func NewConfigSchedule(cfg config.Schedule, defaultLength time.Duration) *ConfigSchedule {
	s := &ConfigSchedule{}
	for _, g := range cfg.Games {
		start, err := time.ParseInLocation(config.ScheduleTimeLayout, g.Start, time.Local)
		if err != nil {
			continue
		}
		length := defaultLength
		if g.Minutes > 0 {
			length = time.Duration(g.Minutes) * time.Minute
		}
		s.games = append(s.games, Game{
			Start:    start,
			Length:   length,
			Team:     g.Team,
			Opponent: g.Opponent,
			Location: g.Location,
		})
	}
	return s
}

// Find returns the fixture that overlaps [start, end] the most.
func (s *ConfigSchedule) Find(_ context.Context, start, end time.Time) (Game, bool, error) {
	var best Game
	var bestOverlap time.Duration
	for _, g := range s.games {
		from := later(start, g.Start)
		to := earlier(end, g.End())
		if overlap := to.Sub(from); overlap > bestOverlap {
			best, bestOverlap = g, overlap
		}
	}
	return best, bestOverlap > 0, nil
}

// Prefill copies the fixture's names into blank fields.
func Prefill(info Info, game Game) Info {
	if info.Team == "" {
		info.Team = game.Team
	}
	if info.Opponent == "" {
		info.Opponent = game.Opponent
	}
	if info.Location == "" {
		info.Location = game.Location
	}
	return info
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

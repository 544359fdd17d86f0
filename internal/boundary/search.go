package boundary

import (
	"fmt"
	"time"

	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/services"
)

// search is one group's pair of step searches.
type search struct {
	duration time.Duration
	since    time.Time
	sides    [2]*sideSearch
	seen     map[string]struct{}
	notAGame bool
}

type sideSearch struct {
	side      Side
	candidate time.Duration
	prompted  bool
	resolved  bool
	value     time.Duration
}

// newSearch starts both sides. Tokens carry whole seconds, so the duration
// is truncated to match what a reply can name.
func newSearch(duration time.Duration, since time.Time) *search {
	duration = duration.Truncate(time.Second)
	return &search{
		duration: duration,
		since:    since,
		sides: [2]*sideSearch{
			{side: SideStart, candidate: 0},
			{side: SideEnd, candidate: duration},
		},
		seen: make(map[string]struct{}),
	}
}

func (s *search) side(side Side) *sideSearch {
	if side == SideStart {
		return s.sides[0]
	}
	return s.sides[1]
}

// apply folds one reply into the search. Replies about anything other than
// the current candidate of an unresolved side are protocol errors and leave
// the search untouched.
func (s *search) apply(side Side, offset time.Duration, answer notifications.Answer, step time.Duration) error {
	if s.notAGame {
		return fmt.Errorf("%w: group already reported as not a game", services.ErrProtocol)
	}
	ss := s.side(side)
	if ss.resolved {
		return fmt.Errorf("%w: %s already resolved", services.ErrProtocol, side)
	}
	if offset != ss.candidate {
		return fmt.Errorf("%w: stale %s candidate %s, current is %s", services.ErrProtocol, side, offset, ss.candidate)
	}
	switch answer {
	case notifications.AnswerPrompted:
		ss.prompted = true
	case notifications.AnswerNo:
		next := s.advance(ss, step)
		if next < 0 || next > s.duration {
			s.notAGame = true
			return nil
		}
		ss.candidate = next
		ss.prompted = false
	case notifications.AnswerYes:
		// The candidate moves on as with "no" and the side settles one step
		// back, on the offset that was confirmed.
		next := s.advance(ss, step)
		if ss.side == SideStart {
			ss.value = next - step
		} else {
			ss.value = next + step
		}
		ss.value = clamp(ss.value, s.duration)
		ss.candidate = next
		ss.resolved = true
	case notifications.AnswerNotAGame:
		s.notAGame = true
	default:
		return fmt.Errorf("%w: unknown answer %q", services.ErrProtocol, answer)
	}
	return nil
}

// advance moves a candidate one step toward the middle of the recording.
func (s *search) advance(ss *sideSearch, step time.Duration) time.Duration {
	if ss.side == SideStart {
		return ss.candidate + step
	}
	return ss.candidate - step
}

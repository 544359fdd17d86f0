package boundary

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/services"
)

// Side names which edge of the game a search looks for.
type Side string

const (
	SideStart Side = "start"
	SideEnd   Side = "end"
)

// Candidate is the offset currently being asked about.
type Candidate struct {
	Side   Side
	Offset time.Duration
	Token  string
}

// NewCandidate builds a candidate and its reply token.
func NewCandidate(group string, side Side, offset time.Duration) Candidate {
	return Candidate{Side: side, Offset: offset, Token: Token(group, side, offset)}
}

// Token renders "<group>/<side>/<offset seconds>".
func Token(group string, side Side, offset time.Duration) string {
	return fmt.Sprintf("%s/%s/%d", group, side, int64(offset/time.Second))
}

// ParseToken splits a reply token. Malformed tokens are protocol errors.
func ParseToken(token string) (string, Side, time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(token), "/")
	if len(parts) != 3 || parts[0] == "" {
		return "", "", 0, fmt.Errorf("%w: malformed token %q", services.ErrProtocol, token)
	}
	side := Side(parts[1])
	if side != SideStart && side != SideEnd {
		return "", "", 0, fmt.Errorf("%w: token %q has unknown side", services.ErrProtocol, token)
	}
	seconds, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || seconds < 0 {
		return "", "", 0, fmt.Errorf("%w: token %q has invalid offset", services.ErrProtocol, token)
	}
	return parts[0], side, time.Duration(seconds) * time.Second, nil
}

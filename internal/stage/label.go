package stage

import (
	"strings"
	"unicode"

	"github.com/mblakley/soccer-cam/internal/state"
)

// Label renders a stage for humans: "awaiting_match_info" becomes
// "Awaiting Match Info".
func Label(s state.Stage) string {
	if s == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(s), "_", " "))
	for i, part := range parts {
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}

// Describe labels a group's position, folding in a sticky error.
func Describe(g state.Group) string {
	if g.Error != nil {
		return "Failed in " + Label(g.Error.Stage) + " (" + g.Error.Reason + ")"
	}
	label := Label(g.Stage)
	if !g.NextAttemptAt.IsZero() && g.Stage != state.StageComplete {
		label += " (retry pending)"
	}
	return label
}

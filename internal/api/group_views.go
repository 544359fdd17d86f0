package api

import (
	"sort"
	"time"
)

// SortGroupsNewestFirst orders groups by recording start descending. Group
// IDs sort chronologically, so the ID breaks ties.
func SortGroupsNewestFirst(groups []Group) []Group {
	if len(groups) == 0 {
		return nil
	}
	sorted := make([]Group, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := ParseTime(sorted[i].RecordedFrom)
		tj := ParseTime(sorted[j].RecordedFrom)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

// ParseTime parses an API timestamp, returning the zero time when the value
// is empty or malformed.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(dateTimeFormat, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// StageCounts tallies groups by stage; failed groups count under "error".
func StageCounts(groups []Group) map[string]int {
	counts := make(map[string]int)
	for _, g := range groups {
		if g.Error != nil {
			counts["error"]++
			continue
		}
		counts[g.Stage]++
	}
	return counts
}

// RecordedSpan is the recording length covered by the group's segments.
func (g Group) RecordedSpan() time.Duration {
	from, until := ParseTime(g.RecordedFrom), ParseTime(g.RecordedUntil)
	if from.IsZero() || until.IsZero() || until.Before(from) {
		return 0
	}
	return until.Sub(from)
}

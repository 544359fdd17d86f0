package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/api"
)

const displayTimeLayout = "2006-01-02 15:04"

func buildGroupRows(groups []api.Group) [][]string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		stage := g.Stage
		if g.Error != nil {
			stage = g.Stage + " (error)"
		}
		rows = append(rows, []string{
			g.ID,
			stage,
			formatSpan(g.RecordedSpan()),
			segmentSummary(g),
			groupStatusText(g),
		})
	}
	return rows
}

// groupStatusText is the one-line state shown in listings: the error reason
// for failed groups, otherwise the stage label.
func groupStatusText(g api.Group) string {
	if g.Error != nil {
		if g.Error.Message != "" {
			return fmt.Sprintf("%s: %s", g.Error.Reason, g.Error.Message)
		}
		return g.Error.Reason
	}
	if g.Label != "" {
		return g.Label
	}
	return g.Stage
}

func segmentSummary(g api.Group) string {
	total := len(g.Segments)
	done := g.SegmentCounts["downloaded"]
	if done == total {
		return strconv.Itoa(total)
	}
	return fmt.Sprintf("%d/%d", done, total)
}

func formatSpan(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	seconds := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
}

func formatLocal(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(displayTimeLayout)
}

func renderGroupDetail(out io.Writer, resp *api.GroupResponse, colorize bool) {
	g := resp.Group
	fmt.Fprintln(out, renderStatusLine(g.ID, stageKind(g.Stage, g.Error != nil), groupStatusText(g), colorize))
	fmt.Fprintln(out)

	fields := [][2]string{
		{"Stage", g.Stage},
		{"Recorded", strings.TrimSpace(formatLocal(g.RecordedFrom) + " - " + formatLocal(g.RecordedUntil))},
		{"Length", formatSpan(g.RecordedSpan())},
		{"Closed", closedText(g)},
		{"Combine attempts", countText(g.CombineAttempts)},
		{"Trim attempts", countText(g.TrimAttempts)},
		{"Next attempt", formatLocal(g.NextAttemptAt)},
		{"Combined file", g.Artifact},
		{"Output", g.Output},
		{"Raw output", g.RawOutput},
		{"Updated", formatLocal(g.UpdatedAt)},
	}
	if g.Boundaries != nil {
		fields = append(fields, [2]string{"Game", fmt.Sprintf("%s - %s (%s)", g.Boundaries.Start, g.Boundaries.End, g.Boundaries.Source)})
	}
	if g.Error != nil {
		fields = append(fields,
			[2]string{"Error stage", g.Error.Stage},
			[2]string{"Error reason", g.Error.Reason},
			[2]string{"Error message", g.Error.Message},
			[2]string{"Failed at", formatLocal(g.Error.At)},
		)
	}
	fmt.Fprint(out, renderFields(fields))

	if len(g.Segments) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable(
			[]string{"Segment", "Start", "End", "Size", "State"},
			buildSegmentRows(g.Segments),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(resp.Candidates) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Waiting on boundary answers:")
		for _, c := range resp.Candidates {
			fmt.Fprintf(out, "  %s at %s (token %s)\n", c.Side, c.Offset, c.Token)
		}
	}
}

func buildSegmentRows(segments []api.Segment) [][]string {
	rows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		stateText := seg.State
		if seg.Failures > 0 {
			stateText = fmt.Sprintf("%s (%d failures)", seg.State, seg.Failures)
		}
		rows = append(rows, []string{
			seg.File,
			formatLocal(seg.Start),
			formatLocal(seg.End),
			formatBytes(seg.Size),
			stateText,
		})
	}
	return rows
}

func buildHistoryRows(entries []api.HistoryEntry) [][]string {
	sorted := append([]api.HistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	rows := make([][]string, 0, len(sorted))
	for _, e := range sorted {
		transition := ""
		switch {
		case e.FromStage != "" && e.ToStage != "" && e.FromStage != e.ToStage:
			transition = e.FromStage + " -> " + e.ToStage
		case e.ToStage != "":
			transition = e.ToStage
		}
		rows = append(rows, []string{formatLocal(e.At), e.Group, e.Event, transition, e.Detail})
	}
	return rows
}

func closedText(g api.Group) string {
	if !g.Closed {
		return "no"
	}
	if g.ClosedReason != "" {
		return "yes (" + g.ClosedReason + ")"
	}
	return "yes"
}

func countText(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func formatBytes(size int64) string {
	if size <= 0 {
		return "-"
	}
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

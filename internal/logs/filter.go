package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mblakley/soccer-cam/internal/logging"
)

// Filter selects JSON log records. Empty fields match everything. Lines that
// are not JSON records only pass an empty filter.
type Filter struct {
	GroupID   string
	Component string
	MinLevel  string
}

// Empty reports whether the filter accepts every line.
func (f Filter) Empty() bool {
	return strings.TrimSpace(f.GroupID) == "" &&
		strings.TrimSpace(f.Component) == "" &&
		strings.TrimSpace(f.MinLevel) == ""
}

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	record, ok := parseRecord(line)
	if !ok {
		return false
	}
	if id := strings.TrimSpace(f.GroupID); id != "" && stringField(record, logging.FieldGroupID) != id {
		return false
	}
	if component := strings.TrimSpace(f.Component); component != "" && !strings.EqualFold(stringField(record, logging.FieldComponent), component) {
		return false
	}
	if min := strings.TrimSpace(f.MinLevel); min != "" {
		if logging.ParseLevel(stringField(record, logging.KeyLevel)) < logging.ParseLevel(min) {
			return false
		}
	}
	return true
}

// Format renders a JSON record as `ts LEVEL component[group]: msg k=v`.
// Anything that is not a JSON record is returned unchanged.
func Format(line string) string {
	record, ok := parseRecord(line)
	if !ok {
		return line
	}
	ts := stringField(record, logging.KeyTime)
	level := strings.ToUpper(stringField(record, logging.KeyLevel))
	component := stringField(record, logging.FieldComponent)
	group := stringField(record, logging.FieldGroupID)
	msg := stringField(record, logging.KeyMessage)

	var b strings.Builder
	b.WriteString(ts)
	b.WriteByte(' ')
	b.WriteString(level)
	b.WriteByte(' ')
	switch {
	case component != "" && group != "":
		fmt.Fprintf(&b, "%s[%s]: ", component, group)
	case component != "":
		b.WriteString(component + ": ")
	case group != "":
		fmt.Fprintf(&b, "[%s] ", group)
	}
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(record))
	for key := range record {
		switch key {
		case logging.KeyTime, logging.KeyLevel, logging.KeyMessage, logging.KeySource, logging.FieldComponent, logging.FieldGroupID:
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(formatField(record[key]))
	}
	return b.String()
}

func parseRecord(line string) (map[string]any, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, false
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return nil, false
	}
	return record, true
}

func stringField(record map[string]any, key string) string {
	value, ok := record[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return formatField(value)
}

func formatField(value any) string {
	switch v := value.(type) {
	case string:
		if v == "" || strings.ContainsAny(v, " =\"\t\n") {
			return strconv.Quote(v)
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

package logs

import "testing"

const sampleRecord = `{"ts":"2026-09-12T09:00:00Z","level":"warn","msg":"combine failed","component":"combine","group_id":"2026-09-12_09-00-00","attempt":2,"error":"exit status 1"}`

func TestFilterMatch(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		line   string
		want   bool
	}{
		{"empty passes plain text", Filter{}, "plain", true},
		{"non json fails a filter", Filter{GroupID: "x"}, "plain", false},
		{"group match", Filter{GroupID: "2026-09-12_09-00-00"}, sampleRecord, true},
		{"group mismatch", Filter{GroupID: "other"}, sampleRecord, false},
		{"component case folded", Filter{Component: "Combine"}, sampleRecord, true},
		{"level at threshold", Filter{MinLevel: "warn"}, sampleRecord, true},
		{"level below threshold", Filter{MinLevel: "error"}, sampleRecord, false},
	}
	for _, tc := range cases {
		if got := tc.filter.Match(tc.line); got != tc.want {
			t.Errorf("%s: Match = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFormat(t *testing.T) {
	got := Format(sampleRecord)
	want := `2026-09-12T09:00:00Z WARN combine[2026-09-12_09-00-00]: combine failed attempt=2 error="exit status 1"`
	if got != want {
		t.Fatalf("Format mismatch\n got: %s\nwant: %s", got, want)
	}
	if Format("plain text") != "plain text" {
		t.Fatal("non-JSON lines pass through")
	}
}

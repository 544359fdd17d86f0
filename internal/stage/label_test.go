package stage

import (
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/state"
)

func TestLabel(t *testing.T) {
	cases := map[state.Stage]string{
		state.StageAwaitingMatchInfo:   "Awaiting Match Info",
		state.StageResolvingBoundaries: "Resolving Boundaries",
		state.StageComplete:            "Complete",
		"":                             "",
	}
	for in, want := range cases {
		if got := Label(in); got != want {
			t.Fatalf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDescribe(t *testing.T) {
	g := state.Group{Stage: state.StageCombining, NextAttemptAt: time.Now()}
	if got := Describe(g); got != "Combining (retry pending)" {
		t.Fatalf("unexpected %q", got)
	}
	g.Error = &state.ErrorInfo{Stage: state.StageTrimming, Reason: state.ReasonToolFailure}
	if got := Describe(g); got != "Failed in Trimming (tool_failure)" {
		t.Fatalf("unexpected %q", got)
	}
	if Unhealthy("ffmpeg", "missing").Ready {
		t.Fatal("expected unhealthy record")
	}
}

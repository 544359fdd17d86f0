package deps

import (
	"context"
	"strings"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/stage"
)

// MediaRequirements lists the tools the combine, trim, and boundary steps
// run.
func MediaRequirements(cfg config.Processing) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     strings.TrimSpace(cfg.FFmpegBinary),
			Description: "Converts and combines segments, trims games, and captures boundary snapshots",
			VersionFlag: "-version",
		},
		{
			Name:        "FFprobe",
			Command:     strings.TrimSpace(cfg.FFprobeBinary),
			Description: "Measures the combined recording for boundary clamping",
			VersionFlag: "-version",
		},
	}
}

// Checker reports binary availability as stage health.
type Checker struct {
	Requirement Requirement
}

// Checkers wraps each requirement for the workflow status.
func Checkers(requirements []Requirement) []stage.Checker {
	out := make([]stage.Checker, 0, len(requirements))
	for _, req := range requirements {
		out = append(out, Checker{Requirement: req})
	}
	return out
}

func (c Checker) HealthCheck(context.Context) stage.Health {
	status := CheckBinaries([]Requirement{c.Requirement})[0]
	name := strings.ToLower(status.Name)
	if !status.Available {
		return stage.Unhealthy(name, status.Detail)
	}
	return stage.Healthy(name)
}

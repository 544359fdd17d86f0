package preflight

import (
	"context"
	"strings"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config. A
// nil adapter skips the camera check.
func RunAll(ctx context.Context, cfg *config.Config, adapter camera.Adapter) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Storage directory", cfg.Paths.StorageDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Processing.MinFreeGiB > 0 {
		results = append(results, CheckFreeSpace("Free space", cfg.Paths.StorageDir, cfg.Processing.MinFreeGiB))
	}
	if adapter != nil {
		results = append(results, CheckCamera(ctx, adapter, cfg.Camera.Timeout()))
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyServer, cfg.Notifications.Timeout()))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/deps"
	"github.com/mblakley/soccer-cam/internal/stage"
)

const gib = 1 << 30

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeBytes reports the space available to unprivileged writers at path.
func FreeBytes(path string) (uint64, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, err
	}
	return fs.Bavail * uint64(fs.Bsize), nil
}

// CheckFreeSpace fails when less than minGiB is available at path. A
// combined recording of a full game is several gigabytes.
func CheckFreeSpace(name, path string, minGiB int) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	detail := fmt.Sprintf("%.1f GiB free at %s", float64(free)/gib, path)
	if free < uint64(minGiB)*gib {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d GiB)", detail, minGiB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckCamera probes the recording device once.
func CheckCamera(ctx context.Context, adapter camera.Adapter, timeout time.Duration) Result {
	name := "Camera (" + adapter.Kind() + ")"
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := adapter.Available(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckNtfy verifies the ntfy server answers its health endpoint.
func CheckNtfy(ctx context.Context, server string, timeout time.Duration) Result {
	const name = "ntfy"

	base := strings.TrimRight(strings.TrimSpace(server), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing server"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/v1/health", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: base}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.MediaRequirements(cfg.Processing))
}

// DiskChecker reports free space as stage health.
type DiskChecker struct {
	Path   string
	MinGiB int
}

func (d DiskChecker) HealthCheck(context.Context) stage.Health {
	result := CheckFreeSpace("disk", d.Path, d.MinGiB)
	if !result.Passed {
		return stage.Unhealthy("disk", result.Detail)
	}
	return stage.Health{Name: "disk", Ready: true, Detail: result.Detail}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}

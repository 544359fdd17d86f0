package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// Requirement defines an external binary the pipeline runs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionFlag, when set, is passed to the binary to read its version
	// banner.
	VersionFlag string
}

// Status reports what was found for one requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Version     string
	Detail      string
}

// CheckBinaries resolves each requirement on PATH and reads its version
// where a flag is given. A binary whose version read fails still counts as
// available; the failure is reported in Detail.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(req))
	}
	return results
}

func check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Path = path
	if req.VersionFlag == "" {
		return status
	}
	version, err := readVersion(path, req.VersionFlag)
	if err != nil {
		status.Detail = "version check failed: " + err.Error()
		return status
	}
	status.Version = version
	return status
}

func readVersion(path, flag string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, flag).Output() //nolint:gosec
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return ParseVersion(line), nil
}

// ParseVersion extracts the version token from a banner line such as
// "ffmpeg version 6.1.1 Copyright ...".
func ParseVersion(banner string) string {
	fields := strings.Fields(banner)
	for i, field := range fields {
		if field == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	if len(fields) > 0 {
		if _, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			return fields[len(fields)-1]
		}
	}
	return ""
}

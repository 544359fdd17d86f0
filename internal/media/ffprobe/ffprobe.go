package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Prober inspects media files with a configured binary.
type Prober struct {
	Binary string
}

// Inspect executes ffprobe against path and decodes the JSON response.
func (p Prober) Inspect(ctx context.Context, path string) (Result, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect", detail, err)
	}
	return Parse(output)
}

// Duration returns the container duration of path.
func (p Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration()
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse", "", err)
	}
	return result, nil
}

// Duration prefers the container duration and falls back to the longest
// video stream.
func (r Result) Duration() (time.Duration, error) {
	seconds := parseFloat(r.Format.Duration)
	if seconds <= 0 || math.IsNaN(seconds) {
		for _, stream := range r.Streams {
			if !strings.EqualFold(stream.CodecType, "video") {
				continue
			}
			if v := parseFloat(stream.Duration); v > seconds {
				seconds = v
			}
		}
	}
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", "duration",
			fmt.Sprintf("no duration reported for %s", r.Format.Filename), nil)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// SizeBytes returns the reported container size, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

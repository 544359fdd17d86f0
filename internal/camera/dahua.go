package camera

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/icholy/digest"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/services"
)

const (
	KindDahua = "dahua"
	userAgent = "soccer-cam/1.0"
)

// Dahua talks to a Dahua IP camera over its CGI interface with digest
// authentication. CGI calls share a client with a total timeout; segment
// downloads use a second client bounded only by the response header wait
// and by how long the body may go without delivering a byte.
type Dahua struct {
	baseURL   string
	channel   int
	client    *http.Client
	downloads *http.Client
	idle      time.Duration
	logger    *slog.Logger
}

// NewDahua builds an adapter for the configured camera.
func NewDahua(cfg config.Camera, logger *slog.Logger) *Dahua {
	base := strings.TrimRight(cfg.DeviceIP, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transfer := http.DefaultTransport.(*http.Transport).Clone()
	transfer.ResponseHeaderTimeout = timeout
	return &Dahua{
		baseURL: base,
		channel: cfg.Channel,
		client: &http.Client{
			Transport: &digest.Transport{
				Username:  cfg.Username,
				Password:  cfg.Password,
				Transport: http.DefaultTransport,
			},
			Timeout: timeout,
		},
		downloads: &http.Client{
			Transport: &digest.Transport{
				Username:  cfg.Username,
				Password:  cfg.Password,
				Transport: transfer,
			},
		},
		idle:   timeout,
		logger: logging.NewComponentLogger(logger, "camera"),
	}
}

func (d *Dahua) Kind() string { return KindDahua }

func (d *Dahua) Available(ctx context.Context) error {
	body, err := d.get(ctx, "recordManager.cgi", url.Values{"action": {"getCaps"}})
	if err != nil {
		return err
	}
	return body.Close()
}

// DeviceInfo returns the key/value pairs reported by getSystemInfo.
func (d *Dahua) DeviceInfo(ctx context.Context) (map[string]string, error) {
	body, err := d.get(ctx, "magicBox.cgi", url.Values{"action": {"getSystemInfo"}})
	if err != nil {
		return nil, err
	}
	defer body.Close()
	info := map[string]string{}
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		info[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "camera", "device info", "read body", err)
	}
	return info, nil
}

func (d *Dahua) ListSegments(ctx context.Context, since, until time.Time) ([]Segment, error) {
	query := url.Values{
		"action":            {"findFile"},
		"object":            {"1"},
		"condition.Channel": {strconv.Itoa(d.channel)},
	}
	if !since.IsZero() {
		query.Set("condition.StartTime", since.In(time.Local).Format(TimeLayout))
	}
	if !until.IsZero() {
		query.Set("condition.EndTime", until.In(time.Local).Format(TimeLayout))
	}
	body, err := d.get(ctx, "loadfile.cgi", query)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	segments, err := parseFileList(body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "camera", "list", "read file list", err)
	}
	return filterWindow(segments, since, until), nil
}

func (d *Dahua) Fetch(ctx context.Context, seg Segment) (io.ReadCloser, int64, error) {
	expected := seg.Size
	if expected <= 0 {
		if size, err := d.fileSize(ctx, seg.Name); err == nil {
			expected = size
		} else {
			d.logger.Debug("file size lookup failed", logging.String(logging.FieldSegment, seg.Name), logging.Error(err))
		}
	}
	transferCtx, cancel := context.WithCancel(ctx)
	body, length, err := d.open(transferCtx, d.downloads, "loadfile.cgi", url.Values{"action": {"downloadFile"}, "object": {seg.Name}})
	if err != nil {
		cancel()
		return nil, 0, err
	}
	if expected <= 0 {
		expected = length
	}
	return newIdleReader(body, d.idle, cancel), expected, nil
}

func (d *Dahua) fileSize(ctx context.Context, name string) (int64, error) {
	body, err := d.get(ctx, "loadfile.cgi", url.Values{"action": {"getFileSize"}, "object": {name}})
	if err != nil {
		return 0, err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return 0, services.Wrap(services.ErrTransientIO, "camera", "file size", "read body", err)
	}
	_, value, ok := strings.Cut(strings.TrimSpace(string(data)), "=")
	if !ok {
		return 0, services.Wrap(services.ErrProtocol, "camera", "file size", fmt.Sprintf("unexpected response %q", data), nil)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrProtocol, "camera", "file size", "parse size", err)
	}
	return size, nil
}

func (d *Dahua) get(ctx context.Context, endpoint string, query url.Values) (io.ReadCloser, error) {
	body, _, err := d.open(ctx, d.client, endpoint, query)
	return body, err
}

func (d *Dahua) open(ctx context.Context, client *http.Client, endpoint string, query url.Values) (io.ReadCloser, int64, error) {
	target := fmt.Sprintf("%s/cgi-bin/%s?%s", d.baseURL, endpoint, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build camera request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrTransientIO, "camera", endpoint, "request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, 0, services.Wrap(services.ErrTransientIO, "camera", endpoint,
			fmt.Sprintf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))), nil)
	}
	return resp.Body, resp.ContentLength, nil
}

// idleReader cancels a transfer whose body stops delivering data for longer
// than idle. Each read that returns bytes restarts the clock.
type idleReader struct {
	body    io.ReadCloser
	idle    time.Duration
	cancel  context.CancelFunc
	timer   *time.Timer
	stalled atomic.Bool
}

func newIdleReader(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *idleReader {
	r := &idleReader{body: body, idle: idle, cancel: cancel}
	r.timer = time.AfterFunc(idle, func() {
		r.stalled.Store(true)
		cancel()
	})
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 && !r.stalled.Load() {
		r.timer.Reset(r.idle)
	}
	if err != nil && err != io.EOF && r.stalled.Load() {
		return n, services.Wrap(services.ErrTransientIO, "camera", "download",
			fmt.Sprintf("no data for %s", r.idle), err)
	}
	return n, err
}

func (r *idleReader) Close() error {
	r.timer.Stop()
	err := r.body.Close()
	r.cancel()
	return err
}

var itemPattern = regexp.MustCompile(`^items\[(\d+)\]\.(\w+)=(.*)$`)

// parseFileList understands both list formats the firmware emits: one
// "path=...&startTime=...&endTime=..." line per file, and mediaFileFind
// style "items[N].Key=value" lines.
func parseFileList(r io.Reader) ([]Segment, error) {
	var records []map[string]string
	items := map[int]map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "object=") || strings.HasPrefix(line, "found=") {
			continue
		}
		if match := itemPattern.FindStringSubmatch(line); match != nil {
			idx, _ := strconv.Atoi(match[1])
			if items[idx] == nil {
				items[idx] = map[string]string{}
			}
			items[idx][normalizeKey(match[2])] = match[3]
			continue
		}
		record := map[string]string{}
		for _, part := range strings.Split(line, "&") {
			key, value, ok := strings.Cut(part, "=")
			if ok {
				record[normalizeKey(key)] = value
			}
		}
		if len(record) > 0 {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	indexes := make([]int, 0, len(items))
	for idx := range items {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		records = append(records, items[idx])
	}

	segments := make([]Segment, 0, len(records))
	for _, record := range records {
		name := record["path"]
		if name == "" {
			continue
		}
		start, err := time.ParseInLocation(TimeLayout, record["starttime"], time.Local)
		if err != nil {
			continue
		}
		end, err := time.ParseInLocation(TimeLayout, record["endtime"], time.Local)
		if err != nil || !end.After(start) {
			continue
		}
		seg := Segment{Name: name, Start: start, End: end}
		if size, err := strconv.ParseInt(record["length"], 10, 64); err == nil && size > 0 {
			seg.Size = size
		}
		segments = append(segments, seg)
	}
	sortSegments(segments)
	return segments, nil
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "filepath" {
		return "path"
	}
	return key
}

func sortSegments(segments []Segment) {
	sort.Slice(segments, func(i, j int) bool {
		if segments[i].Start.Equal(segments[j].Start) {
			return segments[i].Name < segments[j].Name
		}
		return segments[i].Start.Before(segments[j].Start)
	})
}

func filterWindow(segments []Segment, since, until time.Time) []Segment {
	out := segments[:0]
	for _, seg := range segments {
		if !since.IsZero() && seg.End.Before(since) {
			continue
		}
		if !until.IsZero() && seg.Start.After(until) {
			continue
		}
		out = append(out, seg)
	}
	return out
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StorageDir string `toml:"storage_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Camera selects the recording device adapter and its connection settings.
type Camera struct {
	Type           string `toml:"type"`
	DeviceIP       string `toml:"device_ip"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Channel        int    `toml:"channel"`
	SourceDir      string `toml:"source_dir"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Download controls segment transfer concurrency and retries.
type Download struct {
	MaxConcurrent     int  `toml:"max_concurrent"`
	RetryAttempts     int  `toml:"retry_attempts"`
	RetryDelaySeconds int  `toml:"retry_delay_seconds"`
	VerifySize        bool `toml:"verify_size"`
}

// Grouping controls how segments are clustered into recording groups.
type Grouping struct {
	ContinuitySeconds int `toml:"continuity_threshold_seconds"`
	QuiescenceSeconds int `toml:"quiescence_window_seconds"`
}

// Processing controls the combine and trim workers.
type Processing struct {
	MaxConcurrent       int    `toml:"max_concurrent"`
	MaxAttempts         int    `toml:"max_attempts"`
	RetryBackoffSeconds int    `toml:"retry_backoff_seconds"`
	MaxBackoffSeconds   int    `toml:"max_backoff_seconds"`
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	FFprobeBinary       string `toml:"ffprobe_binary"`
	MinFreeGiB          int    `toml:"min_free_gib"`
}

// Boundary controls game start/end resolution.
type Boundary struct {
	StepSeconds         int `toml:"step_seconds"`
	ReplayWindowMinutes int `toml:"replay_window_minutes"`
	DefaultGameMinutes  int `toml:"default_game_minutes"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyServer     string `toml:"ntfy_server"`
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	ListLookbackHours   int `toml:"list_lookback_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format             string            `toml:"format"`
	Level              string            `toml:"level"`
	RetentionDays      int               `toml:"retention_days"`
	ComponentOverrides map[string]string `toml:"component_overrides"`
}

// Metrics toggles the Prometheus endpoint on the status API.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Game is a scheduled fixture used to prefill match info.
type Game struct {
	Start    string `toml:"start"`
	Team     string `toml:"team"`
	Opponent string `toml:"opponent"`
	Location string `toml:"location"`
	Minutes  int    `toml:"minutes"`
}

// Schedule lists known fixtures.
type Schedule struct {
	Games []Game `toml:"games"`
}

// Config encapsulates all configuration values for soccer-cam.
//
// Configuration sections by subsystem:
//   - Paths: storage root, logs, and the status API bind address
//   - Camera: adapter type and device connection
//   - Download: transfer concurrency and retry policy
//   - Grouping: continuity threshold and quiescence window
//   - Processing: combine/trim concurrency, retry backoff, tool binaries
//   - Boundary: interactive search step and response replay window
//   - Notifications: ntfy server and topic
//   - Workflow: tick interval and listing window
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus exposition
//   - Schedule: fixtures used to prefill match info
type Config struct {
	Paths         Paths         `toml:"paths"`
	Camera        Camera        `toml:"camera"`
	Download      Download      `toml:"download"`
	Grouping      Grouping      `toml:"grouping"`
	Processing    Processing    `toml:"processing"`
	Boundary      Boundary      `toml:"boundary"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Schedule      Schedule      `toml:"schedule"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Values from .env files and SOCCERCAM_*
// environment variables are layered over the file.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("soccercam.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StorageDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath is where the daemon listens for CLI requests.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "soccercam.sock")
}

// JournalPath is the SQLite history database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StorageDir, "journal.db")
}

// NotificationsEnabled reports whether an ntfy topic is configured.
func (c *Config) NotificationsEnabled() bool {
	return strings.TrimSpace(c.Notifications.NtfyTopic) != ""
}

// Timeout returns the camera HTTP timeout.
func (c Camera) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RetryDelay returns the fixed pause between download attempts.
func (d Download) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelaySeconds) * time.Second
}

// ContinuityThreshold returns the maximum gap between segments of one group.
func (g Grouping) ContinuityThreshold() time.Duration {
	return time.Duration(g.ContinuitySeconds) * time.Second
}

// QuiescenceWindow returns how long a group waits for new segments before closing.
func (g Grouping) QuiescenceWindow() time.Duration {
	return time.Duration(g.QuiescenceSeconds) * time.Second
}

// RetryBackoff returns the first combine/trim retry delay.
func (p Processing) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffSeconds) * time.Second
}

// MaxBackoff caps the combine/trim retry delay.
func (p Processing) MaxBackoff() time.Duration {
	return time.Duration(p.MaxBackoffSeconds) * time.Second
}

func (b Boundary) Step() time.Duration {
	return time.Duration(b.StepSeconds) * time.Second
}

func (b Boundary) ReplayWindow() time.Duration {
	return time.Duration(b.ReplayWindowMinutes) * time.Minute
}

func (b Boundary) DefaultGameLength() time.Duration {
	return time.Duration(b.DefaultGameMinutes) * time.Minute
}

func (n Notifications) Timeout() time.Duration {
	return time.Duration(n.RequestTimeout) * time.Second
}

func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

func (w Workflow) ListLookback() time.Duration {
	return time.Duration(w.ListLookbackHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as TOML. The camera password is
// masked.
func (c *Config) Marshal() ([]byte, error) {
	clone := *c
	if clone.Camera.Password != "" {
		clone.Camera.Password = "********"
	}
	data, err := toml.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ScheduleTimeLayout is the layout for [[schedule.games]] start values,
// interpreted in local time.
const ScheduleTimeLayout = "2006-01-02 15:04"

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.Type {
	case "dahua":
		if c.Camera.DeviceIP == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("camera.device_ip is required for camera.type \"dahua\". Set %sCAMERA__DEVICE_IP or edit %s (create with 'soccercam config init')", EnvPrefix, defaultPath)
		}
	case "directory":
		if strings.TrimSpace(c.Camera.SourceDir) == "" {
			return errors.New("camera.source_dir must be set when camera.type is \"directory\"")
		}
	default:
		return fmt.Errorf("camera.type: unsupported value %q (want dahua or directory)", c.Camera.Type)
	}
	if c.Camera.RequestTimeout <= 0 {
		return errors.New("camera.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if err := ensurePositiveMap(map[string]int{
		"download.max_concurrent":            c.Download.MaxConcurrent,
		"processing.max_concurrent":          c.Processing.MaxConcurrent,
		"processing.max_attempts":            c.Processing.MaxAttempts,
		"processing.retry_backoff_seconds":   c.Processing.RetryBackoffSeconds,
		"grouping.quiescence_window_seconds": c.Grouping.QuiescenceSeconds,
		"boundary.step_seconds":              c.Boundary.StepSeconds,
		"boundary.default_game_minutes":      c.Boundary.DefaultGameMinutes,
		"workflow.poll_interval_seconds":     c.Workflow.PollIntervalSeconds,
		"workflow.list_lookback_hours":       c.Workflow.ListLookbackHours,
		"notifications.request_timeout":      c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Download.RetryAttempts < 0 {
		return errors.New("download.retry_attempts must be zero or positive")
	}
	if c.Download.RetryDelaySeconds < 0 {
		return errors.New("download.retry_delay_seconds must be zero or positive")
	}
	if c.Grouping.ContinuitySeconds < 0 {
		return errors.New("grouping.continuity_threshold_seconds must be zero or positive")
	}
	if c.Grouping.QuiescenceSeconds <= c.Grouping.ContinuitySeconds {
		return errors.New("grouping.quiescence_window_seconds must be greater than grouping.continuity_threshold_seconds")
	}
	if c.Boundary.ReplayWindowMinutes < 0 {
		return errors.New("boundary.replay_window_minutes must be zero or positive")
	}
	if c.Processing.MinFreeGiB < 0 {
		return errors.New("processing.min_free_gib must be zero or positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if !c.NotificationsEnabled() {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyServer)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_server must be an absolute URL, got %q", c.Notifications.NtfyServer)
	}
	if strings.ContainsAny(c.Notifications.NtfyTopic, "/ ") {
		return errors.New("notifications.ntfy_topic must not contain slashes or spaces")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	for i, game := range c.Schedule.Games {
		if _, err := time.ParseInLocation(ScheduleTimeLayout, game.Start, time.Local); err != nil {
			return fmt.Errorf("schedule.games[%d].start must use %q: %w", i, ScheduleTimeLayout, err)
		}
		if game.Team == "" || game.Opponent == "" || game.Location == "" {
			return fmt.Errorf("schedule.games[%d] requires team, opponent, and location", i)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	for component, level := range c.Logging.ComponentOverrides {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.component_overrides.%s: unsupported level %q", component, level)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

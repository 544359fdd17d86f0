package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCamera(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeNotifications()
	c.normalizeSchedule()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeCamera() error {
	c.Camera.Type = strings.ToLower(strings.TrimSpace(c.Camera.Type))
	if c.Camera.Type == "" {
		c.Camera.Type = defaultCameraType
	}
	c.Camera.DeviceIP = strings.TrimSpace(c.Camera.DeviceIP)
	c.Camera.Username = strings.TrimSpace(c.Camera.Username)
	if c.Camera.Channel <= 0 {
		c.Camera.Channel = defaultCameraChannel
	}
	if strings.TrimSpace(c.Camera.SourceDir) != "" {
		expanded, err := expandPath(c.Camera.SourceDir)
		if err != nil {
			return fmt.Errorf("camera.source_dir: %w", err)
		}
		c.Camera.SourceDir = expanded
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	c.Processing.FFmpegBinary = strings.TrimSpace(c.Processing.FFmpegBinary)
	if c.Processing.FFmpegBinary == "" {
		c.Processing.FFmpegBinary = defaultFFmpegBinary
	}
	c.Processing.FFprobeBinary = strings.TrimSpace(c.Processing.FFprobeBinary)
	if c.Processing.FFprobeBinary == "" {
		c.Processing.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Processing.MaxBackoffSeconds < c.Processing.RetryBackoffSeconds {
		c.Processing.MaxBackoffSeconds = c.Processing.RetryBackoffSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.NtfyServer = strings.TrimRight(strings.TrimSpace(c.Notifications.NtfyServer), "/")
	if c.Notifications.NtfyServer == "" {
		c.Notifications.NtfyServer = defaultNtfyServer
	}
}

func (c *Config) normalizeSchedule() {
	for i := range c.Schedule.Games {
		game := &c.Schedule.Games[i]
		game.Start = strings.TrimSpace(game.Start)
		game.Team = strings.TrimSpace(game.Team)
		game.Opponent = strings.TrimSpace(game.Opponent)
		game.Location = strings.TrimSpace(game.Location)
		if game.Minutes <= 0 {
			game.Minutes = c.Boundary.DefaultGameMinutes
		}
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.ComponentOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.ComponentOverrides))
		for component, value := range c.Logging.ComponentOverrides {
			key := strings.ToLower(strings.TrimSpace(component))
			if key == "" {
				continue
			}
			normalized[key] = strings.ToLower(strings.TrimSpace(value))
		}
		c.Logging.ComponentOverrides = normalized
	}
}

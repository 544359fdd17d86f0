package config

const (
	defaultConfigPath             = "~/.config/soccer-cam/config.toml"
	defaultStorageDir             = "~/.local/share/soccer-cam/recordings"
	defaultLogDir                 = "~/.local/share/soccer-cam/logs"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultCameraType             = "dahua"
	defaultCameraUsername         = "admin"
	defaultCameraChannel          = 1
	defaultCameraRequestTimeout   = 30
	defaultDownloadMaxConcurrent  = 2
	defaultDownloadRetryAttempts  = 3
	defaultDownloadRetryDelay     = 5
	defaultContinuitySeconds      = 5
	defaultQuiescenceSeconds      = 65 * 60
	defaultProcessingConcurrent   = 1
	defaultProcessingMaxAttempts  = 3
	defaultProcessingRetryBackoff = 60
	defaultProcessingMaxBackoff   = 30 * 60
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultMinFreeGiB             = 5
	defaultBoundaryStepSeconds    = 5 * 60
	defaultReplayWindowMinutes    = 12 * 60
	defaultGameMinutes            = 90
	defaultNtfyServer             = "https://ntfy.sh"
	defaultNotifyRequestTimeout   = 10
	defaultPollIntervalSeconds    = 60
	defaultListLookbackHours      = 24
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: defaultStorageDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Camera: Camera{
			Type:           defaultCameraType,
			Username:       defaultCameraUsername,
			Channel:        defaultCameraChannel,
			RequestTimeout: defaultCameraRequestTimeout,
		},
		Download: Download{
			MaxConcurrent:     defaultDownloadMaxConcurrent,
			RetryAttempts:     defaultDownloadRetryAttempts,
			RetryDelaySeconds: defaultDownloadRetryDelay,
			VerifySize:        true,
		},
		Grouping: Grouping{
			ContinuitySeconds: defaultContinuitySeconds,
			QuiescenceSeconds: defaultQuiescenceSeconds,
		},
		Processing: Processing{
			MaxConcurrent:       defaultProcessingConcurrent,
			MaxAttempts:         defaultProcessingMaxAttempts,
			RetryBackoffSeconds: defaultProcessingRetryBackoff,
			MaxBackoffSeconds:   defaultProcessingMaxBackoff,
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			MinFreeGiB:          defaultMinFreeGiB,
		},
		Boundary: Boundary{
			StepSeconds:         defaultBoundaryStepSeconds,
			ReplayWindowMinutes: defaultReplayWindowMinutes,
			DefaultGameMinutes:  defaultGameMinutes,
		},
		Notifications: Notifications{
			NtfyServer:     defaultNtfyServer,
			RequestTimeout: defaultNotifyRequestTimeout,
			Completions:    true,
			Errors:         true,
		},
		Workflow: Workflow{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			ListLookbackHours:   defaultListLookbackHours,
		},
		Logging: Logging{
			Format:             defaultLogFormat,
			Level:              defaultLogLevel,
			RetentionDays:      defaultLogRetentionDays,
			ComponentOverrides: map[string]string{},
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}

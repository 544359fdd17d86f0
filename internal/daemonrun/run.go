// Package daemonrun assembles and runs the soccer-cam daemon process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/daemon"
	"github.com/mblakley/soccer-cam/internal/daemonctl"
	"github.com/mblakley/soccer-cam/internal/deps"
	"github.com/mblakley/soccer-cam/internal/ipc"
	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/logs"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
	"github.com/mblakley/soccer-cam/internal/media/ffmpeg"
	"github.com/mblakley/soccer-cam/internal/media/ffprobe"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/preflight"
	"github.com/mblakley/soccer-cam/internal/stage"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the soccer-cam daemon and blocks until it receives SIGINT or
// SIGTERM, or a client asks it to stop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, logging.RunLogName(time.Now()))

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	levels := logging.NewComponentLevels(level, cfg.Logging.ComponentOverrides)
	base, err := logging.NewFromConfig(cfg.Logging, levels.LowestName(), logPath, opts.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := levels.Logger(base, "daemon")

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update soccercam.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath, logs.CurrentPath(cfg.Paths.LogDir))
	pidPath := filepath.Join(cfg.Paths.LogDir, daemonctl.PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	adapter, err := camera.New(cfg.Camera, componentLogger(base, levels, "camera"))
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	logDependencySnapshot(logger, cfg, adapter)

	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logger.Error("open journal", logging.Error(err))
		return err
	}
	m := metrics.New()
	store, err := state.Open(cfg.Paths.StorageDir,
		state.WithObserver(j.Observer(componentLogger(base, levels, "journal"))),
		state.WithObserver(m.Observer()),
	)
	if err != nil {
		_ = j.Close()
		logger.Error("open state store", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg.Notifications)
	requirements := deps.MediaRequirements(cfg.Processing)
	checkers := append([]stage.Checker{}, deps.Checkers(requirements)...)
	if cfg.Processing.MinFreeGiB > 0 {
		checkers = append(checkers, preflight.DiskChecker{Path: cfg.Paths.StorageDir, MinGiB: cfg.Processing.MinFreeGiB})
	}

	workflowManager := workflow.NewManager(cfg, workflow.Deps{
		Store:    store,
		Adapter:  adapter,
		Tool:     ffmpeg.New(cfg.Processing.FFmpegBinary, componentLogger(base, levels, "ffmpeg")),
		Prober:   ffprobe.Prober{Binary: cfg.Processing.FFprobeBinary},
		Notifier: notifier,
		Channel:  notifications.NewBoundaryChannel(cfg.Notifications, cfg.Boundary.ReplayWindow()),
		Schedule: matchinfo.NewConfigSchedule(cfg.Schedule, cfg.Boundary.DefaultGameLength()),
		Metrics:  m,
		Checkers: checkers,
	}, componentLogger(base, levels, "workflow"))

	d, err := daemon.New(daemon.Options{
		Config:   cfg,
		Store:    store,
		Journal:  j,
		Workflow: workflowManager,
		Notifier: notifier,
		Metrics:  m,
		Logger:   componentLogger(base, levels, "daemon"),
	})
	if err != nil {
		_ = j.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, componentLogger(base, levels, "ipc"), cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	for _, result := range preflight.Failed(preflight.RunAll(signalCtx, cfg, adapter)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "processing continues; affected steps fail until fixed"),
		)
	}

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("soccer-cam daemon shutting down")
	return nil
}

func componentLogger(base *slog.Logger, levels logging.ComponentLevels, component string) *slog.Logger {
	level, ok := levels.Overrides[component]
	if !ok {
		level = levels.Default
	}
	return logging.WithLevelOverride(base, level)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, adapter camera.Adapter) {
	ffmpegVersion := "unavailable"
	var available []string
	for _, status := range deps.CheckBinaries(deps.MediaRequirements(cfg.Processing)) {
		if !status.Available {
			continue
		}
		available = append(available, status.Command)
		if status.Command == cfg.Processing.FFmpegBinary && status.Version != "" {
			ffmpegVersion = status.Version
		}
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("camera_type", adapter.Kind()),
		logging.String("ffmpeg_binary", cfg.Processing.FFmpegBinary),
		logging.String("ffmpeg_version", ffmpegVersion),
		logging.String("binaries_found", strings.Join(available, ",")),
		logging.Bool("notifications_enabled", cfg.NotificationsEnabled()),
		logging.Int("scheduled_games", len(cfg.Schedule.Games)),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/mblakley/soccer-cam/internal/api"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/deps"
	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/workflow"
)

// LockFileName is created in the log directory while a daemon runs.
const LockFileName = "soccercamd.lock"

// Options carries the collaborators a Daemon owns. Journal, Notifier, and
// Metrics are optional.
type Options struct {
	Config   *config.Config
	Store    *state.Store
	Journal  *journal.Journal
	Workflow *workflow.Manager
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *state.Store
	journal  *journal.Journal
	workflow *workflow.Manager
	notifier notifications.Service
	metrics  *metrics.Metrics
	groups   *api.GroupService
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	StorageDir   string
	JournalPath  string
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Workflow == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config.Notifications)
	}

	var history api.HistoryReader
	if opts.Journal != nil {
		history = opts.Journal
	}

	lockPath := filepath.Join(opts.Config.Paths.LogDir, LockFileName)
	d := &Daemon{
		cfg:      opts.Config,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    opts.Store,
		journal:  opts.Journal,
		workflow: opts.Workflow,
		notifier: notifier,
		metrics:  opts.Metrics,
		groups:   api.NewGroupService(opts.Store, history, opts.Workflow.Resolver()),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(opts.Config, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the workflow manager and the
// status API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another soccer-cam daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("soccer-cam daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("storage_dir", d.cfg.Paths.StorageDir),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("soccer-cam daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Groups lists groups, optionally filtered by stage.
func (d *Daemon) Groups(ctx context.Context, stages []state.Stage) ([]api.Group, error) {
	return d.groups.List(ctx, stages...)
}

// Group describes one group and its open boundary questions.
func (d *Daemon) Group(ctx context.Context, id string) (*api.GroupResponse, error) {
	return d.groups.Describe(ctx, id)
}

// Reset clears a group's sticky error.
func (d *Daemon) Reset(ctx context.Context, id string) (*api.ResetResponse, error) {
	resp, err := d.groups.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	d.logger.Info("group error reset",
		logging.String(logging.FieldEventType, "group_reset"),
		logging.GroupID(resp.Group.ID),
		logging.String("stage", resp.Group.Stage),
	)
	return resp, nil
}

// History returns journal transitions for one group, or all groups when id
// is empty.
func (d *Daemon) History(ctx context.Context, id string, limit int) (*api.HistoryResponse, error) {
	return d.groups.History(ctx, id, limit)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if !d.cfg.NotificationsEnabled() {
		return false, "ntfy topic not configured", nil
	}
	err := d.notifier.Publish(ctx, notifications.EventTest, notifications.Payload{"source": "daemon"})
	d.metrics.NotificationSent(string(notifications.EventTest), err)
	if err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		StorageDir:   d.cfg.Paths.StorageDir,
		JournalPath:  d.journalPath(),
		LockFilePath: d.lockPath,
		Dependencies: deps.CheckBinaries(deps.MediaRequirements(d.cfg.Processing)),
	}
}

// APIStatus converts Status for transport.
func (d *Daemon) APIStatus(ctx context.Context) api.DaemonStatus {
	return ToAPIStatus(d.Status(ctx))
}

// ToAPIStatus converts a daemon status into its transport form.
func ToAPIStatus(status Status) api.DaemonStatus {
	out := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StorageDir:   status.StorageDir,
		JournalPath:  status.JournalPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: make([]api.DependencyStatus, 0, len(status.Dependencies)),
	}
	for _, dep := range status.Dependencies {
		out.Dependencies = append(out.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Path:        dep.Path,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	return out
}

// Addr reports the status API listen address, or "" when disabled.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

func (d *Daemon) journalPath() string {
	if d.journal != nil {
		return d.journal.Path()
	}
	return ""
}

package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/mblakley/soccer-cam/internal/boundary"
	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/combine"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/download"
	"github.com/mblakley/soccer-cam/internal/finalize"
	"github.com/mblakley/soccer-cam/internal/grouping"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/stage"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/workpool"
)

// Pool names, also used as metric labels.
const (
	DownloadPool = "download"
	MediaPool    = "media"
)

// MediaTool is the external tool surface the media steps need.
type MediaTool interface {
	combine.Combiner
	finalize.Trimmer
	boundary.Snapshotter
}

// Deps carries the collaborators a Manager drives. Store, Adapter, and Tool
// are required; the rest fall back to disabled implementations.
type Deps struct {
	Store    *state.Store
	Adapter  camera.Adapter
	Monitor  *camera.Monitor
	Tool     MediaTool
	Prober   boundary.DurationProber
	Notifier notifications.Service
	Channel  notifications.BoundaryChannel
	Schedule matchinfo.ScheduleLookup
	Metrics  *metrics.Metrics
	// Checkers report dependency readiness alongside the workers' own
	// health in Status.
	Checkers []stage.Checker
	Now      func() time.Time
}

// Manager coordinates the scheduling tick and the worker pools. A Manager is
// started at most once.
type Manager struct {
	cfg      *config.Config
	store    *state.Store
	adapter  camera.Adapter
	monitor  *camera.Monitor
	notifier notifications.Service
	schedule matchinfo.ScheduleLookup
	metrics  *metrics.Metrics
	checkers []stage.Checker
	logger   *slog.Logger
	now      func() time.Time

	pollInterval time.Duration
	lookback     time.Duration

	downloadPool *workpool.Pool
	mediaPool    *workpool.Pool
	inflight     *workpool.Inflight

	engine    *grouping.Engine
	downloads *download.Manager
	combiner  *combine.Worker
	resolver  *boundary.Resolver
	finalizer *finalize.Worker

	tickMu sync.Mutex

	blockedMu sync.Mutex
	blocked   map[string]bool

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTick time.Time
	ticks    int
}

// NewManager wires the lifecycle workers from cfg and deps.
func NewManager(cfg *config.Config, deps Deps, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(config.Notifications{})
	}

	m := &Manager{
		cfg:          cfg,
		store:        deps.Store,
		adapter:      deps.Adapter,
		monitor:      deps.Monitor,
		notifier:     notifier,
		schedule:     deps.Schedule,
		metrics:      deps.Metrics,
		checkers:     deps.Checkers,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		now:          now,
		pollInterval: cfg.Workflow.PollInterval(),
		lookback:     cfg.Workflow.ListLookback(),
		downloadPool: workpool.New(DownloadPool, cfg.Download.MaxConcurrent),
		mediaPool:    workpool.New(MediaPool, cfg.Processing.MaxConcurrent),
		inflight:     workpool.NewInflight(),
		blocked:      make(map[string]bool),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Minute
	}

	m.engine = grouping.New(deps.Store, cfg.Grouping, logger)
	m.downloads = download.New(download.Options{
		Store:    deps.Store,
		Engine:   m.engine,
		Adapter:  deps.Adapter,
		Pool:     m.downloadPool,
		Inflight: m.inflight,
		Config:   cfg.Download,
		Logger:   logger,
		Metrics:  deps.Metrics,
	})
	m.combiner = combine.New(combine.Options{
		Store:    deps.Store,
		Tool:     deps.Tool,
		Config:   cfg.Processing,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  deps.Metrics,
		Now:      now,
	})
	m.resolver = boundary.New(boundary.Options{
		Store:     deps.Store,
		Channel:   deps.Channel,
		Snapshots: deps.Tool,
		Prober:    deps.Prober,
		Config:    cfg.Boundary,
		Logger:    logger,
		Metrics:   deps.Metrics,
	})
	m.finalizer = finalize.New(finalize.Options{
		Store:    deps.Store,
		Tool:     deps.Tool,
		Config:   cfg.Processing,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  deps.Metrics,
		Now:      now,
	})

	if m.monitor == nil && deps.Adapter != nil {
		m.monitor = camera.NewMonitor(deps.Adapter, filepath.Join(deps.Store.Root(), "camera_state.json"), logger)
	}
	if m.monitor != nil {
		m.monitor.OnEvent(m.onCameraEvent)
	}
	return m
}

// Store exposes the state store the manager drives.
func (m *Manager) Store() *state.Store { return m.store }

// Resolver exposes the boundary resolver for status reporting.
func (m *Manager) Resolver() *boundary.Resolver { return m.resolver }

// Monitor exposes the camera connection monitor.
func (m *Manager) Monitor() *camera.Monitor { return m.monitor }

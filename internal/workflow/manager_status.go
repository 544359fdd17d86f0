package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/stage"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/workpool"
)

// PoolStatus reports one worker pool's occupancy.
type PoolStatus struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Busy int    `json:"busy"`
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running         bool                     `json:"running"`
	LastError       string                   `json:"last_error,omitempty"`
	LastTick        time.Time                `json:"last_tick,omitempty"`
	Ticks           int                      `json:"ticks"`
	CameraConnected bool                     `json:"camera_connected"`
	CameraEvents    []camera.ConnectionEvent `json:"camera_events,omitempty"`
	GroupsByStage   map[string]int           `json:"groups_by_stage"`
	Failed          int                      `json:"failed"`
	Inflight        []workpool.Held          `json:"inflight,omitempty"`
	Pools           []PoolStatus             `json:"pools"`
	StageHealth     map[string]stage.Health  `json:"stage_health"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		LastTick: m.lastTick,
		Ticks:    m.ticks,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	summary.GroupsByStage = make(map[string]int)
	for _, g := range m.store.List() {
		if g.Failed() {
			summary.Failed++
		}
		summary.GroupsByStage[string(g.Stage)]++
	}
	if m.monitor != nil {
		summary.CameraConnected = m.monitor.Connected()
		summary.CameraEvents = m.monitor.Events()
	}
	summary.Inflight = m.inflight.Snapshot()
	summary.Pools = []PoolStatus{
		{Name: m.downloadPool.Name(), Size: m.downloadPool.Size(), Busy: m.downloadPool.Busy()},
		{Name: m.mediaPool.Name(), Size: m.mediaPool.Size(), Busy: m.mediaPool.Busy()},
	}
	summary.StageHealth = m.health(ctx)
	return summary
}

func (m *Manager) health(ctx context.Context) map[string]stage.Health {
	checkers := append([]stage.Checker{m.combiner, m.finalizer}, m.checkers...)
	health := make(map[string]stage.Health, len(checkers))
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		h := checker.HealthCheck(ctx)
		health[h.Name] = h
	}
	return health
}

// HealthNames lists the keys of a health map in a stable order.
func HealthNames(health map[string]stage.Health) []string {
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stages of a summary in lifecycle order, skipping empty ones.
func (s StatusSummary) Stages() []state.Stage {
	var out []state.Stage
	for _, st := range state.Stages() {
		if s.GroupsByStage[string(st)] > 0 {
			out = append(out, st)
		}
	}
	return out
}

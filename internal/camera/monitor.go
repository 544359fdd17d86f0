package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mblakley/soccer-cam/internal/fileutil"
	"github.com/mblakley/soccer-cam/internal/logging"
)

const maxConnectionEvents = 50

// ConnectionEvent records a reachability change.
type ConnectionEvent struct {
	At      time.Time `json:"at"`
	Type    string    `json:"type"`
	Message string    `json:"message,omitempty"`
}

// Monitor tracks whether the camera is reachable and keeps a short,
// persisted history of connect/disconnect transitions.
type Monitor struct {
	adapter Adapter
	path    string
	logger  *slog.Logger
	now     func() time.Time
	onEvent func(ConnectionEvent)

	mu        sync.Mutex
	connected bool
	events    []ConnectionEvent
}

type monitorState struct {
	Connected bool              `json:"connected"`
	Events    []ConnectionEvent `json:"events"`
}

// NewMonitor loads prior events from statePath when present.
func NewMonitor(adapter Adapter, statePath string, logger *slog.Logger) *Monitor {
	m := &Monitor{
		adapter: adapter,
		path:    statePath,
		logger:  logging.NewComponentLogger(logger, "camera"),
		now:     time.Now,
	}
	if data, err := os.ReadFile(statePath); err == nil {
		var saved monitorState
		if json.Unmarshal(data, &saved) == nil {
			m.connected = saved.Connected
			m.events = saved.Events
		}
	}
	return m
}

// OnEvent registers a callback invoked for each transition.
func (m *Monitor) OnEvent(fn func(ConnectionEvent)) {
	m.mu.Lock()
	m.onEvent = fn
	m.mu.Unlock()
}

// Check probes the camera and records a transition when reachability changed.
func (m *Monitor) Check(ctx context.Context) error {
	err := m.adapter.Available(ctx)
	if errors.Is(err, context.Canceled) {
		return err
	}
	m.mu.Lock()
	var event *ConnectionEvent
	switch {
	case err == nil && !m.connected:
		m.connected = true
		event = &ConnectionEvent{At: m.now(), Type: "connected"}
	case err != nil && m.connected:
		m.connected = false
		event = &ConnectionEvent{At: m.now(), Type: "disconnected", Message: err.Error()}
	}
	var callback func(ConnectionEvent)
	if event != nil {
		m.events = append(m.events, *event)
		if len(m.events) > maxConnectionEvents {
			m.events = append([]ConnectionEvent(nil), m.events[len(m.events)-maxConnectionEvents:]...)
		}
		if saveErr := m.saveLocked(); saveErr != nil {
			logging.WarnWithContext(m.logger, "camera state save failed", "camera_state_save_failed",
				logging.Error(saveErr),
				logging.String(logging.FieldImpact, "connection history will be missing after restart"),
			)
		}
		callback = m.onEvent
	}
	m.mu.Unlock()

	if event != nil {
		m.logger.Info("camera "+event.Type,
			logging.String(logging.FieldEventType, "camera_"+event.Type),
			logging.String("camera_kind", m.adapter.Kind()),
		)
		if callback != nil {
			callback(*event)
		}
	}
	return err
}

// Connected reports the last observed reachability.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Events returns a copy of the recorded transitions, oldest first.
func (m *Monitor) Events() []ConnectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConnectionEvent(nil), m.events...)
}

func (m *Monitor) saveLocked() error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(monitorState{Connected: m.connected, Events: m.events}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode camera state: %w", err)
	}
	return fileutil.WriteAtomic(m.path, data, 0o644)
}

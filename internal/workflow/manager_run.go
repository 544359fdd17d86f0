package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mblakley/soccer-cam/internal/logging"
)

// Start launches both worker pools and the scheduling loop. The first tick
// runs immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.cancel != nil {
		m.mu.Unlock()
		return errors.New("workflow already stopped; create a new manager")
	}
	if err := m.startPools(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Int("download_slots", m.downloadPool.Size()),
		logging.Int("media_slots", m.mediaPool.Size()),
	)
	go m.loop(runCtx)
	return nil
}

// Stop ends the loop, lets in-flight transfers finish, cancels tool runs,
// and waits for both pools to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.downloadPool.Stop()
	m.mediaPool.Stop()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

// Running reports whether the loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) startPools(ctx context.Context) error {
	if err := m.downloadPool.Start(ctx); err != nil {
		return fmt.Errorf("start download pool: %w", err)
	}
	if err := m.mediaPool.Start(ctx); err != nil {
		m.downloadPool.Stop()
		return fmt.Errorf("start media pool: %w", err)
	}
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		if err := m.Tick(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "tick finished with errors", "tick_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "affected groups are retried on the next tick"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

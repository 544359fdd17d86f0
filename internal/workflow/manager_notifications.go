package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/notifications"
)

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.Publish(ctx, event, payload)
	m.metrics.NotificationSent(string(event), err)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug("daemon shutting down, notification not sent", logging.String("event", string(event)))
		return
	}
	logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
}

// onCameraEvent records connection transitions and alerts when the camera
// drops off the network.
func (m *Manager) onCameraEvent(event camera.ConnectionEvent) {
	m.metrics.CameraEvent(event.Type)
	if event.Type != "disconnected" {
		return
	}
	m.publish(context.Background(), m.logger, notifications.EventCameraUnreachable, notifications.Payload{
		"error": event.Message,
	})
}

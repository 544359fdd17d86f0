package notifications

import (
	"context"
	"fmt"
	"strings"
)

// Event names a lifecycle milestone.
type Event string

const (
	EventGroupCompleted    Event = "group_completed"
	EventGroupFailed       Event = "group_failed"
	EventMatchInfoNeeded   Event = "match_info_needed"
	EventCameraUnreachable Event = "camera_unreachable"
	EventTest              Event = "test"
)

// Payload carries event fields.
type Payload map[string]any

// Service publishes lifecycle events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

// render maps an event to its ntfy message. ok is false for events the
// configuration suppresses.
func (c *Client) render(event Event, payload Payload) (message, bool) {
	group := payloadString(payload, "group")
	switch event {
	case EventGroupCompleted:
		if !c.completions {
			return message{}, false
		}
		return message{
			title: "Soccer Cam - Game Ready",
			body:  fmt.Sprintf("✅ %s is ready: %s", group, payloadString(payload, "output")),
			tags:  []string{"soccer", "complete"},
		}, true
	case EventGroupFailed:
		if !c.errors {
			return message{}, false
		}
		body := fmt.Sprintf("❌ %s failed during %s: %s", group, payloadString(payload, "stage"), payloadString(payload, "reason"))
		if detail := payloadString(payload, "error"); detail != "" {
			body += "\n" + detail
		}
		return message{
			title:    "Soccer Cam - Error",
			body:     body,
			tags:     []string{"soccer", "error", "alert"},
			priority: "high",
		}, true
	case EventMatchInfoNeeded:
		return message{
			title: "Soccer Cam - Match Info Needed",
			body: fmt.Sprintf("📝 %s is combined. Fill in %s in %s",
				group, payloadString(payload, "missing"), payloadString(payload, "path")),
			tags: []string{"soccer", "match_info"},
		}, true
	case EventCameraUnreachable:
		if !c.errors {
			return message{}, false
		}
		return message{
			title: "Soccer Cam - Camera Offline",
			body:  fmt.Sprintf("📷 Camera unreachable: %s", payloadString(payload, "error")),
			tags:  []string{"soccer", "camera"},
		}, true
	case EventTest:
		return message{
			title:    "Soccer Cam - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"soccer", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.Join(v, ", ")
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg.Notifications)
	if err := svc.Publish(context.Background(), notifications.EventGroupCompleted, notifications.Payload{"group": "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if notifications.NewBoundaryChannel(cfg.Notifications, 0).Enabled() {
		t.Fatal("expected disabled boundary channel")
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "group completed",
			event: notifications.EventGroupCompleted,
			payload: notifications.Payload{
				"group":  "2024.05.01-10.00.00",
				"output": "FCUnited vs CityKickers (HomeField) 05-01-2024.mp4",
			},
			expectTitle:   "Soccer Cam - Game Ready",
			expectMessage: "✅ 2024.05.01-10.00.00 is ready: FCUnited vs CityKickers (HomeField) 05-01-2024.mp4",
			expectTags:    "soccer,complete",
		},
		{
			name:  "group failed",
			event: notifications.EventGroupFailed,
			payload: notifications.Payload{
				"group":  "2024.05.01-10.00.00",
				"stage":  "combining",
				"reason": "tool_failure",
			},
			expectTitle:    "Soccer Cam - Error",
			expectMessage:  "❌ 2024.05.01-10.00.00 failed during combining: tool_failure",
			expectTags:     "soccer,error,alert",
			expectPriority: "high",
		},
		{
			name:  "match info needed",
			event: notifications.EventMatchInfoNeeded,
			payload: notifications.Payload{
				"group":   "2024.05.01-10.00.00",
				"missing": []string{"my_team_name", "location"},
				"path":    "/data/2024.05.01-10.00.00/match_info.ini",
			},
			expectTitle:   "Soccer Cam - Match Info Needed",
			expectMessage: "📝 2024.05.01-10.00.00 is combined. Fill in my_team_name, location in /data/2024.05.01-10.00.00/match_info.ini",
			expectTags:    "soccer,match_info",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				path     string
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.path = r.URL.Path
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyServer = server.URL
			cfg.Notifications.NtfyTopic = "soccer-cam-test"
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(cfg.Notifications)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.path != "/soccer-cam-test" {
				t.Fatalf("expected topic path, got %q", captured.path)
			}
			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyServer = server.URL
	cfg.Notifications.NtfyTopic = "t"
	cfg.Notifications.Completions = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(cfg.Notifications)
	for _, event := range []notifications.Event{
		notifications.EventGroupCompleted,
		notifications.EventGroupFailed,
		notifications.EventCameraUnreachable,
		notifications.Event("unknown"),
	} {
		if err := svc.Publish(context.Background(), event, nil); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

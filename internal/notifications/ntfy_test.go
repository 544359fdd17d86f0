package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
)

func TestParseReply(t *testing.T) {
	cases := []struct {
		in     string
		answer Answer
		token  string
	}{
		{"yes 2024.05.01-10.00.00/start/300", AnswerYes, "2024.05.01-10.00.00/start/300"},
		{"No 2024.05.01-10.00.00/end/5400", AnswerNo, "2024.05.01-10.00.00/end/5400"},
		{"not a game 2024.05.01-10.00.00/start/0", AnswerNotAGame, "2024.05.01-10.00.00/start/0"},
		{"notgame g/start/0", AnswerNotAGame, "g/start/0"},
		{"maybe g/start/0", answerUndefined, ""},
		{"yes", answerUndefined, ""},
	}
	for _, tc := range cases {
		answer, token := ParseReply(tc.in)
		if answer != tc.answer || token != tc.token {
			t.Errorf("ParseReply(%q) = %q %q, want %q %q", tc.in, answer, token, tc.answer, tc.token)
		}
	}
}

func TestSendPromptUploadsSnapshotWithActions(t *testing.T) {
	var got struct {
		method, filename, message, actions, tags string
		body                                     string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.filename = r.Header.Get("Filename")
		got.message = r.Header.Get("Message")
		got.actions = r.Header.Get("Actions")
		got.tags = r.Header.Get("Tags")
		data, _ := io.ReadAll(r.Body)
		got.body = string(data)
	}))
	defer server.Close()

	snapshot := filepath.Join(t.TempDir(), "start_300.jpg")
	if err := os.WriteFile(snapshot, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	client := NewClient(config.Notifications{NtfyServer: server.URL, NtfyTopic: "games"}, time.Hour)
	err := client.SendPrompt(context.Background(), Prompt{
		Token:     "2024.05.01-10.00.00/start/300",
		Title:     "Game start?",
		Question:  "Is the game in progress at 05:00?",
		ImagePath: snapshot,
	})
	if err != nil {
		t.Fatalf("SendPrompt: %v", err)
	}
	if got.method != http.MethodPut || got.filename != "start_300.jpg" || got.body != "jpeg" {
		t.Fatalf("unexpected upload %+v", got)
	}
	if got.message != "Is the game in progress at 05:00?" {
		t.Fatalf("unexpected message %q", got.message)
	}
	if !strings.Contains(got.actions, "body=yes 2024.05.01-10.00.00/start/300") ||
		!strings.Contains(got.actions, "body=notgame 2024.05.01-10.00.00/start/300") ||
		!strings.Contains(got.actions, server.URL+"/games") {
		t.Fatalf("unexpected actions %q", got.actions)
	}
	if !strings.Contains(got.tags, promptTag) {
		t.Fatalf("expected prompt tag, got %q", got.tags)
	}
}

func TestPollResponsesReadsFeed(t *testing.T) {
	now := time.Unix(1_714_560_000, 0)
	var since string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games/json" || r.URL.Query().Get("poll") != "1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		since = r.URL.Query().Get("since")
		lines := []string{
			`{"id":"a","time":1714550000,"event":"open"}`,
			`{"id":"b","time":1714550001,"event":"message","message":"Is the game in progress?","tags":["soccer","boundary-prompt"],"actions":[{"label":"Yes","body":"yes g/start/0"},{"label":"No","body":"no g/start/0"}]}`,
			`{"id":"c","time":1714550002,"event":"message","message":"no g/start/0"}`,
			`{"id":"d","time":1714550003,"event":"message","message":"hello there"}`,
			`not json`,
			`{"id":"e","time":1714550004,"event":"message","message":"yes g/start/300"}`,
		}
		io.WriteString(w, strings.Join(lines, "\n"))
	}))
	defer server.Close()

	client := NewClient(config.Notifications{NtfyServer: server.URL, NtfyTopic: "games"}, 12*time.Hour)
	client.now = func() time.Time { return now }
	responses, err := client.PollResponses(context.Background())
	if err != nil {
		t.Fatalf("PollResponses: %v", err)
	}
	if since != strconv.FormatInt(now.Add(-12*time.Hour).Unix(), 10) {
		t.Fatalf("unexpected since %q", since)
	}
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %+v", responses)
	}
	if responses[0].Answer != AnswerPrompted || responses[0].Token != "g/start/0" {
		t.Fatalf("unexpected prompt echo %+v", responses[0])
	}
	if responses[1].Answer != AnswerNo || responses[2].Answer != AnswerYes || responses[2].ID != "e" {
		t.Fatalf("unexpected replies %+v", responses[1:])
	}
}

func TestTopicURLForm(t *testing.T) {
	client := NewClient(config.Notifications{NtfyTopic: "https://ntfy.example.com/my-topic"}, 0)
	if client.topicURL() != "https://ntfy.example.com/my-topic" {
		t.Fatalf("unexpected topic url %q", client.topicURL())
	}
}

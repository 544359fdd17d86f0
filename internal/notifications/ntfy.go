package notifications

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/services"
)

const (
	userAgent = "soccer-cam/1.0"
	promptTag = "boundary-prompt"
)

// Answer is a boundary reply. AnswerPrompted marks one of our own prompts
// echoed back by the feed.
type Answer string

const (
	AnswerYes       Answer = "yes"
	AnswerNo        Answer = "no"
	AnswerNotAGame  Answer = "notgame"
	AnswerPrompted  Answer = "prompted"
	answerUndefined Answer = ""
)

// Prompt asks whether the game is in progress at a candidate offset.
type Prompt struct {
	Token     string
	Title     string
	Question  string
	ImagePath string
}

// Response is one message read from the topic.
type Response struct {
	ID     string
	Token  string
	Answer Answer
	At     time.Time
}

// BoundaryChannel sends confirmation prompts and reads replies.
type BoundaryChannel interface {
	Enabled() bool
	SendPrompt(ctx context.Context, prompt Prompt) error
	PollResponses(ctx context.Context) ([]Response, error)
}

// Client is the ntfy implementation of Service and BoundaryChannel.
type Client struct {
	server      string
	topic       string
	client      *http.Client
	replay      time.Duration
	completions bool
	errors      bool
	now         func() time.Time
}

// NewClient builds an ntfy client. topic may be a bare name, resolved
// against server, or a full URL.
func NewClient(cfg config.Notifications, replay time.Duration) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	server := strings.TrimRight(strings.TrimSpace(cfg.NtfyServer), "/")
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if strings.Contains(topic, "://") {
		if u, err := url.Parse(topic); err == nil {
			server = u.Scheme + "://" + u.Host
			topic = strings.Trim(u.Path, "/")
		}
	}
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &Client{
		server:      server,
		topic:       topic,
		client:      &http.Client{Timeout: timeout},
		replay:      replay,
		completions: cfg.Completions,
		errors:      cfg.Errors,
		now:         time.Now,
	}
}

// NewService returns the ntfy client when a topic is configured and a no-op
// otherwise.
func NewService(cfg config.Notifications) Service {
	if strings.TrimSpace(cfg.NtfyTopic) == "" {
		return noopService{}
	}
	return NewClient(cfg, 0)
}

// NewBoundaryChannel returns the ntfy channel, or a disabled channel when no
// topic is configured.
func NewBoundaryChannel(cfg config.Notifications, replay time.Duration) BoundaryChannel {
	if strings.TrimSpace(cfg.NtfyTopic) == "" {
		return disabledChannel{}
	}
	return NewClient(cfg, replay)
}

func (c *Client) topicURL() string {
	return c.server + "/" + c.topic
}

func (c *Client) Enabled() bool { return c != nil && c.topic != "" }

func (c *Client) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := c.render(event, payload)
	if !ok {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.topicURL(), strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	setHeaders(req, msg.title, msg.tags, msg.priority)
	return c.do(req, "publish")
}

// SendPrompt uploads the snapshot as an attachment with the question as the
// message and three action buttons that post the reply back to the topic.
func (c *Client) SendPrompt(ctx context.Context, prompt Prompt) error {
	var body io.Reader = strings.NewReader("")
	method := http.MethodPost
	var file *os.File
	if prompt.ImagePath != "" {
		f, err := os.Open(prompt.ImagePath)
		if err != nil {
			return services.Wrap(services.ErrTransientIO, "resolving_boundaries", "prompt", "open snapshot", err)
		}
		file = f
		defer file.Close()
		body = file
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, c.topicURL(), body)
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	setHeaders(req, prompt.Title, []string{"soccer", promptTag}, "high")
	req.Header.Set("Message", prompt.Question)
	if file != nil {
		req.Header.Set("Filename", filepath.Base(prompt.ImagePath))
	}
	req.Header.Set("Actions", c.actions(prompt.Token))
	return c.do(req, "prompt")
}

func (c *Client) actions(token string) string {
	target := c.topicURL()
	buttons := []struct {
		label  string
		answer Answer
	}{
		{"Yes", AnswerYes},
		{"No", AnswerNo},
		{"Not a game", AnswerNotAGame},
	}
	parts := make([]string, 0, len(buttons))
	for _, b := range buttons {
		parts = append(parts, fmt.Sprintf("http, %s, %s, method=POST, body=%s %s, clear=true", b.label, target, b.answer, token))
	}
	return strings.Join(parts, "; ")
}

type feedMessage struct {
	ID      string       `json:"id"`
	Time    int64        `json:"time"`
	Event   string       `json:"event"`
	Message string       `json:"message"`
	Tags    []string     `json:"tags"`
	Actions []feedAction `json:"actions"`
}

type feedAction struct {
	Label string `json:"label"`
	Body  string `json:"body"`
}

// PollResponses returns every reply and prompt echo published within the
// replay window, oldest first. Callers dedupe by ID.
func (c *Client) PollResponses(ctx context.Context) ([]Response, error) {
	since := "all"
	if c.replay > 0 {
		since = strconv.FormatInt(c.now().Add(-c.replay).Unix(), 10)
	}
	target := c.topicURL() + "/json?" + url.Values{"poll": {"1"}, "since": {since}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "resolving_boundaries", "poll", "ntfy request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.Wrap(services.ErrTransientIO, "resolving_boundaries", "poll",
			fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	return parseFeed(resp.Body)
}

func parseFeed(r io.Reader) ([]Response, error) {
	var out []Response
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg feedMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Event != "" && msg.Event != "message" {
			continue
		}
		at := time.Unix(msg.Time, 0)
		if hasTag(msg.Tags, promptTag) {
			for _, action := range msg.Actions {
				if answer, token := ParseReply(action.Body); answer == AnswerYes {
					out = append(out, Response{ID: msg.ID, Token: token, Answer: AnswerPrompted, At: at})
					break
				}
			}
			continue
		}
		answer, token := ParseReply(msg.Message)
		if answer == answerUndefined {
			continue
		}
		out = append(out, Response{ID: msg.ID, Token: token, Answer: answer, At: at})
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "resolving_boundaries", "poll", "read feed", err)
	}
	return out, nil
}

// ParseReply splits "<answer> <token>". Unknown answers return an empty
// Answer.
func ParseReply(text string) (Answer, string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return answerUndefined, ""
	}
	token := fields[len(fields)-1]
	word := strings.ToLower(strings.Join(fields[:len(fields)-1], ""))
	switch word {
	case "yes", "y":
		return AnswerYes, token
	case "no", "n":
		return AnswerNo, token
	case "notgame", "notagame":
		return AnswerNotAGame, token
	default:
		return answerUndefined, ""
	}
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func setHeaders(req *http.Request, title string, tags []string, priority string) {
	req.Header.Set("User-Agent", userAgent)
	if title != "" {
		req.Header.Set("Title", title)
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if priority != "" && priority != "default" {
		req.Header.Set("Priority", priority)
	}
}

func (c *Client) do(req *http.Request, operation string) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "notifications", operation, "ntfy request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrTransientIO, "notifications", operation,
			fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type disabledChannel struct{}

func (disabledChannel) Enabled() bool { return false }

func (disabledChannel) SendPrompt(context.Context, Prompt) error { return nil }

func (disabledChannel) PollResponses(context.Context) ([]Response, error) { return nil, nil }

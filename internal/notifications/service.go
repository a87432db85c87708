package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/config"
)

const userAgent = "lectern/0.1.0"

// Service pushes session outcomes to the configured ntfy topic. Sessions run
// for minutes to hours, so a push on completion beats watching a terminal.
type Service interface {
	SessionCompleted(ctx context.Context, title string, slideCount int, reportPath string) error
	SessionFailed(ctx context.Context, title, reason string) error
	Test(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured; otherwise a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) SessionCompleted(ctx context.Context, title string, slideCount int, reportPath string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled Lecture"
	}
	message := fmt.Sprintf("✅ %s: %d slides extracted", title, slideCount)
	if reportPath = strings.TrimSpace(reportPath); reportPath != "" {
		message = fmt.Sprintf("%s\nReport: %s", message, reportPath)
	}
	return n.send(ctx, payload{
		title:   "Lectern - Extraction Complete",
		message: message,
		tags:    []string{"lectern", "extract", "completed"},
	})
}

func (n *ntfyService) SessionFailed(ctx context.Context, title, reason string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled Lecture"
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.send(ctx, payload{
		title:    "Lectern - Extraction Failed",
		message:  fmt.Sprintf("❌ %s: %s", title, reason),
		tags:     []string{"lectern", "extract", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) Test(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Lectern - Test",
		message:  "Notification system test",
		tags:     []string{"lectern", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) SessionCompleted(context.Context, string, int, string) error { return nil }

func (noopService) SessionFailed(context.Context, string, string) error { return nil }

func (noopService) Test(context.Context) error { return nil }

package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"overdub/internal/config"
	"overdub/internal/language"
)

const userAgent = "Overdub-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyJobQueued(ctx context.Context, fileName, sourceLang, targetLang string) error
	NotifyJobCompleted(ctx context.Context, fileName, targetLang string, duration time.Duration) error
	NotifyJobFailed(ctx context.Context, fileName, stage, reason string) error
	NotifyJobCanceled(ctx context.Context, fileName string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		jobCompleted: cfg.Notifications.JobCompleted,
		jobFailed:    cfg.Notifications.JobFailed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	jobCompleted bool
	jobFailed    bool
}

func (n *ntfyService) NotifyJobQueued(ctx context.Context, fileName, sourceLang, targetLang string) error {
	fileName = strings.TrimSpace(fileName)
	data := payload{
		title: "Overdub - Job Queued",
		message: fmt.Sprintf("Queued %s for dubbing: %s to %s",
			fileName, language.DisplayName(sourceLang), language.DisplayName(targetLang)),
		tags: []string{"overdub", "job", "queued"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, fileName, targetLang string, duration time.Duration) error {
	if !n.jobCompleted {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title: "Overdub - Complete",
		message: fmt.Sprintf("Dubbed %s into %s in %s",
			strings.TrimSpace(fileName), language.DisplayName(targetLang), duration),
		tags:     []string{"overdub", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, fileName, stage, reason string) error {
	if !n.jobFailed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Dubbing failed: ")
	builder.WriteString(strings.TrimSpace(fileName))
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString("\nStage: ")
		builder.WriteString(stage)
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		builder.WriteString("\n")
		builder.WriteString(reason)
	}
	data := payload{
		title:    "Overdub - Failed",
		message:  builder.String(),
		tags:     []string{"overdub", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCanceled(ctx context.Context, fileName string) error {
	data := payload{
		title:   "Overdub - Canceled",
		message: fmt.Sprintf("Canceled dubbing: %s", strings.TrimSpace(fileName)),
		tags:    []string{"overdub", "job", "canceled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Overdub - Test",
		message:  "Notification system test",
		tags:     []string{"overdub", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyJobQueued(context.Context, string, string, string) error { return nil }
func (noopService) NotifyJobCompleted(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyJobFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyJobCanceled(context.Context, string) error               { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }

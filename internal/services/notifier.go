package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
)

// WebhookNotifier posts notifications to the chat front-end.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookNotifier{url: url, httpClient: client}
}

// Notify POSTs n as JSON. Any non-2xx status is an error.
func (w *WebhookNotifier) Notify(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	// drained so the keep-alive connection goes back to the pool
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a notifier logging to logger.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	kv := []any{"requester", n.RequesterID, "platform", n.Platform, "video_id", n.VideoID}
	if n.ErrorCode != models.CodeNone {
		l.logger.Warn(n.Text, append(kv, "error_code", n.ErrorCode)...)
		return nil
	}
	l.logger.Info(n.Text, append(kv, "artifact", n.ArtifactRef)...)
	return nil
}

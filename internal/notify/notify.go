// Package notify delivers best-effort contributor notifications. Delivery
// failures are logged and swallowed: the pipeline never blocks or rolls
// back because a webhook was down.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notification kinds emitted by the pipeline.
const (
	KindSubmissionScored   = "submission_scored"
	KindSubmissionApproved = "submission_approved"
	KindSubmissionRejected = "submission_rejected"
	KindPaymentCompleted   = "payment_completed"
	KindTaskReopened       = "task_reopened"
)

// Dispatcher fans a pipeline event out to a contributor.
type Dispatcher interface {
	Notify(ctx context.Context, userID, kind, message, link string)
}

// NewDispatcher returns a webhook dispatcher when a URL is configured and a
// silent no-op otherwise.
func NewDispatcher(webhookURL string, timeoutSeconds int, logger *slog.Logger) Dispatcher {
	url := strings.TrimSpace(webhookURL)
	if url == "" {
		return Noop{}
	}
	timeout := 10 * time.Second
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(context.Context, string, string, string, string) {}

// Webhook posts a JSON payload per notification to a configured endpoint.
type Webhook struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

type webhookPayload struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	SentAt  string `json:"sent_at"`
}

func (w *Webhook) Notify(ctx context.Context, userID, kind, message, link string) {
	payload := webhookPayload{
		UserID:  userID,
		Kind:    kind,
		Message: message,
		Link:    link,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		w.logger().Warn("notification encode failed", "kind", kind, "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		w.logger().Warn("notification request failed", "kind", kind, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client().Do(req)
	if err != nil {
		w.logger().Warn("notification delivery failed", "kind", kind, "user_id", userID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		w.logger().Warn("notification delivery rejected",
			"kind", kind,
			"user_id", userID,
			"error", fmt.Sprintf("http %d", resp.StatusCode))
	}
}

func (w *Webhook) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return http.DefaultClient
}

func (w *Webhook) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

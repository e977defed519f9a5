package notify

import (
	"context"
	"net/http"
	"time"
)

// WebhookNotifier posts the summary as JSON to any endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

type webhookPayload struct {
	Event string `json:"event"`
	*RunSummary
	DurationMs int64  `json:"duration_ms"`
	Time       string `json:"time"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	event := "run.passed"
	if !summary.Healthy() {
		event = "run.failed"
	} else if summary.IsRecovery {
		event = "run.recovered"
	}
	payload := webhookPayload{
		Event:      event,
		RunSummary: summary,
		DurationMs: summary.Duration.Milliseconds(),
		Time:       time.Now().UTC().Format(time.RFC3339),
	}
	return postJSON(ctx, w.client, w.url, payload, http.StatusOK, http.StatusAccepted, http.StatusNoContent)
}

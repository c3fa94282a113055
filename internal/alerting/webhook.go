package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier posts alerts as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// webhookPayload is the wire shape posted to the endpoint.
type webhookPayload struct {
	FeedName        string `json:"feed_name"`
	Status          string `json:"status"`
	COBDate         string `json:"cob_date"`
	RecordCount     int64  `json:"record_count"`
	CompletenessPct string `json:"completeness_pct"`
	ExpectedTime    string `json:"expected_time,omitempty"`
	Timestamp       string `json:"timestamp"`
	Error           string `json:"error,omitempty"`
}

// NewWebhookNotifier constructs the webhook channel.
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// Name identifies the channel in the audit trail.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts the alert payload.
func (n *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := webhookPayload{
		FeedName:        alert.FeedName,
		Status:          alert.Verdict.String(),
		COBDate:         alert.COBDate.Format("2006-01-02"),
		RecordCount:     alert.RecordCount,
		CompletenessPct: alert.CompletenessPct.StringFixed(2),
		ExpectedTime:    alert.ExpectedTime,
		Timestamp:       alert.ObservedAt.UTC().Format(time.RFC3339),
		Error:           alert.Error,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	n.logger.Debug().Str("feed", alert.FeedName).Msg("webhook alert delivered")
	return nil
}

var _ Channel = (*WebhookNotifier)(nil)

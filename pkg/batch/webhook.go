package batch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Webhook retry schedule: 1 s, 5 s, 25 s, then give up.
const (
	webhookInitialInterval = time.Second
	webhookMultiplier      = 5
	webhookMaxRetries      = 3
	webhookTimeout         = 10 * time.Second
)

// WebhookPayload is the completion callback body.
type WebhookPayload struct {
	JobID           string  `json:"job_id"`
	Status          Status  `json:"status"`
	TotalItems      int     `json:"total_items"`
	ProcessedItems  int     `json:"processed_items"`
	FailedItems     int     `json:"failed_items"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// WebhookNotifier POSTs terminal-state callbacks, signing each body with
// HMAC-SHA256 over the job's webhook secret.
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier creates a notifier. client may be nil, in which
// case a default client with a 10 s timeout is used.
func NewWebhookNotifier(client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &WebhookNotifier{client: client}
}

// Notify delivers the callback with exponential backoff (1 s, 5 s, 25 s;
// max 3 retries). Returns the delivery outcome for the job record.
func (n *WebhookNotifier) Notify(ctx context.Context, job Job) WebhookDelivery {
	payload := WebhookPayload{
		JobID:           job.JobID,
		Status:          job.Status,
		TotalItems:      job.TotalItems,
		ProcessedItems:  job.ProcessedItems,
		FailedItems:     job.FailedItems,
		DurationSeconds: job.DurationSeconds(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal webhook payload", "job_id", job.JobID, "error", err)
		return WebhookFailed
	}

	signature := Sign(job.WebhookSecret, body)

	operation := func() error {
		return n.post(ctx, job.WebhookURL, body, signature)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = webhookInitialInterval
	policy.Multiplier = webhookMultiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, webhookMaxRetries), ctx))
	if err != nil {
		slog.Warn("Webhook delivery failed after retries",
			"job_id", job.JobID, "url", job.WebhookURL, "error", err)
		return WebhookFailed
	}

	slog.Info("Webhook delivered", "job_id", job.JobID, "status", job.Status)
	return WebhookDelivered
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the X-Signature header value for a webhook body:
// "sha256=" followed by the lowercase hex HMAC-SHA256 of the body keyed
// by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time. Receivers
// use this to authenticate callbacks.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Package notifier delivers best-effort completion callbacks. Delivery
// failures are logged and reported to the orchestrator, which never lets them
// flip a pipeline result.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/renderq/renderq/internal/metrics"
	"github.com/renderq/renderq/internal/retry"
	"github.com/renderq/renderq/internal/validation"
	"github.com/renderq/renderq/pkg/domain"
)

// Payload is the completion callback body.
type Payload struct {
	RequestID         string   `json:"requestId"`
	Status            string   `json:"status"`
	ArtifactLocations []string `json:"artifactLocations"`
	PageCount         int      `json:"pageCount"`
	DurationMs        int64    `json:"durationMs"`
	Error             string   `json:"error,omitempty"`
}

type Notifier struct {
	client  *http.Client
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

func New(client *http.Client, policy retry.Policy, timeout time.Duration, logger *slog.Logger) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, policy: policy, timeout: timeout, logger: logger}
}

// Notify POSTs the payload through the retry executor. Any 2xx is success.
func (n *Notifier) Notify(ctx context.Context, webhookURL string, p Payload) error {
	return n.deliver(ctx, "completion", webhookURL, p, n.policy)
}

// NotifyFailure delivers an error callback with a reduced retry budget so a
// failing pipeline is not held up by an unreachable webhook.
func (n *Notifier) NotifyFailure(ctx context.Context, webhookURL string, p Payload) error {
	reduced := n.policy
	reduced.MaxAttempts = 2
	return n.deliver(ctx, "failure", webhookURL, p, reduced)
}

func (n *Notifier) deliver(ctx context.Context, kind, webhookURL string, p Payload, policy retry.Policy) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	safeURL := validation.SanitizeURL(webhookURL)
	_, err = retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return struct{}{}, &domain.TransportError{Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, &domain.StatusError{Code: resp.StatusCode}
		}
		return struct{}{}, nil
	})
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(kind, "failure").Inc()
		n.logger.Warn("webhook delivery failed", "url", safeURL, "requestId", p.RequestID, "err", err)
		return err
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(kind, "success").Inc()
	n.logger.Info("webhook delivered", "url", safeURL, "requestId", p.RequestID, "status", p.Status)
	return nil
}

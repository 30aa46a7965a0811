// Package distribution delivers finished reports and triggered alerts over
// email and webhooks. Every destination sits behind a circuit breaker so a
// dead endpoint cannot stall the pipeline.
package distribution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/circuitbreaker"
)

const webhookTimeout = 30 * time.Second

// envelope is the wire shape every outgoing webhook uses.
type envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type WebhookSender struct {
	client  *http.Client
	breaker *circuitbreaker.Breaker
	clock   func() time.Time
}

func NewWebhookSender(breaker *circuitbreaker.Breaker) *WebhookSender {
	return &WebhookSender{
		client:  &http.Client{},
		breaker: breaker,
		clock:   time.Now,
	}
}

// Send posts {"type": eventType, "data": data, "timestamp": ...} to url.
// Non-2xx responses count as failures against the destination's circuit.
func (s *WebhookSender) Send(ctx context.Context, url string, eventType string, data any) error {
	if s.breaker != nil {
		if err := s.breaker.Allow(url); err != nil {
			return fmt.Errorf("webhook %s: %w", url, err)
		}
	}

	body, err := json.Marshal(envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: s.clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordFailure(url)
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.recordFailure(url)
		return fmt.Errorf("webhook %s: status %d", url, resp.StatusCode)
	}

	if s.breaker != nil {
		s.breaker.RecordSuccess(url)
	}
	return nil
}

func (s *WebhookSender) recordFailure(url string) {
	if s.breaker != nil {
		s.breaker.RecordFailure(url)
	}
}

// Package providers contains the delivery transports the sweeper hands
// rendered notifications to.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/circuit"
)

// Webhook posts notifications as JSON to the recipient URL. A 2xx response
// counts as delivered; anything else is a failed attempt that the dispatcher
// may retry. A circuit breaker sheds calls while the endpoint is down so a
// dead receiver doesn't tie up sweep workers on timeouts.
type Webhook struct {
	client  *http.Client
	breaker *circuit.Breaker
}

// NewWebhook creates a webhook provider with a bounded client timeout.
func NewWebhook() *Webhook {
	return &Webhook{
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuit.New("webhook"),
	}
}

type webhookPayload struct {
	Channel string `json:"channel"`
	Content string `json:"content"`
}

func (p *Webhook) Send(ctx context.Context, delivery dispatch.Delivery) (dispatch.Result, error) {
	if p.breaker.IsOpen() {
		// Count shed calls toward the close threshold: after a few sheds
		// the breaker closes and the next attempt probes the endpoint
		// for real. The dispatcher's backoff spaces the probes out.
		p.breaker.RecordSuccess()
		return dispatch.Result{Success: false, Err: "webhook circuit open"}, nil
	}

	body, err := json.Marshal(webhookPayload{
		Channel: string(delivery.Channel),
		Content: delivery.RenderedContent,
	})
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.Recipient, bytes.NewReader(body))
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.breaker.RecordFailure()
		return dispatch.Result{Success: false, Err: err.Error()}, nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.breaker.RecordFailure()
		return dispatch.Result{
			Success: false,
			Err:     fmt.Sprintf("webhook returned status %d", resp.StatusCode),
		}, nil
	}
	p.breaker.RecordSuccess()
	return dispatch.Result{
		Success:     true,
		ProviderRef: resp.Header.Get("X-Delivery-Id"),
	}, nil
}

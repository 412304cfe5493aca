// Package notify posts chat notifications. Delivery failures are logged
// and swallowed: a notification must never fail the calling phase.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sender is the collaborator interface: fire-and-forget by contract.
type Sender interface {
	Send(ctx context.Context, message, action string)
}

// Webhook fans a message out to every configured webhook URL.
type Webhook struct {
	urls    []string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

func NewWebhook(urls []string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		urls:    urls,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type payload struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

// Send posts to all webhooks concurrently and waits for the slowest,
// bounded by the configured timeout. Errors are logged, never returned.
func (w *Webhook) Send(ctx context.Context, message, action string) {
	if len(w.urls) == 0 {
		return
	}

	body, err := json.Marshal(payload{Text: message, Action: action})
	if err != nil {
		w.logger.Warn("notification payload marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, url := range w.urls {
		url := url
		g.Go(func() error {
			if err := w.post(ctx, url, body); err != nil {
				w.logger.Warn("notification delivery failed",
					zap.String("url", url),
					zap.Error(err))
			}
			return nil // never propagate
		})
	}
	_ = g.Wait()
}

func (w *Webhook) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Nop is used when notifications are disabled.
type Nop struct{}

func (Nop) Send(ctx context.Context, message, action string) {}

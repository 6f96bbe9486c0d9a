// Package webhook notifies an external endpoint when analyses complete.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// EventAnalysisCompleted is sent after every successful analysis.
const EventAnalysisCompleted = "analysis.completed"

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Sitegrade-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier delivers events to a single endpoint with retries.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
	logger *slog.Logger

	// OnResult, if set, is called once per event with "delivered" or
	// "failed".
	OnResult func(status string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier posting to url. Retry intervals are
// 1s, 5s and 30s after the first attempt.
func NewNotifier(url, secret string) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		ctx:    ctx,
		cancel: cancel,
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		logger: slog.Default().With("component", "webhook"),
	}
}

// Deliver sends an event synchronously.
// The request body is signed with HMAC-SHA256 if the secret is non-empty.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sitegrade-Webhook/1.0")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Notify sends an event asynchronously, retrying on failure. Events
// passed after Close are reported as failed without being sent.
func (n *Notifier) Notify(event *Event) {
	if n.ctx.Err() != nil {
		if n.OnResult != nil {
			n.OnResult("failed")
		}
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		status := "failed"
		defer func() {
			if n.OnResult != nil {
				n.OnResult(status)
			}
		}()

		for attempt, delay := range n.delays {
			if delay > 0 && !n.sleep(delay) {
				n.logger.Warn("webhook delivery abandoned on shutdown",
					"event", event.Type,
					"id", event.ID,
					"attempts", attempt,
				)
				return
			}
			ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
			err := n.Deliver(ctx, event)
			cancel()
			if err == nil {
				n.logger.Info("webhook delivered",
					"event", event.Type,
					"id", event.ID,
					"attempt", attempt+1,
				)
				status = "delivered"
				return
			}
			n.logger.Warn("webhook delivery failed",
				"event", event.Type,
				"id", event.ID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		n.logger.Error("webhook delivery exhausted all retries",
			"event", event.Type,
			"id", event.ID,
		)
	}()
}

// sleep pauses for d and reports false if the notifier was closed first.
func (n *Notifier) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-n.ctx.Done():
		return false
	}
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close abandons pending retries, cancels in-flight requests and waits
// for the delivery goroutines to report their result.
func (n *Notifier) Close() {
	n.cancel()
	n.wg.Wait()
}

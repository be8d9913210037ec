// Package notify pushes operator alerts for safety events: breaker
// trips, stop exits, and ledger faults. Channels are best-effort;
// a failed notification never blocks trading.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// EventKind classifies a notification.
type EventKind string

const (
	KindBreakerTripped EventKind = "breaker_tripped"
	KindBreakerReset   EventKind = "breaker_reset"
	KindStopExit       EventKind = "stop_exit"
	KindLedgerFault    EventKind = "ledger_fault"
	KindFill           EventKind = "fill"
)

// Notification is one operator alert.
type Notification struct {
	Kind      EventKind              `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Channel delivers notifications over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier fans a notification out to every configured channel.
type Notifier struct {
	mu       sync.RWMutex
	channels []Channel
}

// NewNotifier creates a notifier with the given channels.
func NewNotifier(channels ...Channel) *Notifier {
	return &Notifier{channels: channels}
}

// AddChannel registers an additional channel.
func (n *Notifier) AddChannel(ch Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, ch)
}

// Send delivers a notification to all channels. Errors from individual
// channels are collected, not fatal.
func (n *Notifier) Send(ctx context.Context, notification Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	n.mu.RLock()
	channels := make([]Channel, len(n.channels))
	copy(channels, n.channels)
	n.mu.RUnlock()

	var firstErr error
	for _, ch := range channels {
		if err := ch.Send(ctx, notification); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("channel %s: %w", ch.Name(), err)
		}
	}
	return firstErr
}

// BreakerTripped builds the alert for a daily-loss breaker trip.
func BreakerTripped(dailyPnL, threshold float64, closed int) Notification {
	return Notification{
		Kind:    KindBreakerTripped,
		Title:   "CIRCUIT BREAKER TRIPPED",
		Message: fmt.Sprintf("daily loss %.2f breached threshold %.2f; %d positions flattened", dailyPnL, threshold, closed),
		Data: map[string]interface{}{
			"daily_pnl": dailyPnL,
			"threshold": threshold,
			"closed":    closed,
		},
	}
}

// StopExit builds the alert for a trailing-stop exit.
func StopExit(symbol string, price, stop, realized float64) Notification {
	return Notification{
		Kind:    KindStopExit,
		Title:   fmt.Sprintf("STOP EXIT %s", symbol),
		Message: fmt.Sprintf("price %.2f crossed stop %.2f, realized %.2f", price, stop, realized),
		Data: map[string]interface{}{
			"symbol":   symbol,
			"price":    price,
			"stop":     stop,
			"realized": realized,
		},
	}
}

// LedgerFault builds the alert for a halted ledger.
func LedgerFault(symbol, reason string) Notification {
	return Notification{
		Kind:    KindLedgerFault,
		Title:   "LEDGER FAULT, TRADING HALTED",
		Message: fmt.Sprintf("%s: %s; reconcile before resuming", symbol, reason),
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
		},
	}
}

// WebhookChannel posts notifications as JSON to an HTTP endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string { return "webhook" }

// Send posts the notification.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
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

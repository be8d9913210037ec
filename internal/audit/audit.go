// Package audit provides an append-only log of every gate decision.
//
// Each accepted or rejected order is recorded together with the full
// input snapshot it was evaluated against, so the reason a trade was
// allowed or blocked can be reconstructed after the fact.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventDecision      EventType = "GATE_DECISION"
	EventFill          EventType = "ORDER_FILLED"
	EventTimeout       EventType = "ORDER_TIMEOUT"
	EventBreakerTrip   EventType = "BREAKER_TRIPPED"
	EventBreakerReset  EventType = "BREAKER_RESET"
	EventConfigChanged EventType = "CONFIG_CHANGED"
	EventLedgerFault   EventType = "LEDGER_FAULT"
	EventReconciled    EventType = "RECONCILED"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	SessionID string                 `json:"session_id"`
	Symbol    string                 `json:"symbol,omitempty"`
	OrderID   string                 `json:"order_id,omitempty"`
	Accepted  bool                   `json:"accepted"`
	Reason    string                 `json:"reason,omitempty"`
	Snapshot  map[string]interface{} `json:"snapshot,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Config holds audit logger configuration.
type Config struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LogDir:     filepath.Join(home, ".config", "alpaca-gate", "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
	}
}

// Logger writes audit events as one JSON object per line.
type Logger struct {
	writer    *lumberjack.Logger
	mu        sync.Mutex
	sessionID string
}

// NewLogger creates a new audit logger.
func NewLogger(cfg Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	return &Logger{
		writer:    writer,
		sessionID: uuid.NewString(),
	}, nil
}

// Log appends an audit event.
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Timestamp = time.Now().UTC()
	event.SessionID = l.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogDecision records a gate decision together with its input snapshot.
func (l *Logger) LogDecision(symbol, kind string, accepted bool, reason string, snapshot map[string]interface{}) error {
	return l.Log(Event{
		EventType: EventDecision,
		Symbol:    symbol,
		Accepted:  accepted,
		Reason:    reason,
		Snapshot:  snapshot,
		Details:   map[string]interface{}{"kind": kind},
	})
}

// LogFill records an executed fill.
func (l *Logger) LogFill(orderID, symbol, side string, qty, price float64) error {
	return l.Log(Event{
		EventType: EventFill,
		Symbol:    symbol,
		OrderID:   orderID,
		Accepted:  true,
		Details: map[string]interface{}{
			"side":     side,
			"quantity": qty,
			"price":    price,
		},
	})
}

// LogBreaker records a breaker trip or reset.
func (l *Logger) LogBreaker(event EventType, dailyPnL, threshold, baseline float64) error {
	return l.Log(Event{
		EventType: event,
		Accepted:  true,
		Details: map[string]interface{}{
			"daily_pnl":           dailyPnL,
			"threshold":           threshold,
			"start_of_day_equity": baseline,
		},
	})
}

// Close closes the audit logger.
func (l *Logger) Close() error {
	return l.writer.Close()
}

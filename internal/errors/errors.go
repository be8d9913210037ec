// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrTimeout            = errors.New("operation timed out")
	ErrOrderRejected      = errors.New("order rejected")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrPositionNotFound   = errors.New("position not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrLedgerInconsistent = errors.New("ledger inconsistent with broker state")
	ErrTradingHalted      = errors.New("new trading halted")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrDatabaseError      = errors.New("database error")
	ErrFeedClosed         = errors.New("price feed closed")
)

// BrokerError represents an error from the execution adapter.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// LedgerError represents a ledger consistency fault. These are fatal for
// new entries: the ledger has diverged from the broker's actual state and
// must halt new trading pending reconciliation.
type LedgerError struct {
	Symbol  string
	Op      string
	Message string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger fault [%s] %s: %s", e.Symbol, e.Op, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return ErrLedgerInconsistent
}

// NewLedgerError creates a new LedgerError.
func NewLedgerError(symbol, op, message string) *LedgerError {
	return &LedgerError{
		Symbol:  symbol,
		Op:      op,
		Message: message,
	}
}

// RiskError represents a risk limit violation surfaced as an error.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// ValidationError represents a configuration or input validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

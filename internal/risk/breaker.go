package risk

import (
	"fmt"
	"sync"
	"time"

	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/models"
	"alpaca-gate/pkg/utils"
)

// CircuitBreaker latches when the day's total loss (realized plus
// unrealized) breaches the configured fraction of start-of-day equity.
// Once tripped it stays tripped until an explicit operator reset; it
// never rearms on its own, even if prices recover.
type CircuitBreaker struct {
	mu         sync.RWMutex
	state      models.BreakerState
	trippedAt  time.Time
	trippedDay string
}

// NewCircuitBreaker creates an armed breaker.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{state: models.BreakerArmed}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() models.BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Tripped reports whether the breaker is latched.
func (cb *CircuitBreaker) Tripped() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state == models.BreakerTripped
}

// TrippedAt returns when the breaker last tripped.
func (cb *CircuitBreaker) TrippedAt() time.Time {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.trippedAt
}

// Evaluate checks the day's total loss against the threshold and trips
// the breaker if breached. Returns true only on the transition from
// armed to tripped, so the caller fires emergency exits exactly once.
func (cb *CircuitBreaker) Evaluate(daily models.DailyAccounting, unrealized, maxDailyLossFraction float64, market models.Market, now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == models.BreakerTripped {
		return false
	}
	if daily.StartOfDayEquity <= 0 || maxDailyLossFraction <= 0 {
		return false
	}

	total := daily.RealizedPnL + unrealized
	threshold := -maxDailyLossFraction * daily.StartOfDayEquity
	if total <= threshold {
		cb.state = models.BreakerTripped
		cb.trippedAt = now
		cb.trippedDay = utils.TradingDay(market, now)
		return true
	}
	return false
}

// trippedDaySnapshot returns the trading day the breaker tripped on.
func (cb *CircuitBreaker) trippedDaySnapshot() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.trippedDay
}

// Reset rearms the breaker. A reset on the same trading day the breaker
// tripped is refused unless forced, since the loss that tripped it is
// still today's loss.
func (cb *CircuitBreaker) Reset(market models.Market, now time.Time, force bool) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == models.BreakerArmed {
		return nil
	}
	if !force && cb.trippedDay == utils.TradingDay(market, now) {
		return apperrors.NewRiskError("reset_breaker", 0, 0,
			fmt.Sprintf("breaker tripped today (%s); use force to rearm before the next session", cb.trippedDay))
	}
	cb.state = models.BreakerArmed
	cb.trippedAt = time.Time{}
	cb.trippedDay = ""
	return nil
}

// Restore replaces breaker state from persistence.
func (cb *CircuitBreaker) Restore(state models.BreakerState, trippedAt time.Time, trippedDay string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = state
	cb.trippedAt = trippedAt
	cb.trippedDay = trippedDay
}

package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpaca-gate/internal/models"
)

func TestCircuitBreaker_TripsAtExactThreshold(t *testing.T) {
	cb := NewCircuitBreaker()
	daily := models.DailyAccounting{Day: "2026-08-28", StartOfDayEquity: 50_000, RealizedPnL: -1_000}
	now := time.Now()

	// Threshold is -1,500; total loss of exactly -1,500 trips.
	tripped := cb.Evaluate(daily, -500, 0.03, models.MarketUSStocks, now)
	assert.True(t, tripped)
	assert.Equal(t, models.BreakerTripped, cb.State())
}

func TestCircuitBreaker_DoesNotTripAboveThreshold(t *testing.T) {
	cb := NewCircuitBreaker()
	daily := models.DailyAccounting{Day: "2026-08-28", StartOfDayEquity: 50_000, RealizedPnL: -1_000}

	tripped := cb.Evaluate(daily, -499.99, 0.03, models.MarketUSStocks, time.Now())
	assert.False(t, tripped)
	assert.Equal(t, models.BreakerArmed, cb.State())
}

func TestCircuitBreaker_TransitionReportedOnce(t *testing.T) {
	cb := NewCircuitBreaker()
	daily := models.DailyAccounting{Day: "2026-08-28", StartOfDayEquity: 50_000}
	now := time.Now()

	assert.True(t, cb.Evaluate(daily, -2_000, 0.03, models.MarketUSStocks, now))
	assert.False(t, cb.Evaluate(daily, -3_000, 0.03, models.MarketUSStocks, now),
		"already-tripped breaker must not report a second transition")
}

func TestCircuitBreaker_StaysTrippedOnRecovery(t *testing.T) {
	cb := NewCircuitBreaker()
	daily := models.DailyAccounting{Day: "2026-08-28", StartOfDayEquity: 50_000}
	now := time.Now()

	require.True(t, cb.Evaluate(daily, -2_000, 0.03, models.MarketUSStocks, now))

	// Prices recovering does not rearm the breaker.
	cb.Evaluate(daily, +5_000, 0.03, models.MarketUSStocks, now)
	assert.Equal(t, models.BreakerTripped, cb.State())
}

func TestCircuitBreaker_SameDayResetRequiresForce(t *testing.T) {
	cb := NewCircuitBreaker()
	daily := models.DailyAccounting{Day: "2026-08-28", StartOfDayEquity: 50_000}
	now := time.Now()

	require.True(t, cb.Evaluate(daily, -2_000, 0.03, models.MarketUSStocks, now))

	err := cb.Reset(models.MarketUSStocks, now, false)
	assert.Error(t, err)
	assert.Equal(t, models.BreakerTripped, cb.State())

	err = cb.Reset(models.MarketUSStocks, now, true)
	assert.NoError(t, err)
	assert.Equal(t, models.BreakerArmed, cb.State())
}

func TestCircuitBreaker_NextDayResetAllowed(t *testing.T) {
	cb := NewCircuitBreaker()
	daily := models.DailyAccounting{Day: "2026-08-28", StartOfDayEquity: 50_000}
	trippedAt := time.Now()

	require.True(t, cb.Evaluate(daily, -2_000, 0.03, models.MarketUSStocks, trippedAt))

	err := cb.Reset(models.MarketUSStocks, trippedAt.Add(48*time.Hour), false)
	assert.NoError(t, err)
	assert.Equal(t, models.BreakerArmed, cb.State())
}

func TestCircuitBreaker_ZeroBaselineNeverTrips(t *testing.T) {
	cb := NewCircuitBreaker()
	daily := models.DailyAccounting{Day: "2026-08-28", StartOfDayEquity: 0}

	assert.False(t, cb.Evaluate(daily, -1, 0.03, models.MarketUSStocks, time.Now()))
}

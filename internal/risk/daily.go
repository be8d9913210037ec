package risk

import (
	"sync"
	"time"

	"alpaca-gate/internal/models"
	"alpaca-gate/pkg/utils"
)

// DailyBook tracks the current trading day's accounting: realized P&L,
// order counts for cadence limits, and the start-of-day equity baseline
// the circuit breaker measures against. It rolls over automatically at
// the venue-local day boundary.
type DailyBook struct {
	mu     sync.Mutex
	market models.Market
	acct   models.DailyAccounting
}

// NewDailyBook starts a daily book for the given venue calendar.
func NewDailyBook(market models.Market, now time.Time, equity float64) *DailyBook {
	return &DailyBook{
		market: market,
		acct: models.DailyAccounting{
			Day:              utils.TradingDay(market, now),
			StartOfDayEquity: equity,
		},
	}
}

// RollIfNewDay resets the accounting when the venue-local trading day
// has changed, capturing the supplied equity as the new baseline.
// Reports whether a rollover happened.
func (b *DailyBook) RollIfNewDay(now time.Time, equity float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	day := utils.TradingDay(b.market, now)
	if day == b.acct.Day {
		return false
	}
	b.acct = models.DailyAccounting{
		Day:              day,
		StartOfDayEquity: equity,
	}
	return true
}

// RecordOrder counts an accepted order against today's cadence limits.
func (b *DailyBook) RecordOrder(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acct.OrdersToday++
	b.acct.LastOrderAt = now
}

// Rebaseline restarts the day's P&L measurement from the given equity,
// keeping order counts intact. Used when the breaker is reset, so the
// loss that tripped it cannot trip the rearmed breaker again, and when
// a restart lands on a new trading day.
func (b *DailyBook) Rebaseline(equity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acct.StartOfDayEquity = equity
	b.acct.RealizedPnL = 0
}

// AddRealized accrues realized P&L from a closed (or reduced) position.
func (b *DailyBook) AddRealized(pnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acct.RealizedPnL += pnl
}

// Snapshot returns a copy of today's accounting.
func (b *DailyBook) Snapshot() models.DailyAccounting {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acct
}

// Restore replaces the accounting, used when resuming mid-day from
// persistence. Ignored if the persisted day is not today.
func (b *DailyBook) Restore(acct models.DailyAccounting, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acct.Day != utils.TradingDay(b.market, now) {
		return false
	}
	b.acct = acct
	return true
}

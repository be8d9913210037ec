package risk

import (
	"time"

	"alpaca-gate/internal/config"
	"alpaca-gate/internal/models"
)

// CadenceAllows reports whether another discretionary order fits within
// today's cadence limits: the daily order cap and the minimum spacing
// since the last accepted order. Stop and emergency exits are exempt
// and never reach this check.
func CadenceAllows(now time.Time, daily models.DailyAccounting, cfg *config.RiskConfig) bool {
	if cfg.MaxOrdersPerDay > 0 && daily.OrdersToday >= cfg.MaxOrdersPerDay {
		return false
	}
	if cfg.MinSecondsBetweenOrders > 0 && !daily.LastOrderAt.IsZero() {
		minGap := time.Duration(cfg.MinSecondsBetweenOrders) * time.Second
		if now.Sub(daily.LastOrderAt) < minGap {
			return false
		}
	}
	return true
}

package risk

import (
	"fmt"
	"time"

	"alpaca-gate/internal/config"
	"alpaca-gate/internal/models"
)

// EvalInput is the consistent snapshot a rule checklist runs against.
// It is assembled once, under the gate's locks, so every rule sees the
// same state.
type EvalInput struct {
	Order          *models.Order
	Config         *config.RiskConfig
	Breaker        models.BreakerState
	OpenPositions  int
	ExistingQty    float64 // same-direction quantity already open in this symbol
	Equity         float64
	ReferencePrice float64 // limit price or last tick; 0 when unknown
	Daily          models.DailyAccounting
	Now            time.Time
}

// Rejection describes a failed check.
type Rejection struct {
	Reason models.RejectReason
	Detail string
}

// Rule is a single named check in the gate's checklist. A rule returns
// nil to pass or a Rejection to fail.
type Rule struct {
	Name  string
	Check func(EvalInput) *Rejection
}

// Rules returns the gate's checklist in evaluation order. Order is
// part of the contract: the first failing rule names the rejection.
func Rules() []Rule {
	return []Rule{
		{Name: "breaker", Check: checkBreaker},
		{Name: "position_count", Check: checkPositionCount},
		{Name: "position_size", Check: checkPositionSize},
		{Name: "trade_risk", Check: checkTradeRisk},
		{Name: "cadence", Check: checkCadence},
	}
}

// Evaluate runs the checklist against a snapshot and returns the first
// rejection, or nil if every rule passes.
func Evaluate(in EvalInput) *Rejection {
	for _, rule := range Rules() {
		if rej := rule.Check(in); rej != nil {
			return rej
		}
	}
	return nil
}

// checkBreaker rejects new entries while the breaker is tripped.
// Exits of any kind remain allowed: reducing exposure is exactly what
// a tripped breaker wants.
func checkBreaker(in EvalInput) *Rejection {
	if in.Breaker == models.BreakerTripped && in.Order.Kind == models.OrderKindEntry {
		return &Rejection{
			Reason: models.ReasonBreakerTripped,
			Detail: "daily loss limit breached; entries blocked until breaker reset",
		}
	}
	return nil
}

// checkPositionCount rejects entries once the concurrent-position cap
// is reached.
func checkPositionCount(in EvalInput) *Rejection {
	if in.Order.Kind != models.OrderKindEntry {
		return nil
	}
	if in.OpenPositions >= in.Config.MaxConcurrentPositions {
		return &Rejection{
			Reason: models.ReasonTooManyPositions,
			Detail: fmt.Sprintf("%d positions open, limit %d", in.OpenPositions, in.Config.MaxConcurrentPositions),
		}
	}
	return nil
}

// checkPositionSize rejects entries whose projected notional, existing
// quantity included, exceeds the per-position fraction of equity. An
// entry with no usable reference price is rejected rather than sized
// blind.
func checkPositionSize(in EvalInput) *Rejection {
	if in.Order.Kind != models.OrderKindEntry {
		return nil
	}
	if in.ReferencePrice <= 0 {
		return &Rejection{
			Reason: models.ReasonPriceUnavailable,
			Detail: "no reference price for sizing",
		}
	}
	projected := (in.ExistingQty + in.Order.Quantity) * in.ReferencePrice
	limit := in.Config.MaxPositionFraction * in.Equity
	if projected > limit {
		return &Rejection{
			Reason: models.ReasonPositionTooLarge,
			Detail: fmt.Sprintf("projected notional %.2f exceeds limit %.2f", projected, limit),
		}
	}
	return nil
}

// checkTradeRisk rejects entries whose worst-case loss at the initial
// trailing stop exceeds the per-trade fraction of equity.
func checkTradeRisk(in EvalInput) *Rejection {
	if in.Order.Kind != models.OrderKindEntry {
		return nil
	}
	if in.ReferencePrice <= 0 {
		return &Rejection{
			Reason: models.ReasonPriceUnavailable,
			Detail: "no reference price for risk estimate",
		}
	}
	worstCase := in.Order.Quantity * in.ReferencePrice * in.Config.TrailingDistance()
	limit := in.Config.MaxLossPerTradeFraction * in.Equity
	if worstCase > limit {
		return &Rejection{
			Reason: models.ReasonTradeRiskTooHigh,
			Detail: fmt.Sprintf("worst-case loss %.2f exceeds limit %.2f", worstCase, limit),
		}
	}
	return nil
}

// checkCadence applies the daily order cap and minimum spacing to
// discretionary orders. Stop and emergency exits are exempt: a safety
// exit must never wait out a cooldown.
func checkCadence(in EvalInput) *Rejection {
	kind := in.Order.Kind
	if kind == models.OrderKindStopExit || kind == models.OrderKindEmergencyExit {
		return nil
	}
	if !CadenceAllows(in.Now, in.Daily, in.Config) {
		return &Rejection{
			Reason: models.ReasonCadenceViolation,
			Detail: fmt.Sprintf("%d orders today (max %d), last at %s", in.Daily.OrdersToday, in.Config.MaxOrdersPerDay, in.Daily.LastOrderAt.Format(time.RFC3339)),
		}
	}
	return nil
}

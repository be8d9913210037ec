// Package risk implements the risk gate: the single checkpoint between
// the proposing layer and the execution adapter, plus the continuous
// safety processes (trailing stops, circuit breaker) that can originate
// exit orders on their own.
package risk

import (
	"sync"
	"time"

	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/models"
)

// Ledger is the authoritative record of open positions and cash.
// Positions are mutated only through ApplyFill.
type Ledger struct {
	mu        sync.RWMutex
	cash      float64
	positions map[string]*models.Position

	halted     bool
	haltReason string
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(cash float64) *Ledger {
	return &Ledger{
		cash:      cash,
		positions: make(map[string]*models.Position),
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Equity returns cash plus the mark-to-market value of open positions,
// computed from a single consistent snapshot.
func (l *Ledger) Equity() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked()
}

func (l *Ledger) equityLocked() float64 {
	equity := l.cash
	for _, pos := range l.positions {
		price := pos.LastPrice
		if price == 0 {
			price = pos.EntryPrice
		}
		if pos.Side == models.PositionShort {
			// Entry proceeds are already in cash; what remains is the
			// buy-back liability at the mark.
			equity -= price * pos.Quantity
		} else {
			equity += price * pos.Quantity
		}
	}
	return equity
}

// UnrealizedPnL returns the aggregate unrealized P&L across all open
// positions at their last known prices.
func (l *Ledger) UnrealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, pos := range l.positions {
		total += pos.UnrealizedPnL()
	}
	return total
}

// OpenPositions returns a copy of all open positions.
func (l *Ledger) OpenPositions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// Position returns a copy of the position for a symbol.
func (l *Ledger) Position(symbol string) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

// Count returns the number of open positions.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// MarkPrice records the latest price for a symbol's position.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[symbol]; ok {
		pos.LastPrice = price
	}
}

// mutatePosition applies fn to the live position for a symbol, if any.
// Used by the stop engine to update embedded trailing-stop state.
func (l *Ledger) mutatePosition(symbol string, fn func(*models.Position)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return false
	}
	fn(pos)
	return true
}

// ApplyFill applies an executed fill to the ledger. For an entry it
// creates or extends a position; for an exit it reduces or removes the
// matching position and returns the realized P&L.
//
// An exit fill with no matching position is a fatal consistency fault:
// the ledger has diverged from the broker and new trading is halted
// pending reconciliation.
func (l *Ledger) ApplyFill(order *models.Order, fill *models.Fill) (realized float64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cost := fill.Price * fill.Quantity

	if order.Kind == models.OrderKindEntry {
		side := models.PositionLong
		if order.Side == models.OrderSideSell {
			side = models.PositionShort
		}
		if side == models.PositionLong {
			l.cash -= cost
		} else {
			l.cash += cost
		}

		pos, ok := l.positions[fill.Symbol]
		if !ok {
			l.positions[fill.Symbol] = &models.Position{
				Symbol:     fill.Symbol,
				Side:       side,
				Quantity:   fill.Quantity,
				EntryPrice: fill.Price,
				LastPrice:  fill.Price,
				OpenedAt:   fill.FilledAt,
			}
			return 0, nil
		}
		if pos.Side != side {
			l.haltLocked("entry fill on opposite side of open position")
			return 0, apperrors.NewLedgerError(fill.Symbol, "ApplyFill", "entry fill on opposite side of open position")
		}
		// Average in.
		total := pos.EntryPrice*pos.Quantity + fill.Price*fill.Quantity
		pos.Quantity += fill.Quantity
		pos.EntryPrice = total / pos.Quantity
		pos.LastPrice = fill.Price
		return 0, nil
	}

	// Exit fill.
	pos, ok := l.positions[fill.Symbol]
	if !ok {
		l.haltLocked("exit fill with no matching position")
		return 0, apperrors.NewLedgerError(fill.Symbol, "ApplyFill", "exit fill with no matching position")
	}
	if fill.Quantity > pos.Quantity {
		l.haltLocked("exit fill larger than open position")
		return 0, apperrors.NewLedgerError(fill.Symbol, "ApplyFill", "exit fill larger than open position")
	}

	if pos.Side == models.PositionShort {
		realized = (pos.EntryPrice - fill.Price) * fill.Quantity
		l.cash -= cost
	} else {
		realized = (fill.Price - pos.EntryPrice) * fill.Quantity
		l.cash += cost
	}

	pos.Quantity -= fill.Quantity
	if pos.Quantity <= 0 {
		delete(l.positions, fill.Symbol)
	} else {
		pos.LastPrice = fill.Price
		pos.PendingClose = false
	}

	if l.equityLocked() < 0 {
		l.haltLocked("equity went negative")
		return realized, apperrors.NewLedgerError(fill.Symbol, "ApplyFill", "equity went negative")
	}

	return realized, nil
}

// Halt stops acceptance of new entries until reconciliation.
func (l *Ledger) Halt(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.haltLocked(reason)
}

func (l *Ledger) haltLocked(reason string) {
	l.halted = true
	l.haltReason = reason
}

// Halted reports whether new entries are halted, and why.
func (l *Ledger) Halted() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.halted, l.haltReason
}

// Restore replaces ledger state wholesale, as loaded from persistence
// or adopted from the broker during reconciliation. Clears any halt.
func (l *Ledger) Restore(cash float64, positions []models.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = cash
	l.positions = make(map[string]*models.Position, len(positions))
	for i := range positions {
		pos := positions[i]
		if pos.OpenedAt.IsZero() {
			pos.OpenedAt = time.Now().UTC()
		}
		l.positions[pos.Symbol] = &pos
	}
	l.halted = false
	l.haltReason = ""
}

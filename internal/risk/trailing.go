package risk

import (
	"sync"

	"alpaca-gate/internal/models"
)

// StopEngine maintains the trailing-stop state embedded in each open
// position: the peak favorable price and the stop derived from it.
// Stops only ever tighten; a widening trail distance leaves existing
// stops where they are.
type StopEngine struct {
	mu      sync.Mutex
	lastSeq map[string]uint64
}

// NewStopEngine creates a stop engine with no tick history.
func NewStopEngine() *StopEngine {
	return &StopEngine{lastSeq: make(map[string]uint64)}
}

// Arm initializes trailing-stop state on a freshly opened or extended
// position. The peak starts at the fill price and the stop at one trail
// distance away from it. On an extension the stop keeps whichever level
// is tighter.
func (e *StopEngine) Arm(pos *models.Position, distance float64) {
	peak := pos.EntryPrice
	if pos.LastPrice != 0 {
		peak = pos.LastPrice
	}
	if pos.PeakPrice == 0 || better(pos.Side, peak, pos.PeakPrice) {
		pos.PeakPrice = peak
	}
	stop := stopFrom(pos.Side, pos.PeakPrice, distance)
	if pos.StopPrice == 0 || tighter(pos.Side, stop, pos.StopPrice) {
		pos.StopPrice = stop
	}
}

// Observe advances the trailing stop for a position with a new tick and
// reports whether the stop has been crossed. Out-of-order ticks (by
// sequence number) are dropped. A position already pending close never
// triggers again until the exit resolves.
func (e *StopEngine) Observe(pos *models.Position, tick models.Tick, distance float64) bool {
	e.mu.Lock()
	if last, ok := e.lastSeq[tick.Symbol]; ok && tick.Seq <= last {
		e.mu.Unlock()
		return false
	}
	e.lastSeq[tick.Symbol] = tick.Seq
	e.mu.Unlock()

	pos.LastPrice = tick.Price

	if better(pos.Side, tick.Price, pos.PeakPrice) {
		pos.PeakPrice = tick.Price
		stop := stopFrom(pos.Side, pos.PeakPrice, distance)
		if tighter(pos.Side, stop, pos.StopPrice) {
			pos.StopPrice = stop
		}
	}

	if pos.PendingClose {
		return false
	}
	if crossed(pos.Side, tick.Price, pos.StopPrice) {
		pos.PendingClose = true
		return true
	}
	return false
}

// Release clears the pending-close latch after a failed exit so the
// stop can fire again on a subsequent tick.
func (e *StopEngine) Release(pos *models.Position) {
	pos.PendingClose = false
}

// Forget drops sequence tracking for a symbol whose position closed.
func (e *StopEngine) Forget(symbol string) {
	e.mu.Lock()
	delete(e.lastSeq, symbol)
	e.mu.Unlock()
}

// better reports whether price is more favorable than ref for the side.
func better(side models.PositionSide, price, ref float64) bool {
	if side == models.PositionShort {
		return price < ref
	}
	return price > ref
}

// tighter reports whether a candidate stop is closer to the market than
// the current one (the only direction a stop may move).
func tighter(side models.PositionSide, stop, current float64) bool {
	if side == models.PositionShort {
		return stop < current
	}
	return stop > current
}

// crossed reports whether price has reached the stop.
func crossed(side models.PositionSide, price, stop float64) bool {
	if stop == 0 {
		return false
	}
	if side == models.PositionShort {
		return price >= stop
	}
	return price <= stop
}

// stopFrom derives the stop level one trail distance from the peak.
func stopFrom(side models.PositionSide, peak, distance float64) float64 {
	if side == models.PositionShort {
		return peak * (1 + distance)
	}
	return peak * (1 - distance)
}

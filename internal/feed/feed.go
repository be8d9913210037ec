// Package feed provides price tick feed interfaces and implementations.
package feed

import (
	"context"

	"alpaca-gate/internal/models"
)

// TickFeed is the boundary to a market data source. Ticks for a symbol
// carry monotonically non-decreasing sequence numbers; consumers must
// discard regressions.
type TickFeed interface {
	Connect(ctx context.Context) error
	Subscribe(symbols []string) error
	OnTick(handler func(models.Tick))
	OnError(handler func(error))
	Close() error
}

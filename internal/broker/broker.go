// Package broker provides execution adapter interfaces and implementations.
package broker

import (
	"context"
	"time"

	"alpaca-gate/internal/models"
)

// ExecutionAdapter is the boundary to the broker. The risk gate is the
// only component that holds a reference to it; the proposing layer never
// calls the broker directly.
//
// Every call carries a timeout. A timeout is an ambiguous outcome, not a
// failure: the order may or may not have executed, and the caller must
// reconcile against GetPositions before trading the symbol again.
type ExecutionAdapter interface {
	// SubmitOrder submits an order and waits for the fill report.
	// Returns ErrTimeout (wrapped) on an ambiguous outcome and
	// ErrOrderRejected (wrapped) when the broker refuses the order.
	SubmitOrder(ctx context.Context, order *models.Order, timeout time.Duration) (*models.Fill, error)

	// GetPositions returns the broker-side positions, the authoritative
	// record used for reconciliation.
	GetPositions(ctx context.Context) ([]models.Position, error)

	// GetAccount returns the current account snapshot.
	GetAccount(ctx context.Context) (*models.Account, error)
}

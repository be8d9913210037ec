// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"alpaca-gate/internal/models"
)

// GateState is the full persisted state of the gate: everything a
// mid-day restart needs to resume the same trading day.
type GateState struct {
	Daily      models.DailyAccounting
	Breaker    models.BreakerState
	TrippedAt  time.Time
	TrippedDay string
	Cash       float64
	Positions  []models.Position
}

// DecisionRecord is one row of gate decision history.
type DecisionRecord struct {
	ID        string
	Timestamp time.Time
	Symbol    string
	Side      string
	Kind      string
	Quantity  float64
	Accepted  bool
	Reason    string
	OrderID   string
	FillPrice float64
}

// DecisionFilter narrows decision-history queries.
type DecisionFilter struct {
	Symbol       string
	RejectedOnly bool
	From         time.Time
	To           time.Time
	Limit        int
}

// DataStore defines the interface for gate persistence.
type DataStore interface {
	SaveState(ctx context.Context, state *GateState) error
	LoadState(ctx context.Context) (*GateState, error)

	LogDecision(ctx context.Context, rec *DecisionRecord) error
	GetDecisions(ctx context.Context, filter DecisionFilter) ([]DecisionRecord, error)

	Close() error
}

package models

import "time"

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderKind classifies an order for rule evaluation.
type OrderKind string

const (
	// OrderKindEntry opens or increases a position. Subject to every check.
	OrderKindEntry OrderKind = "entry"
	// OrderKindExit closes or reduces a position on the caller's request.
	OrderKindExit OrderKind = "exit"
	// OrderKindStopExit is an exit originated by the trailing-stop engine.
	// Exempt from the cadence limiter.
	OrderKindStopExit OrderKind = "stop_exit"
	// OrderKindEmergencyExit is an exit originated by a breaker trip.
	// Bypasses the position-count, sizing, and trade-risk checks and is
	// permitted while the breaker is tripped.
	OrderKindEmergencyExit OrderKind = "emergency_exit"
)

// IsExit reports whether the kind closes or reduces a position.
func (k OrderKind) IsExit() bool {
	return k == OrderKindExit || k == OrderKindStopExit || k == OrderKindEmergencyExit
}

// OrderType represents the execution type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce represents order validity.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
)

// OrderStatus represents the broker-side status of an order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusAccepted OrderStatus = "accepted"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order is a proposed trade. It is created by the proposing layer,
// read by the gate, and never mutated after creation.
type Order struct {
	Symbol         string
	Side           OrderSide
	Kind           OrderKind
	Type           OrderType
	Quantity       float64
	LimitPrice     float64 // 0 for market orders
	TimeInForce    TimeInForce
	IdempotencyKey string
	Tag            string
	CreatedAt      time.Time
}

// Fill reports an executed order.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Quantity  float64
	Price     float64
	Status    OrderStatus
	FilledAt  time.Time
}

// RejectReason is a typed reason code for a gate rejection.
// Rejections are normal outcomes, not errors.
type RejectReason string

const (
	ReasonBreakerTripped        RejectReason = "BreakerTripped"
	ReasonTooManyPositions      RejectReason = "TooManyPositions"
	ReasonPositionTooLarge      RejectReason = "PositionTooLarge"
	ReasonTradeRiskTooHigh      RejectReason = "TradeRiskTooHigh"
	ReasonCadenceViolation      RejectReason = "CadenceViolation"
	ReasonPriceUnavailable      RejectReason = "PriceUnavailable"
	ReasonNoPosition            RejectReason = "NoPosition"
	ReasonReconciliationPending RejectReason = "ReconciliationPending"
	ReasonTradingHalted         RejectReason = "TradingHalted"
)

// ExitReason records why an exit order was originated.
type ExitReason string

const (
	ExitReasonTrailingStop ExitReason = "TrailingStopHit"
	ExitReasonBreaker      ExitReason = "BreakerTripped"
	ExitReasonManual       ExitReason = "Manual"
)

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Accepted  bool
	Reason    RejectReason // empty when accepted
	OrderID   string       // broker order ID when submitted
	Fill      *Fill        // set when the order filled
	Duplicate bool         // true when answered from the idempotency cache
}

// CloseResult reports the outcome of closing a single position.
type CloseResult struct {
	Symbol   string
	Accepted bool
	Reason   RejectReason
	Fill     *Fill
	Err      string
}

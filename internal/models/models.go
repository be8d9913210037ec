// Package models provides domain models for the risk gate.
package models

import (
	"time"
)

// Market identifies the venue a symbol trades on.
type Market string

const (
	MarketUSStocks Market = "us_stocks"
	MarketUKStocks Market = "uk_stocks"
	MarketCrypto   Market = "crypto"
)

// PositionSide represents the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// BreakerState represents the circuit breaker state.
type BreakerState string

const (
	BreakerArmed   BreakerState = "ARMED"
	BreakerTripped BreakerState = "TRIPPED"
)

// Position represents an open position tracked by the ledger.
// It is owned exclusively by the ledger and mutated only through fills.
type Position struct {
	Symbol    string
	Side      PositionSide
	Quantity  float64
	EntryPrice float64
	// Trailing stop state, embedded per position.
	PeakPrice    float64
	StopPrice    float64
	PendingClose bool
	LastPrice    float64
	OpenedAt     time.Time
}

// Notional returns the position value at the last known price.
func (p Position) Notional() float64 {
	price := p.LastPrice
	if price == 0 {
		price = p.EntryPrice
	}
	return price * p.Quantity
}

// UnrealizedPnL returns the mark-to-market profit or loss.
func (p Position) UnrealizedPnL() float64 {
	price := p.LastPrice
	if price == 0 {
		price = p.EntryPrice
	}
	if p.Side == PositionShort {
		return (p.EntryPrice - price) * p.Quantity
	}
	return (price - p.EntryPrice) * p.Quantity
}

// Tick represents a market price update for a symbol.
// Seq is monotonically non-decreasing per symbol; ticks arriving with a
// lower sequence number than already observed are discarded.
type Tick struct {
	Symbol    string
	Price     float64
	Seq       uint64
	Timestamp time.Time
}

// Account represents a broker account snapshot.
type Account struct {
	AccountID      string
	Cash           float64
	Equity         float64
	BuyingPower    float64
	PortfolioValue float64
	Currency       string
	Paper          bool
}

// DailyAccounting tracks per-trading-day order and P&L state.
// It is reset at the start of each new trading day for the venue's
// local calendar and never straddles day boundaries.
type DailyAccounting struct {
	Day               string // e.g. "2026-08-28", venue-local
	RealizedPnL       float64
	OrdersToday       int
	LastOrderAt       time.Time
	StartOfDayEquity  float64
}

// RiskStatus is the summary returned by the gate's status operation.
type RiskStatus struct {
	Breaker           BreakerState
	DailyPnL          float64
	RealizedPnL       float64
	UnrealizedPnL     float64
	OrdersToday       int
	OpenPositionCount int
	Equity            float64
	TradingDay        string
	Halted            bool
	HaltReason        string
}

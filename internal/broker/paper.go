package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/models"
)

// paperPosition is the broker-side record of a simulated position.
// Quantity is signed: negative means short.
type paperPosition struct {
	Symbol   string
	Quantity float64
	AvgPrice float64
	OpenedAt time.Time
}

// PaperBroker implements ExecutionAdapter with instant simulated fills
// at the last known price. State survives only for the process lifetime;
// durable state is the gate's concern.
type PaperBroker struct {
	mu          sync.RWMutex
	cash        float64
	initialCash float64
	positions   map[string]*paperPosition
	prices      map[string]float64
	fills       []models.Fill
}

// NewPaperBroker creates a paper broker with the given starting cash.
func NewPaperBroker(initialCash float64) *PaperBroker {
	if initialCash == 0 {
		initialCash = 100000
	}
	return &PaperBroker{
		cash:        initialCash,
		initialCash: initialCash,
		positions:   make(map[string]*paperPosition),
		prices:      make(map[string]float64),
	}
}

// UpdatePrice updates the cached price for a symbol.
func (p *PaperBroker) UpdatePrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// ProcessTick updates the cached price from a tick.
func (p *PaperBroker) ProcessTick(tick models.Tick) {
	p.UpdatePrice(tick.Symbol, tick.Price)
}

// SubmitOrder simulates an instant fill at the cached price, or at the
// limit price for limit orders.
func (p *PaperBroker) SubmitOrder(ctx context.Context, order *models.Order, timeout time.Duration) (*models.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price := p.prices[order.Symbol]
	if order.Type == models.OrderTypeLimit && order.LimitPrice > 0 {
		price = order.LimitPrice
	}
	if price <= 0 {
		return nil, apperrors.NewBrokerError("NO_PRICE",
			fmt.Sprintf("no known price for %s", order.Symbol), apperrors.ErrOrderRejected)
	}

	cost := price * order.Quantity

	if order.Side == models.OrderSideBuy {
		pos := p.positions[order.Symbol]
		covering := pos != nil && pos.Quantity < 0
		if !covering && cost > p.cash {
			return nil, apperrors.NewBrokerError("INSUFFICIENT_FUNDS",
				fmt.Sprintf("need %.2f, have %.2f", cost, p.cash), apperrors.ErrInsufficientFunds)
		}
		p.cash -= cost
		p.applyTrade(order.Symbol, order.Quantity, price)
	} else {
		pos := p.positions[order.Symbol]
		if order.Kind.IsExit() && (pos == nil || pos.Quantity <= 0) {
			return nil, apperrors.NewBrokerError("NO_POSITION",
				fmt.Sprintf("no position in %s to sell", order.Symbol), apperrors.ErrPositionNotFound)
		}
		p.cash += cost
		p.applyTrade(order.Symbol, -order.Quantity, price)
	}

	// The execution price becomes the cached mark for later fills.
	p.prices[order.Symbol] = price

	fill := models.Fill{
		OrderID:  uuid.NewString()[:8],
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
		Status:   models.OrderStatusFilled,
		FilledAt: time.Now().UTC(),
	}
	p.fills = append(p.fills, fill)

	return &fill, nil
}

// applyTrade adjusts the signed position quantity. Caller holds the lock.
func (p *PaperBroker) applyTrade(symbol string, qty, price float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		p.positions[symbol] = &paperPosition{
			Symbol:   symbol,
			Quantity: qty,
			AvgPrice: price,
			OpenedAt: time.Now().UTC(),
		}
		return
	}

	newQty := pos.Quantity + qty
	switch {
	case newQty == 0:
		delete(p.positions, symbol)
	case (pos.Quantity > 0) != (newQty > 0):
		// Position flipped direction; restart the average at this price.
		pos.Quantity = newQty
		pos.AvgPrice = price
		pos.OpenedAt = time.Now().UTC()
	case (qty > 0) == (pos.Quantity > 0):
		// Extending: average in.
		total := pos.AvgPrice*abs(pos.Quantity) + price*abs(qty)
		pos.Quantity = newQty
		pos.AvgPrice = total / abs(newQty)
	default:
		// Reducing: average entry unchanged.
		pos.Quantity = newQty
	}
}

// GetPositions returns the broker-side positions.
func (p *PaperBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		side := models.PositionLong
		qty := pos.Quantity
		if qty < 0 {
			side = models.PositionShort
			qty = -qty
		}
		positions = append(positions, models.Position{
			Symbol:     pos.Symbol,
			Side:       side,
			Quantity:   qty,
			EntryPrice: pos.AvgPrice,
			LastPrice:  p.prices[pos.Symbol],
			OpenedAt:   pos.OpenedAt,
		})
	}
	return positions, nil
}

// GetAccount returns the simulated account snapshot.
func (p *PaperBroker) GetAccount(ctx context.Context) (*models.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	equity := p.cash
	for _, pos := range p.positions {
		price := p.prices[pos.Symbol]
		if price == 0 {
			price = pos.AvgPrice
		}
		equity += price * pos.Quantity
	}

	return &models.Account{
		AccountID:      "paper",
		Cash:           p.cash,
		Equity:         equity,
		BuyingPower:    p.cash,
		PortfolioValue: equity,
		Currency:       "USD",
		Paper:          true,
	}, nil
}

// Fills returns the fill history.
func (p *PaperBroker) Fills() []models.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

// Reset restores the broker to its initial state.
func (p *PaperBroker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = p.initialCash
	p.positions = make(map[string]*paperPosition)
	p.prices = make(map[string]float64)
	p.fills = nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Ensure PaperBroker implements ExecutionAdapter
var _ ExecutionAdapter = (*PaperBroker)(nil)

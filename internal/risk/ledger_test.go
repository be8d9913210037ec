package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/models"
)

func buyOrder(symbol string, qty float64) *models.Order {
	return &models.Order{Symbol: symbol, Side: models.OrderSideBuy, Kind: models.OrderKindEntry, Quantity: qty}
}

func sellOrder(symbol string, qty float64) *models.Order {
	return &models.Order{Symbol: symbol, Side: models.OrderSideSell, Kind: models.OrderKindExit, Quantity: qty}
}

func fill(symbol string, side models.OrderSide, qty, price float64) *models.Fill {
	return &models.Fill{
		OrderID:  "f-1",
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Status:   models.OrderStatusFilled,
		FilledAt: time.Now(),
	}
}

func TestLedger_EntryFillOpensPosition(t *testing.T) {
	l := NewLedger(10_000)

	realized, err := l.ApplyFill(buyOrder("AAPL", 10), fill("AAPL", models.OrderSideBuy, 10, 100))
	require.NoError(t, err)
	assert.Zero(t, realized)

	pos, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.InDelta(t, 9_000, l.Cash(), 1e-9)
	assert.InDelta(t, 10_000, l.Equity(), 1e-9)
}

func TestLedger_EntryFillAveragesIn(t *testing.T) {
	l := NewLedger(10_000)
	_, err := l.ApplyFill(buyOrder("AAPL", 10), fill("AAPL", models.OrderSideBuy, 10, 100))
	require.NoError(t, err)

	_, err = l.ApplyFill(buyOrder("AAPL", 10), fill("AAPL", models.OrderSideBuy, 10, 110))
	require.NoError(t, err)

	pos, _ := l.Position("AAPL")
	assert.Equal(t, 20.0, pos.Quantity)
	assert.InDelta(t, 105.0, pos.EntryPrice, 1e-9)
	assert.Equal(t, 1, l.Count())
}

func TestLedger_ExitFillRealizesPnL(t *testing.T) {
	l := NewLedger(10_000)
	_, err := l.ApplyFill(buyOrder("AAPL", 10), fill("AAPL", models.OrderSideBuy, 10, 100))
	require.NoError(t, err)

	realized, err := l.ApplyFill(sellOrder("AAPL", 10), fill("AAPL", models.OrderSideSell, 10, 110))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, realized, 1e-9)

	_, ok := l.Position("AAPL")
	assert.False(t, ok)
	assert.InDelta(t, 10_100, l.Cash(), 1e-9)
}

func TestLedger_PartialExitKeepsPosition(t *testing.T) {
	l := NewLedger(10_000)
	_, err := l.ApplyFill(buyOrder("AAPL", 10), fill("AAPL", models.OrderSideBuy, 10, 100))
	require.NoError(t, err)

	realized, err := l.ApplyFill(sellOrder("AAPL", 4), fill("AAPL", models.OrderSideSell, 4, 90))
	require.NoError(t, err)
	assert.InDelta(t, -40.0, realized, 1e-9)

	pos, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 6.0, pos.Quantity)
}

func TestLedger_ExitWithoutPositionHaltsTrading(t *testing.T) {
	l := NewLedger(10_000)

	_, err := l.ApplyFill(sellOrder("AAPL", 10), fill("AAPL", models.OrderSideSell, 10, 100))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrLedgerInconsistent))

	halted, reason := l.Halted()
	assert.True(t, halted)
	assert.NotEmpty(t, reason)
}

func TestLedger_OversizedExitHaltsTrading(t *testing.T) {
	l := NewLedger(10_000)
	_, err := l.ApplyFill(buyOrder("AAPL", 5), fill("AAPL", models.OrderSideBuy, 5, 100))
	require.NoError(t, err)

	_, err = l.ApplyFill(sellOrder("AAPL", 10), fill("AAPL", models.OrderSideSell, 10, 100))
	require.Error(t, err)

	halted, _ := l.Halted()
	assert.True(t, halted)
}

func TestLedger_ShortRealizedPnLMirrors(t *testing.T) {
	l := NewLedger(10_000)
	entry := &models.Order{Symbol: "TSLA", Side: models.OrderSideSell, Kind: models.OrderKindEntry, Quantity: 5}
	_, err := l.ApplyFill(entry, fill("TSLA", models.OrderSideSell, 5, 200))
	require.NoError(t, err)

	exit := &models.Order{Symbol: "TSLA", Side: models.OrderSideBuy, Kind: models.OrderKindExit, Quantity: 5}
	realized, err := l.ApplyFill(exit, fill("TSLA", models.OrderSideBuy, 5, 180))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, realized, 1e-9, "short profits when price falls")
}

func TestLedger_ShortEntryLeavesEquityUnchanged(t *testing.T) {
	l := NewLedger(100_000)
	entry := &models.Order{Symbol: "TSLA", Side: models.OrderSideSell, Kind: models.OrderKindEntry, Quantity: 100}
	_, err := l.ApplyFill(entry, fill("TSLA", models.OrderSideSell, 100, 200))
	require.NoError(t, err)

	assert.InDelta(t, 120_000, l.Cash(), 1e-9, "entry proceeds land in cash")
	assert.InDelta(t, 100_000, l.Equity(), 1e-9, "buy-back liability offsets the proceeds")

	// A falling price is a short gain; equity moves by the unrealized P&L only.
	l.MarkPrice("TSLA", 180)
	assert.InDelta(t, 102_000, l.Equity(), 1e-9)
	assert.InDelta(t, 2_000, l.UnrealizedPnL(), 1e-9)
}

func TestLedger_EquityMarksToLastPrice(t *testing.T) {
	l := NewLedger(10_000)
	_, err := l.ApplyFill(buyOrder("AAPL", 10), fill("AAPL", models.OrderSideBuy, 10, 100))
	require.NoError(t, err)

	l.MarkPrice("AAPL", 120)
	assert.InDelta(t, 10_200, l.Equity(), 1e-9)
	assert.InDelta(t, 200, l.UnrealizedPnL(), 1e-9)
}

func TestLedger_RestoreClearsHalt(t *testing.T) {
	l := NewLedger(10_000)
	l.Halt("divergence")

	l.Restore(8_000, []models.Position{{
		Symbol: "AAPL", Side: models.PositionLong, Quantity: 10, EntryPrice: 100, LastPrice: 100,
	}})

	halted, _ := l.Halted()
	assert.False(t, halted)
	assert.Equal(t, 1, l.Count())
	assert.InDelta(t, 8_000, l.Cash(), 1e-9)
}

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/models"
)

func marketBuy(symbol string, qty float64) *models.Order {
	return &models.Order{
		Symbol:   symbol,
		Side:     models.OrderSideBuy,
		Kind:     models.OrderKindEntry,
		Type:     models.OrderTypeMarket,
		Quantity: qty,
	}
}

func TestPaperBroker_FillsAtCachedPrice(t *testing.T) {
	paper := NewPaperBroker(10_000)
	paper.UpdatePrice("AAPL", 100)

	fill, err := paper.SubmitOrder(context.Background(), marketBuy("AAPL", 10), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, models.OrderStatusFilled, fill.Status)

	account, err := paper.GetAccount(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 9_000, account.Cash, 1e-9)
}

func TestPaperBroker_LimitOrderFillsAtLimit(t *testing.T) {
	paper := NewPaperBroker(10_000)

	order := marketBuy("AAPL", 10)
	order.Type = models.OrderTypeLimit
	order.LimitPrice = 95

	fill, err := paper.SubmitOrder(context.Background(), order, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 95.0, fill.Price)
}

func TestPaperBroker_RejectsWithoutPrice(t *testing.T) {
	paper := NewPaperBroker(10_000)

	_, err := paper.SubmitOrder(context.Background(), marketBuy("AAPL", 10), time.Second)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrOrderRejected))
}

func TestPaperBroker_RejectsInsufficientCash(t *testing.T) {
	paper := NewPaperBroker(500)
	paper.UpdatePrice("AAPL", 100)

	_, err := paper.SubmitOrder(context.Background(), marketBuy("AAPL", 10), time.Second)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientFunds))
}

func TestPaperBroker_RejectsExitWithoutPosition(t *testing.T) {
	paper := NewPaperBroker(10_000)
	paper.UpdatePrice("AAPL", 100)

	exit := &models.Order{
		Symbol:   "AAPL",
		Side:     models.OrderSideSell,
		Kind:     models.OrderKindExit,
		Type:     models.OrderTypeMarket,
		Quantity: 10,
	}
	_, err := paper.SubmitOrder(context.Background(), exit, time.Second)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPositionNotFound))
}

func TestPaperBroker_AveragesInAndReportsPositions(t *testing.T) {
	paper := NewPaperBroker(100_000)
	paper.UpdatePrice("AAPL", 100)

	ctx := context.Background()
	_, err := paper.SubmitOrder(ctx, marketBuy("AAPL", 10), time.Second)
	require.NoError(t, err)

	paper.UpdatePrice("AAPL", 120)
	_, err = paper.SubmitOrder(ctx, marketBuy("AAPL", 10), time.Second)
	require.NoError(t, err)

	positions, err := paper.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 20.0, positions[0].Quantity)
	assert.InDelta(t, 110.0, positions[0].EntryPrice, 1e-9)
}

func TestPaperBroker_RoundTripClosesPosition(t *testing.T) {
	paper := NewPaperBroker(10_000)
	paper.UpdatePrice("AAPL", 100)

	ctx := context.Background()
	_, err := paper.SubmitOrder(ctx, marketBuy("AAPL", 10), time.Second)
	require.NoError(t, err)

	paper.UpdatePrice("AAPL", 110)
	exit := &models.Order{
		Symbol:   "AAPL",
		Side:     models.OrderSideSell,
		Kind:     models.OrderKindExit,
		Type:     models.OrderTypeMarket,
		Quantity: 10,
	}
	_, err = paper.SubmitOrder(ctx, exit, time.Second)
	require.NoError(t, err)

	positions, err := paper.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	account, err := paper.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10_100, account.Cash, 1e-9)
}

func TestPaperBroker_CancelledContext(t *testing.T) {
	paper := NewPaperBroker(10_000)
	paper.UpdatePrice("AAPL", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := paper.SubmitOrder(ctx, marketBuy("AAPL", 10), time.Second)
	assert.Error(t, err)
}

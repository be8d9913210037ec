package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpaca-gate/internal/broker"
	"alpaca-gate/internal/config"
	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/models"
)

func newTestGate(t *testing.T, cash float64, cfg config.RiskConfig) (*Gate, *broker.PaperBroker) {
	t.Helper()
	paper := broker.NewPaperBroker(cash)
	gate, err := NewGate(zerolog.Nop(), paper, cash, cfg, Options{})
	require.NoError(t, err)
	return gate, paper
}

// noSpacing removes the inter-order cooldown so tests can submit
// several orders back to back.
func noSpacing(cfg config.RiskConfig) config.RiskConfig {
	cfg.MinSecondsBetweenOrders = 0
	return cfg
}

func TestGate_AcceptsAndFillsCompliantEntry(t *testing.T) {
	gate, _ := newTestGate(t, 100_000, testRiskConfig())

	order := entryOrder("AAPL", 50, 180)
	order.IdempotencyKey = "k-1"

	decision, err := gate.CheckAndSubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	require.NotNil(t, decision.Fill)
	assert.Equal(t, 50.0, decision.Fill.Quantity)

	positions := gate.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.InDelta(t, 180*0.97, positions[0].StopPrice, 1e-9, "trailing stop armed on fill")

	status := gate.RiskStatus()
	assert.Equal(t, 1, status.OrdersToday)
}

func TestGate_RejectsOversizedEntryScenario(t *testing.T) {
	// 100k equity and a 10% per-position cap: 12k notional is refused
	// and nothing reaches the broker.
	gate, paper := newTestGate(t, 100_000, testRiskConfig())

	decision, err := gate.CheckAndSubmitOrder(context.Background(), entryOrder("AAPL", 60, 200))
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonPositionTooLarge, decision.Reason)
	assert.Empty(t, paper.Fills())

	status := gate.RiskStatus()
	assert.Zero(t, status.OrdersToday, "rejections never count against cadence")
}

func TestGate_IdempotencyKeyReturnsCachedDecision(t *testing.T) {
	gate, paper := newTestGate(t, 100_000, noSpacing(testRiskConfig()))

	order := entryOrder("AAPL", 50, 180)
	order.IdempotencyKey = "dup-key"

	first, err := gate.CheckAndSubmitOrder(context.Background(), order)
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := gate.CheckAndSubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Len(t, paper.Fills(), 1, "duplicate key must not produce a second fill")
}

func TestGate_ConcurrentEntriesOneSlot(t *testing.T) {
	cfg := noSpacing(testRiskConfig())
	cfg.MaxConcurrentPositions = 1
	gate, _ := newTestGate(t, 1_000_000, cfg)

	symbols := []string{"AAPL", "MSFT"}
	decisions := make([]models.Decision, len(symbols))
	errs := make([]error, len(symbols))

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			decisions[i], errs[i] = gate.CheckAndSubmitOrder(context.Background(), entryOrder(symbol, 10, 100))
		}(i, symbol)
	}
	wg.Wait()

	accepted, rejected := 0, 0
	for i := range decisions {
		require.NoError(t, errs[i])
		if decisions[i].Accepted {
			accepted++
		} else {
			rejected++
			assert.Equal(t, models.ReasonTooManyPositions, decisions[i].Reason)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, gate.RiskStatus().OpenPositionCount)
}

func TestGate_ClosePositionRealizesPnL(t *testing.T) {
	gate, paper := newTestGate(t, 100_000, noSpacing(testRiskConfig()))

	_, err := gate.CheckAndSubmitOrder(context.Background(), entryOrder("AAPL", 50, 180))
	require.NoError(t, err)

	paper.UpdatePrice("AAPL", 190)
	gate.OnTick(context.Background(), models.Tick{Symbol: "AAPL", Price: 190, Seq: 1})

	decision, err := gate.ClosePosition(context.Background(), "AAPL")
	require.NoError(t, err)
	require.True(t, decision.Accepted)
	require.NotNil(t, decision.Fill)

	status := gate.RiskStatus()
	assert.Zero(t, status.OpenPositionCount)
	assert.InDelta(t, 500, status.RealizedPnL, 1e-9)
}

func TestGate_ClosePositionWithoutPosition(t *testing.T) {
	gate, _ := newTestGate(t, 100_000, testRiskConfig())

	decision, err := gate.ClosePosition(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonNoPosition, decision.Reason)
}

func TestGate_StopExitOnTick(t *testing.T) {
	gate, paper := newTestGate(t, 100_000, noSpacing(testRiskConfig()))

	_, err := gate.CheckAndSubmitOrder(context.Background(), entryOrder("AAPL", 50, 100))
	require.NoError(t, err)

	ctx := context.Background()
	paper.ProcessTick(models.Tick{Symbol: "AAPL", Price: 110, Seq: 1})
	gate.OnTick(ctx, models.Tick{Symbol: "AAPL", Price: 110, Seq: 1})
	require.Equal(t, 1, gate.RiskStatus().OpenPositionCount)

	// 106.5 crosses the 106.70 stop ratcheted from the 110 peak.
	paper.ProcessTick(models.Tick{Symbol: "AAPL", Price: 106.5, Seq: 2})
	gate.OnTick(ctx, models.Tick{Symbol: "AAPL", Price: 106.5, Seq: 2})

	status := gate.RiskStatus()
	assert.Zero(t, status.OpenPositionCount, "stop exit should flatten the position")
	assert.InDelta(t, 325, status.RealizedPnL, 1e-9) // (106.5-100)*50
}

func TestGate_BreakerTripFlattensBook(t *testing.T) {
	cfg := noSpacing(testRiskConfig())
	gate, paper := newTestGate(t, 100_000, cfg)

	ctx := context.Background()
	_, err := gate.CheckAndSubmitOrder(ctx, entryOrder("AAPL", 50, 180))
	require.NoError(t, err)
	_, err = gate.CheckAndSubmitOrder(ctx, entryOrder("MSFT", 20, 300))
	require.NoError(t, err)

	// A crash in AAPL pushes total daily loss past 3% of 100k.
	paper.ProcessTick(models.Tick{Symbol: "AAPL", Price: 110, Seq: 1})
	gate.OnTick(ctx, models.Tick{Symbol: "AAPL", Price: 110, Seq: 1})

	status := gate.RiskStatus()
	assert.Equal(t, models.BreakerTripped, status.Breaker)
	assert.Zero(t, status.OpenPositionCount, "all positions emergency-closed in the same cycle")

	// Entries stay blocked while tripped.
	decision, err := gate.CheckAndSubmitOrder(ctx, entryOrder("GOOG", 5, 100))
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonBreakerTripped, decision.Reason)
}

func TestGate_UpdateRiskConfigValidatesAndSwaps(t *testing.T) {
	gate, _ := newTestGate(t, 100_000, testRiskConfig())

	bad := testRiskConfig()
	bad.MaxPositionFraction = 1.5
	err := gate.UpdateRiskConfig(bad)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
	assert.Equal(t, 0.10, gate.Config().MaxPositionFraction, "invalid update must not apply")

	good := testRiskConfig()
	good.MaxConcurrentPositions = 2
	require.NoError(t, gate.UpdateRiskConfig(good))
	assert.Equal(t, 2, gate.Config().MaxConcurrentPositions)
}

func TestGate_TighterTrailingDistanceRetightensStops(t *testing.T) {
	gate, _ := newTestGate(t, 100_000, noSpacing(testRiskConfig()))

	_, err := gate.CheckAndSubmitOrder(context.Background(), entryOrder("AAPL", 50, 100))
	require.NoError(t, err)

	cfg := testRiskConfig()
	cfg.TrailingStopPercent = 1.0
	require.NoError(t, gate.UpdateRiskConfig(cfg))

	positions := gate.Positions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 99.0, positions[0].StopPrice, 1e-9)
}

func TestGate_CancelledContextBeforeCommit(t *testing.T) {
	gate, paper := newTestGate(t, 100_000, testRiskConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gate.CheckAndSubmitOrder(ctx, entryOrder("AAPL", 50, 180))
	require.Error(t, err)
	assert.Empty(t, paper.Fills())
	assert.Zero(t, gate.RiskStatus().OrdersToday, "cancelled order must not count against cadence")
}

func TestGate_InvalidOrderRejectedBeforeRules(t *testing.T) {
	gate, _ := newTestGate(t, 100_000, testRiskConfig())

	_, err := gate.CheckAndSubmitOrder(context.Background(), &models.Order{Symbol: "", Quantity: 10})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))

	_, err = gate.CheckAndSubmitOrder(context.Background(), &models.Order{
		Symbol: "AAPL", Side: models.OrderSideBuy, Kind: models.OrderKindEntry, Quantity: -5,
	})
	require.Error(t, err)
}

// rejectOnceAdapter refuses the first submit with a definite broker
// rejection and behaves like the paper broker afterwards.
type rejectOnceAdapter struct {
	*broker.PaperBroker
	rejected bool
}

func (a *rejectOnceAdapter) SubmitOrder(ctx context.Context, order *models.Order, timeout time.Duration) (*models.Fill, error) {
	if !a.rejected {
		a.rejected = true
		return nil, apperrors.NewBrokerError("NO_PRICE", "no recent trade for symbol", apperrors.ErrOrderRejected)
	}
	return a.PaperBroker.SubmitOrder(ctx, order, timeout)
}

func TestGate_BrokerRejectionNotCachedUnderIdempotencyKey(t *testing.T) {
	adapter := &rejectOnceAdapter{PaperBroker: broker.NewPaperBroker(100_000)}
	gate, err := NewGate(zerolog.Nop(), adapter, 100_000, noSpacing(testRiskConfig()), Options{})
	require.NoError(t, err)

	order := entryOrder("AAPL", 50, 180)
	order.IdempotencyKey = "retry-key"

	_, err = gate.CheckAndSubmitOrder(context.Background(), order)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrOrderRejected))
	assert.Empty(t, gate.Positions(), "rejection commits nothing")

	// Nothing was committed, so the retry must run the pipeline again
	// instead of replaying the failed outcome.
	decision, err := gate.CheckAndSubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, decision.Duplicate)
	require.NotNil(t, decision.Fill)
	assert.Equal(t, 1, gate.RiskStatus().OpenPositionCount)
}

// timeoutAdapter always reports an ambiguous submit outcome.
type timeoutAdapter struct {
	positions []models.Position
	cash      float64
}

func (a *timeoutAdapter) SubmitOrder(ctx context.Context, order *models.Order, timeout time.Duration) (*models.Fill, error) {
	return nil, apperrors.Wrap(apperrors.ErrTimeout, "submit")
}

func (a *timeoutAdapter) GetPositions(ctx context.Context) ([]models.Position, error) {
	return a.positions, nil
}

func (a *timeoutAdapter) GetAccount(ctx context.Context) (*models.Account, error) {
	return &models.Account{Cash: a.cash, Paper: true}, nil
}

func TestGate_SubmitTimeoutBlocksSymbolUntilReconciled(t *testing.T) {
	adapter := &timeoutAdapter{cash: 100_000}
	gate, err := NewGate(zerolog.Nop(), adapter, 100_000, noSpacing(testRiskConfig()), Options{})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = gate.CheckAndSubmitOrder(ctx, entryOrder("AAPL", 50, 180))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTimeout))

	// Entries in the affected symbol are refused fail-closed.
	decision, err := gate.CheckAndSubmitOrder(ctx, entryOrder("AAPL", 10, 180))
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonReconciliationPending, decision.Reason)

	// Other symbols are unaffected.
	decision, err = gate.CheckAndSubmitOrder(ctx, entryOrder("MSFT", 10, 180))
	require.Error(t, err, "timeout adapter times out every submit")
	assert.True(t, decision.Accepted)

	// Reconciliation adopts broker truth and reopens the symbol.
	adapter.positions = []models.Position{{
		Symbol: "AAPL", Side: models.PositionLong, Quantity: 50, EntryPrice: 180, LastPrice: 180,
	}}
	adapter.cash = 91_000
	require.NoError(t, gate.Reconcile(ctx))

	positions := gate.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, 50.0, positions[0].Quantity)
	assert.Greater(t, positions[0].StopPrice, 0.0, "reconciled position gets a trailing stop")

	decision, err = gate.CheckAndSubmitOrder(ctx, entryOrder("AAPL", 1, 180))
	require.Error(t, err)
	assert.NotEqual(t, models.ReasonReconciliationPending, decision.Reason)
}

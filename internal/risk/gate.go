package risk

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"alpaca-gate/internal/audit"
	"alpaca-gate/internal/broker"
	"alpaca-gate/internal/config"
	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/logging"
	"alpaca-gate/internal/models"
	"alpaca-gate/internal/monitoring"
	"alpaca-gate/internal/notify"
	"alpaca-gate/internal/store"
	"alpaca-gate/pkg/utils"
)

// Gate is the single checkpoint every order must pass through. It owns
// the sole reference to the execution adapter, the ledger, the daily
// accounting, the circuit breaker, and the trailing-stop engine.
//
// Locking: each symbol has its own lock serializing evaluation and
// submission for that symbol; a global lock serializes every read and
// write of the ledger, daily accounting, and breaker so each rule
// checklist runs against one consistent snapshot.
type Gate struct {
	logger  zerolog.Logger
	adapter broker.ExecutionAdapter
	auditor *audit.Logger    // optional
	db      store.DataStore  // optional
	alerts  *notify.Notifier // optional
	market  models.Market

	cfg           atomic.Pointer[config.RiskConfig]
	submitTimeout time.Duration

	mu           sync.Mutex
	ledger       *Ledger
	daily        *DailyBook
	breaker      *CircuitBreaker
	stops        *StopEngine
	idempotency  map[string]models.Decision
	reconPending map[string]bool
	// pendingEntry reserves a position slot for an entry that passed the
	// checklist but whose fill has not landed yet, so two concurrent
	// entries cannot both claim the last slot.
	pendingEntry map[string]bool

	symMu    sync.Mutex
	symLocks map[string]*sync.Mutex
}

// Options configures optional gate collaborators.
type Options struct {
	Auditor       *audit.Logger
	Store         store.DataStore
	Notifier      *notify.Notifier
	Market        models.Market
	SubmitTimeout time.Duration
	Now           time.Time // clock override for tests; zero means time.Now
}

// NewGate builds a gate around an execution adapter. If a store is
// supplied and holds state for the current trading day, the gate
// resumes that day's accounting, breaker state, and positions.
func NewGate(logger zerolog.Logger, adapter broker.ExecutionAdapter, cash float64, riskCfg config.RiskConfig, opts Options) (*Gate, error) {
	if err := riskCfg.Validate(); err != nil {
		return nil, err
	}

	market := opts.Market
	if market == "" {
		market = models.MarketUSStocks
	}
	timeout := opts.SubmitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	g := &Gate{
		logger:        logger,
		adapter:       adapter,
		auditor:       opts.Auditor,
		db:            opts.Store,
		alerts:        opts.Notifier,
		market:        market,
		submitTimeout: timeout,
		ledger:        NewLedger(cash),
		breaker:       NewCircuitBreaker(),
		stops:         NewStopEngine(),
		idempotency:   make(map[string]models.Decision),
		reconPending:  make(map[string]bool),
		pendingEntry:  make(map[string]bool),
		symLocks:      make(map[string]*sync.Mutex),
	}
	g.cfg.Store(&riskCfg)
	g.daily = NewDailyBook(market, now, g.ledger.Equity())

	if g.db != nil {
		if err := g.resume(now); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// resume restores persisted state when it belongs to today's session.
func (g *Gate) resume(now time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := g.db.LoadState(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to load persisted state")
	}
	if state == nil {
		return nil
	}

	if state.Cash != 0 || len(state.Positions) > 0 {
		g.ledger.Restore(state.Cash, state.Positions)
	}
	// A tripped breaker stays latched across restarts, whatever the day;
	// only an explicit reset rearms it.
	g.breaker.Restore(state.Breaker, state.TrippedAt, state.TrippedDay)
	if g.daily.Restore(state.Daily, now) {
		g.logger.Info().
			Str("day", state.Daily.Day).
			Int("orders_today", state.Daily.OrdersToday).
			Float64("realized_pnl", state.Daily.RealizedPnL).
			Msg("resumed mid-day session from store")
	} else {
		g.daily.Rebaseline(g.ledger.Equity())
	}
	return nil
}

// symbolLock returns the per-symbol mutex, creating it on first use.
func (g *Gate) symbolLock(symbol string) *sync.Mutex {
	g.symMu.Lock()
	defer g.symMu.Unlock()

	lock, ok := g.symLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		g.symLocks[symbol] = lock
	}
	return lock
}

// Config returns the current risk limit snapshot.
func (g *Gate) Config() config.RiskConfig {
	return *g.cfg.Load()
}

// UpdateRiskConfig validates and atomically swaps in a new risk limit
// snapshot. In-flight evaluations keep the snapshot they started with;
// subsequent evaluations see only the new one. Tightening the trailing
// distance re-derives stops from existing peaks; widening leaves
// existing stops untouched.
func (g *Gate) UpdateRiskConfig(newCfg config.RiskConfig) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}
	old := g.cfg.Load()
	g.cfg.Store(&newCfg)

	if newCfg.TrailingDistance() < old.TrailingDistance() {
		g.mu.Lock()
		for _, pos := range g.ledger.OpenPositions() {
			symbol, distance := pos.Symbol, newCfg.TrailingDistance()
			g.ledger.mutatePosition(symbol, func(p *models.Position) {
				stop := stopFrom(p.Side, p.PeakPrice, distance)
				if tighter(p.Side, stop, p.StopPrice) {
					p.StopPrice = stop
				}
			})
		}
		g.mu.Unlock()
	}

	g.logger.Info().
		Float64("max_position_fraction", newCfg.MaxPositionFraction).
		Int("max_concurrent_positions", newCfg.MaxConcurrentPositions).
		Float64("max_daily_loss_fraction", newCfg.MaxDailyLossFraction).
		Float64("trailing_stop_percent", newCfg.TrailingStopPercent).
		Msg("risk config updated")
	if g.auditor != nil {
		g.auditor.Log(audit.Event{
			Timestamp: time.Now(),
			EventType: audit.EventConfigChanged,
			Snapshot: map[string]interface{}{
				"max_position_fraction":       newCfg.MaxPositionFraction,
				"max_concurrent_positions":    newCfg.MaxConcurrentPositions,
				"max_daily_loss_fraction":     newCfg.MaxDailyLossFraction,
				"max_loss_per_trade_fraction": newCfg.MaxLossPerTradeFraction,
				"trailing_stop_percent":       newCfg.TrailingStopPercent,
				"max_orders_per_day":          newCfg.MaxOrdersPerDay,
				"min_seconds_between_orders":  newCfg.MinSecondsBetweenOrders,
			},
		})
	}
	return nil
}

// CheckAndSubmitOrder evaluates an order against the rule checklist
// and, if every rule passes, submits it through the adapter and applies
// the fill to the ledger. Rejections are normal outcomes, reported in
// the Decision with a nil error; errors are operational failures.
//
// Duplicate idempotency keys return the original decision without a
// second submission. Cancellation via ctx is honored only before the
// order is committed against the cadence limits; after that point the
// submission runs to completion.
func (g *Gate) CheckAndSubmitOrder(ctx context.Context, order *models.Order) (models.Decision, error) {
	if err := validateOrder(order); err != nil {
		return models.Decision{}, err
	}

	lock := g.symbolLock(order.Symbol)
	lock.Lock()
	tripped, decision, err := g.evaluateAndSubmit(ctx, order)
	lock.Unlock()

	if tripped {
		g.onBreakerTrip(ctx)
	}
	return decision, err
}

// evaluateAndSubmit runs the full pipeline for one order. The caller
// must hold the order's symbol lock. Returns whether the resulting
// ledger change tripped the breaker, so the caller can run the
// emergency close after releasing the symbol lock.
func (g *Gate) evaluateAndSubmit(ctx context.Context, order *models.Order) (tripped bool, decision models.Decision, err error) {
	cfg := g.cfg.Load()
	now := time.Now()

	g.mu.Lock()

	if cached, ok := g.idempotency[order.IdempotencyKey]; ok && order.IdempotencyKey != "" {
		g.mu.Unlock()
		cached.Duplicate = true
		return false, cached, nil
	}

	if g.daily.RollIfNewDay(now, g.ledger.Equity()) {
		g.persistLocked()
	}

	if halted, reason := g.ledger.Halted(); halted && order.Kind == models.OrderKindEntry {
		decision = g.rejectLocked(order, models.ReasonTradingHalted, reason)
		g.mu.Unlock()
		return false, decision, nil
	}
	if g.reconPending[order.Symbol] && order.Kind == models.OrderKindEntry {
		decision = g.rejectLocked(order, models.ReasonReconciliationPending, "symbol awaiting reconciliation after submit timeout")
		g.mu.Unlock()
		return false, decision, nil
	}

	in := g.evalInputLocked(order, cfg, now)
	if rej := Evaluate(in); rej != nil {
		decision = g.rejectLocked(order, rej.Reason, rej.Detail)
		g.mu.Unlock()
		return false, decision, nil
	}

	// Last chance to honor cancellation: past this point the order
	// counts against today's cadence whatever the broker says.
	if ctxErr := ctx.Err(); ctxErr != nil {
		g.mu.Unlock()
		return false, models.Decision{}, ctxErr
	}
	g.daily.RecordOrder(now)
	reserved := false
	if order.Kind == models.OrderKindEntry {
		if _, open := g.ledger.Position(order.Symbol); !open {
			g.pendingEntry[order.Symbol] = true
			reserved = true
		}
	}
	g.persistLocked()
	g.mu.Unlock()

	fill, submitErr := g.adapter.SubmitOrder(ctx, order, g.submitTimeout)

	g.mu.Lock()
	defer g.mu.Unlock()
	if reserved {
		delete(g.pendingEntry, order.Symbol)
	}

	if submitErr != nil {
		if apperrors.Is(submitErr, apperrors.ErrTimeout) || apperrors.Is(submitErr, context.DeadlineExceeded) {
			// Ambiguous outcome: the order may have executed. Block the
			// symbol until reconciled.
			g.reconPending[order.Symbol] = true
			decision = models.Decision{Accepted: true}
			g.cacheLocked(order, decision)
			g.logger.Error().Str("symbol", order.Symbol).Err(submitErr).Msg("submit timed out; symbol pending reconciliation")
			if g.auditor != nil {
				g.auditor.Log(audit.Event{
					Timestamp: now,
					EventType: audit.EventTimeout,
					Symbol:    order.Symbol,
					Accepted:  true,
					Reason:    "submit timeout",
				})
			}
			return false, decision, apperrors.Wrap(apperrors.ErrTimeout, "order outcome unknown")
		}
		// A definite broker rejection leaves the ledger untouched, so it
		// is not cached: a retry under the same key evaluates fresh.
		decision = models.Decision{Accepted: true}
		g.logDecision(order, decision, submitErr.Error())
		return false, decision, submitErr
	}

	realized, ledgerErr := g.ledger.ApplyFill(order, fill)
	if ledgerErr != nil {
		g.logger.Error().Err(ledgerErr).Str("symbol", order.Symbol).Msg("ledger fault; new trading halted")
		if g.auditor != nil {
			g.auditor.Log(audit.Event{
				Timestamp: now,
				EventType: audit.EventLedgerFault,
				Symbol:    order.Symbol,
				Reason:    ledgerErr.Error(),
			})
		}
		if g.alerts != nil {
			g.alerts.Send(context.Background(), notify.LedgerFault(order.Symbol, ledgerErr.Error()))
		}
		g.persistLocked()
		return false, models.Decision{}, ledgerErr
	}

	if realized != 0 {
		g.daily.AddRealized(realized)
	}

	if order.Kind == models.OrderKindEntry {
		g.ledger.mutatePosition(order.Symbol, func(p *models.Position) {
			g.stops.Arm(p, cfg.TrailingDistance())
		})
	} else {
		if _, stillOpen := g.ledger.Position(order.Symbol); !stillOpen {
			g.stops.Forget(order.Symbol)
		}
	}

	decision = models.Decision{Accepted: true, OrderID: fill.OrderID, Fill: fill}
	g.cacheLocked(order, decision)
	g.logDecision(order, decision, "")
	logging.LogFill(g.logger, fill.OrderID, fill.Symbol, string(fill.Side), fill.Quantity, fill.Price)
	if g.auditor != nil {
		g.auditor.LogFill(fill.OrderID, fill.Symbol, string(fill.Side), fill.Quantity, fill.Price)
	}

	tripped = g.evaluateBreakerLocked(now)
	g.persistLocked()
	monitoring.SetOpenPositions(g.ledger.Count())
	monitoring.SetDailyPnL(g.daily.Snapshot().RealizedPnL + g.ledger.UnrealizedPnL())

	return tripped, decision, nil
}

// evalInputLocked assembles the rule checklist snapshot. Caller holds g.mu.
func (g *Gate) evalInputLocked(order *models.Order, cfg *config.RiskConfig, now time.Time) EvalInput {
	in := EvalInput{
		Order:          order,
		Config:         cfg,
		Breaker:        g.breaker.State(),
		OpenPositions:  g.ledger.Count() + len(g.pendingEntry),
		Equity:         g.ledger.Equity(),
		ReferencePrice: order.LimitPrice,
		Daily:          g.daily.Snapshot(),
		Now:            now,
	}
	if pos, ok := g.ledger.Position(order.Symbol); ok {
		if in.ReferencePrice == 0 {
			in.ReferencePrice = pos.LastPrice
		}
		entrySide := models.PositionLong
		if order.Side == models.OrderSideSell {
			entrySide = models.PositionShort
		}
		if pos.Side == entrySide {
			in.ExistingQty = pos.Quantity
		}
	}
	return in
}

// rejectLocked records a rejection decision. Caller holds g.mu.
func (g *Gate) rejectLocked(order *models.Order, reason models.RejectReason, detail string) models.Decision {
	decision := models.Decision{Accepted: false, Reason: reason}
	g.cacheLocked(order, decision)
	g.logDecision(order, decision, detail)
	return decision
}

// cacheLocked remembers a decision under the order's idempotency key.
func (g *Gate) cacheLocked(order *models.Order, decision models.Decision) {
	if order.IdempotencyKey != "" {
		g.idempotency[order.IdempotencyKey] = decision
	}
}

func (g *Gate) logDecision(order *models.Order, decision models.Decision, detail string) {
	reason := string(decision.Reason)
	if reason == "" {
		reason = detail
	}
	logging.LogGateDecision(g.logger, order.Symbol, string(order.Kind), decision.Accepted, reason)
	monitoring.RecordDecision(order.Symbol, string(order.Kind), decision.Accepted, string(decision.Reason))
	if g.auditor != nil {
		snapshot := map[string]interface{}{
			"quantity":  order.Quantity,
			"side":      string(order.Side),
			"equity":    g.ledger.Equity(),
			"positions": g.ledger.Count(),
		}
		g.auditor.LogDecision(order.Symbol, string(order.Kind), decision.Accepted, reason, snapshot)
	}
	if g.db != nil {
		rec := &store.DecisionRecord{
			ID:        uuid.New().String(),
			Timestamp: time.Now(),
			Symbol:    order.Symbol,
			Side:      string(order.Side),
			Kind:      string(order.Kind),
			Quantity:  order.Quantity,
			Accepted:  decision.Accepted,
			Reason:    string(decision.Reason),
			OrderID:   decision.OrderID,
		}
		if decision.Fill != nil {
			rec.FillPrice = decision.Fill.Price
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		g.db.LogDecision(ctx, rec)
		cancel()
	}
}

// evaluateBreakerLocked checks the daily-loss threshold and latches the
// breaker. Caller holds g.mu. Returns true on the armed-to-tripped
// transition only.
func (g *Gate) evaluateBreakerLocked(now time.Time) bool {
	cfg := g.cfg.Load()
	daily := g.daily.Snapshot()
	unrealized := g.ledger.UnrealizedPnL()

	tripped := g.breaker.Evaluate(daily, unrealized, cfg.MaxDailyLossFraction, g.market, now)
	if tripped {
		threshold := -cfg.MaxDailyLossFraction * daily.StartOfDayEquity
		logging.LogBreaker(g.logger, string(models.BreakerTripped), daily.RealizedPnL+unrealized, threshold)
		monitoring.SetBreakerTripped(true)
		if g.auditor != nil {
			g.auditor.LogBreaker(audit.EventBreakerTrip, daily.RealizedPnL+unrealized, threshold, daily.StartOfDayEquity)
		}
	}
	return tripped
}

// onBreakerTrip closes every open position with emergency exits. Runs
// without any symbol lock held; each exit takes its own.
func (g *Gate) onBreakerTrip(ctx context.Context) {
	results := g.closeAll(ctx, models.OrderKindEmergencyExit)
	closed := 0
	for _, res := range results {
		if res.Fill != nil {
			closed++
		}
		if !res.Accepted || res.Err != "" {
			g.logger.Error().Str("symbol", res.Symbol).Str("error", res.Err).Msg("emergency close failed")
		}
	}

	if g.alerts != nil {
		cfg := g.cfg.Load()
		g.mu.Lock()
		daily := g.daily.Snapshot()
		pnl := daily.RealizedPnL + g.ledger.UnrealizedPnL()
		threshold := -cfg.MaxDailyLossFraction * daily.StartOfDayEquity
		g.mu.Unlock()
		g.alerts.Send(ctx, notify.BreakerTripped(pnl, threshold, closed))
	}
}

// OnTick routes a price tick: marks the position, advances its trailing
// stop, originates a stop exit when crossed, and re-checks the breaker
// against the updated unrealized P&L.
func (g *Gate) OnTick(ctx context.Context, tick models.Tick) {
	lock := g.symbolLock(tick.Symbol)
	lock.Lock()

	cfg := g.cfg.Load()
	now := time.Now()
	var stopOrder *models.Order

	g.mu.Lock()
	g.ledger.MarkPrice(tick.Symbol, tick.Price)
	monitoring.UpdatePrice(tick.Symbol, tick.Price)

	var fired bool
	var firedPos models.Position
	g.ledger.mutatePosition(tick.Symbol, func(p *models.Position) {
		if g.stops.Observe(p, tick, cfg.TrailingDistance()) {
			fired = true
			firedPos = *p
		}
	})
	tripped := g.evaluateBreakerLocked(now)
	g.persistLocked()
	g.mu.Unlock()

	if fired {
		logging.LogStopHit(g.logger, tick.Symbol, tick.Price, firedPos.StopPrice)
		monitoring.RecordStopExit(tick.Symbol)
		stopOrder = exitOrderFor(firedPos, models.OrderKindStopExit, string(models.ExitReasonTrailingStop))
	}

	if stopOrder != nil {
		stopTripped, decision, err := g.evaluateAndSubmit(ctx, stopOrder)
		if err == nil && decision.Fill != nil && g.alerts != nil {
			realized := (decision.Fill.Price - firedPos.EntryPrice) * decision.Fill.Quantity
			if firedPos.Side == models.PositionShort {
				realized = -realized
			}
			g.alerts.Send(ctx, notify.StopExit(tick.Symbol, tick.Price, firedPos.StopPrice, realized))
		}
		if err != nil {
			g.logger.Error().Err(err).Str("symbol", tick.Symbol).Msg("stop exit failed")
			if !apperrors.Is(err, apperrors.ErrTimeout) {
				g.mu.Lock()
				g.ledger.mutatePosition(tick.Symbol, func(p *models.Position) {
					g.stops.Release(p)
				})
				g.mu.Unlock()
			}
		}
		tripped = tripped || stopTripped
	}
	lock.Unlock()

	if tripped {
		g.onBreakerTrip(ctx)
	}
}

// ClosePosition closes the full open position in a symbol at market.
func (g *Gate) ClosePosition(ctx context.Context, symbol string) (models.Decision, error) {
	lock := g.symbolLock(symbol)
	lock.Lock()

	pos, ok := g.ledger.Position(symbol)
	if !ok {
		lock.Unlock()
		return models.Decision{Accepted: false, Reason: models.ReasonNoPosition}, nil
	}
	order := exitOrderFor(pos, models.OrderKindExit, string(models.ExitReasonManual))
	tripped, decision, err := g.evaluateAndSubmit(ctx, order)
	lock.Unlock()

	if tripped {
		g.onBreakerTrip(ctx)
	}
	return decision, err
}

// EmergencyCloseAll closes every open position with emergency exit
// orders, bypassing the discretionary checks. Used by operators and by
// the breaker on trip.
func (g *Gate) EmergencyCloseAll(ctx context.Context) []models.CloseResult {
	return g.closeAll(ctx, models.OrderKindEmergencyExit)
}

func (g *Gate) closeAll(ctx context.Context, kind models.OrderKind) []models.CloseResult {
	positions := g.ledger.OpenPositions()
	results := make([]models.CloseResult, 0, len(positions))

	for _, pos := range positions {
		order := exitOrderFor(pos, kind, string(models.ExitReasonBreaker))

		lock := g.symbolLock(pos.Symbol)
		lock.Lock()
		_, decision, err := g.evaluateAndSubmit(ctx, order)
		lock.Unlock()

		res := models.CloseResult{
			Symbol:   pos.Symbol,
			Accepted: decision.Accepted,
			Reason:   decision.Reason,
			Fill:     decision.Fill,
		}
		if err != nil {
			res.Err = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// Reconcile adopts the broker's positions as ledger truth, clears any
// halt and all pending-reconciliation flags, and rearms trading for
// affected symbols. The broker's record wins every disagreement.
func (g *Gate) Reconcile(ctx context.Context) error {
	positions, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]models.Position, error) {
		return g.adapter.GetPositions(ctx)
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to fetch broker positions")
	}
	account, err := g.adapter.GetAccount(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to fetch broker account")
	}

	cfg := g.cfg.Load()

	g.mu.Lock()
	g.ledger.Restore(account.Cash, positions)
	for _, pos := range positions {
		g.ledger.mutatePosition(pos.Symbol, func(p *models.Position) {
			if p.PeakPrice == 0 {
				g.stops.Arm(p, cfg.TrailingDistance())
			}
		})
	}
	g.reconPending = make(map[string]bool)
	g.persistLocked()
	monitoring.SetOpenPositions(g.ledger.Count())
	g.mu.Unlock()

	g.logger.Info().Int("positions", len(positions)).Float64("cash", account.Cash).Msg("reconciled against broker")
	if g.auditor != nil {
		g.auditor.Log(audit.Event{
			Timestamp: time.Now(),
			EventType: audit.EventReconciled,
			Snapshot: map[string]interface{}{
				"positions": len(positions),
				"cash":      account.Cash,
			},
		})
	}
	return nil
}

// ResetBreaker rearms a tripped breaker and rebaselines the daily book
// at current equity. Same-day resets require force.
func (g *Gate) ResetBreaker(force bool) error {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.breaker.Reset(g.market, now, force); err != nil {
		return err
	}
	g.daily.Rebaseline(g.ledger.Equity())
	monitoring.SetBreakerTripped(false)
	g.persistLocked()

	g.logger.Info().Bool("force", force).Msg("breaker reset")
	if g.auditor != nil {
		g.auditor.LogBreaker(audit.EventBreakerReset, 0, 0, g.daily.Snapshot().StartOfDayEquity)
	}
	return nil
}

// RiskStatus returns a consistent snapshot of breaker state, daily
// P&L, order counts, and exposure.
func (g *Gate) RiskStatus() models.RiskStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	daily := g.daily.Snapshot()
	unrealized := g.ledger.UnrealizedPnL()
	halted, haltReason := g.ledger.Halted()

	return models.RiskStatus{
		Breaker:           g.breaker.State(),
		DailyPnL:          daily.RealizedPnL + unrealized,
		RealizedPnL:       daily.RealizedPnL,
		UnrealizedPnL:     unrealized,
		OrdersToday:       daily.OrdersToday,
		OpenPositionCount: g.ledger.Count(),
		Equity:            g.ledger.Equity(),
		TradingDay:        daily.Day,
		Halted:            halted,
		HaltReason:        haltReason,
	}
}

// Positions returns copies of all open positions with their embedded
// trailing-stop state.
func (g *Gate) Positions() []models.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ledger.OpenPositions()
}

// Equity returns current account equity (cash plus marked positions).
func (g *Gate) Equity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ledger.Equity()
}

// persistLocked writes the full gate state to the store. Caller holds
// g.mu. Persistence failures are logged, never fatal to trading.
func (g *Gate) persistLocked() {
	if g.db == nil {
		return
	}
	state := &store.GateState{
		Daily:      g.daily.Snapshot(),
		Breaker:    g.breaker.State(),
		TrippedAt:  g.breaker.TrippedAt(),
		TrippedDay: g.breaker.trippedDaySnapshot(),
		Cash:       g.ledger.Cash(),
		Positions:  g.ledger.OpenPositions(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.db.SaveState(ctx, state); err != nil {
		g.logger.Error().Err(err).Msg("failed to persist gate state")
	}
}

// exitOrderFor builds a market order closing the full position.
func exitOrderFor(pos models.Position, kind models.OrderKind, tag string) *models.Order {
	side := models.OrderSideSell
	if pos.Side == models.PositionShort {
		side = models.OrderSideBuy
	}
	return &models.Order{
		Symbol:         pos.Symbol,
		Side:           side,
		Kind:           kind,
		Type:           models.OrderTypeMarket,
		Quantity:       pos.Quantity,
		TimeInForce:    models.TIFDay,
		IdempotencyKey: uuid.New().String(),
		Tag:            tag,
		CreatedAt:      time.Now(),
	}
}

// validateOrder rejects malformed orders before any rule runs.
func validateOrder(order *models.Order) error {
	if order == nil {
		return apperrors.NewValidationError("order", nil, "order is nil")
	}
	if strings.TrimSpace(order.Symbol) == "" {
		return apperrors.NewValidationError("symbol", order.Symbol, "symbol is required")
	}
	if order.Quantity <= 0 {
		return apperrors.NewValidationError("quantity", order.Quantity, "quantity must be positive")
	}
	if order.Side != models.OrderSideBuy && order.Side != models.OrderSideSell {
		return apperrors.NewValidationError("side", string(order.Side), "side must be buy or sell")
	}
	if order.Kind == "" {
		return apperrors.NewValidationError("kind", "", "order kind is required")
	}
	if order.Type == models.OrderTypeLimit && order.LimitPrice <= 0 {
		return apperrors.NewValidationError("limit_price", order.LimitPrice, "limit orders require a positive limit price")
	}
	return nil
}

// Package trader owns the trading control loop. All position state lives in a
// single goroutine; the cron scheduler and HTTP health server never touch it
// directly.
package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ur1k/SFP-Strategy-Bot/internal/exchange"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/metrics"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/signals"
	"github.com/Ur1k/SFP-Strategy-Bot/pkg/models"
)

// Exchange is the venue capability surface the loop consumes.
type Exchange interface {
	FetchCandles(ctx context.Context, symbol, granularity string, limit int) ([]models.Bar, error)
	FetchPosition(ctx context.Context, symbol string) (*exchange.Position, error)
	FetchAvailableBalance(ctx context.Context, symbol string) (float64, error)
	FetchTotalBalance(ctx context.Context, symbol string) (float64, error)
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64, reduceOnly bool) (*exchange.OrderResult, error)
	PlaceReduceOnlyLimit(ctx context.Context, symbol string, qty, price float64) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	FetchOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol, mode string) error
	FetchSymbolSpec(ctx context.Context, symbol string) (*exchange.SymbolSpec, error)
}

// Notifier delivers best-effort human alerts.
type Notifier interface {
	Send(ctx context.Context, msg string)
}

// LedgerStore persists trade events and recovers the last known state.
type LedgerStore interface {
	Append(rec models.LedgerRecord) error
	LoadLatestState() models.BotState
}

type Config struct {
	Symbol            string
	Timeframe         string
	Leverage          int
	CandleLimit       int
	PollInterval      time.Duration
	EntryAllocation   float64
	DailyReportHour   int
	DailyReportMinute int
}

// Engine runs the strategy for a single symbol with at most one open long.
type Engine struct {
	config   Config
	exchange Exchange
	gateway  *Gateway
	ledger   LedgerStore
	notifier Notifier
	signals  *signals.Engine
	logger   *logrus.Logger

	state models.BotState
	spec  *exchange.SymbolSpec

	// reportC decouples the cron goroutine from the loop goroutine.
	reportC chan struct{}
	now     func() time.Time
}

func NewEngine(config Config, ex Exchange, ledger LedgerStore, notifier Notifier, sig *signals.Engine, logger *logrus.Logger) *Engine {
	return &Engine{
		config:   config,
		exchange: ex,
		gateway:  NewGateway(config.Symbol, ex, notifier, logger),
		ledger:   ledger,
		notifier: notifier,
		signals:  sig,
		logger:   logger,
		reportC:  make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Run recovers state, reconciles it against the venue and then polls until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.state = e.ledger.LoadLatestState()
	e.reconcileStartup(ctx)
	e.setupAccount(ctx)

	e.notifier.Send(ctx, fmt.Sprintf(
		"🤖 SFP bot started on %s %s (leverage %dx, position open: %t)",
		e.config.Symbol, e.config.Timeframe, e.config.Leverage, e.state.Position.IsOpen()))

	scheduler := cron.New()
	cronSpec := fmt.Sprintf("%d %d * * *", e.config.DailyReportMinute, e.config.DailyReportHour)
	if _, err := scheduler.AddFunc(cronSpec, func() {
		select {
		case e.reportC <- struct{}{}:
		default:
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule daily report: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	e.logger.WithFields(logrus.Fields{
		"symbol":    e.config.Symbol,
		"timeframe": e.config.Timeframe,
		"interval":  e.config.PollInterval,
	}).Info("Trading loop started")

	e.processTick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Trading loop stopped")
			return ctx.Err()
		case <-e.reportC:
			e.sendDailyReport(ctx)
		case <-ticker.C:
			e.processTick(ctx)
		}
	}
}

// setupAccount applies margin mode and leverage. Failures are logged but not
// fatal: the settings are usually already in place from a previous run.
func (e *Engine) setupAccount(ctx context.Context) {
	if err := e.exchange.SetMarginMode(ctx, e.config.Symbol, "crossed"); err != nil {
		e.logger.WithError(err).Warn("Could not set margin mode")
	}
	if err := e.exchange.SetLeverage(ctx, e.config.Symbol, e.config.Leverage); err != nil {
		e.logger.WithError(err).Warn("Could not set leverage")
	}
}

func (e *Engine) ensureSpec(ctx context.Context) (*exchange.SymbolSpec, error) {
	if e.spec != nil {
		return e.spec, nil
	}
	spec, err := e.exchange.FetchSymbolSpec(ctx, e.config.Symbol)
	if err != nil {
		return nil, err
	}
	e.spec = spec
	return spec, nil
}

// processTick is one pass of the state machine. Order matters: reconcile
// belief against the venue first, then manage the open position, then look
// for an entry.
func (e *Engine) processTick(ctx context.Context) {
	e.maybeSendDailyReport(ctx)

	bars, err := e.exchange.FetchCandles(ctx, e.config.Symbol, e.config.Timeframe, e.config.CandleLimit)
	if err != nil {
		e.logger.WithError(err).Error("Failed to fetch candles")
		metrics.IncTick("error")
		return
	}
	// The full indicator window plus the forming bar must be present; a
	// truncated response would silently skew every indicator.
	if len(bars) < e.signals.MinBars()+1 {
		e.logger.WithField("bars", len(bars)).Warn("Too few candles returned, skipping tick")
		metrics.IncTick("skipped")
		return
	}

	// The last bar is still forming: decisions use closed bars only, the
	// forming bar's open time identifies the tick for the re-entry guard.
	currentTS := bars[len(bars)-1].Timestamp
	closed := bars[:len(bars)-1]
	price := closed[len(closed)-1].Close

	sig := e.signals.Compute(closed)
	metrics.IncSignal(sig.EntryEligible)

	pos, err := e.exchange.FetchPosition(ctx, e.config.Symbol)
	if err != nil {
		e.logger.WithError(err).Error("Failed to fetch position")
		metrics.IncTick("error")
		return
	}

	switch {
	case e.state.Position.IsOpen() && pos == nil:
		e.handleExternalClose(ctx, price, currentTS)
	case !e.state.Position.IsOpen() && pos != nil && pos.Side == "long":
		e.adoptPosition(ctx, pos, closed, sig)
	}

	if e.state.Position.IsOpen() && pos != nil {
		e.manageOpenPosition(ctx, pos, price, currentTS)
	}

	// Entry needs a flat exchange too: a foreign position of either side must
	// never be bought on top of.
	if !e.state.Position.IsOpen() && pos == nil && sig.EntryEligible {
		e.tryEnter(ctx, sig, price, closed[len(closed)-1].Timestamp, currentTS)
	}

	metrics.IncTick("ok")
}

// handleExternalClose reacts to the position disappearing without the bot
// closing it: someone closed it manually or the venue liquidated it.
func (e *Engine) handleExternalClose(ctx context.Context, price float64, currentTS int64) {
	e.logger.Warn("Position closed externally")

	e.gateway.CancelOrder(ctx, e.state.Position.TPOrderID)

	pnl := 0.0
	e.state.LastEntryCandleTS = &currentTS
	e.state.ClearPosition()
	e.writeTrade(ctx, models.SideLongClose, &price, nil, &pnl, models.ReasonManualClose)

	e.notifier.Send(ctx, fmt.Sprintf(
		"ℹ️ %s position was closed outside the bot. State cleared, PnL not tracked.", e.config.Symbol))
	metrics.IncExit("external")
}

// manageOpenPosition runs the two exit paths: stop on invalidation breach and
// take-profit fill detection.
func (e *Engine) manageOpenPosition(ctx context.Context, pos *exchange.Position, price float64, currentTS int64) {
	st := &e.state.Position

	if st.Invalidation != nil && price <= *st.Invalidation {
		e.closeOnStop(ctx, pos, price, currentTS)
		return
	}

	if st.TPOrderID != "" && !e.gateway.IsOrderOpen(ctx, st.TPOrderID) {
		e.resolveMissingTPOrder(ctx, pos, currentTS)
	}
}

// closeOnStop market-sells the position after price closed through the
// invalidation level. Whatever happens, belief is cleared and re-entry on the
// same candle is blocked; a position the bot cannot close is escalated to the
// operator instead of retried forever.
func (e *Engine) closeOnStop(ctx context.Context, pos *exchange.Position, price float64, currentTS int64) {
	st := e.state.Position
	e.logger.WithFields(logrus.Fields{
		"price":        price,
		"invalidation": *st.Invalidation,
	}).Info("Invalidation level breached, closing position")

	e.gateway.CancelOrder(ctx, st.TPOrderID)

	res, err := e.gateway.MarketOrder(ctx, "sell", pos.Size, true)

	e.state.LastEntryCandleTS = &currentTS
	e.state.ClearPosition()

	if err != nil {
		e.logger.WithError(err).Error("Stop close failed")
		e.notifier.Send(ctx, fmt.Sprintf(
			"🚨 Failed to close %s position at invalidation %.2f. CLOSE IT MANUALLY.",
			e.config.Symbol, *st.Invalidation))
		e.saveState(ctx)
		return
	}

	fillPrice := res.AvgPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	var pnl *float64
	if st.EntryPrice != nil {
		v := (fillPrice - *st.EntryPrice) * res.FilledQty
		pnl = &v
	}
	e.writeTrade(ctx, models.SideLongClose, &fillPrice, &res.FilledQty, pnl, models.ReasonStopInvalidation)

	msg := fmt.Sprintf("🛑 Stopped out of %s at %.2f", e.config.Symbol, fillPrice)
	if pnl != nil {
		msg += fmt.Sprintf(" (PnL %.2f USDT)", *pnl)
	}
	e.notifier.Send(ctx, msg)

	metrics.IncOrder("sell")
	metrics.IncExit("stop")
}

// resolveMissingTPOrder decides what a vanished take-profit order means. If
// the position is gone too, the limit filled; if the position survives, the
// order was cancelled externally and is re-placed.
func (e *Engine) resolveMissingTPOrder(ctx context.Context, pos *exchange.Position, currentTS int64) {
	recheck, err := e.exchange.FetchPosition(ctx, e.config.Symbol)
	if err != nil {
		e.logger.WithError(err).Warn("Position re-check after missing TP order failed")
		return
	}

	if recheck == nil {
		st := e.state.Position
		e.logger.Info("Take-profit limit filled")

		var pnl *float64
		if st.EntryPrice != nil && st.TakeProfit != nil {
			v := (*st.TakeProfit - *st.EntryPrice) * pos.Size
			pnl = &v
		}
		e.state.LastEntryCandleTS = &currentTS
		e.state.ClearPosition()
		e.writeTrade(ctx, models.SideLongClose, st.TakeProfit, &pos.Size, pnl, models.ReasonTPLimitFilled)

		msg := fmt.Sprintf("🎯 Take-profit hit on %s", e.config.Symbol)
		if st.TakeProfit != nil {
			msg = fmt.Sprintf("🎯 Take-profit hit on %s at %.2f", e.config.Symbol, *st.TakeProfit)
		}
		if pnl != nil {
			msg += fmt.Sprintf(" (PnL %.2f USDT)", *pnl)
		}
		e.notifier.Send(ctx, msg)
		metrics.IncExit("take_profit")
		return
	}

	e.logger.Warn("Take-profit order missing but position still open, re-placing")
	e.replaceTakeProfit(ctx, recheck.Size)
}

func (e *Engine) replaceTakeProfit(ctx context.Context, size float64) {
	st := &e.state.Position
	if st.TakeProfit == nil {
		return
	}
	spec, err := e.ensureSpec(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Cannot re-place take-profit without contract spec")
		return
	}
	st.TPOrderID = e.gateway.PlaceTakeProfit(ctx, size, *st.TakeProfit, spec)
	if st.TPOrderID != "" {
		e.writeTrade(ctx, models.SideTPOrder, st.TakeProfit, &size, nil, "")
	} else {
		e.saveState(ctx)
	}
}

// tryEnter opens a long when a fresh signal fires and this candle has not
// already produced an entry or a close.
func (e *Engine) tryEnter(ctx context.Context, sig models.SignalResult, price float64, entryCandleTS, currentTS int64) {
	if e.state.LastEntryCandleTS != nil && *e.state.LastEntryCandleTS == currentTS {
		e.logger.Debug("Entry already processed for this candle")
		return
	}
	if sig.Invalidation == nil || sig.TakeProfit == nil {
		e.logger.Warn("Signal eligible but levels missing, skipping entry")
		return
	}

	spec, err := e.ensureSpec(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Cannot size entry without contract spec")
		return
	}
	avail, err := e.exchange.FetchAvailableBalance(ctx, e.config.Symbol)
	if err != nil {
		e.logger.WithError(err).Error("Failed to fetch available balance")
		return
	}

	qty := e.gateway.SafeQuantity(avail*e.config.EntryAllocation, price, spec)
	if qty <= 0 {
		e.logger.WithField("available", avail).Warn("Signal skipped, balance below minimum order size")
		e.notifier.Send(ctx, fmt.Sprintf(
			"⚠️ SFP signal on %s skipped: balance %.2f USDT is below the minimum order size.",
			e.config.Symbol, avail))
		return
	}

	res, err := e.gateway.MarketOrder(ctx, "buy", qty, false)
	if err != nil {
		e.logger.WithError(err).Error("Entry order failed")
		e.notifier.Send(ctx, fmt.Sprintf("🚨 Entry order on %s failed: %v", e.config.Symbol, err))
		return
	}

	entryPrice := res.AvgPrice
	if entryPrice <= 0 {
		entryPrice = price
	}

	e.state.Position = models.Position{
		EntryPrice:    &entryPrice,
		Invalidation:  sig.Invalidation,
		TakeProfit:    sig.TakeProfit,
		EntryCandleTS: &entryCandleTS,
	}
	e.state.LastEntryCandleTS = &currentTS

	e.state.Position.TPOrderID = e.gateway.PlaceTakeProfit(ctx, res.FilledQty, *sig.TakeProfit, spec)

	usdt := res.FilledQty * entryPrice
	e.writeTrade(ctx, models.SideLongOpen, &entryPrice, &res.FilledQty, nil, models.ReasonSFPEntry)
	if e.state.Position.TPOrderID != "" {
		e.writeTrade(ctx, models.SideTPOrder, sig.TakeProfit, &res.FilledQty, nil, "")
	}
	e.saveState(ctx)

	e.notifier.Send(ctx, fmt.Sprintf(
		"🟢 LONG %s\nEntry: %.2f\nSize: %.6f (%.2f USDT)\nInvalidation: %.2f\nTake profit: %.2f",
		e.config.Symbol, entryPrice, res.FilledQty, usdt, *sig.Invalidation, *sig.TakeProfit))

	metrics.IncOrder("buy")
}

// writeTrade appends a trade row carrying the current state snapshot. The
// account balance is best effort; a balance lookup failure must not lose the
// trade row.
func (e *Engine) writeTrade(ctx context.Context, side models.RecordSide, price, qty, pnl *float64, reason string) {
	var balance *float64
	var usdt *float64
	if total, err := e.exchange.FetchTotalBalance(ctx, e.config.Symbol); err == nil {
		balance = &total
		metrics.SetEquity(total)
	} else {
		e.logger.WithError(err).Warn("Could not fetch balance for ledger record")
	}
	if price != nil && qty != nil {
		v := *price * *qty
		usdt = &v
	}

	rec := models.LedgerRecord{
		Timestamp: e.now(),
		Symbol:    e.config.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		USDTValue: usdt,
		Balance:   balance,
		PnL:       pnl,
		Reason:    reason,
		State:     e.state,
	}
	if err := e.ledger.Append(rec); err != nil {
		e.logger.WithError(err).Error("Failed to append ledger record")
		e.notifier.Send(ctx, "🚨 Ledger write failed. Trade state may not survive a restart.")
	}
}

// saveState appends a BOT_STATE snapshot row.
func (e *Engine) saveState(ctx context.Context) {
	e.writeTrade(ctx, models.SideBotState, nil, nil, nil, "")
}

// maybeSendDailyReport catches up on a report the cron slot missed, for
// example after a restart later in the report hour.
func (e *Engine) maybeSendDailyReport(ctx context.Context) {
	now := e.now().UTC()
	if now.Hour() != e.config.DailyReportHour || now.Minute() < e.config.DailyReportMinute {
		return
	}
	e.sendDailyReport(ctx)
}

// sendDailyReport posts an account summary once per UTC day.
func (e *Engine) sendDailyReport(ctx context.Context) {
	today := e.now().UTC().Format("2006-01-02")
	if e.state.LastDailyReportDate == today {
		return
	}

	balance, err := e.exchange.FetchTotalBalance(ctx, e.config.Symbol)
	if err != nil {
		e.logger.WithError(err).Warn("Daily report skipped, balance unavailable")
		return
	}

	position := "flat"
	if st := e.state.Position; st.IsOpen() {
		position = fmt.Sprintf("long from %.2f (stop %.2f, target %.2f)",
			*st.EntryPrice, *st.Invalidation, *st.TakeProfit)
	}

	e.notifier.Send(ctx, fmt.Sprintf(
		"📊 Daily report %s\nSymbol: %s\nBalance: %.2f USDT\nPosition: %s",
		today, e.config.Symbol, balance, position))

	e.state.LastDailyReportDate = today
	e.saveState(ctx)
	metrics.SetEquity(balance)
}

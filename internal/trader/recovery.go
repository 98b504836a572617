package trader

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Ur1k/SFP-Strategy-Bot/internal/exchange"
	"github.com/Ur1k/SFP-Strategy-Bot/pkg/models"
)

// reconcileStartup compares the recovered belief against the venue before the
// first tick. Believing in a position that no longer exists is the dangerous
// case: the stop logic would fire against nothing and the next entry would be
// blocked forever.
func (e *Engine) reconcileStartup(ctx context.Context) {
	pos, err := e.exchange.FetchPosition(ctx, e.config.Symbol)
	if err != nil {
		e.logger.WithError(err).Warn("Startup reconciliation skipped, position unavailable")
		return
	}

	st := &e.state.Position
	switch {
	case st.IsOpen() && (pos == nil || pos.Side != "long"):
		e.logger.Warn("Recovered position no longer exists on exchange, clearing state")
		e.gateway.CancelOrder(ctx, st.TPOrderID)
		e.state.ClearPosition()
		e.saveState(ctx)
		e.notifier.Send(ctx, fmt.Sprintf(
			"ℹ️ Stale %s position state cleared on startup: the exchange reports no open long.",
			e.config.Symbol))

	case st.IsOpen() && pos != nil:
		e.logger.WithFields(logrus.Fields{
			"entry_price":  *st.EntryPrice,
			"invalidation": *st.Invalidation,
			"take_profit":  *st.TakeProfit,
		}).Info("Resuming management of recovered position")
		e.notifier.Send(ctx, fmt.Sprintf(
			"🔄 Bot restarted, resuming open %s long from %.2f.", e.config.Symbol, *st.EntryPrice))
		if !e.gateway.IsOrderOpen(ctx, st.TPOrderID) {
			e.logger.Warn("Recovered take-profit order is not resting, re-placing")
			e.replaceTakeProfit(ctx, pos.Size)
			if st.TPOrderID != "" {
				e.notifier.Send(ctx, fmt.Sprintf(
					"🔁 Re-placed the %s take-profit order at %.2f after restart.",
					e.config.Symbol, *st.TakeProfit))
			}
		}

	case !st.IsOpen() && pos != nil && pos.Side == "long":
		// Levels need candle context, so adoption happens on the first tick.
		e.logger.WithField("size", pos.Size).Info("Unmanaged long found on exchange, adopting on first tick")
	}
}

// adoptPosition takes over a long the ledger does not believe in. When the
// remembered entry candle is still inside the window, the exact levels are
// re-derived from it; otherwise they are approximated from the current candle
// window and the operator is asked to verify.
func (e *Engine) adoptPosition(ctx context.Context, pos *exchange.Position, closed []models.Bar, sig models.SignalResult) {
	entryPrice := pos.EntryPrice
	if entryPrice <= 0 {
		entryPrice = closed[len(closed)-1].Close
	}

	var invalidation, takeProfit *float64
	entryCandleTS := closed[len(closed)-1].Timestamp
	exact := false

	if e.state.PriorEntryCandleTS != nil {
		if inv, tp := e.signals.LevelsAt(closed, *e.state.PriorEntryCandleTS); inv != nil && tp != nil {
			invalidation, takeProfit = inv, tp
			entryCandleTS = *e.state.PriorEntryCandleTS
			exact = true
		}
	}
	if !exact {
		if sig.Invalidation == nil {
			e.logger.Warn("Cannot adopt position yet, signal window too short")
			return
		}
		invalidation = sig.Invalidation
		takeProfit = sig.TakeProfit
		if takeProfit == nil {
			// No rolling pivot high available; fall back to the window max so
			// a reduce-only target still exists.
			tp := closed[0].High
			for _, b := range closed[1:] {
				if b.High > tp {
					tp = b.High
				}
			}
			takeProfit = &tp
		}
	}

	e.state.Position = models.Position{
		EntryPrice:    &entryPrice,
		Invalidation:  invalidation,
		TakeProfit:    takeProfit,
		EntryCandleTS: &entryCandleTS,
	}

	e.logger.WithFields(logrus.Fields{
		"entry_price":  entryPrice,
		"invalidation": *invalidation,
		"take_profit":  *takeProfit,
		"size":         pos.Size,
		"exact_levels": exact,
	}).Warn("Adopted externally opened position")

	spec, err := e.ensureSpec(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Cannot place take-profit for adopted position without contract spec")
	} else {
		e.state.Position.TPOrderID = e.gateway.PlaceTakeProfit(ctx, pos.Size, *takeProfit, spec)
	}

	e.writeTrade(ctx, models.SideLongOpen, &entryPrice, &pos.Size, nil, models.ReasonAdopted)
	if e.state.Position.TPOrderID != "" {
		e.writeTrade(ctx, models.SideTPOrder, takeProfit, &pos.Size, nil, "")
	}
	e.saveState(ctx)

	if exact {
		e.notifier.Send(ctx, fmt.Sprintf(
			"⚠️ Adopted an existing %s long (entry %.2f, size %.6f). Levels re-derived from "+
				"its entry candle: invalidation %.2f, take profit %.2f.",
			e.config.Symbol, entryPrice, pos.Size, *invalidation, *takeProfit))
		return
	}
	e.notifier.Send(ctx, fmt.Sprintf(
		"⚠️ Adopted an existing %s long (entry %.2f, size %.6f). Levels were derived from "+
			"current data: invalidation %.2f, take profit %.2f. Verify them manually.",
		e.config.Symbol, entryPrice, pos.Size, *invalidation, *takeProfit))
}

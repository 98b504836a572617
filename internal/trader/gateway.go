package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ur1k/SFP-Strategy-Bot/internal/exchange"
	"github.com/Ur1k/SFP-Strategy-Bot/pkg/utils"
)

const (
	orderAttempts  = 3
	silentFillWait = 3 * time.Second
)

// openOrderStates are the venue order states that count as still working.
var openOrderStates = map[string]bool{
	"live":             true,
	"new":              true,
	"init":             true,
	"partially_filled": true,
}

// Gateway wraps raw exchange calls with the retry and reconciliation policy
// orders need: a timed-out submission may still have executed, so every
// transient failure is followed by a position re-query before the retry.
type Gateway struct {
	symbol   string
	exchange Exchange
	notifier Notifier
	logger   *logrus.Logger

	attempts int
	sleep    func(time.Duration)
}

func NewGateway(symbol string, ex Exchange, notifier Notifier, logger *logrus.Logger) *Gateway {
	return &Gateway{
		symbol:   symbol,
		exchange: ex,
		notifier: notifier,
		logger:   logger,
		attempts: orderAttempts,
		sleep:    time.Sleep,
	}
}

// MarketOrder submits a market order with retries. After a transient failure
// the position is re-queried: an opening buy that shows a position, or a
// reduce-only sell that shows none, is treated as silently filled. Venue
// rejections are returned immediately; retrying a deterministic error only
// repeats it.
func (g *Gateway) MarketOrder(ctx context.Context, side string, qty float64, reduceOnly bool) (*exchange.OrderResult, error) {
	var lastErr error
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			g.sleep(time.Duration(1<<attempt) * time.Second)
		}

		res, err := g.exchange.PlaceMarketOrder(ctx, g.symbol, side, qty, reduceOnly)
		if err == nil {
			if res.Remaining > 0 {
				g.logger.WithFields(logrus.Fields{
					"side":      side,
					"requested": qty,
					"filled":    res.FilledQty,
				}).Warn("Market order partially filled")
				g.notifier.Send(ctx, fmt.Sprintf(
					"⚠️ Partial fill on %s %s: requested %.6f, filled %.6f",
					side, g.symbol, qty, res.FilledQty))
			}
			return res, nil
		}
		if !exchange.IsTransient(err) {
			return nil, err
		}
		lastErr = err

		g.logger.WithError(err).WithFields(logrus.Fields{
			"side":    side,
			"attempt": attempt + 1,
		}).Warn("Market order attempt failed, checking for silent fill")

		g.sleep(silentFillWait)
		if res := g.silentFillCheck(ctx, side, qty, reduceOnly); res != nil {
			g.logger.WithField("side", side).Info("Order executed despite transport error")
			return res, nil
		}
	}

	return nil, fmt.Errorf("market order failed after %d attempts: %w", g.attempts, lastErr)
}

func (g *Gateway) silentFillCheck(ctx context.Context, side string, qty float64, reduceOnly bool) *exchange.OrderResult {
	pos, err := g.exchange.FetchPosition(ctx, g.symbol)
	if err != nil {
		g.logger.WithError(err).Warn("Position re-query after failed order also failed")
		return nil
	}
	if side == "buy" && !reduceOnly && pos != nil {
		return &exchange.OrderResult{FilledQty: qty, AvgPrice: pos.EntryPrice}
	}
	if side == "sell" && reduceOnly && pos == nil {
		return &exchange.OrderResult{FilledQty: qty}
	}
	return nil
}

// PlaceTakeProfit rests a reduce-only limit sell at price, floored to the
// contract precision. Placement failure is not fatal to the trade: the stop
// logic still protects it, so the failure is alerted and an empty id returned.
func (g *Gateway) PlaceTakeProfit(ctx context.Context, qty, price float64, spec *exchange.SymbolSpec) string {
	price = utils.FloorToPlaces(price, spec.PricePlaces)
	qty = utils.FloorToPlaces(qty, spec.VolumePlaces)

	var lastErr error
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			g.sleep(time.Duration(1<<attempt) * time.Second)
		}
		orderID, err := g.exchange.PlaceReduceOnlyLimit(ctx, g.symbol, qty, price)
		if err == nil {
			return orderID
		}
		lastErr = err
		g.logger.WithError(err).WithField("attempt", attempt+1).Warn("Take-profit placement failed")
		if !exchange.IsTransient(err) {
			break
		}
	}

	g.logger.WithError(lastErr).Error("Giving up on take-profit placement")
	g.notifier.Send(ctx, fmt.Sprintf(
		"⚠️ Could not place take-profit for %s at %.2f. Place it manually.", g.symbol, price))
	return ""
}

// CancelOrder cancels orderID, treating an already-gone order as success.
// A real cancellation failure is alerted because a forgotten resting order
// can close a future position unexpectedly.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) bool {
	if orderID == "" {
		return true
	}

	err := g.exchange.CancelOrder(ctx, g.symbol, orderID)
	if err == nil {
		return true
	}
	if exchange.IsOrderNotFound(err) {
		g.logger.WithField("order_id", orderID).Info("Order already gone, nothing to cancel")
		return true
	}

	g.logger.WithError(err).WithField("order_id", orderID).Warn("Order cancellation failed")
	g.notifier.Send(ctx, fmt.Sprintf(
		"⚠️ Could not cancel order %s on %s. Check the exchange manually.", orderID, g.symbol))
	return false
}

// IsOrderOpen reports whether orderID is still working on the venue. Lookup
// errors degrade to false; the caller re-checks the position before acting.
func (g *Gateway) IsOrderOpen(ctx context.Context, orderID string) bool {
	if orderID == "" {
		return false
	}

	order, err := g.exchange.FetchOrder(ctx, g.symbol, orderID)
	if err != nil {
		if !exchange.IsOrderNotFound(err) {
			g.logger.WithError(err).WithField("order_id", orderID).Warn("Order status lookup failed")
		}
		return false
	}
	return openOrderStates[order.Status]
}

// SafeQuantity converts a USDT notional into an order quantity that respects
// the contract size, quantity precision and minimum. Returns 0 when the
// notional cannot buy a valid order.
func (g *Gateway) SafeQuantity(usdtNotional, price float64, spec *exchange.SymbolSpec) float64 {
	if price <= 0 || spec.SizeMultiplier <= 0 {
		return 0
	}
	contracts := math.Floor(usdtNotional / (price * spec.SizeMultiplier))
	qty := utils.FloorToPlaces(contracts*spec.SizeMultiplier, spec.VolumePlaces)
	if qty < spec.MinTradeNum {
		return 0
	}
	return qty
}

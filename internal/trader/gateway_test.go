package trader

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ur1k/SFP-Strategy-Bot/internal/exchange"
)

func newTestGateway(ex *mockExchange) (*Gateway, *recordingNotifier) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	notifier := &recordingNotifier{}
	g := NewGateway("BTCUSDT", ex, notifier, logger)
	g.sleep = func(time.Duration) {}
	return g, notifier
}

func testSpec() *exchange.SymbolSpec {
	return &exchange.SymbolSpec{
		Symbol:         "BTCUSDT",
		PricePlaces:    1,
		VolumePlaces:   3,
		SizeMultiplier: 0.001,
		MinTradeNum:    0.001,
	}
}

func TestMarketOrderSuccess(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	ex.On("PlaceMarketOrder", mock.Anything, "BTCUSDT", "buy", 0.5, false).
		Return(&exchange.OrderResult{OrderID: "o1", FilledQty: 0.5, AvgPrice: 100.5}, nil)

	res, err := g.MarketOrder(context.Background(), "buy", 0.5, false)

	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)
	assert.InDelta(t, 100.5, res.AvgPrice, 1e-9)
	ex.AssertNumberOfCalls(t, "PlaceMarketOrder", 1)
}

func TestMarketOrderSilentFillOnBuy(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	ex.On("PlaceMarketOrder", mock.Anything, "BTCUSDT", "buy", 0.5, false).
		Return(nil, &exchange.TransientError{Err: errors.New("timeout")})
	ex.On("FetchPosition", mock.Anything, "BTCUSDT").
		Return(&exchange.Position{Symbol: "BTCUSDT", Side: "long", Size: 0.5, EntryPrice: 99.8}, nil)

	res, err := g.MarketOrder(context.Background(), "buy", 0.5, false)

	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.FilledQty, 1e-9)
	assert.InDelta(t, 99.8, res.AvgPrice, 1e-9)
	// The fill was detected on the first reconciliation, no retry happened.
	ex.AssertNumberOfCalls(t, "PlaceMarketOrder", 1)
}

func TestMarketOrderSilentFillOnReduceOnlySell(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	ex.On("PlaceMarketOrder", mock.Anything, "BTCUSDT", "sell", 0.5, true).
		Return(nil, &exchange.TransientError{Err: errors.New("timeout")})
	ex.On("FetchPosition", mock.Anything, "BTCUSDT").Return(nil, nil)

	res, err := g.MarketOrder(context.Background(), "sell", 0.5, true)

	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.FilledQty, 1e-9)
}

func TestMarketOrderRetriesThenFails(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	ex.On("PlaceMarketOrder", mock.Anything, "BTCUSDT", "buy", 0.5, false).
		Return(nil, &exchange.TransientError{Err: errors.New("timeout")})
	// No position ever appears, so it was a genuine failure.
	ex.On("FetchPosition", mock.Anything, "BTCUSDT").Return(nil, nil)

	_, err := g.MarketOrder(context.Background(), "buy", 0.5, false)

	require.Error(t, err)
	ex.AssertNumberOfCalls(t, "PlaceMarketOrder", 3)
}

func TestMarketOrderRejectionNotRetried(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	ex.On("PlaceMarketOrder", mock.Anything, "BTCUSDT", "buy", 0.5, false).
		Return(nil, &exchange.APIError{Code: "40762", Msg: "insufficient balance"})

	_, err := g.MarketOrder(context.Background(), "buy", 0.5, false)

	require.Error(t, err)
	ex.AssertNumberOfCalls(t, "PlaceMarketOrder", 1)
	ex.AssertNotCalled(t, "FetchPosition", mock.Anything, mock.Anything)
}

func TestMarketOrderPartialFillAlerts(t *testing.T) {
	ex := &mockExchange{}
	g, notifier := newTestGateway(ex)

	ex.On("PlaceMarketOrder", mock.Anything, "BTCUSDT", "buy", 1.0, false).
		Return(&exchange.OrderResult{OrderID: "o1", FilledQty: 0.4, Remaining: 0.6}, nil)

	res, err := g.MarketOrder(context.Background(), "buy", 1.0, false)

	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.FilledQty, 1e-9)
	assert.True(t, notifier.contains("Partial fill"))
}

func TestPlaceTakeProfitFloorsPrecision(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	ex.On("PlaceReduceOnlyLimit", mock.Anything, "BTCUSDT", 0.123, 110.1).
		Return("tp-1", nil)

	orderID := g.PlaceTakeProfit(context.Background(), 0.12345, 110.19, testSpec())

	assert.Equal(t, "tp-1", orderID)
}

func TestPlaceTakeProfitGivesUpAndAlerts(t *testing.T) {
	ex := &mockExchange{}
	g, notifier := newTestGateway(ex)

	ex.On("PlaceReduceOnlyLimit", mock.Anything, "BTCUSDT", mock.Anything, mock.Anything).
		Return("", &exchange.TransientError{Err: errors.New("timeout")})

	orderID := g.PlaceTakeProfit(context.Background(), 0.5, 110, testSpec())

	assert.Empty(t, orderID)
	assert.True(t, notifier.contains("manually"))
	ex.AssertNumberOfCalls(t, "PlaceReduceOnlyLimit", 3)
}

func TestCancelOrderNotFoundIsSuccess(t *testing.T) {
	ex := &mockExchange{}
	g, notifier := newTestGateway(ex)

	ex.On("CancelOrder", mock.Anything, "BTCUSDT", "o1").
		Return(&exchange.APIError{Code: "40109", Msg: "order not exist"})

	assert.True(t, g.CancelOrder(context.Background(), "o1"))
	assert.Empty(t, notifier.messages)
}

func TestCancelOrderFailureAlerts(t *testing.T) {
	ex := &mockExchange{}
	g, notifier := newTestGateway(ex)

	ex.On("CancelOrder", mock.Anything, "BTCUSDT", "o1").
		Return(&exchange.TransientError{Err: errors.New("timeout")})

	assert.False(t, g.CancelOrder(context.Background(), "o1"))
	assert.True(t, notifier.contains("Check the exchange manually"))
}

func TestCancelOrderEmptyIDIsNoop(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	assert.True(t, g.CancelOrder(context.Background(), ""))
	ex.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestIsOrderOpen(t *testing.T) {
	ex := &mockExchange{}
	g, _ := newTestGateway(ex)

	ex.On("FetchOrder", mock.Anything, "BTCUSDT", "live-order").
		Return(&exchange.Order{ID: "live-order", Status: "live"}, nil)
	ex.On("FetchOrder", mock.Anything, "BTCUSDT", "filled-order").
		Return(&exchange.Order{ID: "filled-order", Status: "filled"}, nil)
	ex.On("FetchOrder", mock.Anything, "BTCUSDT", "gone-order").
		Return(nil, &exchange.APIError{Code: "43001", Msg: "order not found"})

	assert.True(t, g.IsOrderOpen(context.Background(), "live-order"))
	assert.False(t, g.IsOrderOpen(context.Background(), "filled-order"))
	assert.False(t, g.IsOrderOpen(context.Background(), "gone-order"))
	assert.False(t, g.IsOrderOpen(context.Background(), ""))
}

func TestSafeQuantity(t *testing.T) {
	g, _ := newTestGateway(&mockExchange{})
	spec := testSpec()

	// 1000 USDT at price 100 with a 0.001 contract size buys 10000 contracts,
	// i.e. 10 base units.
	assert.InDelta(t, 10, g.SafeQuantity(1000, 100, spec), 1e-9)
	// Too small for the minimum order.
	assert.Zero(t, g.SafeQuantity(0.05, 100, spec))
	// Degenerate inputs.
	assert.Zero(t, g.SafeQuantity(1000, 0, spec))

	whole := &exchange.SymbolSpec{PricePlaces: 1, VolumePlaces: 0, SizeMultiplier: 1, MinTradeNum: 1}
	assert.InDelta(t, 9, g.SafeQuantity(990, 101, whole), 1e-9)
	assert.Zero(t, g.SafeQuantity(50, 101, whole))
}

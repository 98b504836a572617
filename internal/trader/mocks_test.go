package trader

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/Ur1k/SFP-Strategy-Bot/internal/exchange"
	"github.com/Ur1k/SFP-Strategy-Bot/pkg/models"
)

type mockExchange struct {
	mock.Mock
}

func (m *mockExchange) FetchCandles(ctx context.Context, symbol, granularity string, limit int) ([]models.Bar, error) {
	args := m.Called(ctx, symbol, granularity, limit)
	if v := args.Get(0); v != nil {
		return v.([]models.Bar), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExchange) FetchPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	args := m.Called(ctx, symbol)
	if v := args.Get(0); v != nil {
		return v.(*exchange.Position), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExchange) FetchAvailableBalance(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockExchange) FetchTotalBalance(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64, reduceOnly bool) (*exchange.OrderResult, error) {
	args := m.Called(ctx, symbol, side, qty, reduceOnly)
	if v := args.Get(0); v != nil {
		return v.(*exchange.OrderResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExchange) PlaceReduceOnlyLimit(ctx context.Context, symbol string, qty, price float64) (string, error) {
	args := m.Called(ctx, symbol, qty, price)
	return args.String(0), args.Error(1)
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	args := m.Called(ctx, symbol, orderID)
	return args.Error(0)
}

func (m *mockExchange) FetchOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	args := m.Called(ctx, symbol, orderID)
	if v := args.Get(0); v != nil {
		return v.(*exchange.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	args := m.Called(ctx, symbol, leverage)
	return args.Error(0)
}

func (m *mockExchange) SetMarginMode(ctx context.Context, symbol, mode string) error {
	args := m.Called(ctx, symbol, mode)
	return args.Error(0)
}

func (m *mockExchange) FetchSymbolSpec(ctx context.Context, symbol string) (*exchange.SymbolSpec, error) {
	args := m.Called(ctx, symbol)
	if v := args.Get(0); v != nil {
		return v.(*exchange.SymbolSpec), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingNotifier captures alerts for assertions without a network call.
type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Send(_ context.Context, msg string) {
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) contains(substr string) bool {
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

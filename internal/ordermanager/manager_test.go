package ordermanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ab0626/velocity/internal/matching"
	"github.com/ab0626/velocity/internal/orderbook"
)

func newTestManager(t *testing.T, symbol string, limits RiskLimits) *Manager {
	t.Helper()
	engine := matching.NewEngine(nil)
	m := New(engine, limits, 0, 0, nil) // rps <= 0 disables the submission rate limiter
	m.AddSymbol(symbol)
	engine.Start()
	t.Cleanup(engine.Stop)
	return m
}

func TestPlaceOrderRejectedByOrderSizeLimit(t *testing.T) {
	limits := DefaultRiskLimits()
	limits.MaxOrderSize = 100
	m := newTestManager(t, "AAPL", limits)

	var alertReason string
	m.SetRiskAlertCallback(func(reason string) { alertReason = reason })

	id := m.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Limit, Price: 150, Quantity: 500, TraderID: "alice"})
	assert.Equal(t, uint64(0), id)
	assert.NotEmpty(t, alertReason)
	assert.Empty(t, m.GetAllPositions(), "a rejected order must leave no position side-effect")
}

func TestPlaceOrderRejectedByInvalidArgument(t *testing.T) {
	m := newTestManager(t, "AAPL", DefaultRiskLimits())
	id := m.PlaceOrder(orderbook.Order{Symbol: "", Side: orderbook.Buy, Type: orderbook.Limit, Price: 150, Quantity: 10, TraderID: "alice"})
	assert.Equal(t, uint64(0), id)
}

func TestPlaceOrderRejectsStopOrder(t *testing.T) {
	m := newTestManager(t, "AAPL", DefaultRiskLimits())
	id := m.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Stop, Price: 150, Quantity: 10, TraderID: "alice"})
	assert.Equal(t, uint64(0), id, "stop orders are rejected as an invalid argument, not silently dropped after getting a real id")
}

func TestPositionUpdatesFromExecutionStream(t *testing.T) {
	m := newTestManager(t, "AAPL", DefaultRiskLimits())

	updated := make(chan Position, 4)
	m.SetPositionCallback(func(p Position) { updated <- p })

	m.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Limit, Price: 150.00, Quantity: 100, TraderID: "alice"})
	m.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Sell, Type: orderbook.Limit, Price: 150.00, Quantity: 100, TraderID: "bob"})

	// Execution is only emitted once per crossing, attributed to the taker:
	// here bob's marketable sell, submitted second, drives the crossing loop.
	require.Eventually(t, func() bool {
		return m.GetPosition("AAPL").Quantity == -100
	}, time.Second, time.Millisecond)

	pos := m.GetPosition("AAPL")
	assert.Equal(t, int64(-100), pos.Quantity)
	assert.Equal(t, 150.00, pos.AvgPrice)
}

func TestCancelOrderUpdatesActiveIndex(t *testing.T) {
	m := newTestManager(t, "AAPL", DefaultRiskLimits())
	id := m.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Limit, Price: 149, Quantity: 10, TraderID: "alice"})
	require.NotZero(t, id)

	book, _ := m.GetOrderBook("AAPL")
	require.Eventually(t, func() bool { return book.BestBid() == 149 }, time.Second, time.Millisecond)

	assert.True(t, m.CancelOrder(id, "alice"))
	assert.False(t, m.CancelOrder(id, "alice"))
}

func TestSetRiskLimitsAffectsSubsequentOrders(t *testing.T) {
	m := newTestManager(t, "AAPL", DefaultRiskLimits())
	m.SetRiskLimits(RiskLimits{MaxOrderSize: 5, MaxPositionValue: 1_000_000, MaxDailyLoss: 50_000, MaxLeverage: 2})

	id := m.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Limit, Price: 150, Quantity: 10, TraderID: "alice"})
	assert.Equal(t, uint64(0), id)
}

package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id uint64, side Side, price float64, qty uint32, traderID string) *Order {
	return &Order{ID: id, Symbol: "AAPL", Side: side, Type: Limit, Price: price, Quantity: qty, TraderID: traderID}
}

func TestAddOrderRefreshesBestPrices(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Buy, 100.00, 10, "alice"))
	assert.Equal(t, 100.00, b.BestBid())
	assert.Equal(t, 0.0, b.BestAsk())

	b.AddOrder(newOrder(2, Sell, 101.00, 5, "bob"))
	assert.Equal(t, 101.00, b.BestAsk())
	assert.Equal(t, 100.50, b.MidPrice())
	assert.Equal(t, 1.00, b.Spread())
}

func TestFIFOWithinPriceLevel(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Buy, 150.00, 10, "alice"))
	b.AddOrder(newOrder(2, Buy, 150.00, 10, "bob"))

	orders := b.OrdersAt(Buy, 150.00)
	require.Len(t, orders, 2)
	assert.Equal(t, uint64(1), orders[0].ID)
	assert.Equal(t, uint64(2), orders[1].ID)

	head := b.PeekHead(Buy)
	require.NotNil(t, head)
	assert.Equal(t, uint64(1), head.ID)
}

func TestCancelOrderRemovesEmptyLevel(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Buy, 150.00, 10, "alice"))

	snap, ok := b.CancelOrder(1)
	require.True(t, ok)
	assert.Equal(t, Cancelled, snap.Status)
	assert.Equal(t, 0.0, b.BestBid())

	_, ok = b.CancelOrder(1)
	assert.False(t, ok, "second cancel of the same id must be a no-op")
}

func TestOwnerOfReportsTraderWithoutMutating(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Buy, 150.00, 10, "alice"))

	traderID, found := b.OwnerOf(1)
	require.True(t, found)
	assert.Equal(t, "alice", traderID)

	_, found = b.OwnerOf(999)
	assert.False(t, found)

	orders := b.OrdersAt(Buy, 150.00)
	require.Len(t, orders, 1)
	assert.Equal(t, uint32(10), orders[0].Quantity)
}

func TestCancelUnknownIDIsNoop(t *testing.T) {
	b := New("AAPL")
	_, ok := b.CancelOrder(999)
	assert.False(t, ok)
}

func TestModifyOrderLosesTimePriority(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Buy, 150.00, 10, "alice"))
	b.AddOrder(newOrder(2, Buy, 150.00, 10, "bob"))

	_, ok := b.ModifyOrder(1, 150.00, 20)
	require.True(t, ok)

	orders := b.OrdersAt(Buy, 150.00)
	require.Len(t, orders, 2)
	assert.Equal(t, uint64(2), orders[0].ID, "bob keeps priority; alice's modified order goes to the tail")
	assert.Equal(t, uint64(1), orders[1].ID)
	assert.Equal(t, uint32(20), orders[1].Quantity)
}

func TestFillHeadRemovesFullyFilledOrder(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Sell, 101.00, 10, "alice"))

	filled, ok := b.FillHead(Sell, 101.00, 1, 10, 101.00)
	require.True(t, ok)
	assert.Equal(t, Filled, filled.Status)
	assert.Equal(t, 0.0, b.BestAsk())
	assert.Equal(t, 101.00, b.LastPrice())
}

func TestFillHeadPartialLeavesOrderResting(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Sell, 101.00, 10, "alice"))

	filled, ok := b.FillHead(Sell, 101.00, 1, 4, 101.00)
	require.True(t, ok)
	assert.Equal(t, Partial, filled.Status)
	assert.Equal(t, uint32(6), filled.Remaining())
	assert.Equal(t, 101.00, b.BestAsk())
}

func TestFillHeadRejectsStaleExpectedID(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Sell, 101.00, 10, "alice"))

	_, ok := b.FillHead(Sell, 101.00, 2, 4, 101.00)
	assert.False(t, ok, "a mismatched expected id must not mutate the resting order")

	orders := b.OrdersAt(Sell, 101.00)
	require.Len(t, orders, 1)
	assert.Equal(t, uint32(0), orders[0].FilledQuantity)
}

func TestFillCrossRejectsStaleExpectedID(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Buy, 150.00, 10, "alice"))
	b.AddOrder(newOrder(2, Sell, 150.00, 10, "bob"))

	_, _, ok := b.FillCross(150.00, 1, 150.00, 999, 10, 150.00)
	assert.False(t, ok, "a mismatched ask id must leave the bid untouched too")

	bidOrders := b.OrdersAt(Buy, 150.00)
	require.Len(t, bidOrders, 1)
	assert.Equal(t, uint32(0), bidOrders[0].FilledQuantity)
}

func TestLevelsAreQuantityConservative(t *testing.T) {
	b := New("AAPL")
	b.AddOrder(newOrder(1, Buy, 150.00, 10, "alice"))
	b.AddOrder(newOrder(2, Buy, 150.00, 15, "bob"))

	levels := b.BidLevels(5)
	require.Len(t, levels, 1)
	assert.Equal(t, uint32(25), levels[0].TotalQuantity)
	assert.Equal(t, 2, levels[0].OrderCount)
}

func TestPriceCallbackFiresOnlyOnChange(t *testing.T) {
	b := New("AAPL")
	var calls int
	b.SetPriceCallback(func(symbol string, bestBid, bestAsk float64) {
		calls++
	})

	b.AddOrder(newOrder(1, Buy, 150.00, 10, "alice"))
	assert.Equal(t, 1, calls)

	b.AddOrder(newOrder(2, Buy, 149.00, 10, "bob"))
	assert.Equal(t, 1, calls, "a worse bid must not change best_bid")
}

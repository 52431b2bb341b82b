package velocity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ab0626/velocity/internal/config"
	"github.com/ab0626/velocity/internal/matching"
	"github.com/ab0626/velocity/internal/orderbook"
)

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	cfg := &config.Config{
		Engine: config.EngineConfig{
			Symbols:       []string{"AAPL"},
			StartingPrice: map[string]float64{"AAPL": 150.00},
		},
		Risk: config.RiskConfig{
			MaxOrderSize:         1000,
			MaxPositionValue:     1_000_000,
			MaxDailyLoss:         50_000,
			MaxDrawdown:          0.2,
			MaxLeverage:          3,
			SubmissionsPerSecond: 0, // disabled
		},
	}
	sim := New(cfg, nil)
	sim.Start()
	t.Cleanup(sim.Stop)
	return sim
}

func TestSimulatorSeedsStartingPrice(t *testing.T) {
	sim := newTestSimulator(t)
	book, err := sim.GetOrderBook("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 150.00, book.LastPrice())
}

func TestSimulatorEndToEndTrivialMatch(t *testing.T) {
	sim := newTestSimulator(t)

	execs := make(chan matching.Execution, 1)
	sim.OrderManager().SetExecutionCallback(func(exec matching.Execution) { execs <- exec })

	sim.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Limit, Price: 150.00, Quantity: 100, TraderID: "alice"})
	sim.PlaceOrder(orderbook.Order{Symbol: "AAPL", Side: orderbook.Sell, Type: orderbook.Limit, Price: 150.00, Quantity: 100, TraderID: "bob"})

	select {
	case exec := <-execs:
		assert.Equal(t, 150.00, exec.Price)
		assert.Equal(t, uint32(100), exec.Quantity)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for execution")
	}

	stats := sim.Stats()
	assert.Equal(t, uint64(1), stats.TotalExecutions)
	assert.Equal(t, uint32(100), uint32(stats.TotalVolume/150.00))
}

func TestSimulatorUnknownSymbolReturnsError(t *testing.T) {
	sim := newTestSimulator(t)
	_, err := sim.GetOrderBook("MSFT")
	assert.Error(t, err)
}

// Package velocity assembles the order book, matching engine, and order
// manager into the single-venue equity trading simulator core.
// Market-data generation, trading strategies, performance analytics, and
// a web dashboard are all deliberately out of scope here.
package velocity

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ab0626/velocity/internal/config"
	"github.com/ab0626/velocity/internal/matching"
	"github.com/ab0626/velocity/internal/ordermanager"
	"github.com/ab0626/velocity/internal/orderbook"
)

// Simulator wires one MatchingEngine and one OrderManager together and
// owns their lifecycle. Construct with New, register callbacks, call
// Start, then submit orders through PlaceOrder.
type Simulator struct {
	engine  *matching.Engine
	manager *ordermanager.Manager
	log     *logrus.Logger
}

// New builds a Simulator from cfg: it registers every configured symbol
// with the engine, seeds each one's last-trade price, and applies the
// configured RiskLimits and submission rate limit.
func New(cfg *config.Config, log *logrus.Logger) *Simulator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	engine := matching.NewEngine(log)
	limits := ordermanager.RiskLimits{
		MaxOrderSize:     cfg.Risk.MaxOrderSize,
		MaxPositionValue: cfg.Risk.MaxPositionValue,
		MaxDailyLoss:     cfg.Risk.MaxDailyLoss,
		MaxDrawdown:      cfg.Risk.MaxDrawdown,
		MaxLeverage:      cfg.Risk.MaxLeverage,
	}
	manager := ordermanager.New(engine, limits, cfg.Risk.SubmissionsPerSecond, cfg.Risk.SubmissionBurst, log)

	s := &Simulator{engine: engine, manager: manager, log: log}
	for _, symbol := range cfg.Engine.Symbols {
		s.AddSymbol(symbol, cfg.Engine.StartingPrice[symbol])
	}
	return s
}

// AddSymbol registers symbol with the engine and seeds its last-trade
// price if startingPrice is positive.
func (s *Simulator) AddSymbol(symbol string, startingPrice float64) {
	s.manager.AddSymbol(symbol)
	if startingPrice > 0 {
		if book, ok := s.manager.GetOrderBook(symbol); ok {
			book.SetLastPrice(startingPrice)
		}
	}
}

// Start spawns the matching worker goroutine.
func (s *Simulator) Start() { s.engine.Start() }

// Stop signals the matching worker to exit and blocks until it has.
func (s *Simulator) Stop() { s.engine.Stop() }

// PlaceOrder runs risk checks and, on pass, submits order to the engine.
func (s *Simulator) PlaceOrder(order orderbook.Order) uint64 {
	return s.manager.PlaceOrder(order)
}

// CancelOrder cancels a resting or queued order on behalf of traderID.
func (s *Simulator) CancelOrder(orderID uint64, traderID string) bool {
	return s.manager.CancelOrder(orderID, traderID)
}

// ModifyOrder rewrites a resting or queued order's price/quantity.
func (s *Simulator) ModifyOrder(orderID uint64, newPrice float64, newQuantity uint32, traderID string) bool {
	return s.manager.ModifyOrder(orderID, newPrice, newQuantity, traderID)
}

// GetOrderBook returns the book for symbol, if registered.
func (s *Simulator) GetOrderBook(symbol string) (*orderbook.Book, error) {
	book, ok := s.manager.GetOrderBook(symbol)
	if !ok {
		return nil, fmt.Errorf("velocity: unknown symbol %q", symbol)
	}
	return book, nil
}

// GetPosition returns a snapshot of symbol's current position.
func (s *Simulator) GetPosition(symbol string) ordermanager.Position {
	return s.manager.GetPosition(symbol)
}

// GetAllPositions returns a snapshot of every traded symbol's position.
func (s *Simulator) GetAllPositions() []ordermanager.Position {
	return s.manager.GetAllPositions()
}

// GetTotalPnL, GetDailyPnL and GetMaxDrawdown expose the manager's PnL and
// risk counters.
func (s *Simulator) GetTotalPnL() float64    { return s.manager.GetTotalPnL() }
func (s *Simulator) GetDailyPnL() float64    { return s.manager.GetDailyPnL() }
func (s *Simulator) GetMaxDrawdown() float64 { return s.manager.GetMaxDrawdown() }

// SetRiskLimits atomically replaces the manager's risk limits.
func (s *Simulator) SetRiskLimits(limits ordermanager.RiskLimits) {
	s.manager.SetRiskLimits(limits)
}

// OrderManager exposes the underlying manager for callers that need to
// register execution/position/risk-alert/order-status subscribers
// directly.
func (s *Simulator) OrderManager() *ordermanager.Manager { return s.manager }

// Stats returns the engine's lifetime order/execution/volume counters.
func (s *Simulator) Stats() matching.Stats { return s.engine.Stats() }

// Package ordermanager is the façade above the matching engine: it enforces
// pre-trade risk, tracks positions and PnL from the execution stream, and
// fans out execution/position/risk-alert/order-status notifications to
// subscribers.
package ordermanager

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ab0626/velocity/internal/matching"
	"github.com/ab0626/velocity/internal/orderbook"
	"github.com/ab0626/velocity/internal/riskvalidate"
)

// ExecutionCallback, PositionCallback and RiskAlertCallback are the three
// outbound notification points the manager owns; the order-status
// callback is passed straight through from the engine.
type ExecutionCallback func(matching.Execution)
type PositionCallback func(Position)
type RiskAlertCallback func(reason string)

// Manager is the OrderManager façade: submit-time risk checks, an
// active-order index keyed by trader, and position/PnL bookkeeping driven
// off the engine's execution stream. Locking order across the module is
// manager -> engine -> book; Manager never holds its own lock
// while calling into the engine.
type Manager struct {
	engine *matching.Engine
	log    *logrus.Logger

	mu           sync.Mutex
	limits       RiskLimits
	activeOrders map[string]map[uint64]orderbook.Order // traderID -> orderID -> snapshot
	positions    map[string]Position
	dailyPnL     float64
	peakEquity   float64
	maxDrawdown  float64

	execCallback  ExecutionCallback
	positionCB    PositionCallback
	riskAlertCB   RiskAlertCallback
	orderStatusCB matching.OrderStatusCallback

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rps       rate.Limit
	burst     int
}

// New wires a Manager to engine, registering itself as the engine's
// execution and order-status subscriber. rps/burst configure the
// per-trader submission rate limiter; pass rps <= 0 to disable rate
// limiting entirely.
func New(engine *matching.Engine, limits RiskLimits, rps float64, burst int, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		engine:       engine,
		log:          log,
		limits:       limits,
		activeOrders: make(map[string]map[uint64]orderbook.Order),
		positions:    make(map[string]Position),
		limiters:     make(map[string]*rate.Limiter),
		rps:          rate.Limit(rps),
		burst:        burst,
	}
	engine.SetExecutionCallback(m.onExecution)
	engine.SetOrderStatusCallback(m.onOrderStatus)
	return m
}

// AddSymbol registers symbol with the underlying engine.
func (m *Manager) AddSymbol(symbol string) {
	m.engine.AddSymbol(symbol)
}

// GetOrderBook exposes read access to a symbol's book for market-data
// subscribers.
func (m *Manager) GetOrderBook(symbol string) (*orderbook.Book, bool) {
	return m.engine.GetOrderBook(symbol)
}

// SetExecutionCallback, SetPositionCallback, SetRiskAlertCallback and
// SetOrderStatusCallback register the manager's outbound notification
// points. Not safe to call concurrently with order submission.
func (m *Manager) SetExecutionCallback(cb ExecutionCallback) {
	m.mu.Lock()
	m.execCallback = cb
	m.mu.Unlock()
}

func (m *Manager) SetPositionCallback(cb PositionCallback) {
	m.mu.Lock()
	m.positionCB = cb
	m.mu.Unlock()
}

func (m *Manager) SetRiskAlertCallback(cb RiskAlertCallback) {
	m.mu.Lock()
	m.riskAlertCB = cb
	m.mu.Unlock()
}

func (m *Manager) SetOrderStatusCallback(cb matching.OrderStatusCallback) {
	m.mu.Lock()
	m.orderStatusCB = cb
	m.mu.Unlock()
}

// SetRiskLimits atomically replaces the risk limits used by subsequent
// PlaceOrder calls.
func (m *Manager) SetRiskLimits(limits RiskLimits) {
	m.mu.Lock()
	m.limits = limits
	m.mu.Unlock()
}

// GetRiskLimits returns the currently active risk limits.
func (m *Manager) GetRiskLimits() RiskLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// PlaceOrder runs the "Invalid argument" checks, the rate limiter, and the
// RiskLimits checks in that order; the first failure
// returns id 0 without submitting to the engine and fires the risk-alert
// callback with a human-readable reason.
func (m *Manager) PlaceOrder(o orderbook.Order) uint64 {
	if err := riskvalidate.Validate(o); err != nil {
		m.alert(fmt.Sprintf("rejected %s %s order for %s: %v", o.Symbol, o.Side, o.TraderID, err))
		return 0
	}
	if !m.allowSubmission(o.TraderID) {
		m.alert(fmt.Sprintf("rejected order for %s: submission rate limit exceeded", o.TraderID))
		return 0
	}

	m.mu.Lock()
	limits := m.limits
	dailyPnL := m.dailyPnL
	pos := m.positions[o.Symbol]
	m.mu.Unlock()

	if reason, ok := checkRiskLimits(o, limits, pos, dailyPnL); !ok {
		m.alert(fmt.Sprintf("rejected %s %s order for %s: %s", o.Symbol, o.Side, o.TraderID, reason))
		return 0
	}

	id := m.engine.SubmitOrder(o)
	if id == 0 {
		return 0
	}
	o.ID = id
	m.recordActive(o)
	return id
}

// CancelOrder passes through to the engine and, on success, drops the
// order from the active-order index.
func (m *Manager) CancelOrder(id uint64, traderID string) bool {
	ok := m.engine.CancelOrder(id, traderID)
	if ok {
		m.dropActive(traderID, id)
	}
	return ok
}

// ModifyOrder passes through to the engine and, on success, refreshes the
// active-order index entry.
func (m *Manager) ModifyOrder(id uint64, newPrice float64, newQuantity uint32, traderID string) bool {
	ok := m.engine.ModifyOrder(id, newPrice, newQuantity, traderID)
	if !ok {
		return false
	}
	m.mu.Lock()
	if orders, present := m.activeOrders[traderID]; present {
		if o, present := orders[id]; present {
			o.Price = newPrice
			o.Quantity = newQuantity
			o.FilledQuantity = 0
			orders[id] = o
		}
	}
	m.mu.Unlock()
	return true
}

// GetPosition returns a snapshot of symbol's position, zero-valued if the
// symbol has never traded.
func (m *Manager) GetPosition(symbol string) Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[symbol]; ok {
		return p.clone()
	}
	return Position{Symbol: symbol}
}

// GetAllPositions returns a snapshot of every symbol with a recorded
// position.
func (m *Manager) GetAllPositions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.clone())
	}
	return out
}

// GetTotalPnL returns Σ(realized + unrealized) across all positions.
func (m *Manager) GetTotalPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		total += p.RealizedPnL + p.UnrealizedPnL
	}
	return total
}

// GetDailyPnL returns the running total of realized PnL booked since the
// manager started. There is no calendar-day rollover and no reset: it
// accumulates for the manager's lifetime.
func (m *Manager) GetDailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// GetMaxDrawdown returns the largest peak-to-trough decline in cumulative
// equity observed so far, as a fraction.
func (m *Manager) GetMaxDrawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDrawdown
}

func (m *Manager) recordActive(o orderbook.Order) {
	m.mu.Lock()
	orders, ok := m.activeOrders[o.TraderID]
	if !ok {
		orders = make(map[uint64]orderbook.Order)
		m.activeOrders[o.TraderID] = orders
	}
	orders[o.ID] = o
	m.mu.Unlock()
}

func (m *Manager) dropActive(traderID string, id uint64) {
	m.mu.Lock()
	if orders, ok := m.activeOrders[traderID]; ok {
		delete(orders, id)
	}
	m.mu.Unlock()
}

// onExecution is the engine's execution callback: it updates the position
// for the execution's symbol, rolls the daily PnL and drawdown counters,
// then fires the manager's own execution and position callbacks with no
// lock held.
func (m *Manager) onExecution(exec matching.Execution) {
	m.mu.Lock()
	pos := m.positions[exec.Symbol]
	pos.Symbol = exec.Symbol

	signedQty := int64(exec.Quantity)
	if exec.Side == orderbook.Sell {
		signedQty = -signedQty
	}

	prevQty := pos.Quantity
	pos.Quantity += signedQty

	// Realize PnL only on the portion of this fill that reduces or flips an
	// existing position, so GetTotalPnL/GetDailyPnL move on flat-then-reopen
	// sequences instead of always reading zero.
	var realizedDelta float64
	if prevQty != 0 && (prevQty > 0) != (signedQty > 0) {
		closedQty := minAbs(prevQty, -signedQty)
		realizedDelta = float64(closedQty) * (exec.Price - pos.AvgPrice) * sign(prevQty)
		pos.RealizedPnL += realizedDelta
	}

	// Deliberately simplified: AvgPrice tracks the last execution price
	// rather than a true quantity-weighted average.
	if pos.Quantity != 0 {
		pos.AvgPrice = exec.Price
	} else {
		pos.AvgPrice = 0
	}

	m.dailyPnL += realizedDelta
	m.positions[exec.Symbol] = pos

	m.updateDrawdownLocked()

	execCB := m.execCallback
	posCB := m.positionCB
	m.mu.Unlock()

	if execCB != nil {
		m.safeCall(func() { execCB(exec) })
	}
	if posCB != nil {
		m.safeCall(func() { posCB(pos.clone()) })
	}
}

// updateDrawdownLocked recomputes the peak-equity high-water mark and the
// worst observed drawdown fraction. Caller holds m.mu.
func (m *Manager) updateDrawdownLocked() {
	var equity float64
	for _, p := range m.positions {
		equity += p.RealizedPnL + p.UnrealizedPnL
	}
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.peakEquity > 0 {
		drawdown := (m.peakEquity - equity) / m.peakEquity
		if drawdown > m.maxDrawdown {
			m.maxDrawdown = drawdown
		}
	}
}

func (m *Manager) onOrderStatus(o orderbook.Order) {
	m.mu.Lock()
	if orders, ok := m.activeOrders[o.TraderID]; ok {
		if o.Status == orderbook.Filled || o.Status == orderbook.Cancelled || o.Status == orderbook.Rejected {
			delete(orders, o.ID)
		} else {
			orders[o.ID] = o
		}
	}
	cb := m.orderStatusCB
	m.mu.Unlock()

	if cb != nil {
		m.safeCall(func() { cb(o) })
	}
}

func (m *Manager) alert(reason string) {
	m.mu.Lock()
	cb := m.riskAlertCB
	m.mu.Unlock()
	m.log.WithField("reason", reason).Warn("ordermanager: risk alert")
	if cb != nil {
		m.safeCall(func() { cb(reason) })
	}
}

func (m *Manager) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("ordermanager: recovered subscriber callback panic")
		}
	}()
	fn()
}

// allowSubmission enforces a per-trader token-bucket limit on order
// submission. Disabled when rps <= 0.
func (m *Manager) allowSubmission(traderID string) bool {
	if m.rps <= 0 {
		return true
	}
	m.limiterMu.Lock()
	lim, ok := m.limiters[traderID]
	if !ok {
		lim = rate.NewLimiter(m.rps, m.burst)
		m.limiters[traderID] = lim
	}
	m.limiterMu.Unlock()
	return lim.Allow()
}

func minAbs(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a < b {
		return a
	}
	return b
}

func sign(v int64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

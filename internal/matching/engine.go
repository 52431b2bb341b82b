// Package matching owns one Book per symbol, serializes submitted order
// intents through a single matching goroutine, and applies the limit and
// market matching algorithms.
package matching

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ab0626/velocity/internal/orderbook"
)

// ExecutionCallback is invoked once per fill, with no engine or book lock
// held.
type ExecutionCallback func(Execution)

// OrderStatusCallback is invoked after each status transition of any order
// touched by a matching cycle (the taker as well as any maker orders it
// consumed), with no engine or book lock held.
type OrderStatusCallback func(orderbook.Order)

// Stats is a point-in-time snapshot of the engine's lifetime counters.
type Stats struct {
	TotalOrdersProcessed uint64
	TotalExecutions      uint64
	TotalVolume          float64
}

// Engine owns one Book per symbol and a single-consumer submission queue.
// Locking order across the module is manager -> engine -> book; Engine
// reaches an OrderManager only through its registered callbacks, which it
// invokes with no engine or book lock held.
type Engine struct {
	mu      sync.Mutex
	cond    *sync.Cond
	books   map[string]*orderbook.Book
	queue   []orderbook.Order
	running bool
	stopped chan struct{}

	orderIDs sequencer
	execIDs  sequencer

	execCallback   ExecutionCallback
	statusCallback OrderStatusCallback

	statsMu sync.Mutex
	stats   Stats

	log *logrus.Logger
}

// NewEngine constructs a stopped Engine with no symbols registered. Call
// AddSymbol for each traded symbol and Start before submitting orders.
func NewEngine(log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		books: make(map[string]*orderbook.Book),
		log:   log,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// AddSymbol idempotently registers symbol with a fresh, empty Book.
func (e *Engine) AddSymbol(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[symbol]; ok {
		return
	}
	e.books[symbol] = orderbook.New(symbol)
}

// GetOrderBook returns the Book registered for symbol, if any.
func (e *Engine) GetOrderBook(symbol string) (*orderbook.Book, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	return b, ok
}

// SetExecutionCallback registers the callback fired once per fill. Not
// safe to call concurrently with Start.
func (e *Engine) SetExecutionCallback(cb ExecutionCallback) {
	e.mu.Lock()
	e.execCallback = cb
	e.mu.Unlock()
}

// SetOrderStatusCallback registers the callback fired after each order
// status transition. Not safe to call concurrently with Start.
func (e *Engine) SetOrderStatusCallback(cb OrderStatusCallback) {
	e.mu.Lock()
	e.statusCallback = cb
	e.mu.Unlock()
}

// Stats returns a snapshot of the engine's lifetime counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Start spawns the matching goroutine. Calling Start on an already-running
// engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopped = make(chan struct{})
	e.mu.Unlock()

	go e.matchingLoop()
}

// Stop signals the matching goroutine to exit and blocks until it has.
// Any intents still queued are discarded. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopped := e.stopped
	e.cond.Broadcast()
	e.mu.Unlock()

	<-stopped
}

// SubmitOrder stamps a fresh monotonic id and timestamp on order, enqueues
// it, and returns the id synchronously. A call that returns id N is
// guaranteed to have been enqueued before any call that returns N+1: id
// assignment and enqueue happen as one step under e.mu, so two concurrent
// callers can never be handed ids in one order and appended to the queue
// in the other.
func (e *Engine) SubmitOrder(order orderbook.Order) uint64 {
	order.Timestamp = time.Now()
	order.Status = orderbook.Pending

	e.mu.Lock()
	order.ID = e.orderIDs.Next()
	e.queue = append(e.queue, order)
	e.cond.Signal()
	e.mu.Unlock()

	e.statsMu.Lock()
	e.stats.TotalOrdersProcessed++
	e.statsMu.Unlock()

	return order.ID
}

// CancelOrder reports true iff order id was found either still in the
// submission queue (trader-id matched) or resting in its symbol's book and
// removed there. It is best-effort: a race with the matching goroutine may
// mean the order was already filled by the time this call runs.
func (e *Engine) CancelOrder(id uint64, traderID string) bool {
	e.mu.Lock()
	for i, o := range e.queue {
		if o.ID == id && o.TraderID == traderID {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			e.mu.Unlock()
			return true
		}
	}
	books := make([]*orderbook.Book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.Unlock()

	for _, b := range books {
		owner, found := b.OwnerOf(id)
		if !found {
			continue
		}
		if owner != traderID {
			// Belongs to someone else. A real venue would reject this as
			// unauthorized; the core treats it as "not found" to avoid
			// leaking book contents, and leaves the order untouched so it
			// keeps its time priority.
			return false
		}
		if snap, ok := b.CancelOrder(id); ok {
			e.fireStatus(snap)
			return true
		}
		return false
	}
	return false
}

// ModifyOrder rewrites order id's price/quantity, either in the submission
// queue (preserving its queue position) if it has not yet been applied to
// a book, or as cancel-and-add in the book (losing time priority)
// otherwise.
func (e *Engine) ModifyOrder(id uint64, newPrice float64, newQuantity uint32, traderID string) bool {
	e.mu.Lock()
	for i := range e.queue {
		if e.queue[i].ID == id && e.queue[i].TraderID == traderID {
			e.queue[i].Price = newPrice
			e.queue[i].Quantity = newQuantity
			e.mu.Unlock()
			return true
		}
	}
	books := make([]*orderbook.Book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.Unlock()

	for _, b := range books {
		owner, found := b.OwnerOf(id)
		if !found {
			continue
		}
		if owner != traderID {
			// Belongs to someone else; leave it untouched, same as CancelOrder.
			return false
		}
		if snap, ok := b.ModifyOrder(id, newPrice, newQuantity); ok {
			e.fireStatus(snap)
			return true
		}
		return false
	}
	return false
}

func (e *Engine) fireExecution(exec Execution) {
	e.statsMu.Lock()
	e.stats.TotalExecutions++
	e.stats.TotalVolume += exec.Price * float64(exec.Quantity)
	e.statsMu.Unlock()

	e.mu.Lock()
	cb := e.execCallback
	e.mu.Unlock()
	if cb == nil {
		return
	}
	e.safeCall(func() { cb(exec) })
}

func (e *Engine) fireStatus(o orderbook.Order) {
	e.mu.Lock()
	cb := e.statusCallback
	e.mu.Unlock()
	if cb == nil {
		return
	}
	e.safeCall(func() { cb(o) })
}

// safeCall recovers a panicking subscriber callback so the matching
// goroutine survives it: the panic is caught, logged, and the worker
// continues.
func (e *Engine) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("matching: recovered subscriber callback panic")
		}
	}()
	fn()
}

func (e *Engine) matchingLoop() {
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && e.running {
			e.cond.Wait()
		}
		if !e.running {
			stopped := e.stopped
			e.mu.Unlock()
			close(stopped)
			return
		}
		order := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.processOrder(order)
	}
}

func (e *Engine) processOrder(order orderbook.Order) {
	if !validIntent(order) {
		e.log.WithFields(logrus.Fields{
			"order_id": order.ID,
			"symbol":   order.Symbol,
		}).Warn("matching: dropped invalid intent")
		return
	}

	book, ok := e.GetOrderBook(order.Symbol)
	if !ok {
		e.log.WithField("symbol", order.Symbol).Warn("matching: dropped intent for unknown symbol")
		return
	}

	if order.Type == orderbook.Market {
		e.processMarketOrder(book, order)
		return
	}
	e.processLimitOrder(book, order)
}

// validIntent rejects the malformed intents the engine silently drops:
// empty symbol, zero quantity, non-positive price for a priced type, and
// Stop/StopLimit orders (stop-triggering is a strategy-layer concern out
// of scope for this core).
func validIntent(o orderbook.Order) bool {
	if o.Symbol == "" || o.Quantity == 0 {
		return false
	}
	if o.Type != orderbook.Limit && o.Type != orderbook.Market {
		return false
	}
	if o.Type == orderbook.Limit && o.Price <= 0 {
		return false
	}
	return true
}

func (e *Engine) processLimitOrder(book *orderbook.Book, order orderbook.Order) {
	resting := order
	book.AddOrder(&resting)
	e.fireStatus(resting.Clone())

	e.crossLoop(book, order.ID, order.Side, order.TraderID)
}

// crossLoop repeatedly matches the top bid against the top ask while the
// book is crossed, at the midpoint-of-crossing execution price. takerID,
// takerSide, and traderID identify the order whose submission triggered
// this cycle; every Execution emitted here is tagged with that identity,
// treating it as the taker, even though later iterations may consume
// different resting maker orders.
func (e *Engine) crossLoop(book *orderbook.Book, takerID uint64, takerSide orderbook.Side, traderID string) {
	for {
		bidTop := book.TopOfBook(orderbook.Buy)
		askTop := book.TopOfBook(orderbook.Sell)
		if bidTop == nil || askTop == nil || bidTop.Price < askTop.Price {
			return
		}

		bidHead := book.PeekHead(orderbook.Buy)
		askHead := book.PeekHead(orderbook.Sell)
		if bidHead == nil || askHead == nil {
			return
		}

		tradeQty := min32(bidHead.Remaining(), askHead.Remaining())
		if tradeQty == 0 {
			return
		}
		price := (bidTop.Price + askTop.Price) / 2

		filledBid, filledAsk, ok := book.FillCross(bidTop.Price, bidHead.ID, askTop.Price, askHead.ID, tradeQty, price)
		if !ok {
			// a concurrent cancel or modify moved one of the heads since the
			// peek above; re-read current state and try again.
			continue
		}

		e.fireExecution(Execution{
			ExecutionID: e.execIDs.Next(),
			OrderID:     takerID,
			Symbol:      book.Symbol(),
			Side:        takerSide,
			Price:       price,
			Quantity:    tradeQty,
			Timestamp:   time.Now(),
			TraderID:    traderID,
		})
		e.fireStatus(filledBid)
		e.fireStatus(filledAsk)
	}
}

// processMarketOrder walks the opposite side from the best price outward
// at the resting (maker) price, consuming quantity until order is
// exhausted or that side empties. Any unfilled remainder is dropped, not
// re-queued as a limit.
func (e *Engine) processMarketOrder(book *orderbook.Book, order orderbook.Order) {
	opposite := orderbook.Sell
	if order.Side == orderbook.Sell {
		opposite = orderbook.Buy
	}

	remaining := order.Quantity
	for remaining > 0 {
		top := book.TopOfBook(opposite)
		if top == nil {
			break
		}
		head := book.PeekHead(opposite)
		if head == nil {
			break
		}

		tradeQty := min32(remaining, head.Remaining())
		if tradeQty == 0 {
			break
		}
		price := top.Price

		filled, ok := book.FillHead(opposite, top.Price, head.ID, tradeQty, price)
		if !ok {
			// a concurrent cancel or modify moved the head since the peek
			// above; re-read current state and try again.
			continue
		}
		remaining -= tradeQty
		order.FilledQuantity += tradeQty

		e.fireExecution(Execution{
			ExecutionID: e.execIDs.Next(),
			OrderID:     order.ID,
			Symbol:      book.Symbol(),
			Side:        order.Side,
			Price:       price,
			Quantity:    tradeQty,
			Timestamp:   time.Now(),
			TraderID:    order.TraderID,
		})
		e.fireStatus(filled)
	}

	switch {
	case order.FilledQuantity == 0:
		order.Status = orderbook.Cancelled
	case order.FilledQuantity < order.Quantity:
		order.Status = orderbook.Partial
	default:
		order.Status = orderbook.Filled
	}
	e.fireStatus(order.Clone())
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

package orderbook

import "sync"

// PriceCallback is notified whenever a mutation changes either cached best
// price. It is always invoked with the book's lock released.
type PriceCallback func(symbol string, bestBid, bestAsk float64)

// Book holds the resting bids and asks for one symbol under price-time
// priority. Book does not match orders; matching is package matching's
// responsibility, driven through AddOrder and the engine-only
// PeekHead/FillHead/FillCross methods.
type Book struct {
	mu sync.RWMutex

	symbol string
	bids   *rbTree // descending priority: highest price first
	asks   *rbTree // ascending priority: lowest price first
	index  map[uint64]*Order

	bestBid   float64
	bestAsk   float64
	lastPrice float64
	seq       uint64

	callback PriceCallback
}

// New creates an empty book for symbol.
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   newRBTree(),
		asks:   newRBTree(),
		index:  make(map[uint64]*Order),
	}
}

// Symbol returns the book's symbol.
func (b *Book) Symbol() string {
	return b.symbol
}

// SetPriceCallback registers the callback invoked on best-price changes.
// Not safe to call concurrently with book mutations.
func (b *Book) SetPriceCallback(cb PriceCallback) {
	b.mu.Lock()
	b.callback = cb
	b.mu.Unlock()
}

func (b *Book) treeFor(side Side) *rbTree {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// AddOrder appends o to the tail of its price level on its side and
// refreshes cached best prices. It does not cross against the opposite
// side; crossing is the matching engine's responsibility. o.ID must already
// be a unique, non-zero identifier stamped by the caller (the matching
// engine).
func (b *Book) AddOrder(o *Order) {
	b.mu.Lock()
	b.seq++
	lvl := b.treeFor(o.Side).GetOrCreate(o.Price)
	lvl.Enqueue(o)
	b.index[o.ID] = o

	changed := b.refreshBestLocked()
	cb, bid, ask := b.callback, b.bestBid, b.bestAsk
	b.mu.Unlock()

	if changed && cb != nil {
		cb(b.symbol, bid, ask)
	}
}

// OwnerOf reports the trader id of the resting order id, if any. Callers
// that must authorize a cancel or modify before touching the book use this
// to check ownership first, rather than removing the order and restoring
// it on a mismatch: a restore would re-enqueue at the tail of its level
// and cost the order its time priority even though the operation was
// supposed to be a no-op.
func (b *Book) OwnerOf(id uint64) (traderID string, found bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.index[id]
	if !ok {
		return "", false
	}
	return o.TraderID, true
}

// CancelOrder removes the resting order id from its level, if present. It
// is a no-op (no error) when id is absent. The returned bool reports
// whether id was found; when true, the returned Order is a snapshot with
// Status set to Cancelled.
func (b *Book) CancelOrder(id uint64) (Order, bool) {
	b.mu.Lock()
	o, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return Order{}, false
	}
	o.Status = Cancelled
	snapshot := o.Clone()
	b.removeLocked(o)
	changed := b.refreshBestLocked()
	cb, bid, ask := b.callback, b.bestBid, b.bestAsk
	b.mu.Unlock()

	if changed && cb != nil {
		cb(b.symbol, bid, ask)
	}
	return snapshot, true
}

// removeLocked unlinks o from its level and the book's index. Caller holds
// b.mu.
func (b *Book) removeLocked(o *Order) {
	lvl := o.lvl
	if lvl == nil {
		delete(b.index, o.ID)
		return
	}
	lvl.Remove(o)
	if lvl.Empty() {
		b.treeFor(o.Side).Delete(lvl.Price)
	}
	delete(b.index, o.ID)
}

// ModifyOrder is observationally cancel-then-add: it removes the resting
// order (if present) and re-adds it with the new price/quantity at the
// tail of its (possibly new) level, so it loses time priority. Returns
// false if id was not resting in the book; otherwise returns a snapshot
// of the order in its post-modify state.
func (b *Book) ModifyOrder(id uint64, newPrice float64, newQuantity uint32) (Order, bool) {
	b.mu.Lock()
	o, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return Order{}, false
	}
	b.removeLocked(o)

	o.Price = newPrice
	o.Quantity = newQuantity
	o.FilledQuantity = 0
	o.Status = Pending
	lvl := b.treeFor(o.Side).GetOrCreate(newPrice)
	lvl.Enqueue(o)
	b.index[o.ID] = o

	snapshot := o.Clone()
	changed := b.refreshBestLocked()
	cb, bid, ask := b.callback, b.bestBid, b.bestAsk
	b.mu.Unlock()

	if changed && cb != nil {
		cb(b.symbol, bid, ask)
	}
	return snapshot, true
}

// refreshBestLocked recomputes bestBid/bestAsk and reports whether either
// changed. Caller holds b.mu.
func (b *Book) refreshBestLocked() bool {
	oldBid, oldAsk := b.bestBid, b.bestAsk

	if lvl := b.bids.Max(); lvl != nil {
		b.bestBid = lvl.Price
	} else {
		b.bestBid = 0
	}
	if lvl := b.asks.Min(); lvl != nil {
		b.bestAsk = lvl.Price
	} else {
		b.bestAsk = 0
	}

	return b.bestBid != oldBid || b.bestAsk != oldAsk
}

// BestBid returns the highest resting bid price, or 0 when the bid side is
// empty.
func (b *Book) BestBid() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBid
}

// BestAsk returns the lowest resting ask price, or 0 when the ask side is
// empty.
func (b *Book) BestAsk() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestAsk
}

// MidPrice returns (bestBid+bestAsk)/2 when both sides are non-empty, else
// LastPrice.
func (b *Book) MidPrice() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bestBid > 0 && b.bestAsk > 0 {
		return (b.bestBid + b.bestAsk) / 2
	}
	return b.lastPrice
}

// Spread returns bestAsk-bestBid when both sides are non-empty, else 0.
func (b *Book) Spread() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bestBid > 0 && b.bestAsk > 0 {
		return b.bestAsk - b.bestBid
	}
	return 0
}

// LastPrice returns the most recently administratively-set or executed
// trade price.
func (b *Book) LastPrice() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice
}

// SetLastPrice is administrative: it seeds the last-trade price cache
// without touching the book itself, used by callers to prime a symbol
// before any trades have occurred.
func (b *Book) SetLastPrice(price float64) {
	b.mu.Lock()
	b.lastPrice = price
	b.mu.Unlock()
}

// LevelSnapshot is a read-only copy of one price level's aggregate state.
type LevelSnapshot struct {
	Price         float64
	TotalQuantity uint32
	OrderCount    int
}

// BidLevels returns up to depth bid levels, best price first.
func (b *Book) BidLevels(depth int) []LevelSnapshot {
	return b.levels(b.bids, depth, true)
}

// AskLevels returns up to depth ask levels, best price first.
func (b *Book) AskLevels(depth int) []LevelSnapshot {
	return b.levels(b.asks, depth, false)
}

func (b *Book) levels(t *rbTree, depth int, descending bool) []LevelSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LevelSnapshot, 0, depth)
	visit := func(lvl *PriceLevel) bool {
		out = append(out, LevelSnapshot{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.count})
		return len(out) < depth
	}
	if descending {
		t.WalkDescending(visit)
	} else {
		t.WalkAscending(visit)
	}
	return out
}

// OrdersAt returns a snapshot of the resting orders at price on side, head
// (earliest arrival) first. The copies are safe to read without the book's
// lock.
func (b *Book) OrdersAt(side Side, price float64) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lvl := b.treeFor(side).Find(price)
	if lvl == nil {
		return nil
	}
	return lvl.Orders()
}

// TopOfBook returns the best level on side, or nil if that side is empty.
func (b *Book) TopOfBook(side Side) *LevelSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var lvl *PriceLevel
	if side == Buy {
		lvl = b.bids.Max()
	} else {
		lvl = b.asks.Min()
	}
	if lvl == nil {
		return nil
	}
	return &LevelSnapshot{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.count}
}

// ClearBook empties both sides and zeroes the cached prices.
func (b *Book) ClearBook() {
	b.mu.Lock()
	b.bids = newRBTree()
	b.asks = newRBTree()
	b.index = make(map[uint64]*Order)
	b.bestBid, b.bestAsk, b.lastPrice = 0, 0, 0
	b.mu.Unlock()
}

// SequenceNumber returns the book's monotonically increasing counter of
// AddOrder, FillHead and FillCross calls. CancelOrder, ModifyOrder and
// ClearBook do not advance it.
func (b *Book) SequenceNumber() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// --- direct mutation used only by the matching engine during a crossing cycle ---

// FillHead consumes qty from the head order at price on side, removing the
// level or the head order as needed, and setting lastPrice to the fill
// price. expectedID must match the id of the order actually at the head;
// if a concurrent cancel or modify has changed the head since the caller's
// last peek, FillHead mutates nothing and reports ok=false so the caller
// can re-peek and retry. The caller (package matching) is responsible for
// deciding trade quantities and prices; Book only applies the mechanical
// bookkeeping.
func (b *Book) FillHead(side Side, price float64, expectedID uint64, qty uint32, fillPrice float64) (filled Order, ok bool) {
	b.mu.Lock()
	lvl := b.treeFor(side).Find(price)
	if lvl == nil || lvl.Empty() {
		b.mu.Unlock()
		return Order{}, false
	}
	head := lvl.Head()
	if head.ID != expectedID {
		b.mu.Unlock()
		return Order{}, false
	}
	lvl.DecrementFilled(head, qty)
	b.lastPrice = fillPrice
	b.seq++

	fullyFilled := head.Remaining() == 0
	if fullyFilled {
		head.Status = Filled
		lvl.Remove(head)
		if lvl.Empty() {
			b.treeFor(side).Delete(price)
		}
		delete(b.index, head.ID)
	} else {
		head.Status = Partial
	}

	snapshot := head.Clone()
	changed := b.refreshBestLocked()
	cb, bid, ask := b.callback, b.bestBid, b.bestAsk
	b.mu.Unlock()

	if changed && cb != nil {
		cb(b.symbol, bid, ask)
	}
	return snapshot, true
}

// FillCross atomically fills the head bid and head ask in one lock
// acquisition, applying qty to each. bidID and askID must match the
// orders actually at each head; if either has moved since the caller's
// last peek (a concurrent cancel or modify), FillCross mutates neither
// side and reports ok=false so the caller can re-peek and retry. This
// keeps a two-sided cross from partially applying: a bid fill is never
// recorded without its matching ask fill, or vice versa.
func (b *Book) FillCross(bidPrice float64, bidID uint64, askPrice float64, askID uint64, qty uint32, fillPrice float64) (filledBid, filledAsk Order, ok bool) {
	b.mu.Lock()

	bidLvl := b.bids.Find(bidPrice)
	if bidLvl == nil || bidLvl.Empty() || bidLvl.Head().ID != bidID {
		b.mu.Unlock()
		return Order{}, Order{}, false
	}
	askLvl := b.asks.Find(askPrice)
	if askLvl == nil || askLvl.Empty() || askLvl.Head().ID != askID {
		b.mu.Unlock()
		return Order{}, Order{}, false
	}

	bidHead := bidLvl.Head()
	bidLvl.DecrementFilled(bidHead, qty)
	askHead := askLvl.Head()
	askLvl.DecrementFilled(askHead, qty)

	b.lastPrice = fillPrice
	b.seq++

	finish := func(lvl *PriceLevel, head *Order, side Side, price float64) Order {
		if head.Remaining() == 0 {
			head.Status = Filled
			lvl.Remove(head)
			if lvl.Empty() {
				b.treeFor(side).Delete(price)
			}
			delete(b.index, head.ID)
		} else {
			head.Status = Partial
		}
		return head.Clone()
	}

	filledBid = finish(bidLvl, bidHead, Buy, bidPrice)
	filledAsk = finish(askLvl, askHead, Sell, askPrice)

	changed := b.refreshBestLocked()
	cb, bid, ask := b.callback, b.bestBid, b.bestAsk
	b.mu.Unlock()

	if changed && cb != nil {
		cb(b.symbol, bid, ask)
	}
	return filledBid, filledAsk, true
}

// PeekHead returns a snapshot of the earliest order resting at the best
// price on side, or nil if that side is empty. The returned Order is a
// copy safe to read without the book's lock; use its ID with FillHead or
// FillCross to fill the order it names. Used by the matching engine to
// decide trade quantities before filling.
func (b *Book) PeekHead(side Side) *Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var lvl *PriceLevel
	if side == Buy {
		lvl = b.bids.Max()
	} else {
		lvl = b.asks.Min()
	}
	if lvl == nil || lvl.Empty() {
		return nil
	}
	snapshot := lvl.Head().Clone()
	return &snapshot
}

package orderbook

// PriceLevel is a FIFO queue of resting orders at a single price. Head is
// the earliest arrival and matches first.
type PriceLevel struct {
	Price         float64
	TotalQuantity uint32

	head  *Order
	tail  *Order
	count int
}

func newPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Enqueue appends o to the tail of the level, behind every order already
// resting there in time priority.
func (p *PriceLevel) Enqueue(o *Order) {
	o.next = nil
	o.prev = p.tail
	if p.tail != nil {
		p.tail.next = o
	} else {
		p.head = o
	}
	p.tail = o
	o.lvl = p
	p.TotalQuantity += o.Remaining()
	p.count++
}

// Remove unlinks o from the level's queue, wherever it sits, and adjusts
// TotalQuantity by its current remaining quantity. It is a no-op if o is
// not linked into this level.
func (p *PriceLevel) Remove(o *Order) {
	if o.lvl != p {
		return
	}
	if o.prev != nil {
		o.prev.next = o.next
	} else if p.head == o {
		p.head = o.next
	} else {
		return
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else if p.tail == o {
		p.tail = o.prev
	}
	p.TotalQuantity -= o.Remaining()
	p.count--
	o.next = nil
	o.prev = nil
	o.lvl = nil
}

// Head returns the earliest-arrival order, or nil if the level is empty.
func (p *PriceLevel) Head() *Order {
	return p.head
}

// Empty reports whether the level has no resting orders.
func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Orders returns a snapshot slice of the level's resting orders, head
// first, safe to hand to a caller.
func (p *PriceLevel) Orders() []Order {
	out := make([]Order, 0, p.count)
	for o := p.head; o != nil; o = o.next {
		out = append(out, o.Clone())
	}
	return out
}

// DecrementFilled reduces o's remaining quantity by qty and keeps the
// level's TotalQuantity in sync. Callers must remove o once its remaining
// quantity reaches zero.
func (p *PriceLevel) DecrementFilled(o *Order, qty uint32) {
	o.FilledQuantity += qty
	p.TotalQuantity -= qty
}

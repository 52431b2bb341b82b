package matching

import (
	"time"

	"github.com/ab0626/velocity/internal/orderbook"
)

// Execution is an immutable record of one successful crossing, created by
// the matching worker and never mutated afterward.
type Execution struct {
	ExecutionID uint64
	OrderID     uint64
	Symbol      string
	Side        orderbook.Side
	Price       float64
	Quantity    uint32
	Timestamp   time.Time
	TraderID    string
}

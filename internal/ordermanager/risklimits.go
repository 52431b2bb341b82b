package ordermanager

import (
	"fmt"

	"github.com/ab0626/velocity/internal/orderbook"
)

// RiskLimits gates every order at PlaceOrder. It is owned by the Manager
// and only mutated wholesale via SetRiskLimits.
type RiskLimits struct {
	MaxOrderSize     uint32
	MaxPositionValue float64
	MaxDailyLoss     float64
	MaxDrawdown      float64

	// MaxLeverage bounds projected notional exposure to a multiple of
	// MaxPositionValue.
	MaxLeverage float64
}

// DefaultRiskLimits returns a conservative starting set of limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxOrderSize:     10000,
		MaxPositionValue: 1_000_000.0,
		MaxDailyLoss:     50_000.0,
		MaxDrawdown:      0.1,
		MaxLeverage:      2.0,
	}
}

// checkRiskLimits runs the five checks in order and reports the first
// one that fails. pos is the current position for
// o.Symbol (zero-valued if none yet), dailyPnL the manager's running daily
// PnL. Basic argument validity (empty symbol, bad enum, non-finite price)
// is checked earlier, by riskvalidate.Validate.
func checkRiskLimits(o orderbook.Order, limits RiskLimits, pos Position, dailyPnL float64) (reason string, ok bool) {
	if o.Quantity == 0 || o.Quantity > limits.MaxOrderSize {
		return fmt.Sprintf("order size %d exceeds max_order_size %d", o.Quantity, limits.MaxOrderSize), false
	}

	signedQty := int64(o.Quantity)
	if o.Side == orderbook.Sell {
		signedQty = -signedQty
	}
	projected := pos.Quantity + signedQty
	if abs64(projected) > int64(limits.MaxOrderSize) {
		return fmt.Sprintf("projected position %d exceeds max_order_size proxy %d", projected, limits.MaxOrderSize), false
	}

	notional := o.Price * float64(o.Quantity)
	if o.Type == orderbook.Market {
		// Market orders carry no price; approximate notional against the
		// position's last average price when one exists, else skip the
		// check (there is nothing to project against).
		notional = pos.AvgPrice * float64(o.Quantity)
	}
	if notional > limits.MaxPositionValue {
		return fmt.Sprintf("notional %.2f exceeds max_position_value %.2f", notional, limits.MaxPositionValue), false
	}

	if dailyPnL <= -limits.MaxDailyLoss {
		return fmt.Sprintf("daily pnl %.2f breaches max_daily_loss floor -%.2f", dailyPnL, limits.MaxDailyLoss), false
	}

	if limits.MaxLeverage > 0 {
		leverageNotional := float64(abs64(projected)) * o.Price
		if o.Type == orderbook.Market {
			leverageNotional = float64(abs64(projected)) * pos.AvgPrice
		}
		if leverageNotional > limits.MaxLeverage*limits.MaxPositionValue {
			return fmt.Sprintf("projected exposure %.2f exceeds max_leverage*max_position_value %.2f", leverageNotional, limits.MaxLeverage*limits.MaxPositionValue), false
		}
	}

	return "", true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

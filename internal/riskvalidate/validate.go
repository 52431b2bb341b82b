// Package riskvalidate implements the "invalid argument" tier of order
// validation, ahead of the RiskLimits checks in internal/ordermanager.
package riskvalidate

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ab0626/velocity/internal/orderbook"
)

var (
	instance *validator.Validate
	once     sync.Once
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
		instance.RegisterValidation("finiteprice", finitePrice)
	})
	return instance
}

// finitePrice rejects NaN and +/-Inf; negative and zero are allowed through
// here and rejected by the type-aware check below, since Market orders
// carry Price == 0 legitimately.
func finitePrice(fl validator.FieldLevel) bool {
	p := fl.Field().Float()
	return !math.IsNaN(p) && !math.IsInf(p, 0)
}

// intentDTO is the validator-tagged shape of an order's basic validity:
// non-empty symbol, valid enum variants, finite price. Type only accepts
// Limit and Market: Stop and StopLimit are rejected here rather than
// further down in the matching engine, so a stop order never gets a live
// order id it can neither fill nor cancel.
type intentDTO struct {
	Symbol   string         `validate:"required"`
	Side     orderbook.Side `validate:"oneof=0 1"`
	Type     orderbook.Type `validate:"oneof=0 1"`
	Price    float64        `validate:"finiteprice"`
	Quantity uint32         `validate:"required,gt=0"`
}

// Validate runs the struct-tag checks and the type-aware price rule that
// validator's tag language can't express (price required and positive for
// Limit orders, never negative for any type), returning the first
// violation found.
func Validate(o orderbook.Order) error {
	dto := intentDTO{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Type:     o.Type,
		Price:    o.Price,
		Quantity: o.Quantity,
	}
	if err := get().Struct(dto); err != nil {
		return fmt.Errorf("riskvalidate: %w", err)
	}
	if o.Type == orderbook.Limit && o.Price <= 0 {
		return fmt.Errorf("riskvalidate: price must be positive for order type %s", o.Type)
	}
	if o.Price < 0 {
		return fmt.Errorf("riskvalidate: price must not be negative for order type %s", o.Type)
	}
	return nil
}

package domain

import (
	"github.com/shopspring/decimal"
)

// Instrument is a tradable linear perpetual contract.
// Immutable between universe refreshes.
type Instrument struct {
	Symbol      string          `json:"symbol"`
	TickSize    decimal.Decimal `json:"tick_size"`
	QtyStep     decimal.Decimal `json:"qty_step"`
	MinQty      decimal.Decimal `json:"min_qty"`
	MaxQty      decimal.Decimal `json:"max_qty"`
	MinNotional decimal.Decimal `json:"min_notional"`
}

// RoundTrigger rounds a trigger price to the tick size, biased toward fill:
// floor for long, ceil for short. A non-positive tick leaves the price as is.
func (i Instrument) RoundTrigger(price float64, side Side) float64 {
	if !i.TickSize.IsPositive() {
		return price
	}
	steps := decimal.NewFromFloat(price).Div(i.TickSize)
	if side == SideShort {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	f, _ := steps.Mul(i.TickSize).Float64()
	return f
}

// RoundPrice rounds to the nearest tick.
func (i Instrument) RoundPrice(price float64) float64 {
	if !i.TickSize.IsPositive() {
		return price
	}
	f, _ := decimal.NewFromFloat(price).Div(i.TickSize).Round(0).Mul(i.TickSize).Float64()
	return f
}

// RoundQty floors a quantity to the qty step.
func (i Instrument) RoundQty(qty float64) float64 {
	if !i.QtyStep.IsPositive() {
		return qty
	}
	f, _ := decimal.NewFromFloat(qty).Div(i.QtyStep).Floor().Mul(i.QtyStep).Float64()
	return f
}

// FormatPrice renders a price with the tick size's precision.
func (i Instrument) FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(places(i.TickSize))
}

// FormatQty renders a quantity with the qty step's precision.
func (i Instrument) FormatQty(qty float64) string {
	return decimal.NewFromFloat(qty).StringFixed(places(i.QtyStep))
}

func places(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 8
	}
	if e := step.Exponent(); e < 0 {
		return -e
	}
	return 0
}

package common

import (
	"github.com/shopspring/decimal"
)

// Filters holds the per-pair precision rules parsed from SymbolInfo.
// All arithmetic is decimal; float64 only crosses the boundary at the edges.
type Filters struct {
	Pair        string
	StepSize    decimal.Decimal
	TickSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// ParseFilters converts a catalog entry into usable decimal filters.
func ParseFilters(info SymbolInfo) (Filters, error) {
	f := Filters{Pair: info.Pair}
	var err error
	parse := func(s string) decimal.Decimal {
		if err != nil || s == "" {
			return decimal.Zero
		}
		var d decimal.Decimal
		d, err = decimal.NewFromString(s)
		return d
	}
	f.StepSize = parse(info.StepSize)
	f.TickSize = parse(info.TickSize)
	f.MinQty = parse(info.MinQty)
	f.MaxQty = parse(info.MaxQty)
	f.MinNotional = parse(info.MinNotional)
	if err != nil {
		return Filters{}, E(CodeValidation, "bad filter values for %s: %v", info.Pair, err)
	}
	return f, nil
}

// roundToIncrement snaps v to the nearest multiple of inc, half up.
func roundToIncrement(v, inc decimal.Decimal) decimal.Decimal {
	if inc.IsZero() {
		return v
	}
	return v.Div(inc).Round(0).Mul(inc)
}

// RoundQty snaps a quantity to the step size and clamps it below MaxQty.
// The result is always step-aligned. Quantities under MinQty are returned
// rounded, not inflated; validation rejects them.
func (f Filters) RoundQty(qty float64) float64 {
	d := roundToIncrement(decimal.NewFromFloat(qty), f.StepSize)
	if !f.MaxQty.IsZero() && d.GreaterThan(f.MaxQty) {
		d = roundToIncrement(f.MaxQty, f.StepSize)
		if d.GreaterThan(f.MaxQty) {
			d = d.Sub(f.StepSize)
		}
	}
	out, _ := d.Float64()
	return out
}

// RoundPrice snaps a price to the tick size, half up.
func (f Filters) RoundPrice(price float64) float64 {
	out, _ := roundToIncrement(decimal.NewFromFloat(price), f.TickSize).Float64()
	return out
}

// QtyAligned reports whether qty sits on the step grid within bounds.
func (f Filters) QtyAligned(qty float64) bool {
	d := decimal.NewFromFloat(qty)
	if !f.MinQty.IsZero() && d.LessThan(f.MinQty) {
		return false
	}
	if !f.MaxQty.IsZero() && d.GreaterThan(f.MaxQty) {
		return false
	}
	if f.StepSize.IsZero() {
		return true
	}
	return d.Mod(f.StepSize).IsZero()
}

// PriceAligned reports whether price sits on the tick grid.
func (f Filters) PriceAligned(price float64) bool {
	if f.TickSize.IsZero() {
		return true
	}
	return decimal.NewFromFloat(price).Mod(f.TickSize).IsZero()
}

// NotionalOK reports whether qty×price clears the minimum notional.
// Equality passes.
func (f Filters) NotionalOK(qty, price float64) bool {
	if f.MinNotional.IsZero() {
		return true
	}
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
	return notional.GreaterThanOrEqual(f.MinNotional)
}

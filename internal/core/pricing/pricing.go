// Package pricing holds the currency rules shared by cart display and
// checkout. All monetary arithmetic goes through here; amounts are exact
// decimals and never floats.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for currency amounts.
const Places = 2

// Line is one priced cart or order line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quantize rounds to two fractional digits, ties away from zero (round-half-up
// for the non-negative amounts a storefront deals in).
func Quantize(v decimal.Decimal) decimal.Decimal {
	return v.Round(Places)
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Quantize(product(unitPrice, quantity))
}

// CartTotal sums the unrounded line products and rounds once at the end, so
// rounding error does not compound across lines. The result can differ from
// the sum of individually quantized line totals by at most half a cent per
// line; with prices already in whole cents the two are equal.
func CartTotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(product(l.UnitPrice, l.Quantity))
	}
	return Quantize(sum)
}

func product(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

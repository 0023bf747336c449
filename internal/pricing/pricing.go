// Package pricing derives order totals from authoritative unit prices.
// Nothing here reads client-supplied amounts.
package pricing

import (
	"github.com/shopspring/decimal"
)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// LineTotal returns unit × quantity rounded to cents.
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l.UnitPrice, l.Quantity))
	}
	return sum
}

// ClampDiscount bounds a discount to [0, subtotal].
func ClampDiscount(discount, subtotal decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}

// Compute returns subtotal, the discount actually applied and the final
// total. Total = Subtotal - Discount always holds.
func Compute(lines []Line, discount decimal.Decimal) Totals {
	subtotal := Subtotal(lines)
	applied := ClampDiscount(discount.Round(2), subtotal)

	return Totals{
		Subtotal: subtotal,
		Discount: applied,
		Total:    subtotal.Sub(applied),
	}
}

package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		discount decimal.Decimal
		subtotal string
		applied  string
		total    string
	}{
		{
			name:     "coupon discount",
			lines:    []Line{{UnitPrice: d("200.00"), Quantity: 2}, {UnitPrice: d("100.00"), Quantity: 1}},
			discount: d("50.00"),
			subtotal: "500", applied: "50", total: "450",
		},
		{
			name:     "no discount",
			lines:    []Line{{UnitPrice: d("19.99"), Quantity: 3}},
			discount: decimal.Zero,
			subtotal: "59.97", applied: "0", total: "59.97",
		},
		{
			name:     "discount larger than subtotal",
			lines:    []Line{{UnitPrice: d("10.00"), Quantity: 1}},
			discount: d("25.00"),
			subtotal: "10", applied: "10", total: "0",
		},
		{
			name:     "negative discount ignored",
			lines:    []Line{{UnitPrice: d("10.00"), Quantity: 1}},
			discount: d("-5"),
			subtotal: "10", applied: "0", total: "10",
		},
		{
			name:     "empty cart",
			lines:    nil,
			discount: d("5"),
			subtotal: "0", applied: "0", total: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.lines, tt.discount)
			assert.True(t, got.Subtotal.Equal(d(tt.subtotal)), "subtotal %s", got.Subtotal)
			assert.True(t, got.Discount.Equal(d(tt.applied)), "discount %s", got.Discount)
			assert.True(t, got.Total.Equal(d(tt.total)), "total %s", got.Total)
			assert.True(t, got.Total.Equal(got.Subtotal.Sub(got.Discount)))
		})
	}
}

func TestLineTotalAvoidsFloatDrift(t *testing.T) {
	got := LineTotal(d("0.10"), 3)
	assert.Equal(t, "0.3", got.String())

	sum := Subtotal([]Line{{UnitPrice: d("0.10"), Quantity: 1}, {UnitPrice: d("0.20"), Quantity: 1}})
	assert.True(t, sum.Equal(d("0.30")))
}

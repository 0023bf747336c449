package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/safar/tapcart/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() (*models.Order, []models.OrderItem) {
	ist := time.FixedZone("IST", 5*3600+1800)
	order := &models.Order{
		OrderID:        "ORD-0123456789abcdef0123456789abcdef",
		StoreID:        "S1",
		CustomerPhone:  "+919876543210",
		PaymentMethod:  models.PaymentMethodPayAtDesk,
		PaymentStatus:  models.PaymentStatusPending,
		OrderStatus:    models.OrderStatusPending,
		CouponCode:     "SAVE50",
		TotalAmount:    decimal.RequireFromString("500"),
		DiscountAmount: decimal.RequireFromString("50"),
		FinalAmount:    decimal.RequireFromString("450"),
		CreatedAt:      time.Date(2026, 2, 3, 10, 30, 0, 0, ist),
	}
	items := []models.OrderItem{
		{ProductID: 7, ProductName: "Notebook", Quantity: 2, UnitPrice: decimal.RequireFromString("100"), TotalPrice: decimal.RequireFromString("200")},
		{ProductID: 9, ProductName: "Pen", Quantity: 3, UnitPrice: decimal.RequireFromString("100"), TotalPrice: decimal.RequireFromString("300")},
	}
	return order, items
}

func TestRenderIsDeterministic(t *testing.T) {
	order, items := sampleOrder()

	first, err := Render(order, items)
	require.NoError(t, err)
	second, err := Render(order, items)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRenderContents(t *testing.T) {
	order, items := sampleOrder()

	out, err := Render(order, items)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, order.OrderID)
	assert.Contains(t, html, "PAY AT DESK")
	assert.Contains(t, html, "2026-02-03 05:00:00 UTC")
	assert.Contains(t, html, "Notebook")
	assert.Contains(t, html, "₹200.00")
	assert.Contains(t, html, "Discount (SAVE50)")
	assert.Contains(t, html, "-₹50.00")
	assert.Contains(t, html, "₹450.00")
	assert.Less(t, strings.Index(html, "Notebook"), strings.Index(html, "Pen"))
}

func TestRenderOmitsZeroDiscount(t *testing.T) {
	order, items := sampleOrder()
	order.CouponCode = ""
	order.DiscountAmount = decimal.Zero
	order.FinalAmount = order.TotalAmount

	out, err := Render(order, items)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Discount")
}

func TestRenderEscapesSnapshotValues(t *testing.T) {
	order, items := sampleOrder()
	items[0].ProductName = `<script>alert("x")</script>`

	out, err := Render(order, items)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>alert")
	assert.Contains(t, string(out), "&lt;script&gt;")
}

func TestBillURL(t *testing.T) {
	assert.Equal(t, "/customer/bill/ORD-1", BillPath("ORD-1"))
	assert.Equal(t, "https://shop.example/customer/bill/ORD-1", BillURL("https://shop.example/", "ORD-1"))
}

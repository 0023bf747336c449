// Package invoice renders the customer bill for a persisted order.
package invoice

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/safar/tapcart/internal/models"
	"github.com/shopspring/decimal"
)

//go:embed bill.html.tmpl
var billTemplate string

var tmpl = template.Must(template.New("bill").Parse(billTemplate))

const (
	currency   = "₹"
	timeLayout = "2006-01-02 15:04:05 UTC"
)

type line struct {
	Name      string
	Quantity  int
	UnitPrice string
	Total     string
}

type view struct {
	OrderID       string
	StoreID       string
	CustomerPhone string
	CreatedAt     string
	PaymentMethod string
	OrderStatus   string
	Currency      string
	Lines         []line
	Subtotal      string
	// Discount is empty when no discount was applied.
	Discount   string
	CouponCode string
	Final      string
}

// Render produces the HTML bill for order from its stored snapshot only,
// so the same order always renders to the same bytes.
func Render(order *models.Order, items []models.OrderItem) ([]byte, error) {
	v := view{
		OrderID:       order.OrderID,
		StoreID:       order.StoreID,
		CustomerPhone: order.CustomerPhone,
		CreatedAt:     order.CreatedAt.UTC().Format(timeLayout),
		PaymentMethod: strings.ToUpper(strings.ReplaceAll(order.PaymentMethod, "_", " ")),
		OrderStatus:   order.OrderStatus,
		Currency:      currency,
		Lines:         make([]line, 0, len(items)),
		Subtotal:      money(order.TotalAmount),
		Final:         money(order.FinalAmount),
	}

	for _, it := range items {
		v.Lines = append(v.Lines, line{
			Name:      it.ProductName,
			Quantity:  it.Quantity,
			UnitPrice: money(it.UnitPrice),
			Total:     money(it.TotalPrice),
		})
	}

	if order.DiscountAmount.IsPositive() {
		v.Discount = money(order.DiscountAmount)
		v.CouponCode = order.CouponCode
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", order.OrderID, err)
	}
	return buf.Bytes(), nil
}

// BillPath is the public path of an order's bill.
func BillPath(orderID string) string {
	return "/customer/bill/" + url.PathEscape(orderID)
}

func BillURL(baseURL, orderID string) string {
	return strings.TrimRight(baseURL, "/") + BillPath(orderID)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

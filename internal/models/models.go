package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	StoreID      string     `json:"store_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Status       string     `json:"status"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
}

type Product struct {
	ID        int64           `json:"id"`
	StoreID   string          `json:"store_id"`
	CustomID  string          `json:"custom_id,omitempty"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Coupon struct {
	ID              int64            `json:"id"`
	StoreID         string           `json:"store_id"`
	Code            string           `json:"code"`
	DiscountType    string           `json:"discount_type"`
	DiscountValue   decimal.Decimal  `json:"discount_value"`
	MinOrderAmount  decimal.Decimal  `json:"min_order_amount"`
	MaxDiscount     *decimal.Decimal `json:"max_discount,omitempty"`
	ValidFrom       *time.Time       `json:"valid_from,omitempty"`
	ValidTo         *time.Time       `json:"valid_to,omitempty"`
	Active          bool             `json:"active"`
	MaxRedemptions  *int             `json:"max_redemptions,omitempty"`
	RedemptionCount int              `json:"redemption_count"`
	CreatedAt       time.Time        `json:"created_at"`
}

type Order struct {
	ID             int64           `json:"-"`
	OrderID        string          `json:"order_id"`
	StoreID        string          `json:"store_id"`
	CustomerPhone  string          `json:"customer_phone"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentStatus  string          `json:"payment_status"`
	OrderStatus    string          `json:"order_status"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	Items          []OrderItem     `json:"items,omitempty"`
}

// OrderItem holds the product name and price as they were when the order
// was placed; it never follows later product edits.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	StoreStatusPending   = "pending"
	StoreStatusApproved  = "approved"
	StoreStatusSuspended = "suspended"
)

const (
	PaymentMethodCard      = "card"
	PaymentMethodUPI       = "upi"
	PaymentMethodPayAtDesk = "pay_at_desk"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
)

const (
	DiscountTypeFixed   = "fixed"
	DiscountTypePercent = "percent"
)

const DefaultCategory = "General"

// ValidPaymentMethod reports whether m is one of the accepted payment methods.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodUPI, PaymentMethodPayAtDesk:
		return true
	}
	return false
}

// InitialStatuses returns the payment and order status a freshly placed
// order starts in. Card and UPI are settled client-side before checkout;
// pay-at-desk waits for staff approval.
func InitialStatuses(paymentMethod string) (paymentStatus, orderStatus string) {
	if paymentMethod == PaymentMethodPayAtDesk {
		return PaymentStatusPending, OrderStatusPending
	}
	return PaymentStatusCompleted, OrderStatusConfirmed
}

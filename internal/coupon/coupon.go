// Package coupon validates store coupons and turns them into a discount
// against a server-computed subtotal.
package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/pricing"
	"github.com/safar/tapcart/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCoupon = errors.New("invalid coupon")
	ErrExpiredCoupon = errors.New("coupon expired")
)

var hundred = decimal.NewFromInt(100)

// Evaluate applies a coupon's rule to subtotal at the given instant. The
// result is always within [0, subtotal].
func Evaluate(c *models.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.Active {
		return decimal.Zero, fmt.Errorf("%w: coupon is not active", ErrInvalidCoupon)
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return decimal.Zero, fmt.Errorf("%w: coupon is not valid yet", ErrInvalidCoupon)
	}
	if c.ValidTo != nil && !now.Before(*c.ValidTo) {
		return decimal.Zero, ErrExpiredCoupon
	}
	if c.MaxRedemptions != nil && c.RedemptionCount >= *c.MaxRedemptions {
		return decimal.Zero, fmt.Errorf("%w: coupon has been fully redeemed", ErrInvalidCoupon)
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return decimal.Zero, fmt.Errorf("%w: minimum order amount is %s", ErrInvalidCoupon, c.MinOrderAmount.StringFixed(2))
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case models.DiscountTypeFixed:
		discount = c.DiscountValue
	case models.DiscountTypePercent:
		discount = subtotal.Mul(c.DiscountValue).Div(hundred).Round(2)
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown discount type %q", ErrInvalidCoupon, c.DiscountType)
	}

	if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
		discount = *c.MaxDiscount
	}

	return pricing.ClampDiscount(discount, subtotal), nil
}

type Evaluator struct {
	db  database.Querier
	now func() time.Time
}

func NewEvaluator(db database.Querier) *Evaluator {
	return &Evaluator{db: db, now: time.Now}
}

// Apply previews the discount a coupon would give. It does not count as a
// redemption, so calling it repeatedly is harmless.
func (e *Evaluator) Apply(ctx context.Context, code, storeID string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, fmt.Errorf("%w: empty code", ErrInvalidCoupon)
	}

	c, err := store.GetCouponByCode(ctx, e.db, storeID, code)
	if err != nil {
		if errors.Is(err, database.ErrCouponNotFound) {
			return decimal.Zero, ErrInvalidCoupon
		}
		return decimal.Zero, err
	}

	return Evaluate(c, subtotal, e.now())
}

type Redemption struct {
	Code     string
	Discount decimal.Decimal
}

// Redeem re-validates a coupon inside the checkout transaction and records
// one use of it. The coupon row stays locked until the transaction ends, so
// a limited coupon cannot be spent twice by concurrent checkouts.
func (e *Evaluator) Redeem(ctx context.Context, tx *sql.Tx, code, storeID string, subtotal decimal.Decimal) (*Redemption, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ErrInvalidCoupon)
	}

	c, err := store.LockCouponByCode(ctx, tx, storeID, code)
	if err != nil {
		if errors.Is(err, database.ErrCouponNotFound) {
			return nil, ErrInvalidCoupon
		}
		return nil, err
	}

	discount, err := Evaluate(c, subtotal, e.now())
	if err != nil {
		return nil, err
	}

	if err := store.IncrementRedemption(ctx, tx, c.ID); err != nil {
		if errors.Is(err, database.ErrCouponExhausted) {
			return nil, fmt.Errorf("%w: coupon has been fully redeemed", ErrInvalidCoupon)
		}
		return nil, err
	}

	return &Redemption{Code: c.Code, Discount: discount}, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/models"
	"github.com/shopspring/decimal"
)

const couponColumns = `id, store_id, code, discount_type, discount_value, min_order_amount, max_discount,
	valid_from, valid_to, active, max_redemptions, redemption_count, created_at`

type NewCoupon struct {
	StoreID        string
	Code           string
	DiscountType   string
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    *decimal.Decimal
	ValidFrom      *time.Time
	ValidTo        *time.Time
	MaxRedemptions *int
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	c := &models.Coupon{}
	var (
		maxDiscount    decimal.NullDecimal
		validFrom      sql.NullTime
		validTo        sql.NullTime
		maxRedemptions sql.NullInt64
	)

	err := row.Scan(
		&c.ID,
		&c.StoreID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinOrderAmount,
		&maxDiscount,
		&validFrom,
		&validTo,
		&c.Active,
		&maxRedemptions,
		&c.RedemptionCount,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if maxDiscount.Valid {
		d := maxDiscount.Decimal
		c.MaxDiscount = &d
	}
	c.ValidFrom = timePtr(validFrom)
	c.ValidTo = timePtr(validTo)
	if maxRedemptions.Valid {
		n := int(maxRedemptions.Int64)
		c.MaxRedemptions = &n
	}

	return c, nil
}

func CreateCoupon(ctx context.Context, q database.Querier, nc NewCoupon) (*models.Coupon, error) {
	var maxDiscount decimal.NullDecimal
	if nc.MaxDiscount != nil {
		maxDiscount = decimal.NullDecimal{Decimal: *nc.MaxDiscount, Valid: true}
	}
	var maxRedemptions sql.NullInt64
	if nc.MaxRedemptions != nil {
		maxRedemptions = sql.NullInt64{Int64: int64(*nc.MaxRedemptions), Valid: true}
	}

	query := `
		INSERT INTO coupons (store_id, code, discount_type, discount_value, min_order_amount, max_discount,
		                     valid_from, valid_to, active, max_redemptions, redemption_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, 0, NOW())
		RETURNING ` + couponColumns

	c, err := scanCoupon(q.QueryRowContext(ctx, query,
		nc.StoreID, strings.TrimSpace(nc.Code), nc.DiscountType, nc.DiscountValue, nc.MinOrderAmount,
		maxDiscount, nullTime(nc.ValidFrom), nullTime(nc.ValidTo), maxRedemptions))
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return c, nil
}

// GetCouponByCode looks a coupon up case-insensitively within a store.
func GetCouponByCode(ctx context.Context, q database.Querier, storeID, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE store_id = $1 AND UPPER(code) = UPPER($2)`
	return getCoupon(ctx, q, query, storeID, code)
}

// LockCouponByCode is GetCouponByCode with a row lock, for redemption
// inside a checkout transaction.
func LockCouponByCode(ctx context.Context, tx *sql.Tx, storeID, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE store_id = $1 AND UPPER(code) = UPPER($2) FOR UPDATE`
	return getCoupon(ctx, tx, query, storeID, code)
}

func getCoupon(ctx context.Context, q database.Querier, query, storeID, code string) (*models.Coupon, error) {
	c, err := scanCoupon(q.QueryRowContext(ctx, query, storeID, strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// IncrementRedemption counts one use of a coupon, refusing once the
// coupon's redemption limit has been reached.
func IncrementRedemption(ctx context.Context, tx *sql.Tx, couponID int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE coupons
		 SET redemption_count = redemption_count + 1
		 WHERE id = $1
		   AND (max_redemptions IS NULL OR redemption_count < max_redemptions)`,
		couponID)
	if err != nil {
		return fmt.Errorf("increment coupon redemption: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCouponExhausted
	}

	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

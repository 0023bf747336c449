package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/models"
)

const orderColumns = `id, order_id, store_id, customer_phone, payment_method, payment_status, order_status,
	coupon_code, total_amount, discount_amount, final_amount, idempotency_key, created_at, paid_at, approved_at`

const orderItemColumns = `id, order_id, product_id, product_name, quantity, unit_price, total_price, created_at`

// IdempotencyIndex is the unique index guarding duplicate checkouts.
const IdempotencyIndex = "idx_orders_store_idempotency"

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var (
		couponCode     sql.NullString
		idempotencyKey sql.NullString
		paidAt         sql.NullTime
		approvedAt     sql.NullTime
	)

	err := row.Scan(
		&o.ID,
		&o.OrderID,
		&o.StoreID,
		&o.CustomerPhone,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.OrderStatus,
		&couponCode,
		&o.TotalAmount,
		&o.DiscountAmount,
		&o.FinalAmount,
		&idempotencyKey,
		&o.CreatedAt,
		&paidAt,
		&approvedAt,
	)
	if err != nil {
		return nil, err
	}

	o.CouponCode = couponCode.String
	o.IdempotencyKey = idempotencyKey.String
	o.PaidAt = timePtr(paidAt)
	o.ApprovedAt = timePtr(approvedAt)

	return o, nil
}

func scanOrderItem(row rowScanner) (*models.OrderItem, error) {
	item := &models.OrderItem{}
	err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.ProductName,
		&item.Quantity,
		&item.UnitPrice,
		&item.TotalPrice,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// InsertOrder writes a new order row and fills in its generated columns.
// A duplicate idempotency key surfaces as a unique violation on
// IdempotencyIndex.
func InsertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	paidAt := sql.NullTime{}
	if order.PaidAt != nil {
		paidAt = sql.NullTime{Time: *order.PaidAt, Valid: true}
	}

	query := `
		INSERT INTO orders (order_id, store_id, customer_phone, payment_method, payment_status, order_status,
		                    coupon_code, total_amount, discount_amount, final_amount, idempotency_key,
		                    created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), $12)
		RETURNING id, created_at`

	err := tx.QueryRowContext(ctx, query,
		order.OrderID,
		order.StoreID,
		order.CustomerPhone,
		order.PaymentMethod,
		order.PaymentStatus,
		order.OrderStatus,
		nullString(order.CouponCode),
		order.TotalAmount,
		order.DiscountAmount,
		order.FinalAmount,
		nullString(order.IdempotencyKey),
		paidAt,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func InsertOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`

	err := tx.QueryRowContext(ctx, query,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}

	return nil
}

// GetOrder returns an order by its public id together with its items.
func GetOrder(ctx context.Context, q database.Querier, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := orderItems(ctx, q, []string{order.OrderID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.OrderID]

	return order, nil
}

func GetOrderByIdempotencyKey(ctx context.Context, q database.Querier, storeID, key string) (*models.Order, error) {
	var orderID string
	err := q.QueryRowContext(ctx,
		`SELECT order_id FROM orders WHERE store_id = $1 AND idempotency_key = $2`,
		storeID, key).Scan(&orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by idempotency key: %w", err)
	}

	return GetOrder(ctx, q, orderID)
}

// LockOrder loads an order row with FOR UPDATE, without its items.
func LockOrder(ctx context.Context, tx *sql.Tx, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

// MarkOrderPaid settles a pay-at-desk order. The update only applies while
// the payment is still pending, so a second approval affects no rows and
// returns ErrOrderNotPending.
func MarkOrderPaid(ctx context.Context, tx *sql.Tx, storeID, orderID string) (*models.Order, error) {
	query := `
		UPDATE orders
		SET payment_status = $1,
		    order_status = $2,
		    paid_at = NOW(),
		    approved_at = NOW()
		WHERE order_id = $3
		  AND store_id = $4
		  AND payment_method = $5
		  AND payment_status = $6
		RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRowContext(ctx, query,
		models.PaymentStatusCompleted, models.OrderStatusConfirmed,
		orderID, storeID, models.PaymentMethodPayAtDesk, models.PaymentStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotPending
		}
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	return order, nil
}

// ListStoreOrders pages through a store's orders newest first, with items.
func ListStoreOrders(ctx context.Context, q database.Querier, storeID, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE store_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, storeID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}
	items, err := orderItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].OrderID]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// orderItems loads the items of several orders in one round trip, keyed by
// order id and kept in insertion order.
func orderItems(ctx context.Context, q database.Querier, orderIDs []string) (map[string][]models.OrderItem, error) {
	out := make(map[string][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT ` + orderItemColumns + `
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`

	rows, err := q.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[item.OrderID] = append(out[item.OrderID], *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

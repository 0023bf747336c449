package admin

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/safar/tapcart/internal/checkout"
	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/coupon"
	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/store"
	"github.com/safar/tapcart/internal/testutil/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func placeOrder(t *testing.T, f *checkout.Finalizer, storeID string, productID int64, method string) string {
	t.Helper()
	res, err := f.Finalize(context.Background(), checkout.Request{
		Phone: "+919876543210", StoreID: storeID, PaymentMethod: method,
		Lines: []checkout.Line{{ProductID: productID, Quantity: 1}},
	})
	require.NoError(t, err)
	return res.OrderID
}

func setup(t *testing.T) (*sql.DB, *Service, *checkout.Finalizer, *models.Product) {
	db := pgtest.Setup(t)
	ctx := context.Background()

	for _, id := range []string{"S1", "S2"} {
		_, err := store.CreateStore(ctx, db, store.NewStore{StoreID: id, Name: id, Email: id + "@example.com", PasswordHash: "x"})
		require.NoError(t, err)
	}
	p, err := store.CreateProduct(ctx, db, store.NewProduct{
		StoreID: "S1", Name: "Tea", Price: decimal.RequireFromString("20.00"), Stock: 50,
	})
	require.NoError(t, err)

	cfg := config.CheckoutConfig{Timeout: 5 * time.Second, MaxRetries: 2, NotifyTimeout: time.Second}
	f := checkout.NewFinalizer(db, coupon.NewEvaluator(db), nil, nil, cfg, "http://localhost", discardLogger())
	svc := NewService(db, nil, "http://localhost", time.Second, discardLogger())
	return db, svc, f, p
}

func TestApprove(t *testing.T) {
	_, svc, f, p := setup(t)
	ctx := context.Background()

	t.Run("pay at desk approves exactly once", func(t *testing.T) {
		orderID := placeOrder(t, f, "S1", p.ID, models.PaymentMethodPayAtDesk)

		order, err := svc.Approve(ctx, "S1", orderID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
		assert.Equal(t, models.OrderStatusConfirmed, order.OrderStatus)
		assert.NotNil(t, order.PaidAt)
		assert.NotNil(t, order.ApprovedAt)

		_, err = svc.Approve(ctx, "S1", orderID)
		assert.ErrorIs(t, err, ErrAlreadyPaid)
	})

	t.Run("card and upi orders are never pay at desk", func(t *testing.T) {
		for _, method := range []string{models.PaymentMethodCard, models.PaymentMethodUPI} {
			orderID := placeOrder(t, f, "S1", p.ID, method)
			_, err := svc.Approve(ctx, "S1", orderID)
			assert.ErrorIs(t, err, ErrNotPayAtDesk, method)
		}
	})

	t.Run("other store cannot approve", func(t *testing.T) {
		orderID := placeOrder(t, f, "S1", p.ID, models.PaymentMethodPayAtDesk)
		_, err := svc.Approve(ctx, "S2", orderID)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := svc.Approve(ctx, "S1", "ORD-missing")
		assert.ErrorIs(t, err, database.ErrOrderNotFound)
	})
}

func TestListOrders(t *testing.T) {
	_, svc, f, p := setup(t)
	ctx := context.Background()

	var placed []string
	for i := 0; i < 5; i++ {
		placed = append(placed, placeOrder(t, f, "S1", p.ID, models.PaymentMethodCard))
	}

	first, err := svc.ListOrders(ctx, "S1", "", 3)
	require.NoError(t, err)
	require.Len(t, first.Orders, 3)
	assert.True(t, first.HasMore)
	assert.Equal(t, placed[4], first.Orders[0].OrderID)
	assert.Len(t, first.Orders[0].Items, 1)

	second, err := svc.ListOrders(ctx, "S1", first.NextCursor, 3)
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	assert.False(t, second.HasMore)
	assert.Equal(t, placed[0], second.Orders[1].OrderID)

	other, err := svc.ListOrders(ctx, "S2", "", 10)
	require.NoError(t, err)
	assert.Empty(t, other.Orders)

	_, err = svc.ListOrders(ctx, "S1", "%%%", 10)
	assert.ErrorIs(t, err, store.ErrInvalidCursor)
}

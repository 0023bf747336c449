package checkout

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/coupon"
	"github.com/safar/tapcart/internal/invoice"
	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/store"
	"github.com/safar/tapcart/internal/testutil/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFinalizer(db *sql.DB) *Finalizer {
	cfg := config.CheckoutConfig{Timeout: 10 * time.Second, MaxRetries: 3, NotifyTimeout: time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFinalizer(db, coupon.NewEvaluator(db), nil, nil, cfg, "https://shop.example", logger)
}

func seedStore(t *testing.T, db *sql.DB, storeID string) {
	t.Helper()
	_, err := store.CreateStore(context.Background(), db, store.NewStore{
		StoreID: storeID, Name: storeID, Email: storeID + "@example.com", PasswordHash: "x",
	})
	require.NoError(t, err)
}

func seedProduct(t *testing.T, db *sql.DB, storeID, customID, name, price string, stock int) *models.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		StoreID: storeID, CustomID: customID, Name: name, Price: decimal.RequireFromString(price), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func stockOf(t *testing.T, db *sql.DB, id int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), db, id)
	require.NoError(t, err)
	return p.Stock
}

func countOrders(t *testing.T, db *sql.DB, storeID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM orders WHERE store_id = $1`, storeID).Scan(&n))
	return n
}

func TestFinalizerIntegration(t *testing.T) {
	db := pgtest.Setup(t)
	ctx := context.Background()
	f := newTestFinalizer(db)

	seedStore(t, db, "S1")
	seedStore(t, db, "S2")

	t.Run("concurrent checkouts for the last unit", func(t *testing.T) {
		p := seedProduct(t, db, "S1", "A1", "Last One", "100.00", 1)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			outOfStk  int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.Finalize(ctx, Request{
					Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodPayAtDesk,
					Lines: []Line{{ProductID: p.ID, Quantity: 1}},
				})
				mu.Lock()
				defer mu.Unlock()
				var oos *OutOfStockError
				switch {
				case err == nil:
					successes++
				case errors.As(err, &oos):
					assert.Equal(t, p.ID, oos.ProductID)
					outOfStk++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, outOfStk)
		assert.Equal(t, 0, stockOf(t, db, p.ID))
	})

	t.Run("stock never goes negative under load", func(t *testing.T) {
		p := seedProduct(t, db, "S1", "LOAD", "Popular", "10.00", 5)

		var wg sync.WaitGroup
		results := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.Finalize(ctx, Request{
					Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodCard,
					Lines: []Line{{ProductID: p.ID, Quantity: 1}},
				})
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		ok := 0
		for err := range results {
			if err == nil {
				ok++
				continue
			}
			var oos *OutOfStockError
			assert.ErrorAs(t, err, &oos)
		}
		assert.Equal(t, 5, ok)
		assert.Equal(t, 0, stockOf(t, db, p.ID))
	})

	t.Run("coupon totals reconcile", func(t *testing.T) {
		a := seedProduct(t, db, "S1", "", "Shirt", "300.00", 3)
		b := seedProduct(t, db, "S1", "", "Cap", "200.00", 3)
		_, err := store.CreateCoupon(ctx, db, store.NewCoupon{
			StoreID: "S1", Code: "FLAT50", DiscountType: models.DiscountTypeFixed,
			DiscountValue: decimal.RequireFromString("50"),
		})
		require.NoError(t, err)

		res, err := f.Finalize(ctx, Request{
			Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodUPI,
			CouponCode: "flat50",
			Lines:      []Line{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://shop.example/customer/bill/"+res.OrderID, res.BillURL)

		order, err := store.GetOrder(ctx, db, res.OrderID)
		require.NoError(t, err)
		assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("500.00")))
		assert.True(t, order.DiscountAmount.Equal(decimal.RequireFromString("50.00")))
		assert.True(t, order.FinalAmount.Equal(decimal.RequireFromString("450.00")))
		assert.Equal(t, "FLAT50", order.CouponCode)
		assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
		assert.Equal(t, models.OrderStatusConfirmed, order.OrderStatus)
		assert.NotNil(t, order.PaidAt)
		assert.Len(t, order.Items, 2)
		assert.Equal(t, 2, stockOf(t, db, a.ID))
	})

	t.Run("failed line rolls back the whole order", func(t *testing.T) {
		ok := seedProduct(t, db, "S1", "", "Mug", "50.00", 4)
		short := seedProduct(t, db, "S1", "", "Plate", "40.00", 1)
		before := countOrders(t, db, "S1")

		_, err := f.Finalize(ctx, Request{
			Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodCard,
			Lines: []Line{{ProductID: ok.ID, Quantity: 2}, {ProductID: short.ID, Quantity: 3}},
		})
		var oos *OutOfStockError
		require.ErrorAs(t, err, &oos)
		assert.Equal(t, short.ID, oos.ProductID)

		assert.Equal(t, 4, stockOf(t, db, ok.ID))
		assert.Equal(t, 1, stockOf(t, db, short.ID))
		assert.Equal(t, before, countOrders(t, db, "S1"))
	})

	t.Run("cross store cart is rejected", func(t *testing.T) {
		mine := seedProduct(t, db, "S1", "", "Local", "5.00", 2)
		theirs := seedProduct(t, db, "S2", "", "Foreign", "5.00", 2)

		_, err := f.Finalize(ctx, Request{
			Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodCard,
			Lines: []Line{{ProductID: mine.ID, Quantity: 1}, {ProductID: theirs.ID, Quantity: 1}},
		})
		assert.ErrorIs(t, err, ErrCrossStoreCart)
		assert.Equal(t, 2, stockOf(t, db, mine.ID))
		assert.Equal(t, 2, stockOf(t, db, theirs.ID))
	})

	t.Run("unknown product is out of stock", func(t *testing.T) {
		_, err := f.Finalize(ctx, Request{
			Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodCard,
			Lines: []Line{{ProductID: 999999, Quantity: 1}},
		})
		var oos *OutOfStockError
		require.ErrorAs(t, err, &oos)
		assert.Equal(t, int64(999999), oos.ProductID)
	})

	t.Run("snapshots survive product edits", func(t *testing.T) {
		p := seedProduct(t, db, "S1", "", "Lamp", "120.00", 2)

		res, err := f.Finalize(ctx, Request{
			Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodPayAtDesk,
			Lines: []Line{{ProductID: p.ID, Quantity: 1}},
		})
		require.NoError(t, err)

		order, err := store.GetOrder(ctx, db, res.OrderID)
		require.NoError(t, err)
		before, err := invoice.Render(order, order.Items)
		require.NoError(t, err)

		_, err = store.UpdateProductDetails(ctx, db, "S1", p.ID, "Deluxe Lamp", decimal.RequireFromString("999.00"))
		require.NoError(t, err)

		order, err = store.GetOrder(ctx, db, res.OrderID)
		require.NoError(t, err)
		require.Len(t, order.Items, 1)
		assert.Equal(t, "Lamp", order.Items[0].ProductName)
		assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("120.00")))

		after, err := invoice.Render(order, order.Items)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("idempotency key replays the original order", func(t *testing.T) {
		p := seedProduct(t, db, "S1", "", "Book", "25.00", 10)
		req := Request{
			Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodCard,
			Lines:          []Line{{ProductID: p.ID, Quantity: 2}},
			IdempotencyKey: "retry-123",
		}

		first, err := f.Finalize(ctx, req)
		require.NoError(t, err)
		assert.False(t, first.Replayed)

		second, err := f.Finalize(ctx, req)
		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.OrderID, second.OrderID)
		assert.True(t, first.Totals.Total.Equal(second.Totals.Total))

		assert.Equal(t, 8, stockOf(t, db, p.ID))
	})

	t.Run("limited coupon is spent once", func(t *testing.T) {
		p := seedProduct(t, db, "S1", "", "Bag", "100.00", 5)
		one := 1
		_, err := store.CreateCoupon(ctx, db, store.NewCoupon{
			StoreID: "S1", Code: "ONCE", DiscountType: models.DiscountTypePercent,
			DiscountValue: decimal.RequireFromString("10"), MaxRedemptions: &one,
		})
		require.NoError(t, err)

		req := Request{
			Phone: "+919876543210", StoreID: "S1", PaymentMethod: models.PaymentMethodCard,
			CouponCode: "ONCE", Lines: []Line{{ProductID: p.ID, Quantity: 1}},
		}
		res, err := f.Finalize(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.Totals.Discount.Equal(decimal.RequireFromString("10")))

		_, err = f.Finalize(ctx, req)
		assert.ErrorIs(t, err, coupon.ErrInvalidCoupon)
		assert.Equal(t, 4, stockOf(t, db, p.ID))
	})
}

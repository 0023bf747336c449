// Package checkout turns a client-held cart into a persisted order.
package checkout

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/coupon"
	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/invoice"
	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/notify"
	"github.com/safar/tapcart/internal/pricing"
	"github.com/safar/tapcart/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxLineQuantity caps a single cart line so line totals stay within the
// order amount columns.
const MaxLineQuantity = 10_000

type Line struct {
	ProductID int64
	Quantity  int
}

type Request struct {
	// Phone must already be verified and normalized.
	Phone          string
	StoreID        string
	Lines          []Line
	PaymentMethod  string
	CouponCode     string
	IdempotencyKey string
	// ClientDiscount and ClientTotal are what the cart page displayed. They
	// are only compared against the server's figures, never used.
	ClientDiscount *decimal.Decimal
	ClientTotal    *decimal.Decimal
}

type Result struct {
	OrderID       string
	BillURL       string
	PaymentStatus string
	OrderStatus   string
	Totals        pricing.Totals
	// Replayed is set when the idempotency key matched an earlier order.
	Replayed bool
}

// CouponRedeemer spends a coupon inside the checkout transaction.
type CouponRedeemer interface {
	Redeem(ctx context.Context, tx *sql.Tx, code, storeID string, subtotal decimal.Decimal) (*coupon.Redemption, error)
}

type Finalizer struct {
	db       *sql.DB
	coupons  CouponRedeemer
	notifier notify.Notifier
	idem     IdempotencyCache
	cfg      config.CheckoutConfig
	baseURL  string
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewFinalizer wires a finalizer. notifier and idem may be nil.
func NewFinalizer(db *sql.DB, coupons CouponRedeemer, notifier notify.Notifier, idem IdempotencyCache,
	cfg config.CheckoutConfig, baseURL string, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		db:       db,
		coupons:  coupons,
		notifier: notifier,
		idem:     idem,
		cfg:      cfg,
		baseURL:  baseURL,
		tracer:   otel.Tracer("github.com/safar/tapcart/internal/checkout"),
		logger:   logger,
	}
}

// Finalize validates the cart against live inventory and, in a single
// transaction, reserves stock, redeems the coupon and writes the order with
// its items. Either all of it commits or none of it does. The customer is
// notified after commit without waiting for delivery.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (*Result, error) {
	lines, err := validate(req)
	if err != nil {
		return nil, err
	}

	ctx, span := f.tracer.Start(ctx, "checkout.Finalize", trace.WithAttributes(
		attribute.String("store.id", req.StoreID),
		attribute.String("payment.method", req.PaymentMethod),
		attribute.Int("cart.lines", len(lines)),
		attribute.Bool("coupon.present", req.CouponCode != ""),
	))
	defer span.End()

	if res := f.cachedReplay(ctx, req); res != nil {
		span.SetAttributes(attribute.Bool("checkout.replayed", true))
		return res, nil
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	var (
		order    *models.Order
		replayed bool
	)

	opts := database.DefaultTxOptions()
	opts.MaxRetries = f.cfg.MaxRetries

	err = database.WithRetry(ctx, f.db, opts, func(tx *sql.Tx) error {
		order, replayed = nil, false

		if req.IdempotencyKey != "" {
			existing, err := lockIdempotencyKey(ctx, tx, req.StoreID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				order, replayed = existing, true
				return nil
			}
		}

		var err error
		order, err = f.placeOrder(ctx, tx, req, lines)
		return err
	})
	if err != nil {
		if req.IdempotencyKey != "" && database.IsUniqueViolation(err, store.IdempotencyIndex) {
			existing, lookupErr := store.GetOrderByIdempotencyKey(ctx, f.db, req.StoreID, req.IdempotencyKey)
			if lookupErr == nil {
				order, replayed = existing, true
				err = nil
			}
		}
	}
	if err != nil {
		err = classify(ctx, err)
		var pe *PersistenceError
		if errors.As(err, &pe) {
			f.logger.ErrorContext(ctx, "checkout failed",
				slog.String("store_id", req.StoreID),
				slog.String("db_error_class", database.ClassifyError(pe.Err).String()),
				slog.Any("error", pe.Err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := f.result(order, replayed)
	span.SetAttributes(attribute.String("order.id", order.OrderID), attribute.Bool("checkout.replayed", replayed))

	if replayed {
		f.logger.InfoContext(ctx, "checkout replayed", slog.String("order_id", order.OrderID), slog.String("store_id", order.StoreID))
		return res, nil
	}

	f.afterCommit(ctx, req, order, res)
	return res, nil
}

// placeOrder runs the body of the checkout transaction.
func (f *Finalizer) placeOrder(ctx context.Context, tx *sql.Tx, req Request, lines []Line) (*models.Order, error) {
	products := make([]*models.Product, len(lines))
	priced := make([]pricing.Line, len(lines))

	// Lines are sorted by product id, so locks are always taken in the same
	// order and two carts sharing products cannot deadlock.
	for i, l := range lines {
		p, err := store.LockProduct(ctx, tx, l.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				return nil, &OutOfStockError{ProductID: l.ProductID}
			}
			return nil, err
		}
		if p.StoreID != req.StoreID {
			return nil, ErrCrossStoreCart
		}
		if p.Stock < l.Quantity {
			return nil, &OutOfStockError{ProductID: l.ProductID}
		}
		products[i] = p
		priced[i] = pricing.Line{UnitPrice: p.Price, Quantity: l.Quantity}
	}

	subtotal := pricing.Subtotal(priced)

	discount := decimal.Zero
	couponCode := ""
	if req.CouponCode != "" {
		red, err := f.coupons.Redeem(ctx, tx, req.CouponCode, req.StoreID, subtotal)
		if err != nil {
			return nil, err
		}
		discount, couponCode = red.Discount, red.Code
	}

	totals := pricing.Compute(priced, discount)
	paymentStatus, orderStatus := models.InitialStatuses(req.PaymentMethod)

	order := &models.Order{
		OrderID:        newOrderID(),
		StoreID:        req.StoreID,
		CustomerPhone:  req.Phone,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  paymentStatus,
		OrderStatus:    orderStatus,
		CouponCode:     couponCode,
		TotalAmount:    totals.Subtotal,
		DiscountAmount: totals.Discount,
		FinalAmount:    totals.Total,
		IdempotencyKey: req.IdempotencyKey,
	}
	if paymentStatus == models.PaymentStatusCompleted {
		now := time.Now()
		order.PaidAt = &now
	}

	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	for i, l := range lines {
		p := products[i]
		item := &models.OrderItem{
			OrderID:     order.OrderID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			TotalPrice:  pricing.LineTotal(p.Price, l.Quantity),
		}
		if err := store.InsertOrderItem(ctx, tx, item); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, *item)

		if err := store.ReserveStock(ctx, tx, req.StoreID, p.ID, l.Quantity); err != nil {
			if errors.Is(err, database.ErrInsufficientStock) {
				return nil, &OutOfStockError{ProductID: p.ID}
			}
			return nil, err
		}
	}

	return order, nil
}

// lockIdempotencyKey serializes checkouts sharing a key for the rest of the
// transaction and returns the order an earlier one committed, if any.
func lockIdempotencyKey(ctx context.Context, tx *sql.Tx, storeID, key string) (*models.Order, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, storeID+":"+key); err != nil {
		return nil, fmt.Errorf("lock idempotency key: %w", err)
	}

	existing, err := store.GetOrderByIdempotencyKey(ctx, tx, storeID, key)
	if errors.Is(err, database.ErrOrderNotFound) {
		return nil, nil
	}
	return existing, err
}

func (f *Finalizer) cachedReplay(ctx context.Context, req Request) *Result {
	if f.idem == nil || req.IdempotencyKey == "" {
		return nil
	}

	orderID, err := f.idem.Lookup(ctx, req.StoreID, req.IdempotencyKey)
	if err != nil {
		f.logger.WarnContext(ctx, "idempotency cache lookup failed", slog.Any("error", err))
		return nil
	}
	if orderID == "" {
		return nil
	}

	order, err := store.GetOrder(ctx, f.db, orderID)
	if err != nil || order.StoreID != req.StoreID {
		return nil
	}
	return f.result(order, true)
}

func (f *Finalizer) afterCommit(ctx context.Context, req Request, order *models.Order, res *Result) {
	f.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.OrderID),
		slog.String("store_id", order.StoreID),
		slog.String("payment_method", order.PaymentMethod),
		slog.String("final_amount", order.FinalAmount.StringFixed(2)),
		slog.Int("lines", len(order.Items)))

	if req.ClientDiscount != nil && !req.ClientDiscount.Equal(res.Totals.Discount) ||
		req.ClientTotal != nil && !req.ClientTotal.Equal(res.Totals.Total) {
		f.logger.WarnContext(ctx, "client totals differ from server totals",
			slog.String("order_id", order.OrderID),
			slog.Any("client_discount", req.ClientDiscount),
			slog.Any("client_total", req.ClientTotal),
			slog.String("discount", res.Totals.Discount.StringFixed(2)),
			slog.String("total", res.Totals.Total.StringFixed(2)))
	}

	if f.idem != nil && req.IdempotencyKey != "" {
		if err := f.idem.Remember(ctx, req.StoreID, req.IdempotencyKey, order.OrderID); err != nil {
			f.logger.WarnContext(ctx, "idempotency cache write failed", slog.Any("error", err))
		}
	}

	notify.Dispatch(ctx, f.notifier,
		notify.OrderPlacedMessage(order.CustomerPhone, order.OrderID, res.BillURL, order.PaymentMethod),
		f.cfg.NotifyTimeout)
}

func (f *Finalizer) result(order *models.Order, replayed bool) *Result {
	return &Result{
		OrderID:       order.OrderID,
		BillURL:       invoice.BillURL(f.baseURL, order.OrderID),
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		Totals: pricing.Totals{
			Subtotal: order.TotalAmount,
			Discount: order.DiscountAmount,
			Total:    order.FinalAmount,
		},
		Replayed: replayed,
	}
}

// validate checks the request shape and returns the cart lines sorted by
// product id.
func validate(req Request) ([]Line, error) {
	if strings.TrimSpace(req.StoreID) == "" {
		return nil, ErrMissingStore
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, ErrMissingPhone
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrUnsupportedPaymentMethod
	}

	lines := make([]Line, len(req.Lines))
	copy(lines, req.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	for i, l := range lines {
		if l.Quantity <= 0 || l.Quantity > MaxLineQuantity {
			return nil, ErrInvalidQuantity
		}
		if i > 0 && lines[i-1].ProductID == l.ProductID {
			return nil, ErrDuplicateLine
		}
	}

	return lines, nil
}

// classify keeps domain errors as they are and folds everything else into
// a timeout or a persistence failure.
func classify(ctx context.Context, err error) error {
	var oos *OutOfStockError
	switch {
	case errors.As(err, &oos),
		errors.Is(err, ErrCrossStoreCart),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrExpiredCoupon):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case database.IsNumericOverflow(err), database.IsCheckViolation(err):
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
	}
	return &PersistenceError{Err: err}
}

// newOrderID returns "ORD-" followed by 32 lowercase hex characters.
func newOrderID() string {
	id := uuid.New()
	return "ORD-" + hex.EncodeToString(id[:])
}

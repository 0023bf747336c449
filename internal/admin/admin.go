// Package admin implements the store staff view of orders.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/invoice"
	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/notify"
	"github.com/safar/tapcart/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotPayAtDesk = errors.New("this order is not a pay-at-desk order")
	ErrAlreadyPaid  = errors.New("order already paid")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

type Service struct {
	db            *sql.DB
	notifier      notify.Notifier
	baseURL       string
	notifyTimeout time.Duration
	tracer        trace.Tracer
	logger        *slog.Logger
}

func NewService(db *sql.DB, notifier notify.Notifier, baseURL string, notifyTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:            db,
		notifier:      notifier,
		baseURL:       baseURL,
		notifyTimeout: notifyTimeout,
		tracer:        otel.Tracer("github.com/safar/tapcart/internal/admin"),
		logger:        logger,
	}
}

// ListOrders returns a store's orders newest first, each with its items.
func (s *Service) ListOrders(ctx context.Context, storeID, cursor string, limit int) (*Page, error) {
	if storeID == "" {
		return nil, ErrUnauthorized
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	page, err := store.ListStoreOrders(ctx, s.db, storeID, cursor, limit)
	if err != nil {
		return nil, err
	}

	orders, _ := page.Items.([]models.Order)
	return &Page{Orders: orders, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

// Approve settles a pay-at-desk order on behalf of the session's store.
// Only a pending pay-at-desk order of that store can be approved, and only
// once.
func (s *Service) Approve(ctx context.Context, sessionStoreID, orderID string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "admin.Approve", trace.WithAttributes(
		attribute.String("store.id", sessionStoreID),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	if sessionStoreID == "" {
		return nil, ErrUnauthorized
	}

	var approved *models.Order
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		switch {
		case order.StoreID != sessionStoreID:
			return ErrUnauthorized
		case order.PaymentMethod != models.PaymentMethodPayAtDesk:
			return ErrNotPayAtDesk
		case order.PaymentStatus == models.PaymentStatusCompleted:
			return ErrAlreadyPaid
		}

		approved, err = store.MarkOrderPaid(ctx, tx, sessionStoreID, orderID)
		if errors.Is(err, database.ErrOrderNotPending) {
			return ErrAlreadyPaid
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, database.ErrOrderNotFound) || errors.Is(err, ErrUnauthorized) ||
			errors.Is(err, ErrNotPayAtDesk) || errors.Is(err, ErrAlreadyPaid) {
			return nil, err
		}
		return nil, fmt.Errorf("approve order %s: %w", orderID, err)
	}

	s.logger.InfoContext(ctx, "order payment approved",
		slog.String("order_id", approved.OrderID),
		slog.String("store_id", approved.StoreID))

	notify.Dispatch(ctx, s.notifier,
		notify.PaymentApprovedMessage(approved.CustomerPhone, approved.OrderID, invoice.BillURL(s.baseURL, approved.OrderID)),
		s.notifyTimeout)

	return approved, nil
}

package httpx

import (
	"context"
	"database/sql"

	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/store"
)

// Catalog is the read side of products and orders used by the handlers.
type Catalog interface {
	ResolveProduct(ctx context.Context, storeID, identifier string) (*models.Product, error)
	ListProducts(ctx context.Context, storeID string, page, pageSize int) (*store.OffsetPage, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	Ping(ctx context.Context) error
}

type DBCatalog struct {
	DB *sql.DB
}

func (c DBCatalog) ResolveProduct(ctx context.Context, storeID, identifier string) (*models.Product, error) {
	return store.ResolveProduct(ctx, c.DB, storeID, identifier)
}

func (c DBCatalog) ListProducts(ctx context.Context, storeID string, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListStoreProducts(ctx, c.DB, storeID, page, pageSize)
}

func (c DBCatalog) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return store.GetOrder(ctx, c.DB, orderID)
}

func (c DBCatalog) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

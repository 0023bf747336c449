package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, store_id, custom_id, name, category, price, stock, created_at, updated_at`

type NewProduct struct {
	StoreID  string
	CustomID string
	Name     string
	Category string
	Price    decimal.Decimal
	Stock    int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	var customID sql.NullString

	err := row.Scan(
		&product.ID,
		&product.StoreID,
		&customID,
		&product.Name,
		&product.Category,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	product.CustomID = customID.String

	return product, nil
}

func CreateProduct(ctx context.Context, q database.Querier, p NewProduct) (*models.Product, error) {
	if p.Category == "" {
		p.Category = models.DefaultCategory
	}

	query := `
		INSERT INTO products (store_id, custom_id, name, category, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query,
		p.StoreID, nullString(p.CustomID), p.Name, p.Category, p.Price, p.Stock))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.Querier, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// ResolveProduct finds an orderable product of a store from a scanned tag
// or QR identifier. The identifier is matched against the store's custom id
// first and then, if it is numeric, against the primary id. Products with
// no stock are treated as missing.
func ResolveProduct(ctx context.Context, q database.Querier, storeID, identifier string) (*models.Product, error) {
	identifier = strings.TrimSpace(identifier)
	if storeID == "" || identifier == "" {
		return nil, database.ErrProductNotFound
	}

	byCustomID := `
		SELECT ` + productColumns + `
		FROM products
		WHERE store_id = $1 AND custom_id = $2 AND stock > 0
		LIMIT 1`

	product, err := scanProduct(q.QueryRowContext(ctx, byCustomID, storeID, identifier))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve product by custom id: %w", err)
	}

	id, convErr := strconv.ParseInt(identifier, 10, 64)
	if convErr != nil {
		return nil, database.ErrProductNotFound
	}

	byID := `
		SELECT ` + productColumns + `
		FROM products
		WHERE store_id = $1 AND id = $2 AND stock > 0`

	product, err = scanProduct(q.QueryRowContext(ctx, byID, storeID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("resolve product by id: %w", err)
	}

	return product, nil
}

// LockProduct loads a product row with FOR UPDATE so concurrent checkouts
// touching the same product serialize until the holder commits. Callers
// locking several rows must do so in ascending id order.
func LockProduct(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	product, err := scanProduct(tx.QueryRowContext(ctx, query, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}

	return product, nil
}

// ReserveStock takes quantity units out of a product's stock with a single
// conditional update. It fails with ErrInsufficientStock when fewer units
// remain, so stock can never go below zero even without a prior lock.
func ReserveStock(ctx context.Context, tx *sql.Tx, storeID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve stock: invalid quantity %d", quantity)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND store_id = $3
		   AND stock >= $1`,
		quantity, productID, storeID)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// UpdateProductDetails changes the name and price of a product. Orders
// already placed keep their own snapshot of both.
func UpdateProductDetails(ctx context.Context, q database.Querier, storeID string, productID int64, name string, price decimal.Decimal) (*models.Product, error) {
	query := `
		UPDATE products
		SET name = $1, price = $2, updated_at = NOW()
		WHERE id = $3 AND store_id = $4
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query, name, price, productID, storeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

func ListStoreProducts(ctx context.Context, q database.Querier, storeID string, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE store_id = $1`, storeID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE store_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, storeID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

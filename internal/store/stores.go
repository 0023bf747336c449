package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/models"
)

const storeColumns = `store_id, name, email, status, password_hash, created_at, approved_at`

type NewStore struct {
	StoreID      string
	Name         string
	Email        string
	PasswordHash string
}

func scanStore(row rowScanner) (*models.Store, error) {
	s := &models.Store{}
	var approvedAt sql.NullTime

	err := row.Scan(
		&s.StoreID,
		&s.Name,
		&s.Email,
		&s.Status,
		&s.PasswordHash,
		&s.CreatedAt,
		&approvedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ApprovedAt = timePtr(approvedAt)

	return s, nil
}

func CreateStore(ctx context.Context, q database.Querier, ns NewStore) (*models.Store, error) {
	query := `
		INSERT INTO stores (store_id, name, email, status, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + storeColumns

	s, err := scanStore(q.QueryRowContext(ctx, query,
		strings.TrimSpace(ns.StoreID), ns.Name, strings.ToLower(strings.TrimSpace(ns.Email)),
		models.StoreStatusPending, ns.PasswordHash))
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	return s, nil
}

func GetStore(ctx context.Context, q database.Querier, storeID string) (*models.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE store_id = $1`

	s, err := scanStore(q.QueryRowContext(ctx, query, strings.TrimSpace(storeID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrStoreNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}

	return s, nil
}

// ApproveStore moves a pending store to approved so its staff can log in.
func ApproveStore(ctx context.Context, q database.Querier, storeID string) (*models.Store, error) {
	query := `
		UPDATE stores
		SET status = $1, approved_at = COALESCE(approved_at, NOW())
		WHERE store_id = $2
		RETURNING ` + storeColumns

	s, err := scanStore(q.QueryRowContext(ctx, query, models.StoreStatusApproved, storeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrStoreNotFound
		}
		return nil, fmt.Errorf("approve store: %w", err)
	}

	return s, nil
}

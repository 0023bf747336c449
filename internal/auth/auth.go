// Package auth authenticates store staff.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/store"
)

var (
	ErrStoreNotFound = errors.New("store not found")
	ErrNotApproved   = errors.New("store is not approved")
	ErrWrongPassword = errors.New("wrong password")
)

// Reason maps a login failure to the stable reason code shown to clients.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrStoreNotFound):
		return "not_found"
	case errors.Is(err, ErrNotApproved):
		return "not_approved"
	case errors.Is(err, ErrWrongPassword):
		return "wrong_password"
	}
	return ""
}

type Service struct {
	db       database.Querier
	sessions *Sessions
}

func NewService(db database.Querier, sessions *Sessions) *Service {
	return &Service{db: db, sessions: sessions}
}

// Login checks a store's credentials and returns a session token.
func (s *Service) Login(ctx context.Context, storeID, password string) (string, error) {
	st, err := store.GetStore(ctx, s.db, storeID)
	if err != nil {
		if errors.Is(err, database.ErrStoreNotFound) {
			return "", ErrStoreNotFound
		}
		return "", err
	}

	if st.Status != models.StoreStatusApproved {
		return "", ErrNotApproved
	}

	ok, err := VerifyPassword(password, st.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verify password for %s: %w", st.StoreID, err)
	}
	if !ok {
		return "", ErrWrongPassword
	}

	return s.sessions.Issue(st.StoreID)
}

// RegisterStore creates a pending store with a hashed password.
func (s *Service) RegisterStore(ctx context.Context, storeID, name, email, password string) (*models.Store, error) {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.New("store id, email and password are required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	return store.CreateStore(ctx, s.db, store.NewStore{
		StoreID:      storeID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
}

func (s *Service) ApproveStore(ctx context.Context, storeID string) (*models.Store, error) {
	st, err := store.ApproveStore(ctx, s.db, storeID)
	if errors.Is(err, database.ErrStoreNotFound) {
		return nil, ErrStoreNotFound
	}
	return st, err
}

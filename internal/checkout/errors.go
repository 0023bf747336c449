package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart                = errors.New("cart is empty")
	ErrMissingStore             = errors.New("store id is required")
	ErrMissingPhone             = errors.New("phone is required")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidQuantity          = errors.New("quantity out of range")
	ErrDuplicateLine            = errors.New("product appears more than once in cart")
	ErrCrossStoreCart           = errors.New("cart contains products from another store")
	ErrTimeout                  = errors.New("checkout timed out")
)

// OutOfStockError names the first product that could not be reserved. It
// covers both missing products and products without enough stock.
type OutOfStockError struct {
	ProductID int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d is out of stock", e.ProductID)
}

// PersistenceError wraps storage failures the caller cannot fix by
// changing the request.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist order: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/safar/tapcart/internal/admin"
	"github.com/safar/tapcart/internal/auth"
	"github.com/safar/tapcart/internal/checkout"
	"github.com/safar/tapcart/internal/coupon"
	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/otp"
	"github.com/safar/tapcart/internal/phone"
	"github.com/safar/tapcart/internal/store"
)

const msgProductNotFound = "Product not found or out of stock"

// errorBody is the shape of every error response. Error is meant for
// people, Reason for programs.
type errorBody struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	ProductID int64  `json:"productId,omitempty"`
}

type apiError struct {
	status  int
	reason  string
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(message string) *apiError {
	return &apiError{status: http.StatusBadRequest, reason: "invalid_request", message: message}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", slog.Any("error", err))
	}
}

// writeError maps err onto the error taxonomy. Unknown errors are logged
// and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body, status := describe(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeJSON(w, status, body)
}

func describe(err error) (errorBody, int) {
	var (
		ae  *apiError
		oos *checkout.OutOfStockError
	)

	switch {
	case errors.As(err, &ae):
		return errorBody{Error: ae.message, Reason: ae.reason}, ae.status
	case errors.As(err, &oos):
		return errorBody{Error: oos.Error(), Reason: "out_of_stock", ProductID: oos.ProductID}, http.StatusConflict

	case errors.Is(err, checkout.ErrEmptyCart):
		return errorBody{Error: "Cart is empty", Reason: "empty_cart"}, http.StatusBadRequest
	case errors.Is(err, checkout.ErrUnsupportedPaymentMethod):
		return errorBody{Error: "Unsupported payment method", Reason: "unsupported_payment_method"}, http.StatusBadRequest
	case errors.Is(err, checkout.ErrInvalidQuantity):
		return errorBody{Error: "Quantity is out of range", Reason: "invalid_quantity"}, http.StatusBadRequest
	case errors.Is(err, checkout.ErrDuplicateLine):
		return errorBody{Error: "A product appears more than once in the cart", Reason: "duplicate_line"}, http.StatusBadRequest
	case errors.Is(err, checkout.ErrCrossStoreCart):
		return errorBody{Error: "Cart contains products from another store", Reason: "cross_store_cart"}, http.StatusBadRequest
	case errors.Is(err, checkout.ErrMissingStore), errors.Is(err, checkout.ErrMissingPhone):
		return errorBody{Error: err.Error(), Reason: "invalid_request"}, http.StatusBadRequest
	case errors.Is(err, checkout.ErrTimeout):
		return errorBody{Error: "Checkout timed out, please retry", Reason: "checkout_timeout"}, http.StatusServiceUnavailable

	case errors.Is(err, coupon.ErrExpiredCoupon):
		return errorBody{Error: "Coupon has expired", Reason: "coupon_expired"}, http.StatusBadRequest
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return errorBody{Error: err.Error(), Reason: "invalid_coupon"}, http.StatusBadRequest

	case errors.Is(err, phone.ErrInvalidPhone):
		return errorBody{Error: "Invalid phone number", Reason: "invalid_phone"}, http.StatusBadRequest
	case errors.Is(err, otp.ErrCooldown):
		return errorBody{Error: "OTP already sent, please wait before retrying", Reason: "otp_cooldown"}, http.StatusTooManyRequests
	case errors.Is(err, otp.ErrExpired):
		return errorBody{Error: "OTP expired", Reason: "otp_expired"}, http.StatusUnauthorized
	case errors.Is(err, otp.ErrMismatch):
		return errorBody{Error: "Invalid OTP", Reason: "invalid_otp"}, http.StatusUnauthorized

	case errors.Is(err, auth.ErrStoreNotFound):
		return errorBody{Error: "Store not found", Reason: auth.Reason(err)}, http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotApproved):
		return errorBody{Error: "Store is not approved yet", Reason: auth.Reason(err)}, http.StatusUnauthorized
	case errors.Is(err, auth.ErrWrongPassword):
		return errorBody{Error: "Incorrect password", Reason: auth.Reason(err)}, http.StatusUnauthorized

	case errors.Is(err, admin.ErrUnauthorized), errors.Is(err, auth.ErrInvalidSession):
		return errorBody{Error: "Unauthorized", Reason: "unauthorized"}, http.StatusUnauthorized
	case errors.Is(err, admin.ErrNotPayAtDesk):
		return errorBody{Error: "This order is not a pay-at-desk order", Reason: "not_pay_at_desk"}, http.StatusConflict
	case errors.Is(err, admin.ErrAlreadyPaid):
		return errorBody{Error: "Order already paid", Reason: "already_paid"}, http.StatusConflict

	case errors.Is(err, database.ErrProductNotFound):
		return errorBody{Error: msgProductNotFound, Reason: "product_not_found"}, http.StatusNotFound
	case errors.Is(err, database.ErrOrderNotFound):
		return errorBody{Error: "Order not found", Reason: "order_not_found"}, http.StatusNotFound
	case errors.Is(err, store.ErrInvalidCursor):
		return errorBody{Error: "Invalid cursor", Reason: "invalid_request"}, http.StatusBadRequest
	}

	return errorBody{Error: "Internal server error", Reason: "internal_error"}, http.StatusInternalServerError
}

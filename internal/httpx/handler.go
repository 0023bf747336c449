package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/safar/tapcart/internal/admin"
	"github.com/safar/tapcart/internal/checkout"
	"github.com/safar/tapcart/internal/invoice"
	"github.com/safar/tapcart/internal/models"
	"github.com/safar/tapcart/internal/phone"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type OTPService interface {
	Issue(ctx context.Context, rawPhone string) (number, code string, err error)
	Verify(ctx context.Context, rawPhone, code string) (string, error)
	IsVerified(ctx context.Context, rawPhone string) (bool, error)
}

type CouponService interface {
	Apply(ctx context.Context, code, storeID string, subtotal decimal.Decimal) (decimal.Decimal, error)
}

type CheckoutService interface {
	Finalize(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type AdminService interface {
	ListOrders(ctx context.Context, storeID, cursor string, limit int) (*admin.Page, error)
	Approve(ctx context.Context, sessionStoreID, orderID string) (*models.Order, error)
}

type AuthService interface {
	Login(ctx context.Context, storeID, password string) (string, error)
}

type Handler struct {
	Catalog  Catalog
	OTP      OTPService
	Coupons  CouponService
	Checkout CheckoutService
	Admin    AdminService
	Auth     AuthService

	// RequireOTP makes checkout refuse phones without a recent verification.
	RequireOTP     bool
	DefaultCountry string
	CookieSecure   bool
	SessionTTL     time.Duration
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("Invalid request body")
	}
	return nil
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Catalog.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID := strings.TrimSpace(q.Get("productId"))
	storeID := strings.TrimSpace(q.Get("storeId"))
	if productID == "" || storeID == "" {
		writeError(w, r, badRequest("productId and storeId are required"))
		return
	}

	p, err := h.Catalog.ResolveProduct(r.Context(), storeID, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"product": p})
}

type otpSendReq struct {
	Phone string `json:"phone"`
}

func (h *Handler) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpSendReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		writeError(w, r, badRequest("Phone number is required"))
		return
	}

	if _, _, err := h.OTP.Issue(r.Context(), req.Phone); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "OTP sent successfully"})
}

type otpVerifyReq struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.OTP) == "" {
		writeError(w, r, badRequest("Phone and OTP are required"))
		return
	}

	number, err := h.OTP.Verify(r.Context(), req.Phone, req.OTP)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "phone": number})
}

type couponApplyReq struct {
	Code    string          `json:"code"`
	StoreID string          `json:"storeId"`
	Amount  decimal.Decimal `json:"amount"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponApplyReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.StoreID) == "" {
		writeError(w, r, badRequest("Coupon code and storeId are required"))
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, r, badRequest("Amount must not be negative"))
		return
	}

	discount, err := h.Coupons.Apply(r.Context(), req.Code, req.StoreID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "discount": discount.StringFixed(2)})
}

type cartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type checkoutReq struct {
	Phone         string           `json:"phone"`
	Cart          []cartLine       `json:"cart"`
	StoreID       string           `json:"storeId"`
	PaymentMethod string           `json:"paymentMethod"`
	CouponCode    string           `json:"couponCode"`
	Discount      *decimal.Decimal `json:"discount"`
	TotalAmount   *decimal.Decimal `json:"totalAmount"`
}

type checkoutResp struct {
	Success       bool   `json:"success"`
	OrderID       string `json:"orderId"`
	BillURL       string `json:"billUrl"`
	PaymentStatus string `json:"paymentStatus"`
	OrderStatus   string `json:"orderStatus"`
	Subtotal      string `json:"totalAmount"`
	Discount      string `json:"discount"`
	FinalAmount   string `json:"finalAmount"`
	Replayed      bool   `json:"replayed,omitempty"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, badRequest("Invalid request body"))
		return
	}
	if err := validateJSONSchema(checkoutSchema, body); err != nil {
		writeError(w, r, err)
		return
	}

	var req checkoutReq
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, badRequest("Invalid request body"))
		return
	}

	number, err := phone.Normalize(req.Phone, h.DefaultCountry)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.RequireOTP {
		ok, err := h.OTP.IsVerified(r.Context(), number)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, &apiError{
				status:  http.StatusUnauthorized,
				reason:  "phone_not_verified",
				message: "Phone number is not verified",
			})
			return
		}
	}

	lines := make([]checkout.Line, len(req.Cart))
	for i, l := range req.Cart {
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		lines[i] = checkout.Line{ProductID: l.ProductID, Quantity: qty}
	}

	res, err := h.Checkout.Finalize(r.Context(), checkout.Request{
		Phone:          number,
		StoreID:        strings.TrimSpace(req.StoreID),
		Lines:          lines,
		PaymentMethod:  req.PaymentMethod,
		CouponCode:     strings.TrimSpace(req.CouponCode),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		ClientDiscount: req.Discount,
		ClientTotal:    req.TotalAmount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}

	writeJSON(w, status, checkoutResp{
		Success:       true,
		OrderID:       res.OrderID,
		BillURL:       res.BillURL,
		PaymentStatus: res.PaymentStatus,
		OrderStatus:   res.OrderStatus,
		Subtotal:      res.Totals.Subtotal.StringFixed(2),
		Discount:      res.Totals.Discount.StringFixed(2),
		FinalAmount:   res.Totals.Total.StringFixed(2),
		Replayed:      res.Replayed,
	})
}

func (h *Handler) bill(w http.ResponseWriter, r *http.Request) {
	order, err := h.Catalog.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := invoice.Render(order, order.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

type loginReq struct {
	StoreID  string `json:"storeId"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.StoreID) == "" || req.Password == "" {
		writeError(w, r, badRequest("Store ID and password are required"))
		return
	}

	token, err := h.Auth.Login(r.Context(), strings.TrimSpace(req.StoreID), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "storeId": strings.TrimSpace(req.StoreID)})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.Admin.ListOrders(r.Context(), sessionStoreID(r.Context()), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

type approveReq struct {
	OrderID string `json:"orderId"`
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	var req approveReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		writeError(w, r, badRequest("Order ID is required"))
		return
	}

	order, err := h.Admin.Approve(r.Context(), sessionStoreID(r.Context()), strings.TrimSpace(req.OrderID))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order payment approved successfully",
		"order":   order,
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := h.Catalog.ListProducts(r.Context(), sessionStoreID(r.Context()), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// limitBody caps request bodies.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

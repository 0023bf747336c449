package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/tapcart/internal/auth"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const sessionCookieName = auth.SessionCookie

type RouterConfig struct {
	RequestTimeout time.Duration
	OTPRateRPS     float64
	OTPRateBurst   int
	Sessions       SessionParser
	ServiceName    string
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(limitBody)

	withTimeout := func(next http.Handler) http.Handler { return next }
	if cfg.RequestTimeout > 0 {
		withTimeout = middleware.Timeout(cfg.RequestTimeout)
	}

	otpLimiter := newRateLimiter(cfg.OTPRateRPS, cfg.OTPRateBurst)

	r.With(withTimeout).Get("/healthz", h.health)

	r.Route("/customer", func(r chi.Router) {
		// Checkout is bounded by the finalizer's own deadline and answers
		// 503 checkout_timeout, so it skips the generic request timeout.
		r.Post("/checkout", h.checkout)

		r.Group(func(r chi.Router) {
			r.Use(withTimeout)
			r.Get("/product", h.getProduct)
			r.With(otpLimiter.middleware).Post("/otp/send", h.sendOTP)
			r.With(otpLimiter.middleware).Post("/otp/verify", h.verifyOTP)
			r.Post("/coupon/apply", h.applyCoupon)
			r.Get("/bill/{orderId}", h.bill)
		})
	})

	r.Route("/store", func(r chi.Router) {
		r.Use(withTimeout)
		r.Post("/auth/login", h.login)
		r.Post("/auth/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(requireStore(cfg.Sessions, sessionCookieName))
			r.Get("/orders", h.listOrders)
			r.Post("/orders/approve", h.approveOrder)
			r.Get("/products", h.listProducts)
		})
	})

	return otelhttp.NewHandler(r, cfg.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}))
}

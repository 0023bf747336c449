package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

type ctxKey int

const storeIDKey ctxKey = iota

// requestLogger logs one line per request once the response is written.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type ipLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*ipLimiter
	once    sync.Once
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{rps: rate.Limit(rps), burst: burst, clients: map[string]*ipLimiter{}}
}

func (l *rateLimiter) allow(ip string) bool {
	l.once.Do(func() { go l.cleanup() })

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &ipLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.last = time.Now()
	return c.limiter.Allow()
}

func (l *rateLimiter) cleanup() {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for range t.C {
		l.mu.Lock()
		for ip, c := range l.clients {
			if time.Since(c.last) > 30*time.Minute {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(remoteIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many requests", Reason: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteIP expects middleware.RealIP to have run already.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SessionParser turns a session token into a store id.
type SessionParser interface {
	Parse(token string) (string, error)
}

// requireStore rejects requests without a valid store session cookie and
// puts the session's store id on the context.
func requireStore(sessions SessionParser, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized", Reason: "unauthorized"})
				return
			}
			storeID, err := sessions.Parse(c.Value)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized", Reason: "unauthorized"})
				return
			}
			ctx := context.WithValue(r.Context(), storeIDKey, storeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionStoreID(ctx context.Context) string {
	id, _ := ctx.Value(storeIDKey).(string)
	return id
}

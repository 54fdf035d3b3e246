package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
)

// KeyFunc derives the limit key from a request. An empty key exempts the
// request.
type KeyFunc func(r *http.Request) string

// Middleware enforces limiter on every request whose KeyFunc yields a key.
// A limiter error fails open.
func Middleware(limiter Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(model.APIError{
					Error: model.ErrorDetail{
						Code:    model.ErrCodeRateLimited,
						Message: "too many requests",
					},
					Meta: model.ResponseMeta{
						RequestID: ctxutil.RequestID(r.Context()),
						Timestamp: time.Now().UTC(),
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKey limits by client IP. Only RemoteAddr is trusted; X-Forwarded-For is
// client-controlled unless a sanitizing proxy sits in front.
func IPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// OrgKey limits by authenticated org, falling back to IP for anonymous
// requests.
func OrgKey(r *http.Request) string {
	if claims, ok := ctxutil.Claims(r.Context()); ok {
		return "org:" + claims.OrgID.String()
	}
	return "ip:" + IPKey(r)
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nexusoptimizer/nexus/internal/ratelimit"
)

// RateLimit creates a rate limiting middleware backed by the given limiter.
// Each distinct client address and route pair gets its own counter, and a
// rejected request still advances the counter.
func (m *Middleware) RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.cfg.Security.RateLimiting.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientIP(r) + ":" + r.URL.Path
			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				// Fail open: a broken counter store must not take logins down.
				m.log.Error().Err(err).Msg("rate limit store unavailable")
				next.ServeHTTP(w, r)
				return
			}

			resetTime := time.Now().Add(res.RetryAfter).Unix()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(res.RetryAfter.Seconds()), 10))
				http.Error(w, `{"error":{"code":"rate_limited","message":"Too many requests. Please try again later."}}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the client address used for rate limit keys and audit entries
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
		}),
	)
}

// KeyedLimiter counts attempts per caller-chosen key over a sliding window.
// It is used where the key only becomes known inside the handler, such as a
// prefix of a submitted token.
type KeyedLimiter struct {
	rl *httprate.RateLimiter
}

// NewKeyedLimiter allows limit attempts per key within window.
func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{rl: httprate.NewRateLimiter(limit, window)}
}

// Allow counts one attempt for key and reports whether it is within the
// limit. Rate limit headers are set on w either way; the caller writes the
// response when Allow returns false.
func (l *KeyedLimiter) Allow(w http.ResponseWriter, r *http.Request, key string) bool {
	return !l.rl.OnLimit(w, r, key)
}

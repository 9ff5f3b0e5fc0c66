package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	ips             map[string]*rate.Limiter
	mu              sync.RWMutex
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		ips:             make(map[string]*rate.Limiter),
		rps:             rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 10 * time.Minute,
	}

	go rl.cleanup()

	return rl
}

// GetLimiter returns a limiter for an IP
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.ips[ip] = limiter
	}

	return limiter
}

// cleanup resets the map every interval so drive-by IPs do not accumulate.
// Active clients get a fresh full bucket on their next request.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	for range ticker.C {
		rl.mu.Lock()
		rl.ips = make(map[string]*rate.Limiter)
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware creates a middleware for rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.GetLimiter(getIPAddress(r))
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

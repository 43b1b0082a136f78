package http

import (
	"math"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/spec-kit/support-client/internal/auth"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// RateLimiter throttles each customer (or client IP before a session
// exists) with its own token bucket.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter allows perSecond requests with bursts of burst. A
// non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limit: rate.Limit(perSecond), burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Handle rejects requests over the limit with RATE_LIMITED and Retry-After.
func (r *RateLimiter) Handle(c *fiber.Ctx) error {
	if r == nil || r.limit <= 0 {
		return c.Next()
	}
	key := "ip:" + c.IP()
	if principal, ok := auth.PrincipalFromContext(c); ok {
		key = "customer:" + principal.CustomerID
	}
	lim := r.limiter(key)
	if !lim.Allow() {
		return apperrors.NewRateLimited(r.retryAfter())
	}
	return c.Next()
}

func (r *RateLimiter) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[key]
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = lim
	}
	return lim
}

// retryAfter is the time to refill one token, rounded up to whole seconds.
func (r *RateLimiter) retryAfter() time.Duration {
	secs := math.Ceil(1 / float64(r.limit))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

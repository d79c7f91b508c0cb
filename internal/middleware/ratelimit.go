package middleware

import (
	"sync"
	"time"

	appErrors "storefront/pkg/errors"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiters hands out one token bucket per caller key. Buckets idle for
// longer than idleTTL are full again, so they are dropped on the next sweep.
type userLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newUserLimiters(perMinute, burst int) *userLimiters {
	interval := time.Minute / time.Duration(perMinute)
	return &userLimiters{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(interval),
		burst:    burst,
		idleTTL:  interval * time.Duration(burst),
		now:      time.Now,
	}
}

func (u *userLimiters) allow(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	if now.Sub(u.lastSweep) >= u.idleTTL {
		for k, e := range u.limiters {
			if now.Sub(e.lastSeen) >= u.idleTTL {
				delete(u.limiters, k)
			}
		}
		u.lastSweep = now
	}

	e, ok := u.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(u.limit, u.burst)}
		u.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (u *userLimiters) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.limiters)
}

// RateLimitPerUser throttles requests per user id, falling back to client IP
// for unauthenticated callers. A non-positive perMinute disables limiting.
func RateLimitPerUser(perMinute, burst int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	return rateLimit(newUserLimiters(perMinute, burst))
}

func rateLimit(limiters *userLimiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ContextUserID)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiters.allow(key) {
			response.Abort(c, appErrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}

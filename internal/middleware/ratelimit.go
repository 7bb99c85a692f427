package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter tracks a per-IP token bucket. The admin/health surface has
// no authentication of its own (SPEC_FULL.md §C is read-only introspection), so
// this is the only thing standing between an oncall dashboard polling
// GET /health every second and an operator script stuck in a retry loop.
type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.RWMutex
	r   rate.Limit
	b   int
}

// NewIPRateLimiter creates a limiter allowing r requests/sec with burst b
// per client IP.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
	go i.cleanupLoop()
	return i
}

func (i *IPRateLimiter) getOrCreate(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	limiter, ok := i.ips[ip]
	if !ok {
		limiter = rate.NewLimiter(i.r, i.b)
		i.ips[ip] = limiter
	}
	return limiter
}

// cleanupLoop resets the tracked IP set hourly. The admin surface is
// polled by a small, fixed set of internal clients, so an hourly full
// reset is enough to bound memory without per-entry last-access tracking.
func (i *IPRateLimiter) cleanupLoop() {
	for {
		time.Sleep(time.Hour)
		i.mu.Lock()
		i.ips = make(map[string]*rate.Limiter)
		i.mu.Unlock()
		slog.Debug("rate limiter table reset")
	}
}

// RateLimit throttles GET /health, /status/lockouts and /status/photos to
// 5 req/s per IP with a burst of 10 — generous for a health-check poller,
// tight enough to blunt an accidental tight-loop client.
func RateLimit() gin.HandlerFunc {
	limiter := NewIPRateLimiter(5, 10)

	return func(c *gin.Context) {
		if !limiter.getOrCreate(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

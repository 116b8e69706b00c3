package mw

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ClientRateLimiter stores a rate limiter for each client. Limiters of clients
// that stayed quiet for the idle period are evicted.
type ClientRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewClientRateLimiter creates a new ClientRateLimiter.
func NewClientRateLimiter(r rate.Limit, b int, idle time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: cache.New(idle, 2*idle),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the rate limiter for a client key, creating it on first use.
func (l *ClientRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, found := l.limiters.Get(key); found {
		limiter := v.(*rate.Limiter)
		l.limiters.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.r, l.b)
	l.limiters.SetDefault(key, limiter)
	return limiter
}

// RateLimiter is a middleware for per-client rate limiting. When ipHeader is set
// and present on the request, its first value identifies the client instead of
// the connection address.
func RateLimiter(r rate.Limit, b int, ipHeader string) gin.HandlerFunc {
	limiter := NewClientRateLimiter(r, b, 10*time.Minute)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(clientKey(c, ipHeader)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context, ipHeader string) string {
	if ipHeader != "" {
		if v := c.GetHeader(ipHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return c.ClientIP()
}

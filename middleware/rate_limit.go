package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/casevault/backend/pkg/logger"
)

// RateLimiter counts requests per client key over fixed windows. All counters
// reset together when the window rolls over.
type RateLimiter struct {
	mu          sync.Mutex
	counts      map[string]int
	windowStart time.Time
	limit       int
	window      time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:      make(map[string]int),
		windowStart: time.Now(),
		limit:       limit,
		window:      window,
	}
}

// Allow records one request for key and reports whether it stays within the
// current window's limit.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.windowStart) > l.window {
		l.counts = make(map[string]int)
		l.windowStart = time.Now()
	}

	if l.counts[key] >= l.limit {
		return false
	}
	l.counts[key]++
	return true
}

// RateLimit limits request rates per client. Authenticated requests are keyed
// by user id, so case workers behind one office NAT do not share a budget;
// anonymous requests (login) fall back to the client IP.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(limit, window)

	return func(c *gin.Context) {
		key := GetUserID(c)
		if key == "" {
			key = c.ClientIP()
		}

		if !limiter.Allow(key) {
			logger.Warn(c.Request.Context(), "rate limit exceeded",
				"client_key", key,
				"path", c.Request.URL.Path,
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}

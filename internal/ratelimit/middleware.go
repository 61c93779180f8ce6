// Package ratelimit bounds request volume per client origin using a fixed
// window counter in the shared store.
package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DavidAGInnovation/dogg-tap-api/internal/store"
)

// Limiter counts requests per origin per fixed window.
type Limiter struct {
	store  store.Store
	max    int64
	window time.Duration
	log    *zap.Logger
}

func NewLimiter(s store.Store, max int64, window time.Duration, log *zap.Logger) *Limiter {
	return &Limiter{store: s, max: max, window: window, log: log}
}

// Middleware rejects with 429 once an origin exceeds max requests in the
// current window. If the store is unreachable the request is ADMITTED: an
// infrastructure outage must not block legitimate traffic. The failure is
// logged so the outage stays visible.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:ip:" + Origin(c)

		count, err := l.store.IncrWithTTL(c.Request.Context(), key, l.window)
		if err != nil {
			l.log.Error("rate limiter store unavailable, failing open",
				zap.String("origin", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if count > l.max {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

// Origin derives the rate-limit key for a request. gin's ClientIP already
// walks X-Forwarded-For / X-Real-IP for trusted proxies before falling back
// to RemoteAddr.
func Origin(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

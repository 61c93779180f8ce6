// Package idempotency memoizes responses keyed by (user, caller-supplied
// token) so a retried request reads back the original bytes instead of
// re-executing the operation.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DavidAGInnovation/dogg-tap-api/internal/auth"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/store"
)

// HeaderKey is the caller-supplied deduplication token header.
const HeaderKey = "Idempotency-Key"

// ReplayHeader marks a response served from the cache.
const ReplayHeader = "Idempotent-Replay"

const ctxKey = "idem_key"

// Cache wraps the store lookup/store pair around request handlers.
type Cache struct {
	store store.Store
	log   *zap.Logger
}

func NewCache(s store.Store, log *zap.Logger) *Cache {
	return &Cache{store: s, log: log}
}

// Middleware short-circuits a request whose (user, token) key has a live
// cached response, replaying the stored bytes with ReplayHeader set.
// Requests without a token bypass the layer entirely. Otherwise the derived
// key is left on the context for Save.
func (ic *Cache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderKey)
		if token == "" {
			c.Next()
			return
		}

		key := Key(auth.RawBody(c), token)
		cached, err := ic.store.Get(c.Request.Context(), key)
		if err == nil {
			c.Header(ReplayHeader, "true")
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			c.Abort()
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			// Lookup failure is not fatal: the wrapped operation re-executes.
			ic.log.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		}

		c.Set(ctxKey, key)
		c.Next()
	}
}

// Save caches the response bytes under the key derived by Middleware.
// Best-effort: a failed write only means a future retry re-executes the
// operation, so the error is logged and swallowed.
func (ic *Cache) Save(ctx context.Context, c *gin.Context, payload []byte, ttl time.Duration) {
	v, ok := c.Get(ctxKey)
	if !ok {
		return
	}
	key := v.(string)
	if err := ic.store.SetEX(ctx, key, string(payload), ttl); err != nil {
		ic.log.Warn("idempotency store failed", zap.String("key", key), zap.Error(err))
	}
}

// Key builds the cache key from the request body's userId and the token.
// Requests without a parseable user fall under the shared "na" scope.
func Key(rawBody []byte, token string) string {
	user := "na"
	var body struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(rawBody, &body); err == nil && body.UserID != 0 {
		user = strconv.FormatInt(body.UserID, 10)
	}
	return "idem:" + user + ":" + token
}

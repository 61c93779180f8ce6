package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// rawBodyKey is where the middleware stashes the request body for handlers.
const rawBodyKey = "raw_body"

// Middleware validates the X-Signature header against the exact request body
// bytes and checks the embedded timestamp for freshness. The body is
// re-attached to the request afterwards so handlers can bind it normally.
func Middleware(secret string, skew time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))
		c.Set(rawBodyKey, rawBody)

		if !VerifySignature(rawBody, c.GetHeader("X-Signature"), secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			return
		}

		var body struct {
			TS int64 `json:"ts"`
		}
		if err := json.Unmarshal(rawBody, &body); err != nil || !FreshTimestamp(body.TS, skew, time.Now()) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "stale_timestamp"})
			return
		}

		c.Next()
	}
}

// RawBody returns the request body captured by Middleware.
func RawBody(c *gin.Context) []byte {
	if v, ok := c.Get(rawBodyKey); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

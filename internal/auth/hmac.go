// Package auth verifies request integrity (HMAC signature over the exact
// body bytes) and timestamp freshness before any shared state is touched.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// VerifySignature recomputes HMAC-SHA256 over rawBody with secret and
// compares it to the hex-encoded signature. hmac.Equal keeps the comparison
// constant-time. Returns false on an empty secret or malformed signature.
func VerifySignature(rawBody []byte, signatureHex, secret string) bool {
	if secret == "" || signatureHex == "" {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), sig)
}

// Sign returns the hex HMAC-SHA256 signature clients are expected to send.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// FreshTimestamp reports whether tsMillis lies within skew of now.
func FreshTimestamp(tsMillis int64, skew time.Duration, now time.Time) bool {
	diff := now.UnixMilli() - tsMillis
	if diff < 0 {
		diff = -diff
	}
	return diff <= skew.Milliseconds()
}

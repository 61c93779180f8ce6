// Package store defines the keyed atomic store backing counters, balances,
// idempotency records, and rate-limit windows. Two implementations exist:
// RedisStore for deployments and MemoryStore for local/offline operation.
// Both expose identical observable semantics, including TTL expiry and the
// atomicity of TapTransact.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// TapResult is the outcome of one atomic quota/reward transaction.
type TapResult struct {
	// Allowed is how many of the requested taps were admitted after
	// clamping at the daily cap. May be zero once the cap is reached.
	Allowed int64
	// TapsToday is the new cumulative accepted count for the day.
	TapsToday int64
	// NewRewards is the number of reward thresholds crossed by this call.
	NewRewards int64
	// Balance is the user's reward balance after crediting NewRewards.
	Balance int64
}

// Store is the shared keyed atomic store.
//
// TapTransact executes the whole read-compute-write quota/reward step as one
// indivisible operation relative to every other caller touching the same
// keys. IncrWithTTL increments a window counter and guarantees the counter
// never ends up without an expiry, even when two callers race on a fresh
// window.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)

	// IncrWithTTL increments key and returns the post-increment count,
	// arming ttl on the key if it does not already have one.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TapTransact reads the current tap count under tapsKey and the reward
	// balance under balanceKey, admits up to cap-current of the requested
	// taps, credits one reward per awardEvery taps crossed, persists both,
	// and (re)arms ttl on tapsKey. The entire step is atomic.
	TapTransact(ctx context.Context, tapsKey, balanceKey string, taps, cap int64, ttl time.Duration, awardEvery int64) (TapResult, error)

	Ping(ctx context.Context) error
}

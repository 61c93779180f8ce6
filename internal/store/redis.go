package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tapScript is the quota/reward transaction as a Redis-side script, so the
// read-compute-write sequence runs as one step regardless of how many
// instances share the store.
//
// KEYS[1] = daily taps key, KEYS[2] = reward balance key
// ARGV[1] = requested taps, ARGV[2] = daily cap,
// ARGV[3] = taps-key TTL seconds, ARGV[4] = award-every threshold
var tapScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local inc = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local awardEvery = tonumber(ARGV[4])

local remaining = cap - current
if remaining < 0 then remaining = 0 end
local allowed = inc
if allowed > remaining then allowed = remaining end
local newTotal = current + allowed

if allowed > 0 then
  redis.call('SET', KEYS[1], newTotal)
  if ttl > 0 then redis.call('EXPIRE', KEYS[1], ttl) end
end

local prevAwards = math.floor(current / awardEvery)
local newAwards = math.floor(newTotal / awardEvery)
local delta = newAwards - prevAwards

local balance = tonumber(redis.call('GET', KEYS[2]) or '0')
if delta > 0 then
  balance = balance + delta
  redis.call('SET', KEYS[2], balance)
end

return {allowed, newTotal, delta, balance}
`)

// RedisStore implements Store on a shared Redis instance.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.SetEx(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.rdb.TTL(ctx, key).Result()
}

// IncrWithTTL increments the counter and probes its TTL in one pipeline,
// then arms the expiry if the key has none. Two racing callers may both see
// a fresh window and both call EXPIRE; that is harmless — what must never
// happen is a counter left without an expiry.
func (s *RedisStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	keyTTL := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if keyTTL.Val() < 0 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return incr.Val(), nil
}

func (s *RedisStore) TapTransact(ctx context.Context, tapsKey, balanceKey string, taps, cap int64, ttl time.Duration, awardEvery int64) (TapResult, error) {
	vals, err := tapScript.Run(ctx, s.rdb,
		[]string{tapsKey, balanceKey},
		taps, cap, int64(ttl.Seconds()), awardEvery,
	).Int64Slice()
	if err != nil {
		return TapResult{}, fmt.Errorf("tap script: %w", err)
	}
	if len(vals) != 4 {
		return TapResult{}, fmt.Errorf("tap script: expected 4 values, got %d", len(vals))
	}
	return TapResult{
		Allowed:    vals[0],
		TapsToday:  vals[1],
		NewRewards: vals[2],
		Balance:    vals[3],
	}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

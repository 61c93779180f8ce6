package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	val string
	// exp is the absolute expiry time; zero means no expiry.
	exp time.Time
}

// MemoryStore is the in-process Store used for local/offline operation.
// A single mutex guards every operation, which makes TapTransact trivially
// atomic: no other caller can interleave with the read-compute-write step.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests use this to drive TTL expiry.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// get returns the live entry for key, lazily dropping it if expired.
// Caller must hold s.mu.
func (s *MemoryStore) get(key string) (memEntry, bool) {
	ent, ok := s.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !ent.exp.IsZero() && !ent.exp.After(s.now()) {
		delete(s.entries, key)
		return memEntry{}, false
	}
	return ent, true
}

func (s *MemoryStore) getInt(key string) int64 {
	ent, ok := s.get(key)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(ent.val, 10, 64)
	return n
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.get(key)
	if !ok {
		return "", ErrNotFound
	}
	return ent.val, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{val: value}
	return nil
}

func (s *MemoryStore) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{val: value, exp: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.get(key)
	if !ok {
		return nil
	}
	ent.exp = s.now().Add(ttl)
	s.entries[key] = ent
	return nil
}

// TTL mirrors Redis semantics: -1 for a live key with no expiry, -2 for a
// missing key, otherwise the remaining lifetime.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.get(key)
	if !ok {
		return -2, nil
	}
	if ent.exp.IsZero() {
		return -1, nil
	}
	return ent.exp.Sub(s.now()), nil
}

func (s *MemoryStore) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.get(key)
	n := int64(0)
	if ok {
		n, _ = strconv.ParseInt(ent.val, 10, 64)
	}
	n++
	if !ok || ent.exp.IsZero() {
		ent.exp = s.now().Add(ttl)
	}
	ent.val = strconv.FormatInt(n, 10)
	s.entries[key] = ent
	return n, nil
}

func (s *MemoryStore) TapTransact(_ context.Context, tapsKey, balanceKey string, taps, cap int64, ttl time.Duration, awardEvery int64) (TapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.getInt(tapsKey)

	remaining := cap - current
	if remaining < 0 {
		remaining = 0
	}
	allowed := taps
	if allowed > remaining {
		allowed = remaining
	}
	newTotal := current + allowed

	if allowed > 0 {
		ent := memEntry{val: strconv.FormatInt(newTotal, 10)}
		if ttl > 0 {
			ent.exp = s.now().Add(ttl)
		}
		s.entries[tapsKey] = ent
	}

	deltaAwards := newTotal/awardEvery - current/awardEvery

	balance := s.getInt(balanceKey)
	if deltaAwards > 0 {
		balance += deltaAwards
		s.entries[balanceKey] = memEntry{val: strconv.FormatInt(balance, 10)}
	}

	return TapResult{
		Allowed:    allowed,
		TapsToday:  newTotal,
		NewRewards: deltaAwards,
		Balance:    balance,
	}, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

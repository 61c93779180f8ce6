package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/DavidAGInnovation/dogg-tap-api/internal/store"
)

func newTransactor(t *testing.T) (*Transactor, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tr := NewTransactor(store.NewRedisStore(rdb), Config{DailyCap: 200, AwardEvery: 10})
	return tr, mr
}

// ── Cap enforcement ──────────────────────────────────────────────────────────

func TestTap_CapScenario(t *testing.T) {
	tr, _ := newTransactor(t)
	ctx := context.Background()

	r1, err := tr.Tap(ctx, 4, 100)
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if r1.Accepted != 100 || r1.TapsToday != 100 || r1.NewRewards != 10 || r1.Balance != 10 {
		t.Fatalf("first 100: %+v", r1)
	}

	r2, err := tr.Tap(ctx, 4, 100)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Accepted != 100 || r2.TapsToday != 200 || r2.NewRewards != 10 || r2.Balance != 20 {
		t.Fatalf("second 100: %+v", r2)
	}

	// Cap reached: third batch fully rejected but the call succeeds.
	r3, err := tr.Tap(ctx, 4, 100)
	if err != nil {
		t.Fatal(err)
	}
	if r3.Accepted != 0 || r3.TapsToday != 200 || r3.NewRewards != 0 || r3.Balance != 20 {
		t.Fatalf("over cap: %+v", r3)
	}
}

func TestTap_PartialAcceptance(t *testing.T) {
	tr, _ := newTransactor(t)
	ctx := context.Background()

	if _, err := tr.Tap(ctx, 7, 180); err != nil {
		t.Fatal(err)
	}
	r, err := tr.Tap(ctx, 7, 50)
	if err != nil {
		t.Fatal(err)
	}
	if r.Accepted != 20 || r.TapsToday != 200 {
		t.Fatalf("partial batch: %+v", r)
	}
}

// ── Reward determinism ───────────────────────────────────────────────────────

func TestTap_RewardsAreFunctionOfCumulativeTotal(t *testing.T) {
	tr, _ := newTransactor(t)
	ctx := context.Background()

	// 7 then 9 crosses the threshold of 10 exactly once, same as a single 16.
	var last Result
	var rewards int64
	for _, n := range []int64{7, 9} {
		r, err := tr.Tap(ctx, 11, n)
		if err != nil {
			t.Fatal(err)
		}
		rewards += r.NewRewards
		last = r
	}
	if rewards != 1 || last.Balance != 1 {
		t.Fatalf("split 7+9: rewards=%d balance=%d, want 1/1", rewards, last.Balance)
	}

	single, err := tr.Tap(ctx, 12, 16)
	if err != nil {
		t.Fatal(err)
	}
	if single.NewRewards != 1 || single.Balance != 1 {
		t.Fatalf("single 16: %+v", single)
	}
}

func TestTap_OneByOneMatchesBatch(t *testing.T) {
	tr, _ := newTransactor(t)
	ctx := context.Background()

	var rewards int64
	for i := 0; i < 30; i++ {
		r, err := tr.Tap(ctx, 21, 1)
		if err != nil {
			t.Fatal(err)
		}
		rewards += r.NewRewards
	}

	batch, err := tr.Tap(ctx, 22, 30)
	if err != nil {
		t.Fatal(err)
	}
	if rewards != 3 || batch.NewRewards != 3 {
		t.Fatalf("30 singles earned %d, one batch earned %d, want 3 each", rewards, batch.NewRewards)
	}
}

// ── Day rollover ─────────────────────────────────────────────────────────────

func TestTap_DayRolloverStartsFresh(t *testing.T) {
	tr, _ := newTransactor(t)
	ctx := context.Background()

	day1 := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return day1 })

	if _, err := tr.Tap(ctx, 9, 200); err != nil {
		t.Fatal(err)
	}
	full, err := tr.Tap(ctx, 9, 10)
	if err != nil {
		t.Fatal(err)
	}
	if full.Accepted != 0 {
		t.Fatalf("cap should be reached on day 1: %+v", full)
	}

	// Next day uses a fresh key; balance carries over.
	tr.SetClock(func() time.Time { return day1.Add(2 * time.Hour) })
	r, err := tr.Tap(ctx, 9, 10)
	if err != nil {
		t.Fatal(err)
	}
	if r.Accepted != 10 || r.TapsToday != 10 {
		t.Fatalf("day 2 should start at zero: %+v", r)
	}
	if r.Balance != 21 {
		t.Fatalf("balance should persist across days: got %d want 21", r.Balance)
	}
}

func TestTap_CounterTTLBoundedByMidnight(t *testing.T) {
	tr, mr := newTransactor(t)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return at })

	if _, err := tr.Tap(ctx, 31, 5); err != nil {
		t.Fatal(err)
	}
	ttl := mr.TTL("tap:31:20240301")
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("taps key TTL = %v, want at most the 60s until UTC midnight", ttl)
	}
}

// ── Concurrency ──────────────────────────────────────────────────────────────

func TestTap_ConcurrentSubmissionsRespectCap(t *testing.T) {
	tr, _ := newTransactor(t)
	ctx := context.Background()

	const callers = 5
	results := make([]Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tr.Tap(ctx, 55, 100)
		}(i)
	}
	wg.Wait()

	var total, rewards int64
	for i, r := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if r.TapsToday > 200 {
			t.Fatalf("caller %d saw total %d over cap", i, r.TapsToday)
		}
		total += r.Accepted
		rewards += r.NewRewards
	}
	if total != 200 {
		t.Fatalf("admitted %d across callers, want exactly 200", total)
	}
	if rewards != 20 {
		t.Fatalf("rewards issued %d, want floor(200/10) = 20", rewards)
	}
}

// ── Store failure ────────────────────────────────────────────────────────────

func TestTap_StoreDownReturnsError(t *testing.T) {
	tr, mr := newTransactor(t)
	mr.Close()

	if _, err := tr.Tap(context.Background(), 1, 1); err == nil {
		t.Fatal("expected error when the store is unreachable")
	}
}

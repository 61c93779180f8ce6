// Package quota turns "N new taps for user U" into an admitted count and
// reward credits, atomically against the shared store.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/DavidAGInnovation/dogg-tap-api/internal/store"
)

// Config carries the tunables of the quota/reward rules.
type Config struct {
	// DailyCap is the maximum taps a user may have admitted per UTC day.
	DailyCap int64
	// AwardEvery is how many admitted taps earn one reward credit.
	AwardEvery int64
	// StoreTimeout bounds each call to the shared store.
	StoreTimeout time.Duration
}

// Result is the outcome of one tap submission.
type Result struct {
	Accepted   int64 // taps admitted this call, after clamping at the cap
	TapsToday  int64 // cumulative admitted taps for the UTC day
	NewRewards int64 // reward credits earned by this call
	Balance    int64 // reward balance after crediting
}

// Transactor executes the atomic quota/reward step.
type Transactor struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

func NewTransactor(s store.Store, cfg Config) *Transactor {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	return &Transactor{store: s, cfg: cfg, now: time.Now}
}

// SetClock overrides the time source for day-rollover tests.
func (t *Transactor) SetClock(now func() time.Time) { t.now = now }

// DailyCap returns the configured cap, for client display.
func (t *Transactor) DailyCap() int64 { return t.cfg.DailyCap }

// AwardEvery returns the configured reward threshold, for client display.
func (t *Transactor) AwardEvery() int64 { return t.cfg.AwardEvery }

// Tap admits up to taps work units for userID and credits any reward
// thresholds crossed. The caller validates taps > 0 and the per-call bound;
// the read-compute-write sequence itself runs as one atomic store step.
func (t *Transactor) Tap(ctx context.Context, userID int64, taps int64) (Result, error) {
	now := t.now().UTC()

	tapsKey := fmt.Sprintf("tap:%d:%s", userID, now.Format("20060102"))
	balanceKey := fmt.Sprintf("balance:dogg:%d", userID)
	ttl := untilUTCMidnight(now)

	ctx, cancel := context.WithTimeout(ctx, t.cfg.StoreTimeout)
	defer cancel()

	res, err := t.store.TapTransact(ctx, tapsKey, balanceKey, taps, t.cfg.DailyCap, ttl, t.cfg.AwardEvery)
	if err != nil {
		return Result{}, fmt.Errorf("tap transact user %d: %w", userID, err)
	}
	return Result{
		Accepted:   res.Allowed,
		TapsToday:  res.TapsToday,
		NewRewards: res.NewRewards,
		Balance:    res.Balance,
	}, nil
}

// Day returns the UTC day number (yyyymmdd) used to scope tap counters.
func (t *Transactor) Day() int {
	d := t.now().UTC()
	return d.Year()*10000 + int(d.Month())*100 + d.Day()
}

// untilUTCMidnight is the remaining lifetime of a day-scoped key: the tap
// counter must vanish at the next UTC midnight even if the service crashes.
func untilUTCMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	ttl := next.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

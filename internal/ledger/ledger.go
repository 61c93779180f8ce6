// Package ledger is the durable secondary persistence of tap and reward
// history. Writes happen out-of-band after the atomic store decision is
// final; failures are logged and never surfaced to the caller.
package ledger

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store appends accepted-tap deltas, reward deltas, and transaction records.
// Duplicate appends are acceptable; the authoritative counters live in the
// keyed atomic store.
type Store interface {
	EnsureUser(ctx context.Context, userID int64) error
	AddDailyTaps(ctx context.Context, userID int64, yyyymmdd int, taps int64) error
	AddBalance(ctx context.Context, userID int64, delta int64) error
	RecordTransaction(ctx context.Context, userID int64, txType string, amount float64, chainTxHash *string) error
}

// GormStore implements Store on a relational database via GORM.
type GormStore struct {
	db *gorm.DB
}

// Open dials MySQL and migrates the schema.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm.DB (tests pass in sqlite).
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&User{}, &TapDaily{}, &Balance{}, &Transaction{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) EnsureUser(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&User{ID: userID}).Error
}

func (s *GormStore) AddDailyTaps(ctx context.Context, userID int64, yyyymmdd int, taps int64) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "yyyymmdd"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"taps": gorm.Expr("tap_daily.taps + ?", taps)}),
		}).
		Create(&TapDaily{UserID: userID, YYYYMMDD: yyyymmdd, Taps: taps}).Error
}

func (s *GormStore) AddBalance(ctx context.Context, userID int64, delta int64) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"dogg_balance": gorm.Expr("balances.dogg_balance + ?", delta)}),
		}).
		Create(&Balance{UserID: userID, DoggBalance: delta}).Error
}

func (s *GormStore) RecordTransaction(ctx context.Context, userID int64, txType string, amount float64, chainTxHash *string) error {
	return s.db.WithContext(ctx).
		Create(&Transaction{UserID: userID, Type: txType, Amount: amount, ChainTxHash: chainTxHash}).Error
}

// Noop is installed when no durable database is configured.
type Noop struct{}

func (Noop) EnsureUser(context.Context, int64) error               { return nil }
func (Noop) AddDailyTaps(context.Context, int64, int, int64) error { return nil }
func (Noop) AddBalance(context.Context, int64, int64) error        { return nil }
func (Noop) RecordTransaction(context.Context, int64, string, float64, *string) error {
	return nil
}

package ledger

import "time"

// User anchors the foreign keys of the other tables.
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// TapDaily accumulates admitted taps per (user, UTC day).
type TapDaily struct {
	UserID   int64 `gorm:"primaryKey;autoIncrement:false"`
	YYYYMMDD int   `gorm:"primaryKey;autoIncrement:false;column:yyyymmdd"`
	Taps     int64 `gorm:"not null"`
}

func (TapDaily) TableName() string { return "tap_daily" }

// Balance is the durable copy of a user's reward balance.
type Balance struct {
	UserID      int64 `gorm:"primaryKey;autoIncrement:false"`
	DoggBalance int64 `gorm:"not null"`
}

func (Balance) TableName() string { return "balances" }

// Transaction is an append-only record of rewards and payouts.
type Transaction struct {
	ID          int64     `gorm:"primaryKey"`
	UserID      int64     `gorm:"not null;index"`
	Type        string    `gorm:"size:32;not null"`
	Amount      float64   `gorm:"not null"`
	ChainTxHash *string   `gorm:"size:128"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

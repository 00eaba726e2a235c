package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// JournalTotals are lifetime sums rebuilt from the journal.
type JournalTotals struct {
	Earned int64
	Spent  int64
}

// Journal is the append-only transaction store. It exposes no update or delete.
type Journal interface {
	Append(ctx context.Context, db *gorm.DB, tx *Transaction) (snowflake.ID, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, since *time.Time, limit, offset int) ([]Transaction, error)
	LatestEarnedAt(ctx context.Context, db *gorm.DB, userID string) (*time.Time, error)
	CountEarned(ctx context.Context, db *gorm.DB, userID string, since time.Time, sourceID string) (int64, error)
	Totals(ctx context.Context, db *gorm.DB, userID string) (JournalTotals, error)
}

// Ledger maintains the per-user account snapshot.
type Ledger interface {
	GetOrCreate(ctx context.Context, db *gorm.DB, userID string, now time.Time) (Account, error)
	Find(ctx context.Context, db *gorm.DB, userID string) (*Account, error)
	ResetDailyIfStale(account Account, today string) Account
	ApplyDelta(ctx context.Context, db *gorm.DB, account Account, amount int64, isEarn bool, today string, now time.Time) (Account, error)
}

type FraudLogFilter struct {
	UserID  string
	Actions []FraudAction
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

// FraudLogRepository stores detection evidence. Writes are best-effort for callers.
type FraudLogRepository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *FraudDetectionLog) error
	List(ctx context.Context, db *gorm.DB, filter FraudLogFilter) ([]FraudDetectionLog, error)
	CountByAction(ctx context.Context, db *gorm.DB, since, until *time.Time) (map[FraudAction]int64, error)
}

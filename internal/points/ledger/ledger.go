package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/edupoints/internal/points/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledger struct{}

func New() domain.Ledger {
	return &ledger{}
}

// GetOrCreate lazily inserts a zeroed account and returns the stored row. A
// concurrent first insert is absorbed by the conflict clause. On postgres and
// mysql the row is read FOR UPDATE, so writers for one user queue on the row
// lock until the enclosing transaction ends.
func (l *ledger) GetOrCreate(ctx context.Context, db *gorm.DB, userID string, now time.Time) (domain.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Account{}, domain.ErrInvalidUser
	}

	existing, err := l.find(ctx, db, userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	now = now.UTC()
	seed := domain.Account{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&seed).Error; err != nil {
		return domain.Account{}, err
	}

	account, err := l.find(ctx, db, userID, true)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *account, nil
}

func (l *ledger) Find(ctx context.Context, db *gorm.DB, userID string) (*domain.Account, error) {
	return l.find(ctx, db, userID, false)
}

func (l *ledger) find(ctx context.Context, db *gorm.DB, userID string, forUpdate bool) (*domain.Account, error) {
	query := db.WithContext(ctx)
	if forUpdate && supportsRowLocks(db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []domain.Account
	err := query.
		Where("user_id = ?", strings.TrimSpace(userID)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// supportsRowLocks reports whether the dialect understands SELECT ... FOR UPDATE.
// sqlite serializes writers on the database lock instead.
func supportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}

// ResetDailyIfStale zeroes the daily counter when the stored day differs from today.
// It only changes the in-memory copy; ApplyDelta persists it.
func (l *ledger) ResetDailyIfStale(account domain.Account, today string) domain.Account {
	if account.LastEarnedDate == today {
		return account
	}
	account.DailyEarned = 0
	account.LastEarnedDate = today
	return account
}

// ApplyDelta writes the signed amount against the account snapshot the caller
// read. The update is conditional on the version it read, so a writer that got
// past the row lock, or a dialect without one, fails with ErrConcurrentUpdate
// instead of losing an update.
func (l *ledger) ApplyDelta(ctx context.Context, db *gorm.DB, account domain.Account, amount int64, isEarn bool, today string, now time.Time) (domain.Account, error) {
	next := account
	switch {
	case isEarn && amount > 0:
		next = l.ResetDailyIfStale(next, today)
		next.Balance += amount
		next.TotalEarned += amount
		next.DailyEarned += amount
	case !isEarn && amount < 0:
		if next.Balance+amount < 0 {
			return account, domain.ErrNegativeBalance
		}
		next.Balance += amount
		next.TotalSpent -= amount
	default:
		return account, domain.ErrInvalidAmount
	}
	next.Version = account.Version + 1
	next.UpdatedAt = now.UTC()

	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("user_id = ? AND version = ?", account.UserID, account.Version).
		Updates(map[string]any{
			"balance":          next.Balance,
			"total_earned":     next.TotalEarned,
			"total_spent":      next.TotalSpent,
			"daily_earned":     next.DailyEarned,
			"last_earned_date": next.LastEarnedDate,
			"version":          next.Version,
			"updated_at":       next.UpdatedAt,
		})
	if res.Error != nil {
		return account, res.Error
	}
	if res.RowsAffected == 0 {
		return account, domain.ErrConcurrentUpdate
	}
	return next, nil
}

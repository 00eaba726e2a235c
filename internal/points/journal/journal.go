package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type journal struct {
	genID *snowflake.Node
}

// New returns the gorm-backed journal. Entries are only ever inserted.
func New(genID *snowflake.Node) domain.Journal {
	return &journal{genID: genID}
}

func (j *journal) Append(ctx context.Context, db *gorm.DB, tx *domain.Transaction) (snowflake.ID, error) {
	if tx == nil {
		return 0, errors.New("nil transaction")
	}
	if strings.TrimSpace(tx.UserID) == "" {
		return 0, domain.ErrInvalidUser
	}
	switch tx.Kind {
	case domain.TransactionKindEarned:
		if tx.Amount <= 0 {
			return 0, domain.ErrInvalidAmount
		}
	case domain.TransactionKindSpent:
		if tx.Amount >= 0 {
			return 0, domain.ErrInvalidAmount
		}
	default:
		return 0, domain.ErrInvalidRequest
	}
	if tx.ID == 0 {
		tx.ID = j.genID.Generate()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(tx).Error; err != nil {
		return 0, err
	}
	return tx.ID, nil
}

// ListByUser returns a newest-first page of the user's journal.
func (j *journal) ListByUser(ctx context.Context, db *gorm.DB, userID string, since *time.Time, limit, offset int) ([]domain.Transaction, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("user_id = ?", userID)
	if since != nil {
		stmt = stmt.Where("created_at >= ?", since.UTC())
	}
	if offset < 0 {
		offset = 0
	}

	var items []domain.Transaction
	err := stmt.
		Order("created_at desc, id desc").
		Limit(ClampLimit(limit)).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (j *journal) LatestEarnedAt(ctx context.Context, db *gorm.DB, userID string) (*time.Time, error) {
	var rows []domain.Transaction
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("created_at").
		Where("user_id = ? AND kind = ?", userID, domain.TransactionKindEarned).
		Order("created_at desc").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	latest := rows[0].CreatedAt.UTC()
	return &latest, nil
}

// CountEarned counts earned entries created at or after since. A non-empty
// sourceID narrows the count to that source.
func (j *journal) CountEarned(ctx context.Context, db *gorm.DB, userID string, since time.Time, sourceID string) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("user_id = ? AND kind = ? AND created_at >= ?", userID, domain.TransactionKindEarned, since.UTC())
	if sourceID = strings.TrimSpace(sourceID); sourceID != "" {
		stmt = stmt.Where("source_id = ?", sourceID)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (j *journal) Totals(ctx context.Context, db *gorm.DB, userID string) (domain.JournalTotals, error) {
	var totals domain.JournalTotals
	err := db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN kind = ? THEN amount ELSE 0 END), 0) AS earned,
			COALESCE(SUM(CASE WHEN kind = ? THEN -amount ELSE 0 END), 0) AS spent
		 FROM point_transactions
		 WHERE user_id = ?`,
		domain.TransactionKindEarned,
		domain.TransactionKindSpent,
		userID,
	).Scan(&totals).Error
	if err != nil {
		return domain.JournalTotals{}, err
	}
	return totals, nil
}

// ClampLimit bounds a page size to 1..MaxListLimit, using DefaultListLimit for zero.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

package fraud

import (
	"context"
	"time"

	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/smallbiznis/edupoints/internal/points/journal"
	"gorm.io/gorm"
)

type logRepo struct{}

func NewLogRepository() domain.FraudLogRepository {
	return &logRepo{}
}

func (r *logRepo) Insert(ctx context.Context, db *gorm.DB, entry *domain.FraudDetectionLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

// List returns logs newest first.
func (r *logRepo) List(ctx context.Context, db *gorm.DB, filter domain.FraudLogFilter) ([]domain.FraudDetectionLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.FraudDetectionLog{})
	if filter.UserID != "" {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Actions) > 0 {
		stmt = stmt.Where("action IN ?", filter.Actions)
	}
	stmt = applyRange(stmt, filter.Since, filter.Until)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var items []domain.FraudDetectionLog
	err := stmt.
		Order("created_at desc, id desc").
		Limit(journal.ClampLimit(filter.Limit)).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *logRepo) CountByAction(ctx context.Context, db *gorm.DB, since, until *time.Time) (map[domain.FraudAction]int64, error) {
	type row struct {
		Action domain.FraudAction
		Total  int64
	}
	var rows []row
	stmt := applyRange(db.WithContext(ctx).Model(&domain.FraudDetectionLog{}), since, until)
	err := stmt.
		Select("action, COUNT(*) AS total").
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[domain.FraudAction]int64, len(rows))
	for _, r := range rows {
		out[r.Action] = r.Total
	}
	return out, nil
}

func applyRange(stmt *gorm.DB, since, until *time.Time) *gorm.DB {
	if since != nil {
		stmt = stmt.Where("created_at >= ?", since.UTC())
	}
	if until != nil {
		stmt = stmt.Where("created_at < ?", until.UTC())
	}
	return stmt
}

package service

import (
	"context"
	"strings"
	"time"

	analytics "github.com/smallbiznis/edupoints/internal/analytics/domain"
	"github.com/smallbiznis/edupoints/internal/config"
	points "github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/smallbiznis/edupoints/internal/points/journal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	FraudLogs points.FraudLogRepository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	timeout   time.Duration
	fraudLogs points.FraudLogRepository
}

func NewService(p Params) analytics.Service {
	timeout := p.Config.Points.StorageTimeout
	if timeout <= 0 {
		timeout = config.DefaultPointsConfig().StorageTimeout
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("analytics.service"),
		timeout:   timeout,
		fraudLogs: p.FraudLogs,
	}
}

type categoryRow struct {
	Category   string `gorm:"column:category"`
	Kind       string `gorm:"column:kind"`
	Points     int64  `gorm:"column:points"`
	Count      int64  `gorm:"column:cnt"`
	Unverified int64  `gorm:"column:unverified"`
}

func (s *Service) PointsSummary(ctx context.Context, r analytics.TimeRange) (analytics.PointsSummary, error) {
	if err := validateRange(r); err != nil {
		return analytics.PointsSummary{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT category,
		       kind,
		       COALESCE(SUM(CASE WHEN kind = 'spent' THEN -amount ELSE amount END), 0) AS points,
		       COUNT(*) AS cnt,
		       COALESCE(SUM(CASE WHEN kind = 'earned' AND NOT verified THEN amount ELSE 0 END), 0) AS unverified
		FROM point_transactions
		WHERE 1 = 1`
	args := make([]any, 0, 2)
	if r.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, r.From.UTC())
	}
	if r.To != nil {
		query += ` AND created_at < ?`
		args = append(args, r.To.UTC())
	}
	query += `
		GROUP BY category, kind
		ORDER BY category ASC, kind ASC`

	var rows []categoryRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		s.log.Error("points summary query failed", zap.Error(err))
		return analytics.PointsSummary{}, err
	}

	summary := analytics.PointsSummary{
		From:       r.From,
		To:         r.To,
		Categories: make([]analytics.CategoryTotal, 0, len(rows)),
	}
	for _, row := range rows {
		kind := points.TransactionKind(strings.TrimSpace(row.Kind))
		switch kind {
		case points.TransactionKindEarned:
			summary.TotalEarned += row.Points
			summary.Unverified += row.Unverified
		case points.TransactionKindSpent:
			summary.TotalSpent += row.Points
		}
		summary.Categories = append(summary.Categories, analytics.CategoryTotal{
			Category: row.Category,
			Kind:     kind,
			Points:   row.Points,
			Count:    row.Count,
		})
	}
	return summary, nil
}

func (s *Service) FraudSummary(ctx context.Context, r analytics.TimeRange) (analytics.FraudSummary, error) {
	if err := validateRange(r); err != nil {
		return analytics.FraudSummary{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	counts, err := s.fraudLogs.CountByAction(ctx, s.db, r.From, r.To)
	if err != nil {
		s.log.Error("fraud summary query failed", zap.Error(err))
		return analytics.FraudSummary{}, err
	}

	summary := analytics.FraudSummary{From: r.From, To: r.To, Counts: counts}
	for _, n := range counts {
		summary.Total += n
	}
	return summary, nil
}

// ReviewQueue lists assessments a human should look at: flagged credits and
// review-level signals, newest first.
func (s *Service) ReviewQueue(ctx context.Context, req analytics.ReviewQueueRequest) ([]points.FraudDetectionLog, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.fraudLogs.List(ctx, s.db, points.FraudLogFilter{
		Actions: []points.FraudAction{points.FraudActionFlag, points.FraudActionReview},
		Since:   req.Since,
		Limit:   journal.ClampLimit(req.Limit),
		Offset:  max(req.Offset, 0),
	})
}

func (s *Service) UserFraudHistory(ctx context.Context, req analytics.FraudHistoryRequest) ([]points.FraudDetectionLog, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, analytics.ErrInvalidUser
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.fraudLogs.List(ctx, s.db, points.FraudLogFilter{
		UserID: userID,
		Since:  req.Since,
		Limit:  journal.ClampLimit(req.Limit),
		Offset: max(req.Offset, 0),
	})
}

func validateRange(r analytics.TimeRange) error {
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return analytics.ErrInvalidRange
	}
	return nil
}

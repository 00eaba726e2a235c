package domain

import (
	"context"
	"errors"

	points "github.com/smallbiznis/edupoints/internal/points/domain"
)

var (
	ErrInvalidRange = errors.New("invalid_range")
	ErrInvalidUser  = errors.New("invalid_user")
)

// Service answers admin questions about the economy. It never writes.
type Service interface {
	PointsSummary(ctx context.Context, r TimeRange) (PointsSummary, error)
	FraudSummary(ctx context.Context, r TimeRange) (FraudSummary, error)
	ReviewQueue(ctx context.Context, req ReviewQueueRequest) ([]points.FraudDetectionLog, error)
	UserFraudHistory(ctx context.Context, req FraudHistoryRequest) ([]points.FraudDetectionLog, error)
}

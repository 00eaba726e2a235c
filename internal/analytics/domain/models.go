package domain

import (
	"time"

	points "github.com/smallbiznis/edupoints/internal/points/domain"
)

// TimeRange bounds an aggregate. From is inclusive, To exclusive; nil means open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// CategoryTotal is the net movement of one category and kind inside a range.
type CategoryTotal struct {
	Category string                 `json:"category"`
	Kind     points.TransactionKind `json:"kind"`
	Points   int64                  `json:"points"`
	Count    int64                  `json:"count"`
}

type PointsSummary struct {
	From        *time.Time      `json:"from,omitempty"`
	To          *time.Time      `json:"to,omitempty"`
	TotalEarned int64           `json:"total_earned"`
	TotalSpent  int64           `json:"total_spent"`
	Unverified  int64           `json:"unverified_earned"`
	Categories  []CategoryTotal `json:"categories"`
}

type FraudSummary struct {
	From   *time.Time                   `json:"from,omitempty"`
	To     *time.Time                   `json:"to,omitempty"`
	Total  int64                        `json:"total"`
	Counts map[points.FraudAction]int64 `json:"counts"`
}

type ReviewQueueRequest struct {
	Since  *time.Time
	Limit  int
	Offset int
}

type FraudHistoryRequest struct {
	UserID string
	Since  *time.Time
	Limit  int
	Offset int
}

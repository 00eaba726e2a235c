package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionKind is the sign of a journal entry.
type TransactionKind string

const (
	TransactionKindEarned TransactionKind = "earned"
	TransactionKindSpent  TransactionKind = "spent"
)

// Well-known categories used by sibling services.
const (
	CategoryMilestoneCompletion = "milestone_completion"
	CategoryAchievement         = "achievement"
	CategoryConceptExplanation  = "concept-explanation"
	CategoryAICopilot           = "ai-copilot"
)

// FraudAction is the outcome of a risk assessment.
type FraudAction string

const (
	FraudActionNone   FraudAction = "none"
	FraudActionReview FraudAction = "review"
	FraudActionFlag   FraudAction = "flag"
	FraudActionBlock  FraudAction = "block"
)

// DateLayout is the calendar-day format stored in Account.LastEarnedDate.
const DateLayout = "2006-01-02"

// Account is the cached per-user snapshot derived from the journal.
// Balance == TotalEarned - TotalSpent and Balance >= 0 hold after every commit.
type Account struct {
	UserID         string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Balance        int64     `gorm:"not null" json:"balance"`
	TotalEarned    int64     `gorm:"not null" json:"total_earned"`
	TotalSpent     int64     `gorm:"not null" json:"total_spent"`
	DailyEarned    int64     `gorm:"not null" json:"daily_earned"`
	LastEarnedDate string    `gorm:"type:varchar(10);not null" json:"last_earned_date"`
	Version        int64     `gorm:"not null" json:"version"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "point_accounts" }

// Transaction is an immutable journal entry. Amount is positive for earns and
// negative for spends.
type Transaction struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID       string            `gorm:"type:varchar(64);not null;index:idx_point_transactions_user_kind_created,priority:1" json:"user_id"`
	Amount       int64             `gorm:"not null" json:"amount"`
	Kind         TransactionKind   `gorm:"type:varchar(16);not null;index:idx_point_transactions_user_kind_created,priority:2" json:"kind"`
	Category     string            `gorm:"type:varchar(64);not null;index" json:"category"`
	Reason       string            `gorm:"type:text;not null" json:"reason"`
	SourceID     *string           `gorm:"type:varchar(128);index" json:"source_id,omitempty"`
	SourceType   *string           `gorm:"type:varchar(64)" json:"source_type,omitempty"`
	QualityScore *int              `json:"quality_score,omitempty"`
	Verified     bool              `gorm:"not null" json:"verified"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index:idx_point_transactions_user_kind_created,priority:3" json:"created_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "point_transactions" }

// FraudDetectionLog is the append-only evidence trail for risk assessments.
type FraudDetectionLog struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	UserID        string                      `gorm:"type:varchar(64);not null;index" json:"user_id"`
	ActivityType  string                      `gorm:"type:varchar(64);not null" json:"activity_type"`
	Category      string                      `gorm:"type:varchar(64);not null" json:"category"`
	SourceID      *string                     `gorm:"type:varchar(128)" json:"source_id,omitempty"`
	TransactionID *snowflake.ID               `gorm:"index" json:"transaction_id,omitempty"`
	RiskScore     int                         `gorm:"not null" json:"risk_score"`
	Flags         datatypes.JSONSlice[string] `json:"flags"`
	Action        FraudAction                 `gorm:"type:varchar(16);not null;index" json:"action"`
	Details       datatypes.JSONMap           `json:"details,omitempty"`
	CreatedAt     time.Time                   `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (FraudDetectionLog) TableName() string { return "point_fraud_logs" }

// Models lists every persisted type, in creation order.
func Models() []any {
	return []any{&Account{}, &Transaction{}, &FraudDetectionLog{}}
}

package domain

import (
	"context"
	"time"
)

type EarnRequest struct {
	UserID       string `validate:"required,max=64"`
	Category     string `validate:"required,max=64"`
	Amount       int64  `validate:"gt=0"`
	Reason       string `validate:"max=512"`
	SourceID     string `validate:"max=128"`
	SourceType   string `validate:"max=64"`
	QualityScore *int   `validate:"omitempty,min=0,max=100"`
	Metadata     map[string]any
}

// EarnResult reports the outcome of an earn. Credited may be lower than
// Requested when the daily cap clips the award.
type EarnResult struct {
	Success          bool         `json:"success"`
	Reason           RejectReason `json:"reason,omitempty"`
	Message          string       `json:"message"`
	Requested        int64        `json:"requested"`
	Credited         int64        `json:"credited"`
	Remaining        int64        `json:"remaining"`
	SecondsRemaining int64        `json:"seconds_remaining,omitempty"`
	Balance          int64        `json:"balance"`
	Transaction      *Transaction `json:"transaction,omitempty"`
}

type SpendRequest struct {
	UserID     string `validate:"required,max=64"`
	Category   string `validate:"required,max=64"`
	Amount     int64  `validate:"gt=0"`
	Reason     string `validate:"max=512"`
	SourceID   string `validate:"max=128"`
	SourceType string `validate:"max=64"`
	Metadata   map[string]any
}

type SpendResult struct {
	Success     bool         `json:"success"`
	Reason      RejectReason `json:"reason,omitempty"`
	Message     string       `json:"message"`
	Amount      int64        `json:"amount"`
	Balance     int64        `json:"balance"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

type ListTransactionsRequest struct {
	UserID string
	Since  *time.Time
	Limit  int
	Offset int
}

// Reconciliation compares the cached account against totals rebuilt from the journal.
type Reconciliation struct {
	UserID         string  `json:"user_id"`
	Account        Account `json:"account"`
	JournalEarned  int64   `json:"journal_earned"`
	JournalSpent   int64   `json:"journal_spent"`
	JournalBalance int64   `json:"journal_balance"`
	EarnedDrift    int64   `json:"earned_drift"`
	SpentDrift     int64   `json:"spent_drift"`
	Consistent     bool    `json:"consistent"`
}

// Service is the only entry point sibling services use to move points.
type Service interface {
	Earn(ctx context.Context, req EarnRequest) (EarnResult, error)
	Spend(ctx context.Context, req SpendRequest) (SpendResult, error)
	GetBalance(ctx context.Context, userID string) (Account, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) ([]Transaction, error)
	Reconcile(ctx context.Context, userID string) (Reconciliation, error)
}

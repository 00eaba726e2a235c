package domain

import "errors"

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCategory     = errors.New("invalid_category")
	ErrInvalidQualityScore = errors.New("invalid_quality_score")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrStorageUnavailable  = errors.New("storage_unavailable")

	// ErrConcurrentUpdate signals a lost compare-and-swap on the account row.
	ErrConcurrentUpdate = errors.New("concurrent_update")
	// ErrNegativeBalance is returned by the ledger when a delta would overdraw the account.
	ErrNegativeBalance = errors.New("negative_balance")
)

// RejectReason names a business-rule rejection. Rejections are results, not errors.
type RejectReason string

const (
	ReasonNone                RejectReason = ""
	ReasonInsufficientBalance RejectReason = "insufficient_balance"
	ReasonDailyLimitReached   RejectReason = "daily_limit_reached"
	ReasonCoolingPeriod       RejectReason = "cooling_period"
	ReasonQualityTooLow       RejectReason = "quality_too_low"
	ReasonFraudBlocked        RejectReason = "fraud_blocked"
)

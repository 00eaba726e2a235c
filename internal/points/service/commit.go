package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/edupoints/internal/points/domain"
	obsmetrics "github.com/smallbiznis/edupoints/internal/observability/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errRejected aborts a commit transaction for a business rule. The caller reads
// the rejection from the attempt outcome.
var errRejected = errors.New("rejected")

type earnOutcome struct {
	account     domain.Account
	transaction domain.Transaction
	credited    int64
	attempts    int
	rejection   *domain.EarnResult
}

type spendOutcome struct {
	account     domain.Account
	transaction domain.Transaction
	attempts    int
	rejection   *domain.SpendResult
}

// commitEarn re-reads the account, re-clips the amount to the cap and re-checks
// the cooling window inside one transaction, then appends the journal entry and
// applies the delta under the account version. A lost version race restarts
// the whole attempt.
func (s *Service) commitEarn(ctx context.Context, req domain.EarnRequest, verified bool, now time.Time, today string) (earnOutcome, error) {
	var out earnOutcome
	err := s.withRetry(ctx, obsmetrics.OperationEarn, &out.attempts, func(ctx context.Context, tx *gorm.DB) error {
		account, err := s.ledger.GetOrCreate(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}
		account = s.ledger.ResetDailyIfStale(account, today)

		daily := s.guard.AllowDaily(account, req.Amount)
		if !daily.Allowed {
			rejected := s.rejectEarn(req, account, domain.ReasonDailyLimitReached, dailyLimitMessage, 0)
			out.rejection = &rejected
			return errRejected
		}
		cooling, err := s.guard.AllowCooling(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}
		if !cooling.Allowed {
			rejected := s.rejectEarn(req, account, domain.ReasonCoolingPeriod, coolingMessage(cooling.SecondsRemaining), cooling.SecondsRemaining)
			out.rejection = &rejected
			return errRejected
		}

		entry := domain.Transaction{
			UserID:       req.UserID,
			Amount:       daily.Granted,
			Kind:         domain.TransactionKindEarned,
			Category:     req.Category,
			Reason:       req.Reason,
			SourceID:     optionalString(req.SourceID),
			SourceType:   optionalString(req.SourceType),
			QualityScore: req.QualityScore,
			Verified:     verified,
			Metadata:     metadata(req.Metadata),
			CreatedAt:    now,
		}
		if _, err := s.journal.Append(ctx, tx, &entry); err != nil {
			return err
		}
		updated, err := s.ledger.ApplyDelta(ctx, tx, account, daily.Granted, true, today, now)
		if err != nil {
			return err
		}

		out.account = updated
		out.transaction = entry
		out.credited = daily.Granted
		out.rejection = nil
		return nil
	})
	if errors.Is(err, errRejected) {
		return out, nil
	}
	return out, err
}

func (s *Service) commitSpend(ctx context.Context, req domain.SpendRequest, now time.Time) (spendOutcome, error) {
	var out spendOutcome
	err := s.withRetry(ctx, obsmetrics.OperationSpend, &out.attempts, func(ctx context.Context, tx *gorm.DB) error {
		account, err := s.ledger.GetOrCreate(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}
		if req.Amount > account.Balance {
			out.rejection = insufficient(req, account)
			return errRejected
		}

		entry := domain.Transaction{
			UserID:     req.UserID,
			Amount:     -req.Amount,
			Kind:       domain.TransactionKindSpent,
			Category:   req.Category,
			Reason:     req.Reason,
			SourceID:   optionalString(req.SourceID),
			SourceType: optionalString(req.SourceType),
			Verified:   true,
			Metadata:   metadata(req.Metadata),
			CreatedAt:  now,
		}
		if _, err := s.journal.Append(ctx, tx, &entry); err != nil {
			return err
		}
		updated, err := s.ledger.ApplyDelta(ctx, tx, account, -req.Amount, false, s.today(now), now)
		if errors.Is(err, domain.ErrNegativeBalance) {
			out.rejection = insufficient(req, account)
			return errRejected
		}
		if err != nil {
			return err
		}

		out.account = updated
		out.transaction = entry
		out.rejection = nil
		return nil
	})
	if errors.Is(err, errRejected) {
		return out, nil
	}
	return out, err
}

// withRetry runs fn in a fresh transaction per attempt. All attempts share one
// storage deadline; version conflicts are retried until that deadline passes,
// or until MaxCASRetries attempts when it is set.
func (s *Service) withRetry(ctx context.Context, operation string, attempts *int, fn func(ctx context.Context, tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		*attempts = attempt
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, tx)
		})
		switch {
		case err == nil, errors.Is(err, errRejected):
			return err
		case errors.Is(err, domain.ErrConcurrentUpdate):
			s.ledgerMetrics.IncCASConflict(operation)
		default:
			s.ledgerMetrics.IncStorageError(operation, err)
			return storageErr(err)
		}

		if s.cfg.MaxCASRetries > 0 && attempt >= s.cfg.MaxCASRetries {
			s.ledgerMetrics.IncCASExhausted(operation)
			return fmt.Errorf("%w: %w after %d attempts", domain.ErrStorageUnavailable, domain.ErrConcurrentUpdate, attempt)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.ledgerMetrics.IncCASExhausted(operation)
			return fmt.Errorf("%w: %w after %d attempts: %w", domain.ErrStorageUnavailable, domain.ErrConcurrentUpdate, attempt, ctxErr)
		}
	}
}

func insufficient(req domain.SpendRequest, account domain.Account) *domain.SpendResult {
	return &domain.SpendResult{
		Reason:  domain.ReasonInsufficientBalance,
		Message: fmt.Sprintf("insufficient balance: %d available, %d required", account.Balance, req.Amount),
		Amount:  req.Amount,
		Balance: account.Balance,
	}
}

func metadata(values map[string]any) datatypes.JSONMap {
	if len(values) == 0 {
		return nil
	}
	return datatypes.JSONMap(values)
}

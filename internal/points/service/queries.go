package service

import (
	"context"

	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/smallbiznis/edupoints/internal/points/journal"
	"go.uber.org/zap"
)

// GetBalance serves the snapshot from the cache when possible. It never creates
// an account; unknown users read as a zeroed snapshot.
func (s *Service) GetBalance(ctx context.Context, userID string) (domain.Account, error) {
	userID, err := s.normalizeUser(userID)
	if err != nil {
		return domain.Account{}, err
	}

	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.ledgerMetrics.IncCacheError("get")
		s.log.Warn("balance cache read failed", zap.String("user_id", userID), zap.Error(err))
	}
	if cached != nil {
		return *cached, nil
	}

	account, err := s.findAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	if account.Version > 0 {
		s.refreshCache(ctx, s.log, account)
	}
	return account, nil
}

func (s *Service) ListTransactions(ctx context.Context, req domain.ListTransactionsRequest) ([]domain.Transaction, error) {
	userID, err := s.normalizeUser(req.UserID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	items, err := s.journal.ListByUser(ctx, s.db, userID, req.Since, journal.ClampLimit(req.Limit), req.Offset)
	if err != nil {
		return nil, storageErr(err)
	}
	return items, nil
}

// Reconcile rebuilds lifetime totals from the journal and reports how far the
// cached account has drifted. It is read-only.
func (s *Service) Reconcile(ctx context.Context, userID string) (domain.Reconciliation, error) {
	userID, err := s.normalizeUser(userID)
	if err != nil {
		return domain.Reconciliation{}, err
	}

	account, err := s.findAccount(ctx, userID)
	if err != nil {
		return domain.Reconciliation{}, err
	}

	totalsCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	totals, err := s.journal.Totals(totalsCtx, s.db, userID)
	if err != nil {
		return domain.Reconciliation{}, storageErr(err)
	}

	report := domain.Reconciliation{
		UserID:         userID,
		Account:        account,
		JournalEarned:  totals.Earned,
		JournalSpent:   totals.Spent,
		JournalBalance: totals.Earned - totals.Spent,
		EarnedDrift:    account.TotalEarned - totals.Earned,
		SpentDrift:     account.TotalSpent - totals.Spent,
	}
	report.Consistent = report.EarnedDrift == 0 &&
		report.SpentDrift == 0 &&
		account.Balance == report.JournalBalance
	if !report.Consistent {
		s.log.Warn("ledger drift detected",
			zap.String("user_id", userID),
			zap.Int64("earned_drift", report.EarnedDrift),
			zap.Int64("spent_drift", report.SpentDrift),
		)
	}
	return report, nil
}

func (s *Service) findAccount(ctx context.Context, userID string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	account, err := s.ledger.Find(ctx, s.db, userID)
	if err != nil {
		return domain.Account{}, storageErr(err)
	}
	if account == nil {
		return domain.Account{UserID: userID}, nil
	}
	return *account, nil
}

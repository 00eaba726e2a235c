package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/edupoints/internal/clock"
	"github.com/smallbiznis/edupoints/internal/config"
	obslogger "github.com/smallbiznis/edupoints/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/edupoints/internal/observability/metrics"
	"github.com/smallbiznis/edupoints/internal/observability/tracing"
	"github.com/smallbiznis/edupoints/internal/points/cache"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/smallbiznis/edupoints/internal/points/fraud"
	"github.com/smallbiznis/edupoints/internal/points/ratewindow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const fraudBlockedMessage = "activity flagged for review"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Config        config.Config
	Clock         clock.Clock
	Journal       domain.Journal
	Ledger        domain.Ledger
	Guard         *ratewindow.Guard
	Detector      *fraud.Detector
	FraudLogs     domain.FraudLogRepository
	Cache         cache.BalanceCache        `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

// Service moves points. It holds no per-user state; every decision is made
// against the store, so any number of instances may run side by side.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	cfg           config.PointsConfig
	clock         clock.Clock
	journal       domain.Journal
	ledger        domain.Ledger
	guard         *ratewindow.Guard
	detector      *fraud.Detector
	fraudLogs     domain.FraudLogRepository
	cache         cache.BalanceCache
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
	validate      *validator.Validate
	tracer        trace.Tracer
	qualityGated  map[string]struct{}
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	cfg := p.Config.Points
	if cfg.DayLocation == nil {
		cfg.DayLocation = time.UTC
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = config.DefaultPointsConfig().StorageTimeout
	}

	balanceCache := p.Cache
	if balanceCache == nil {
		balanceCache = cache.Noop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	gated := make(map[string]struct{}, len(cfg.QualityRequiredCategories))
	for _, category := range cfg.QualityRequiredCategories {
		if normalized := normalizeCategory(category); normalized != "" {
			gated[normalized] = struct{}{}
		}
	}

	return &Service{
		db:            p.DB,
		log:           p.Log.Named("points.service"),
		genID:         p.GenID,
		cfg:           cfg,
		clock:         clk,
		journal:       p.Journal,
		ledger:        p.Ledger,
		guard:         p.Guard,
		detector:      p.Detector,
		fraudLogs:     p.FraudLogs,
		cache:         balanceCache,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
		validate:      validator.New(),
		tracer:        otel.Tracer("edupoints/points"),
		qualityGated:  gated,
	}
}

// Earn runs the fraud, quality, daily cap and cooling checks in that order and
// credits the possibly clipped amount. Rejections come back as results.
func (s *Service) Earn(ctx context.Context, req domain.EarnRequest) (domain.EarnResult, error) {
	req, err := s.normalizeEarn(req)
	if err != nil {
		return domain.EarnResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "points.Earn")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("points.kind", string(domain.TransactionKindEarned)),
		attribute.String("points.category", req.Category),
		attribute.Int64("points.amount", req.Amount),
	)...)

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("user_id", req.UserID),
		zap.String("category", req.Category),
		zap.Int64("requested", req.Amount),
	)

	result, err := s.earn(ctx, log, req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "earn failed")
		return domain.EarnResult{}, err
	}

	span.SetAttributes(tracing.SafeAttributes(
		attribute.Int64("points.credited", result.Credited),
		attribute.String("points.reject_reason", string(result.Reason)),
	)...)
	s.obsMetrics.RecordEarn(ctx, req.Category, string(result.Reason), result.Credited)
	return result, nil
}

func (s *Service) earn(ctx context.Context, log *zap.Logger, req domain.EarnRequest) (domain.EarnResult, error) {
	now := s.clock.Now().UTC()
	today := s.today(now)

	pre, err := s.precheckEarn(ctx, req, now, today)
	if err != nil {
		s.ledgerMetrics.IncStorageError(obsmetrics.OperationEarn, err)
		log.Error("earn precheck failed", zap.Error(err))
		return domain.EarnResult{}, storageErr(err)
	}

	if pre.assessment.Action == domain.FraudActionBlock {
		// Evidence must exist before the rejection is returned.
		s.recordAssessment(ctx, log, req, pre.assessment, nil)
		log.Info("earn rejected",
			zap.String("reason", string(domain.ReasonFraudBlocked)),
			zap.Int("risk_score", pre.assessment.Score),
			zap.Strings("flags", pre.assessment.Flags),
		)
		return s.rejectEarn(req, pre.account, domain.ReasonFraudBlocked, fraudBlockedMessage, 0), nil
	}
	if pre.rejection != nil {
		log.Info("earn rejected", zap.String("reason", string(pre.rejection.Reason)))
		return *pre.rejection, nil
	}

	verified := pre.assessment.Action != domain.FraudActionFlag
	started := time.Now()
	outcome, err := s.commitEarn(ctx, req, verified, now, today)
	if err != nil {
		s.ledgerMetrics.ObserveCommit(obsmetrics.OperationEarn, "failed", time.Since(started))
		log.Error("earn commit failed", zap.Error(err))
		return domain.EarnResult{}, err
	}
	if outcome.rejection != nil {
		s.ledgerMetrics.ObserveCommit(obsmetrics.OperationEarn, "rejected", time.Since(started))
		log.Info("earn rejected at commit", zap.String("reason", string(outcome.rejection.Reason)))
		return *outcome.rejection, nil
	}
	s.ledgerMetrics.ObserveCommit(obsmetrics.OperationEarn, "committed", time.Since(started))

	if pre.assessment.Logged() {
		s.recordAssessment(ctx, log, req, pre.assessment, &outcome.transaction.ID)
	}
	s.refreshCache(ctx, log, outcome.account)

	remaining := s.guard.DailyCap() - outcome.account.DailyEarned
	if remaining < 0 {
		remaining = 0
	}
	log.Info("points earned",
		zap.Int64("credited", outcome.credited),
		zap.Int64("balance", outcome.account.Balance),
		zap.Bool("verified", verified),
		zap.Int("attempts", outcome.attempts),
	)
	return domain.EarnResult{
		Success:     true,
		Message:     earnedMessage(req.Amount, outcome.credited),
		Requested:   req.Amount,
		Credited:    outcome.credited,
		Remaining:   remaining,
		Balance:     outcome.account.Balance,
		Transaction: &outcome.transaction,
	}, nil
}

type earnPrecheck struct {
	account    domain.Account
	assessment fraud.Assessment
	rejection  *domain.EarnResult
}

// precheckEarn evaluates every rule against a plain read. The commit repeats the
// cap and cooling checks inside its transaction.
func (s *Service) precheckEarn(ctx context.Context, req domain.EarnRequest, now time.Time, today string) (earnPrecheck, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	var out earnPrecheck
	account, err := s.ledger.GetOrCreate(ctx, s.db, req.UserID, now)
	if err != nil {
		return out, err
	}
	out.account = s.ledger.ResetDailyIfStale(account, today)

	out.assessment, err = s.detector.Evaluate(ctx, s.db, fraud.Request{
		UserID:       req.UserID,
		Category:     req.Category,
		SourceID:     req.SourceID,
		QualityScore: req.QualityScore,
		Now:          now,
	})
	if err != nil {
		return out, err
	}
	s.obsMetrics.RecordFraudAssessment(ctx, string(out.assessment.Action), out.assessment.Score)
	if out.assessment.Action == domain.FraudActionBlock {
		return out, nil
	}

	if reason, message := s.checkQuality(req); reason != domain.ReasonNone {
		rejected := s.rejectEarn(req, out.account, reason, message, 0)
		out.rejection = &rejected
		return out, nil
	}

	daily := s.guard.AllowDaily(out.account, req.Amount)
	if !daily.Allowed {
		rejected := s.rejectEarn(req, out.account, domain.ReasonDailyLimitReached, dailyLimitMessage, 0)
		out.rejection = &rejected
		return out, nil
	}

	cooling, err := s.guard.AllowCooling(ctx, s.db, req.UserID, now)
	if err != nil {
		return out, err
	}
	if !cooling.Allowed {
		rejected := s.rejectEarn(req, out.account, domain.ReasonCoolingPeriod, coolingMessage(cooling.SecondsRemaining), cooling.SecondsRemaining)
		out.rejection = &rejected
		return out, nil
	}
	return out, nil
}

func (s *Service) checkQuality(req domain.EarnRequest) (domain.RejectReason, string) {
	if req.QualityScore == nil {
		if _, gated := s.qualityGated[req.Category]; gated {
			return domain.ReasonQualityTooLow, fmt.Sprintf("a quality score is required for %s", req.Category)
		}
		return domain.ReasonNone, ""
	}
	if *req.QualityScore < s.cfg.MinQualityScore {
		return domain.ReasonQualityTooLow, fmt.Sprintf("quality score %d is below the minimum of %d", *req.QualityScore, s.cfg.MinQualityScore)
	}
	return domain.ReasonNone, ""
}

func (s *Service) rejectEarn(req domain.EarnRequest, account domain.Account, reason domain.RejectReason, message string, seconds int64) domain.EarnResult {
	remaining := s.guard.DailyCap() - account.DailyEarned
	if remaining < 0 || reason == domain.ReasonDailyLimitReached {
		remaining = 0
	}
	return domain.EarnResult{
		Reason:           reason,
		Message:          message,
		Requested:        req.Amount,
		Remaining:        remaining,
		SecondsRemaining: seconds,
		Balance:          account.Balance,
	}
}

// Spend debits the balance. Only sufficiency is checked, inside the same
// transaction as the debit.
func (s *Service) Spend(ctx context.Context, req domain.SpendRequest) (domain.SpendResult, error) {
	req, err := s.normalizeSpend(req)
	if err != nil {
		return domain.SpendResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "points.Spend")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("points.kind", string(domain.TransactionKindSpent)),
		attribute.String("points.category", req.Category),
		attribute.Int64("points.amount", req.Amount),
	)...)

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("user_id", req.UserID),
		zap.String("category", req.Category),
		zap.Int64("amount", req.Amount),
	)

	now := s.clock.Now().UTC()
	started := time.Now()
	outcome, err := s.commitSpend(ctx, req, now)
	if err != nil {
		s.ledgerMetrics.ObserveCommit(obsmetrics.OperationSpend, "failed", time.Since(started))
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "spend failed")
		log.Error("spend commit failed", zap.Error(err))
		return domain.SpendResult{}, err
	}

	if outcome.rejection != nil {
		s.ledgerMetrics.ObserveCommit(obsmetrics.OperationSpend, "rejected", time.Since(started))
		s.obsMetrics.RecordSpend(ctx, req.Category, string(outcome.rejection.Reason), 0)
		span.SetAttributes(tracing.SafeAttributes(attribute.String("points.reject_reason", string(outcome.rejection.Reason)))...)
		log.Info("spend rejected",
			zap.String("reason", string(outcome.rejection.Reason)),
			zap.Int64("balance", outcome.rejection.Balance),
		)
		return *outcome.rejection, nil
	}

	s.ledgerMetrics.ObserveCommit(obsmetrics.OperationSpend, "committed", time.Since(started))
	s.obsMetrics.RecordSpend(ctx, req.Category, "", req.Amount)
	s.refreshCache(ctx, log, outcome.account)
	log.Info("points spent", zap.Int64("balance", outcome.account.Balance), zap.Int("attempts", outcome.attempts))

	return domain.SpendResult{
		Success:     true,
		Message:     fmt.Sprintf("spent %d points", req.Amount),
		Amount:      req.Amount,
		Balance:     outcome.account.Balance,
		Transaction: &outcome.transaction,
	}, nil
}

// recordAssessment writes the fraud log on its own deadline. Failures are logged
// and counted, never returned.
func (s *Service) recordAssessment(ctx context.Context, log *zap.Logger, req domain.EarnRequest, assessment fraud.Assessment, txID *snowflake.ID) {
	entry := &domain.FraudDetectionLog{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		ActivityType:  "earn",
		Category:      req.Category,
		SourceID:      optionalString(req.SourceID),
		TransactionID: txID,
		RiskScore:     assessment.Score,
		Flags:         assessment.Flags,
		Action:        assessment.Action,
		Details:       assessment.Details,
		CreatedAt:     s.clock.Now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StorageTimeout)
	defer cancel()
	if err := s.fraudLogs.Insert(writeCtx, s.db, entry); err != nil {
		s.ledgerMetrics.IncFraudLogDrop()
		log.Warn("fraud log write failed",
			zap.String("action", string(assessment.Action)),
			zap.Int("risk_score", assessment.Score),
			zap.Error(err),
		)
	}
}

func (s *Service) refreshCache(ctx context.Context, log *zap.Logger, account domain.Account) {
	if err := s.cache.Set(ctx, account); err != nil {
		s.ledgerMetrics.IncCacheError("set")
		log.Warn("balance cache refresh failed", zap.Error(err))
		if err := s.cache.Invalidate(ctx, account.UserID); err != nil {
			log.Warn("balance cache invalidate failed", zap.Error(err))
		}
	}
}

func (s *Service) today(now time.Time) string {
	return now.In(s.cfg.DayLocation).Format(domain.DateLayout)
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/edupoints/internal/clock"
	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/smallbiznis/edupoints/internal/points/cache"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/smallbiznis/edupoints/internal/points/fraud"
	"github.com/smallbiznis/edupoints/internal/points/journal"
	"github.com/smallbiznis/edupoints/internal/points/ledger"
	"github.com/smallbiznis/edupoints/internal/points/pointstest"
	"github.com/smallbiznis/edupoints/internal/points/ratewindow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var startTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.FakeClock
	rules *config.FraudRules
}

type fixtureOption func(*fixtureDeps)

type fixtureDeps struct {
	points    config.PointsConfig
	fraud     config.FraudConfig
	ledger    domain.Ledger
	fraudLogs domain.FraudLogRepository
	cache     cache.BalanceCache
}

func withPoints(fn func(*config.PointsConfig)) fixtureOption {
	return func(d *fixtureDeps) { fn(&d.points) }
}

func withFraud(fn func(*config.FraudConfig)) fixtureOption {
	return func(d *fixtureDeps) { fn(&d.fraud) }
}

func withLedger(l domain.Ledger) fixtureOption {
	return func(d *fixtureDeps) { d.ledger = l }
}

func withFraudLogs(r domain.FraudLogRepository) fixtureOption {
	return func(d *fixtureDeps) { d.fraudLogs = r }
}

func withCache(c cache.BalanceCache) fixtureOption {
	return func(d *fixtureDeps) { d.cache = c }
}

func setupPointsService(t *testing.T, opts ...fixtureOption) fixture {
	t.Helper()

	deps := fixtureDeps{
		points:    config.DefaultPointsConfig(),
		fraud:     config.DefaultFraudConfig(),
		ledger:    ledger.New(),
		fraudLogs: fraud.NewLogRepository(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	db := pointstest.OpenDB(t)
	node := pointstest.MustNode(t)
	fake := clock.NewFakeClock(startTime)
	rules := config.NewStaticFraudRules(deps.fraud)
	j := journal.New(node)

	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Config:    config.Config{Points: deps.points},
		Clock:     fake,
		Journal:   j,
		Ledger:    deps.ledger,
		Guard:     ratewindow.NewGuard(deps.points.DailyCap, deps.points.CoolingPeriod, j),
		Detector:  fraud.NewDetector(j, rules),
		FraudLogs: deps.fraudLogs,
		Cache:     deps.cache,
	})
	return fixture{svc: svc, db: db, clock: fake, rules: rules}
}

func (f fixture) account(t *testing.T, userID string) domain.Account {
	t.Helper()
	var account domain.Account
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&account).Error)
	return account
}

func (f fixture) transactions(t *testing.T, userID string) []domain.Transaction {
	t.Helper()
	var items []domain.Transaction
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("created_at asc, id asc").Find(&items).Error)
	return items
}

func (f fixture) fraudLogs(t *testing.T, userID string) []domain.FraudDetectionLog {
	t.Helper()
	var items []domain.FraudDetectionLog
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("created_at asc, id asc").Find(&items).Error)
	return items
}

func earnReq(userID string, amount int64) domain.EarnRequest {
	return domain.EarnRequest{
		UserID:   userID,
		Category: domain.CategoryConceptExplanation,
		Amount:   amount,
		Reason:   "explained recursion",
	}
}

func intPtr(v int) *int { return &v }

func TestEarnFreshAccount(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	res, err := f.svc.Earn(ctx, earnReq("user-1", 10))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(10), res.Credited)
	assert.Equal(t, int64(10), res.Balance)
	assert.Equal(t, int64(90), res.Remaining)
	require.NotNil(t, res.Transaction)
	assert.True(t, res.Transaction.Verified)

	account := f.account(t, "user-1")
	assert.Equal(t, int64(10), account.Balance)
	assert.Equal(t, int64(10), account.TotalEarned)
	assert.Equal(t, "2026-03-02", account.LastEarnedDate)

	txs := f.transactions(t, "user-1")
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionKindEarned, txs[0].Kind)
	assert.Equal(t, int64(10), txs[0].Amount)
	assert.Empty(t, f.fraudLogs(t, "user-1"))
}

func TestEarnCoolingPeriod(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, earnReq("user-1", 10))
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	res, err := f.svc.Earn(ctx, earnReq("user-1", 5))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonCoolingPeriod, res.Reason)
	assert.Equal(t, int64(360), res.SecondsRemaining)
	assert.Equal(t, int64(10), res.Balance)
	assert.Zero(t, res.Credited)

	assert.Equal(t, int64(10), f.account(t, "user-1").Balance)
	assert.Len(t, f.transactions(t, "user-1"), 1)

	f.clock.Advance(6 * time.Minute)
	res, err = f.svc.Earn(ctx, earnReq("user-1", 5))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(15), res.Balance)
}

func TestEarnClipsToDailyCap(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, earnReq("user-1", 95))
	require.NoError(t, err)
	assert.Equal(t, int64(95), f.account(t, "user-1").DailyEarned)

	f.clock.Advance(11 * time.Minute)
	res, err := f.svc.Earn(ctx, earnReq("user-1", 10))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(10), res.Requested)
	assert.Equal(t, int64(5), res.Credited)
	assert.Zero(t, res.Remaining)
	assert.Contains(t, res.Message, "5 of 10")

	account := f.account(t, "user-1")
	assert.Equal(t, int64(100), account.DailyEarned)
	assert.Equal(t, int64(100), account.Balance)

	f.clock.Advance(11 * time.Minute)
	res, err = f.svc.Earn(ctx, earnReq("user-1", 1))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonDailyLimitReached, res.Reason)
	assert.Zero(t, res.Remaining)
	assert.Len(t, f.transactions(t, "user-1"), 2)
}

func TestEarnDailyCounterRollsOver(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, earnReq("user-1", 100))
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))
	res, err := f.svc.Earn(ctx, earnReq("user-1", 10))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(90), res.Remaining)

	account := f.account(t, "user-1")
	assert.Equal(t, int64(10), account.DailyEarned)
	assert.Equal(t, "2026-03-03", account.LastEarnedDate)
	assert.Equal(t, int64(110), account.TotalEarned)
}

func TestEarnDayBoundaryFollowsConfiguredZone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	f := setupPointsService(t, withPoints(func(c *config.PointsConfig) { c.DayLocation = jakarta }))
	ctx := context.Background()

	// 16:30 UTC is 23:30 in Jakarta; 17:30 UTC is already the next local day.
	f.clock.Set(time.Date(2026, 3, 2, 16, 30, 0, 0, time.UTC))
	_, err = f.svc.Earn(ctx, earnReq("user-1", 100))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", f.account(t, "user-1").LastEarnedDate)

	f.clock.Set(time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC))
	res, err := f.svc.Earn(ctx, earnReq("user-1", 10))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "2026-03-03", f.account(t, "user-1").LastEarnedDate)
}

func TestSpendInsufficientBalance(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, earnReq("user-1", 20))
	require.NoError(t, err)

	res, err := f.svc.Spend(ctx, domain.SpendRequest{UserID: "user-1", Category: domain.CategoryAICopilot, Amount: 30, SourceID: "session-1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonInsufficientBalance, res.Reason)
	assert.Equal(t, int64(20), res.Balance)

	account := f.account(t, "user-1")
	assert.Equal(t, int64(20), account.Balance)
	assert.Zero(t, account.TotalSpent)
	assert.Len(t, f.transactions(t, "user-1"), 1)
}

func TestSpendDebitsAndIgnoresRateRules(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, earnReq("user-1", 50))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := f.svc.Spend(ctx, domain.SpendRequest{UserID: "user-1", Category: domain.CategoryAICopilot, Amount: 10, SourceID: "session-1"})
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	account := f.account(t, "user-1")
	assert.Equal(t, int64(20), account.Balance)
	assert.Equal(t, int64(30), account.TotalSpent)
	assert.Equal(t, int64(50), account.DailyEarned)

	txs := f.transactions(t, "user-1")
	require.Len(t, txs, 4)
	assert.Equal(t, domain.TransactionKindSpent, txs[3].Kind)
	assert.Equal(t, int64(-10), txs[3].Amount)
	require.NotNil(t, txs[3].SourceID)
	assert.Equal(t, "session-1", *txs[3].SourceID)
}

func TestSpendOnUnknownAccount(t *testing.T) {
	f := setupPointsService(t)

	res, err := f.svc.Spend(context.Background(), domain.SpendRequest{UserID: "user-9", Category: domain.CategoryAICopilot, Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonInsufficientBalance, res.Reason)
	assert.Zero(t, res.Balance)
}

// seedRapidEarns credits eleven earns one minute apart without tripping any rule.
func seedRapidEarns(t *testing.T, f fixture, userID string) {
	t.Helper()
	for i := 0; i < 11; i++ {
		res, err := f.svc.Earn(context.Background(), earnReq(userID, 1))
		require.NoError(t, err)
		require.True(t, res.Success, "earn %d: %s", i, res.Reason)
		f.clock.Advance(time.Minute)
	}
}

func noCooling(c *config.PointsConfig) {
	c.CoolingPeriod = 0
	c.DailyCap = 1000
}

func TestEarnFraudBlocked(t *testing.T) {
	f := setupPointsService(t,
		withPoints(noCooling),
		withFraud(func(c *config.FraudConfig) {
			c.Rules[config.RuleRapidFireAttempts] = config.FraudRule{Window: time.Hour, Threshold: 10, Weight: 70}
		}),
	)
	seedRapidEarns(t, f, "user-1")
	before := f.account(t, "user-1")

	res, err := f.svc.Earn(context.Background(), earnReq("user-1", 10))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonFraudBlocked, res.Reason)
	assert.Equal(t, "activity flagged for review", res.Message)
	assert.NotContains(t, res.Message, config.RuleRapidFireAttempts)

	after := f.account(t, "user-1")
	assert.Equal(t, before.Balance, after.Balance)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, f.transactions(t, "user-1"), 11)

	logs := f.fraudLogs(t, "user-1")
	require.Len(t, logs, 1)
	assert.Equal(t, domain.FraudActionBlock, logs[0].Action)
	assert.GreaterOrEqual(t, logs[0].RiskScore, 70)
	assert.Nil(t, logs[0].TransactionID)
	assert.Contains(t, []string(logs[0].Flags), config.RuleRapidFireAttempts)
}

func TestEarnBlockedWhenDefaultSignalsStack(t *testing.T) {
	f := setupPointsService(t, withPoints(noCooling))
	ctx := context.Background()

	sourced := func(amount int64) domain.EarnRequest {
		req := earnReq("user-1", amount)
		req.SourceID = "quiz-42"
		req.SourceType = "quiz"
		return req
	}
	for i := 0; i < 21; i++ {
		if i == 10 {
			f.clock.Advance(2 * time.Hour)
		}
		res, err := f.svc.Earn(ctx, sourced(1))
		require.NoError(t, err)
		require.True(t, res.Success, "earn %d: %s", i, res.Reason)
		f.clock.Advance(time.Minute)
	}
	require.Empty(t, f.fraudLogs(t, "user-1"))

	res, err := f.svc.Earn(ctx, sourced(10))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonFraudBlocked, res.Reason)
	assert.Equal(t, int64(21), f.account(t, "user-1").Balance)

	logs := f.fraudLogs(t, "user-1")
	require.Len(t, logs, 1)
	assert.Equal(t, domain.FraudActionBlock, logs[0].Action)
	assert.Equal(t, 70, logs[0].RiskScore)
	assert.ElementsMatch(t, []string{
		config.RuleRapidFireAttempts,
		config.RuleExcessiveDailyActivity,
		config.RuleSourceAbuse,
	}, []string(logs[0].Flags))
}

func TestEarnRapidFireWithDefaultWeightsIsReviewed(t *testing.T) {
	f := setupPointsService(t, withPoints(noCooling))
	seedRapidEarns(t, f, "user-1")

	res, err := f.svc.Earn(context.Background(), earnReq("user-1", 10))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, res.Transaction.Verified)

	logs := f.fraudLogs(t, "user-1")
	require.Len(t, logs, 1)
	assert.Equal(t, domain.FraudActionReview, logs[0].Action)
	assert.Equal(t, 30, logs[0].RiskScore)
	require.NotNil(t, logs[0].TransactionID)
	assert.Equal(t, res.Transaction.ID, *logs[0].TransactionID)
}

func TestEarnFlaggedIsCreditedUnverified(t *testing.T) {
	f := setupPointsService(t,
		withPoints(noCooling),
		withFraud(func(c *config.FraudConfig) {
			c.Rules[config.RuleRapidFireAttempts] = config.FraudRule{Window: time.Hour, Threshold: 10, Weight: 45}
		}),
	)
	seedRapidEarns(t, f, "user-1")

	res, err := f.svc.Earn(context.Background(), earnReq("user-1", 10))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.False(t, res.Transaction.Verified)
	assert.Equal(t, int64(21), res.Balance)

	logs := f.fraudLogs(t, "user-1")
	require.Len(t, logs, 1)
	assert.Equal(t, domain.FraudActionFlag, logs[0].Action)
}

func TestEarnQualityCheckedBeforeCapAndCooling(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, earnReq("user-1", 100))
	require.NoError(t, err)

	req := earnReq("user-1", 10)
	req.QualityScore = intPtr(40)
	res, err := f.svc.Earn(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonQualityTooLow, res.Reason)
	assert.Contains(t, res.Message, "below the minimum of 70")
	assert.Len(t, f.transactions(t, "user-1"), 1)
}

func TestEarnQualityPassesAtThreshold(t *testing.T) {
	f := setupPointsService(t)

	req := earnReq("user-1", 10)
	req.QualityScore = intPtr(70)
	res, err := f.svc.Earn(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Transaction.QualityScore)
	assert.Equal(t, 70, *res.Transaction.QualityScore)
}

func TestEarnQualityRequiredCategory(t *testing.T) {
	f := setupPointsService(t, withPoints(func(c *config.PointsConfig) {
		c.QualityRequiredCategories = []string{"Concept Explanation"}
	}))
	ctx := context.Background()

	res, err := f.svc.Earn(ctx, earnReq("user-1", 10))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonQualityTooLow, res.Reason)
	assert.Contains(t, res.Message, "required")

	other := earnReq("user-1", 10)
	other.Category = domain.CategoryAchievement
	res, err = f.svc.Earn(ctx, other)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestEarnNormalizesCategoryAndKeepsMetadata(t *testing.T) {
	f := setupPointsService(t)

	req := earnReq("user-1", 10)
	req.Category = "  Concept Explanation "
	req.SourceID = "milestone-7"
	req.SourceType = "milestone"
	req.Metadata = map[string]any{"milestone_title": "Recursion"}
	res, err := f.svc.Earn(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Success)

	txs := f.transactions(t, "user-1")
	require.Len(t, txs, 1)
	assert.Equal(t, domain.CategoryConceptExplanation, txs[0].Category)
	assert.Equal(t, "Recursion", txs[0].Metadata["milestone_title"])
	require.NotNil(t, txs[0].SourceType)
	assert.Equal(t, "milestone", *txs[0].SourceType)

	assert.Equal(t, domain.CategoryMilestoneCompletion, normalizeCategory("milestone_completion"))
	assert.Equal(t, domain.CategoryAICopilot, normalizeCategory("AI Copilot"))
}

func TestEarnValidation(t *testing.T) {
	f := setupPointsService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.EarnRequest
		want error
	}{
		{name: "user", req: domain.EarnRequest{Category: "achievement", Amount: 1}, want: domain.ErrInvalidUser},
		{name: "amount", req: domain.EarnRequest{UserID: "u", Category: "achievement", Amount: 0}, want: domain.ErrInvalidAmount},
		{name: "negative", req: domain.EarnRequest{UserID: "u", Category: "achievement", Amount: -5}, want: domain.ErrInvalidAmount},
		{name: "category", req: domain.EarnRequest{UserID: "u", Category: "!!!", Amount: 1}, want: domain.ErrInvalidCategory},
		{name: "quality", req: domain.EarnRequest{UserID: "u", Category: "achievement", Amount: 1, QualityScore: intPtr(101)}, want: domain.ErrInvalidQualityScore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Earn(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.Spend(ctx, domain.SpendRequest{UserID: "u", Category: "ai-copilot", Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	var count int64
	require.NoError(t, f.db.Model(&domain.Account{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEarnStorageUnavailable(t *testing.T) {
	f := setupPointsService(t)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.svc.Earn(context.Background(), earnReq("user-1", 10))
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = f.svc.Spend(context.Background(), domain.SpendRequest{UserID: "user-1", Category: "ai-copilot", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

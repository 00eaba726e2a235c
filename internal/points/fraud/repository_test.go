package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/smallbiznis/edupoints/internal/points/pointstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRepositoryListAndCount(t *testing.T) {
	db := pointstest.OpenDB(t)
	node := pointstest.MustNode(t)
	repo := NewLogRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []struct {
		user   string
		action domain.FraudAction
		at     time.Time
	}{
		{"user-1", domain.FraudActionReview, base},
		{"user-1", domain.FraudActionFlag, base.Add(time.Minute)},
		{"user-2", domain.FraudActionBlock, base.Add(2 * time.Minute)},
		{"user-2", domain.FraudActionReview, base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Insert(ctx, db, &domain.FraudDetectionLog{
			ID:           node.Generate(),
			UserID:       e.user,
			ActivityType: "earn",
			Category:     domain.CategoryConceptExplanation,
			RiskScore:    30,
			Flags:        []string{"rapid_fire_attempts"},
			Action:       e.action,
			CreatedAt:    e.at,
		}))
	}

	queue, err := repo.List(ctx, db, domain.FraudLogFilter{
		Actions: []domain.FraudAction{domain.FraudActionReview, domain.FraudActionFlag},
	})
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, "user-2", queue[0].UserID)
	assert.Equal(t, []string{"rapid_fire_attempts"}, []string(queue[0].Flags))

	history, err := repo.List(ctx, db, domain.FraudLogFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	counts, err := repo.CountByAction(ctx, db, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.FraudActionReview])
	assert.Equal(t, int64(1), counts[domain.FraudActionFlag])
	assert.Equal(t, int64(1), counts[domain.FraudActionBlock])

	since := base.Add(2 * time.Minute)
	counts, err = repo.CountByAction(ctx, db, &since, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.FraudActionReview])
	assert.Zero(t, counts[domain.FraudActionFlag])
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/stretchr/testify/assert"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisCache(t *testing.T, ttl time.Duration) (BalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ttl), mr
}

func TestRedisBalanceCacheRoundTrip(t *testing.T) {
	c, _ := setupRedisCache(t, time.Minute)
	ctx := context.Background()

	miss, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	account := domain.Account{
		UserID:      "user-1",
		Balance:     40,
		TotalEarned: 50,
		TotalSpent:  10,
		Version:     3,
		CreatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.Set(ctx, account))

	hit, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, int64(40), hit.Balance)
	assert.Equal(t, int64(3), hit.Version)

	require.NoError(t, c.Invalidate(ctx, "user-1"))
	gone, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRedisBalanceCacheExpires(t *testing.T) {
	c, mr := setupRedisCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, domain.Account{UserID: "user-1", Balance: 5}))
	mr.FastForward(31 * time.Second)

	got, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisBalanceCacheKeepsNewestVersion(t *testing.T) {
	c, _ := setupRedisCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, domain.Account{UserID: "user-1", Balance: 30, Version: 3}))
	require.NoError(t, c.Set(ctx, domain.Account{UserID: "user-1", Balance: 20, Version: 2}))

	got, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, int64(30), got.Balance)

	require.NoError(t, c.Set(ctx, domain.Account{UserID: "user-1", Balance: 37, Version: 4}))
	got, err = c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(37), got.Balance)
}

func TestNewFallsBackToNoop(t *testing.T) {
	c, err := New(config.Config{Points: config.DefaultPointsConfig()}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Set(context.Background(), domain.Account{UserID: "user-1"}))
	got, err := c.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewRequiresAddr(t *testing.T) {
	cfg := config.Config{Points: config.DefaultPointsConfig()}
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: " "}

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisBalanceCacheBreakerOpensOnOutage(t *testing.T) {
	c, mr := setupRedisCache(t, time.Minute)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < breakerTrips; i++ {
		_, err := c.Get(ctx, "user-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, err := c.Get(ctx, "user-1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, c.Set(ctx, domain.Account{UserID: "user-1"}), gobreaker.ErrOpenState)
}

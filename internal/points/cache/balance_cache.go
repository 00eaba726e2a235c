// Package cache keeps short-lived balance snapshots for read paths.
// It is never consulted when deciding whether an earn or spend is allowed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	keyBalance = "points:balance:%s"

	breakerTrips = 5
)

// setIfNewer stores the snapshot unless the key already holds a higher version.
// KEYS[1] balance key; ARGV version, snapshot, ttl in milliseconds.
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'snapshot', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

type BalanceCache interface {
	Get(ctx context.Context, userID string) (*domain.Account, error)
	Set(ctx context.Context, account domain.Account) error
	Invalidate(ctx context.Context, userID string) error
}

type redisBalanceCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// New returns a Redis-backed cache when REDIS_ENABLED is set, otherwise a no-op.
func New(cfg config.Config, log *zap.Logger) (BalanceCache, error) {
	if !cfg.Redis.Enabled || cfg.Points.BalanceCacheTTL <= 0 {
		return Noop(), nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("balance cache redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return newRedis(client, cfg.Points.BalanceCacheTTL, log), nil
}

func NewRedis(client *redis.Client, ttl time.Duration) BalanceCache {
	return newRedis(client, ttl, zap.NewNop())
}

// newRedis guards the client with a breaker that opens after consecutive
// failures, so an unreachable Redis costs one fast error per call.
func newRedis(client *redis.Client, ttl time.Duration, log *zap.Logger) *redisBalanceCache {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("points.cache")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "balance-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("balance cache breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &redisBalanceCache{client: client, ttl: ttl, breaker: breaker}
}

// Get returns nil on a miss.
func (c *redisBalanceCache) Get(ctx context.Context, userID string) (*domain.Account, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := c.client.HGet(ctx, fmt.Sprintf(keyBalance, userID), "snapshot").Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return raw, err
	})
	if err != nil {
		return nil, err
	}
	raw, _ := out.([]byte)
	if raw == nil {
		return nil, nil
	}

	var account domain.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Set keeps the newest snapshot by account version. A write that finishes after
// a newer one is dropped.
func (c *redisBalanceCache) Set(ctx context.Context, account domain.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		key := fmt.Sprintf(keyBalance, account.UserID)
		return nil, setIfNewer.Run(ctx, c.client, []string{key}, account.Version, raw, c.ttl.Milliseconds()).Err()
	})
	return err
}

func (c *redisBalanceCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, fmt.Sprintf(keyBalance, userID)).Err()
	})
	return err
}

type noopCache struct{}

func Noop() BalanceCache { return noopCache{} }

func (noopCache) Get(context.Context, string) (*domain.Account, error) { return nil, nil }
func (noopCache) Set(context.Context, domain.Account) error            { return nil }
func (noopCache) Invalidate(context.Context, string) error             { return nil }

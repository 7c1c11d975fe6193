package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payqr/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	claimKeyPrefix = "payqr:claim:"
	claimTTL       = 24 * time.Hour
)

// ClaimCache records credit-event fingerprints that already confirmed an
// order, so the same real-world credit is never offered to the matcher again.
type ClaimCache interface {
	Claim(ctx context.Context, key string) (bool, error)
	IsClaimed(ctx context.Context, key string) (bool, error)
}

type redisClaims struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) ClaimCache {
	return &redisClaims{client: client}
}

func (c *redisClaims) Claim(ctx context.Context, key string) (bool, error) {
	return c.client.SetNX(ctx, claimKeyPrefix+key, 1, claimTTL).Result()
}

func (c *redisClaims) IsClaimed(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, claimKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type memoryClaims struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewMemory() ClaimCache {
	return &memoryClaims{claimed: make(map[string]struct{})}
}

func (c *memoryClaims) Claim(ctx context.Context, key string) (bool, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.claimed[key]; ok {
		return false, nil
	}
	c.claimed[key] = struct{}{}
	return true, nil
}

func (c *memoryClaims) IsClaimed(ctx context.Context, key string) (bool, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.claimed[key]
	return ok, nil
}

// Provide picks redis when configured, in-process otherwise.
func Provide(cfg config.Config, log *zap.Logger) ClaimCache {
	if cfg.RedisAddr == "" {
		return NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	log.Named("cache").Info("claim cache using redis", zap.String("addr", cfg.RedisAddr))
	return NewRedis(client)
}

var Module = fx.Module("cache",
	fx.Provide(Provide),
)

package creditscore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/segyhp/bnpl-engine/internal/cache"
	"github.com/segyhp/bnpl-engine/internal/domain"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

const keyPrefix = "bnpl:credit:"

// ScoreCache stores credit reports per owner for a bounded time.
// Get returns (nil, nil) on a miss.
type ScoreCache interface {
	Get(ctx context.Context, ownerID string) (*domain.CreditReport, error)
	Set(ctx context.Context, report *domain.CreditReport) error
}

// RedisCache keeps reports in Redis as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, ownerID string) (*domain.CreditReport, error) {
	raw, err := c.client.Get(ctx, keyPrefix+ownerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, customError.WrapCacheError(err)
	}

	var report domain.CreditReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, customError.WrapCacheError(err)
	}
	return &report, nil
}

func (c *RedisCache) Set(ctx context.Context, report *domain.CreditReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return customError.WrapCacheError(err)
	}
	if err := c.client.Set(ctx, keyPrefix+report.OwnerID, raw, c.ttl).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

// MemoryCache keeps reports in process memory.
type MemoryCache struct {
	items *cache.InMemory[domain.CreditReport]
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{items: cache.New[domain.CreditReport](ttl)}
}

func (c *MemoryCache) Get(_ context.Context, ownerID string) (*domain.CreditReport, error) {
	report, ok := c.items.Get(ownerID)
	if !ok {
		return nil, nil
	}
	return &report, nil
}

func (c *MemoryCache) Set(_ context.Context, report *domain.CreditReport) error {
	c.items.Set(report.OwnerID, *report)
	return nil
}

// Close stops the background eviction.
func (c *MemoryCache) Close() {
	c.items.Close()
}

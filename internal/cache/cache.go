package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	runStatusTTL = 24 * time.Hour
	embeddedTTL  = 7 * 24 * time.Hour
)

// Cache is the caching interface. Implementations must be safe for
// concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error

	SetRunStatus(ctx context.Context, runID, status string)
	GetRunStatus(ctx context.Context, runID string) (string, bool)
	IsEmbedded(ctx context.Context, providerID, contentHash string) bool
	MarkEmbedded(ctx context.Context, providerID, contentHash string)
}

// RedisCache implements Cache using go-redis/v9. The pipeline hooks
// (SetRunStatus, IsEmbedded, MarkEmbedded) swallow Redis errors: a cache
// outage degrades to recomputation, never to a failed run.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache creates a RedisCache from a Redis URL.
func NewRedisCache(redisURL string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts), logger: logger}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetRunStatus(ctx context.Context, runID, status string) {
	if err := c.client.Set(ctx, RunStatusKey(runID), status, runStatusTTL).Err(); err != nil {
		c.logger.Warn("cache run status", zap.String("run_id", runID), zap.Error(err))
	}
}

func (c *RedisCache) GetRunStatus(ctx context.Context, runID string) (string, bool) {
	val, err := c.client.Get(ctx, RunStatusKey(runID)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("read run status", zap.String("run_id", runID), zap.Error(err))
		return "", false
	}
	return val, true
}

func (c *RedisCache) IsEmbedded(ctx context.Context, providerID, contentHash string) bool {
	n, err := c.client.Exists(ctx, EmbeddedKey(providerID, contentHash)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("check embedded marker", zap.Error(err))
		}
		return false
	}
	return n > 0
}

func (c *RedisCache) MarkEmbedded(ctx context.Context, providerID, contentHash string) {
	if err := c.client.Set(ctx, EmbeddedKey(providerID, contentHash), "1", embeddedTTL).Err(); err != nil {
		c.logger.Warn("set embedded marker", zap.Error(err))
	}
}

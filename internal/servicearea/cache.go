package servicearea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mountly/mountly-backend/internal/areasync"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const coverageKeyPrefix = "mountly:coverage:"

// CoverageCache holds coverage answers per postal code. Cache failures are
// logged and behave like misses.
type CoverageCache interface {
	Get(ctx context.Context, zip string) ([]areasync.Provider, bool)
	Set(ctx context.Context, zip string, providers []areasync.Provider)
	Invalidate(ctx context.Context, zips ...string)
}

type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]areasync.Provider, bool) { return nil, false }
func (NopCache) Set(context.Context, string, []areasync.Provider) {}
func (NopCache) Invalidate(context.Context, ...string) {}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewRedisCache connects to url (redis://...) and pings it.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration, log *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisCacheFromClient(rdb, ttl, log), nil
}

func NewRedisCacheFromClient(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, zip string) ([]areasync.Provider, bool) {
	b, err := c.rdb.Get(ctx, coverageKeyPrefix+zip).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("coverage cache read failed", zap.String("zip", zip), zap.Error(err))
		}
		return nil, false
	}
	var providers []areasync.Provider
	if err := json.Unmarshal(b, &providers); err != nil {
		c.log.Warn("coverage cache entry corrupt", zap.String("zip", zip), zap.Error(err))
		return nil, false
	}
	return providers, true
}

func (c *RedisCache) Set(ctx context.Context, zip string, providers []areasync.Provider) {
	if providers == nil {
		providers = []areasync.Provider{}
	}
	b, err := json.Marshal(providers)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, coverageKeyPrefix+zip, b, c.ttl).Err(); err != nil {
		c.log.Warn("coverage cache write failed", zap.String("zip", zip), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, zips ...string) {
	if len(zips) == 0 {
		return
	}
	keys := make([]string, len(zips))
	for i, z := range zips {
		keys[i] = coverageKeyPrefix + z
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("coverage cache invalidation failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

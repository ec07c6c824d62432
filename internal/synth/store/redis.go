package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/trajgen/server/internal/core/error"
	"github.com/trajgen/server/internal/synth/model"
	logx "github.com/trajgen/server/pkg/logger"
)

const keyPrefix = "trajgen"

type RedisRewriteCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisRewriteCache(rdb redis.Cmdable, ttl time.Duration) *RedisRewriteCache {
	return &RedisRewriteCache{rdb: rdb, ttl: ttl}
}

func (c *RedisRewriteCache) rewriteKey(key string) string {
	return fmt.Sprintf("%s:rewrite:%s", keyPrefix, key)
}

func (c *RedisRewriteCache) Get(ctx context.Context, key string) (string, bool, error) {
	k := c.rewriteKey(key)
	text, err := c.rdb.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		logx.Error().Err(err).Str("key", k).Msg("failed to read rewrite from redis")
		return "", false, errx.WrapRedis(err)
	}
	return text, true, nil
}

func (c *RedisRewriteCache) Set(ctx context.Context, key, text string) error {
	k := c.rewriteKey(key)
	if err := c.rdb.Set(ctx, k, text, c.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to write rewrite to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// RedisCheckpoint keeps the completed job keys of each run in a Redis set.
type RedisCheckpoint struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCheckpoint(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpoint {
	return &RedisCheckpoint{rdb: rdb, ttl: ttl}
}

func (c *RedisCheckpoint) runKey(run string) string {
	return fmt.Sprintf("%s:run:%s:done", keyPrefix, run)
}

func (c *RedisCheckpoint) Done(ctx context.Context, run, key string) (bool, error) {
	k := c.runKey(run)
	ok, err := c.rdb.SIsMember(ctx, k, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		logx.Error().Err(err).Str("key", k).Msg("failed to check checkpoint")
		return false, errx.WrapRedis(err)
	}
	return ok, nil
}

func (c *RedisCheckpoint) Mark(ctx context.Context, run, key string) error {
	k := c.runKey(run)
	if err := c.rdb.SAdd(ctx, k, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to mark checkpoint")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if c.ttl > 0 {
		if ok, err := c.rdb.Expire(ctx, k, c.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", k).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", k).Dur("ttl", c.ttl).Msg("failed to set TTL on checkpoint key")
		}
	}
	return nil
}

func (c *RedisCheckpoint) Count(ctx context.Context, run string) (int64, error) {
	k := c.runKey(run)
	n, err := c.rdb.SCard(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", k).Msg("failed to count checkpoint")
		return 0, errx.WrapRedis(err)
	}
	return n, nil
}

func (c *RedisCheckpoint) Reset(ctx context.Context, run string) error {
	k := c.runKey(run)
	if err := c.rdb.Del(ctx, k).Err(); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to reset checkpoint")
		return errx.WrapRedis(err)
	}
	return nil
}

var (
	_ model.RewriteCache = (*RedisRewriteCache)(nil)
	_ model.Checkpoint   = (*RedisCheckpoint)(nil)
)

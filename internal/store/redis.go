package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisStateHash = "stockgame:state"

// RedisKV stores every key as a field of one Redis hash.
type RedisKV struct {
	rdb *redis.Client
}

// NewRedisKV creates a Redis-backed store.
func NewRedisKV(rdb *redis.Client) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.HGet(ctx, redisStateHash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hget %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	return s.rdb.HSet(ctx, redisStateHash, key, value).Err()
}

func (s *RedisKV) SetAll(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return s.rdb.HSet(ctx, redisStateHash, fields).Err()
}

func (s *RedisKV) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, redisStateHash).Err()
}

// CachedKV wraps a primary KV (PostgreSQL or MongoDB) with a Redis
// read-through cache. Writes go to the primary and invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedKV struct {
	primary KV
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedKV creates a cached wrapper around a primary store.
func NewCachedKV(primary KV, rdb *redis.Client, ttl time.Duration) *CachedKV {
	return &CachedKV{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedKV) Get(ctx context.Context, key string) (string, error) {
	if v, err := s.rdb.Get(ctx, cacheKey(key)).Result(); err == nil {
		return v, nil
	}

	// Cache miss: read from primary.
	v, err := s.primary.Get(ctx, key)
	if err != nil {
		return "", err
	}
	s.rdb.Set(ctx, cacheKey(key), v, s.ttl)
	return v, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedKV) Set(ctx context.Context, key, value string) error {
	if err := s.primary.Set(ctx, key, value); err != nil {
		return err
	}
	s.rdb.Del(ctx, cacheKey(key))
	return nil
}

func (s *CachedKV) SetAll(ctx context.Context, values map[string]string) error {
	if err := setAll(ctx, s.primary, values); err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, cacheKey(k))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

func (s *CachedKV) Clear(ctx context.Context) error {
	if err := s.primary.Clear(ctx); err != nil {
		return err
	}
	iter := s.rdb.Scan(ctx, 0, cacheKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	return iter.Err()
}

func cacheKey(key string) string { return fmt.Sprintf("stockgame:cache:%s", key) }

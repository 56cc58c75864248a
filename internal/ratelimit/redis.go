package ratelimit

import (
	"context"
	"time"

	"github.com/nexusoptimizer/nexus/internal/database"
)

// RedisStore is a Store backed by a shared Redis instance, for
// multi-instance deployments where every replica must see the same
// window.
type RedisStore struct {
	rdb    *database.Redis
	prefix string
}

// NewRedisStore creates a RedisStore. Keys are namespaced under prefix.
func NewRedisStore(rdb *database.Redis, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Incr implements Store using INCR with an EXPIRE on the first hit, so
// the window opens with the first attempt and rolls over when the key
// expires.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := s.prefix + ":" + key

	count, err := s.rdb.Incr(ctx, redisKey)
	if err != nil {
		return 0, 0, err
	}

	if count == 1 {
		if err := s.rdb.Expire(ctx, redisKey, window); err != nil {
			return count, window, err
		}
		return count, window, nil
	}

	ttl, err := s.rdb.TTL(ctx, redisKey)
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.rdb.Delete(ctx, s.prefix+":"+key)
}

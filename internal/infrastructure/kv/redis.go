package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatchSize is the COUNT hint passed to each SCAN call. It bounds how
// much work one round-trip does, which is what keeps Keys from blocking
// writers for more than a bounded window.
const scanBatchSize = 500

// RedisIndex is the Redis-backed Index, grounded on the teacher's
// internal/infrastructure/cache wrappers (RedisStateStore, the forward
// traffic cache): a thin typed layer over a *redis.Client.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex wraps an existing Redis client as an Index.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

// Ping verifies the underlying Redis connection is reachable.
func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisIndex) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisIndex) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		// Already expired: suppress the write entirely.
		return nil
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (r *RedisIndex) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv del %q: %w", key, err)
	}
	return nil
}

func (r *RedisIndex) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (r *RedisIndex) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Del(ctx, key)
	}
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return fmt.Errorf("kv expire %q: %w", key, err)
	}
	_ = ok // no-op if the key was already absent
	return nil
}

// Keys enumerates every key matching pattern using cursor-based SCAN, then
// filters the (looser) Redis glob down to exact single-":"-segment
// wildcard semantics, since Redis' own glob matching is looser than the
// engine's "*" contract (it happily crosses ":" boundaries).
func (r *RedisIndex) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor  uint64
		matched []string
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("kv keys %q: %w", pattern, err)
		}
		for _, k := range batch {
			if segmentGlobMatch(pattern, k) {
				matched = append(matched, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return matched, nil
}

func (r *RedisIndex) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := r.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv hget %q %q: %w", key, field, err)
	}
	return val, true, nil
}

func (r *RedisIndex) HSet(ctx context.Context, key, field, value string) error {
	if err := r.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("kv hset %q %q: %w", key, field, err)
	}
	return nil
}

func (r *RedisIndex) HDel(ctx context.Context, key, field string) error {
	if err := r.client.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("kv hdel %q %q: %w", key, field, err)
	}
	return nil
}

// segmentGlobMatch reports whether key matches pattern under the engine's
// contract: "*" stands for exactly one colon-delimited segment, not an
// arbitrary run of characters.
func segmentGlobMatch(pattern, key string) bool {
	pSegs := strings.Split(pattern, ":")
	kSegs := strings.Split(key, ":")
	if len(pSegs) != len(kSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "*" {
			continue
		}
		if p != kSegs[i] {
			return false
		}
	}
	return true
}

var _ Index = (*RedisIndex)(nil)

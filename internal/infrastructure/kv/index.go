// Package kv is the typed key-value index every other component of the
// traffic engine speaks through. It wraps a string-valued, per-key-TTL
// store with hash fields and glob key enumeration, grounded on the
// teacher's Redis cache wrappers (internal/infrastructure/cache).
package kv

import (
	"context"
	"time"
)

// Index is the KV Index contract every other component of the engine
// depends on. Every operation may fail with a transport error, which
// callers surface rather than swallow (the only exceptions are the
// explicitly best-effort paths documented on Traffic Manager and Reaper).
type Index interface {
	// Get returns the value stored at key, or ("", false, nil) if absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value at key. If ttl > 0 the key expires after ttl; if
	// ttl == 0 the key never expires; if ttl < 0 the write is suppressed
	// entirely (the value is already semantically expired).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del deletes key. Idempotent: deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire sets key's TTL. A no-op if key is absent. If ttl <= 0, key is
	// deleted instead.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Keys enumerates every key matching pattern, where "*" matches a
	// single colon-delimited segment. Implementations must use a
	// cursor-based scan rather than a blocking, stop-the-world
	// enumeration.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// HGet returns one hash field of key.
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)

	// HSet sets one hash field of key.
	HSet(ctx context.Context, key, field, value string) error

	// HDel deletes one hash field of key.
	HDel(ctx context.Context, key, field string) error
}

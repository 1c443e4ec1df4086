package utils

import (
	"context"
	"time"
)

const (
	defaultCacheTTL = time.Hour
	cacheTimeout    = 2 * time.Second
)

// CacheGetBytes returns cached bytes for a key. A nil kv is always a miss.
func CacheGetBytes(ctx context.Context, kv KV, key string) ([]byte, bool) {
	if kv == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	b, err := kv.Get(ctx, key).Bytes()
	if err != nil {
		Sugar.Debugf("cache get miss key=%s err=%v", key, err)
		return nil, false
	}
	return b, true
}

// CacheSetBytes stores bytes with ttl, or the default TTL when ttl is not positive.
func CacheSetBytes(ctx context.Context, kv KV, key string, b []byte, ttl time.Duration) {
	if kv == nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := kv.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

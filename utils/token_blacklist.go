package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "jwt:blacklist:"

// TokenBlacklist records revoked token ids until their natural expiration.
// Entries live in memory and, when a KV is configured, in Redis too.
type TokenBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	kv      KV
}

func NewTokenBlacklist(kv KV) *TokenBlacklist {
	return &TokenBlacklist{entries: make(map[string]time.Time), kv: kv}
}

// Revoke blacklists id until expiresAt. Already expired tokens are ignored.
func (b *TokenBlacklist) Revoke(ctx context.Context, id string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if id == "" || ttl <= 0 {
		return
	}
	b.mu.Lock()
	b.entries[id] = expiresAt
	b.cleanupLocked()
	b.mu.Unlock()

	if b.kv != nil {
		ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
		defer cancel()
		if err := b.kv.Set(ctx, blacklistPrefix+id, "1", ttl).Err(); err != nil {
			Sugar.Warnf("token blacklist set failed id=%s err=%v", id, err)
		}
	}
}

// Revoked reports whether id was revoked before natural expiration.
func (b *TokenBlacklist) Revoked(ctx context.Context, id string) bool {
	b.mu.RLock()
	exp, ok := b.entries[id]
	b.mu.RUnlock()
	if ok && time.Now().Before(exp) {
		return true
	}
	if b.kv == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	err := b.kv.Get(ctx, blacklistPrefix+id).Err()
	switch {
	case err == nil:
		return true
	case errors.Is(err, redis.Nil):
		return false
	default:
		// fail-open to avoid accidental lockout
		Sugar.Debugf("token blacklist lookup failed id=%s err=%v", id, err)
		return false
	}
}

func (b *TokenBlacklist) cleanupLocked() {
	now := time.Now()
	for id, exp := range b.entries {
		if now.After(exp) {
			delete(b.entries, id)
		}
	}
}

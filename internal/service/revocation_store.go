package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopcore/shopcore-backend/internal/observability"
)

// RevocationStore is the shared kill-switch cache. Entries self-expire via
// TTL and never need manual cleanup.
type RevocationStore interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
	BlacklistAccount(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error
	AccountCutoff(ctx context.Context, accountID string) (time.Time, bool, error)
}

type RedisRevocationStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisRevocationStore(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisRevocationStore {
	if prefix == "" {
		prefix = "revoked"
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisRevocationStore{client: client, prefix: prefix, timeout: timeout}
}

func (s *RedisRevocationStore) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Token already past its natural expiry; nothing to block.
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.client.Set(ctx, s.tokenKey(jti), "1", ttl).Err()
	if err != nil {
		observability.RecordRevocationCacheOp(ctx, "blacklist_token", "error")
		return err
	}
	observability.RecordRevocationCacheOp(ctx, "blacklist_token", "success")
	return nil
}

func (s *RedisRevocationStore) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.Get(ctx, s.tokenKey(jti)).Result()
	if err == redis.Nil {
		observability.RecordRevocationCacheOp(ctx, "check_token", "miss")
		return false, nil
	}
	if err != nil {
		observability.RecordRevocationCacheOp(ctx, "check_token", "error")
		return false, err
	}
	observability.RecordRevocationCacheOp(ctx, "check_token", "hit")
	return true, nil
}

func (s *RedisRevocationStore) BlacklistAccount(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	value := strconv.FormatInt(cutoff.UnixMilli(), 10)
	err := s.client.Set(ctx, s.accountKey(accountID), value, ttl).Err()
	if err != nil {
		observability.RecordRevocationCacheOp(ctx, "blacklist_account", "error")
		return err
	}
	observability.RecordRevocationCacheOp(ctx, "blacklist_account", "success")
	return nil
}

func (s *RedisRevocationStore) AccountCutoff(ctx context.Context, accountID string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	value, err := s.client.Get(ctx, s.accountKey(accountID)).Result()
	if err == redis.Nil {
		observability.RecordRevocationCacheOp(ctx, "check_account", "miss")
		return time.Time{}, false, nil
	}
	if err != nil {
		observability.RecordRevocationCacheOp(ctx, "check_account", "error")
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		observability.RecordRevocationCacheOp(ctx, "check_account", "error")
		return time.Time{}, false, fmt.Errorf("malformed account cutoff %q: %w", value, err)
	}
	observability.RecordRevocationCacheOp(ctx, "check_account", "hit")
	return time.UnixMilli(ms), true, nil
}

func (s *RedisRevocationStore) tokenKey(jti string) string {
	return s.prefix + ":token:" + jti
}

func (s *RedisRevocationStore) accountKey(accountID string) string {
	return s.prefix + ":account:" + accountID
}

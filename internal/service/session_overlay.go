package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shopcore/shopcore-backend/internal/domain"
)

// SessionStore is the cookie-backed overlay, independent of bearer tokens.
// Records expire passively via TTL when never destroyed explicitly.
type SessionStore interface {
	Create(ctx context.Context, accountID, fingerprint string) (*domain.Session, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string) error
	Destroy(ctx context.Context, sessionID string) error
	DestroyAll(ctx context.Context, accountID string) (int, error)
}

type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) Create(ctx context.Context, accountID, fingerprint string) (*domain.Session, error) {
	now := time.Now().UTC()
	sess := &domain.Session{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		DeviceFingerprint: fingerprint,
		LoginTime:         now,
		LastActivity:      now,
	}
	blob, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(sess.ID), blob, s.ttl)
	pipe.SAdd(ctx, s.indexKey(accountID), sess.ID)
	pipe.Expire(ctx, s.indexKey(accountID), s.ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	blob, err := s.client.Get(ctx, s.dataKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Touch slides the TTL and stamps the last activity.
func (s *RedisSessionStore) Touch(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.LastActivity = time.Now().UTC()
	blob, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.dataKey(sessionID), blob, s.ttl).Err()
}

func (s *RedisSessionStore) Destroy(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil
		}
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.dataKey(sessionID))
	pipe.SRem(ctx, s.indexKey(sess.AccountID), sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) DestroyAll(ctx context.Context, accountID string) (int, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(accountID)).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.dataKey(id))
	}
	keys = append(keys, s.indexKey(accountID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *RedisSessionStore) dataKey(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *RedisSessionStore) indexKey(accountID string) string {
	return s.prefix + ":account:" + accountID
}

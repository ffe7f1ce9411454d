package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix     = "session:"
	userSessionPrefix = "session:user:"
)

// RedisSessionStore stores each session as JSON under session:<token hash>
// with a TTL equal to its absolute lifetime, plus a set per user listing the
// user's token hashes so all of them can be revoked together.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.Session) error {
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	userKey := userSessionPrefix + session.UserID
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, sessionPrefix+session.TokenHash, data, ttl)
		p.SAdd(ctx, userKey, session.TokenHash)
		p.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionPrefix+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, unavailable(err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Touch rewrites last_activity_at, keeping the TTL. SET XX never recreates a
// session deleted concurrently.
func (s *RedisSessionStore) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	session, err := s.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	session.LastActivityAt = at
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = s.client.SetArgs(ctx, sessionPrefix+tokenHash, data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, tokenHash string) error {
	session, err := s.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, sessionPrefix+tokenHash)
		p.SRem(ctx, userSessionPrefix+session.UserID, tokenHash)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisSessionStore) DeleteByUserID(ctx context.Context, userID, exceptHash string) (int64, error) {
	userKey := userSessionPrefix + userID

	hashes, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	var deleted int64
	for _, hash := range hashes {
		if hash == exceptHash {
			continue
		}

		var delCmd *redis.IntCmd
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			delCmd = p.Del(ctx, sessionPrefix+hash)
			p.SRem(ctx, userKey, hash)
			return nil
		})
		if err != nil {
			return deleted, unavailable(err)
		}
		deleted += delCmd.Val()
	}
	return deleted, nil
}

// DeleteExpired is a no-op: session keys carry their own TTL
func (s *RedisSessionStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

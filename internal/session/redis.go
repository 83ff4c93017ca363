package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/redisclient"
)

const sessionKeyPrefix = "session:"

// RedisStore is the production session store. Each session is one JSON value
// whose key TTL implements the sliding expiry window.
type RedisStore struct {
	redis *redisclient.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed session store with the given TTL
// window.
func NewRedisStore(client *redisclient.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Save upserts the session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, sess *models.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.ID), string(raw), s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Get fetches a session by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := s.redis.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

// Touch refreshes the TTL without mutating state.
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	if err := s.redis.Expire(ctx, sessionKey(id), s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes the session.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

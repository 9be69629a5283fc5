package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore tracks short-lived online markers and app badge counters.
type PresenceStore interface {
	Touch(ctx context.Context, userID string, ttl time.Duration) error
	Clear(ctx context.Context, userID string) error
	Online(ctx context.Context, userID string) (bool, error)
	IncrementBadge(ctx context.Context, userID string) (int64, error)
	ClearBadge(ctx context.Context, userID string) error
	Badge(ctx context.Context, userID string) (int64, error)
}

type redisPresenceStore struct {
	client *redis.Client
}

// NewPresenceStore constructs a Redis-backed presence store.
func NewPresenceStore(client *redis.Client) PresenceStore {
	return &redisPresenceStore{client: client}
}

func presenceKey(userID string) string { return "presence:" + userID }
func badgeKey(userID string) string    { return "badge:" + userID }

func (s *redisPresenceStore) Touch(ctx context.Context, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, presenceKey(userID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

func (s *redisPresenceStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, presenceKey(userID)).Err()
}

func (s *redisPresenceStore) Online(ctx context.Context, userID string) (bool, error) {
	count, err := s.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *redisPresenceStore) IncrementBadge(ctx context.Context, userID string) (int64, error) {
	return s.client.Incr(ctx, badgeKey(userID)).Result()
}

func (s *redisPresenceStore) ClearBadge(ctx context.Context, userID string) error {
	return s.client.Set(ctx, badgeKey(userID), 0, 0).Err()
}

func (s *redisPresenceStore) Badge(ctx context.Context, userID string) (int64, error) {
	raw, err := s.client.Get(ctx, badgeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

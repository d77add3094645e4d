package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStore keeps session data server-side. Tokens are random v4 UUIDs and
// Redis key expiry implements the TTL, so logout revokes immediately.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func key(token string) string {
	return redisKeyPrefix + token
}

func (s *RedisStore) Load(ctx context.Context, token string) (Data, error) {
	raw, err := s.client.Get(ctx, key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("session: redis get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("%w: corrupt payload: %v", ErrNotFound, err)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, token string, data Data, ttl time.Duration) (string, error) {
	if token == "" {
		token = uuid.NewString()
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("session: encoding: %w", err)
	}
	if err := s.client.Set(ctx, key(token), raw, ttl).Err(); err != nil {
		return "", fmt.Errorf("session: redis set: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, key(token)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable; used by the readiness check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

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

// ErrSessionGone is returned by Update when the session expired or was
// deleted after it was loaded.
var ErrSessionGone = errors.New("session: expired or deleted")

// Store is the interface for session persistence.
type Store interface {
	// Create persists a new session and returns its ID.
	Create(ctx context.Context, data *Data, ttl time.Duration) (string, error)

	// Get retrieves a session by ID. Returns nil if not found or expired.
	Get(ctx context.Context, id string) (*Data, error)

	// Update replaces session data and resets the TTL. It never recreates a
	// missing session and reports ErrSessionGone instead.
	Update(ctx context.Context, id string, data *Data, ttl time.Duration) error

	// Delete removes a session by ID.
	Delete(ctx context.Context, id string) error

	// Touch extends the session TTL (sliding expiration).
	Touch(ctx context.Context, id string, ttl time.Duration) error
}

// RedisStore implements Store backed by Redis; expiry is Redis' own TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "oidc-sample:session:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, data *Data, ttl time.Duration) (string, error) {
	id := uuid.New().String()
	data.CreatedAt = time.Now().Unix()

	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(id), b, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Data, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var data Data
	if err := json.Unmarshal(val, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &data, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, data *Data, ttl time.Duration) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// XX: never resurrect a session that expired or was destroyed meanwhile.
	ok, err := s.client.SetXX(ctx, s.key(id), b, ttl).Result()
	if errors.Is(err, redis.Nil) || (err == nil && !ok) {
		return ErrSessionGone
	}
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(id), ttl).Err(); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

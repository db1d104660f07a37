package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares profiles between web client replicas. Upsert relies on
// SETNX so concurrent first logins of one subject register a single profile.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed identity store.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "oidc-sample:identity:"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(subject string) string {
	return s.prefix + subject
}

func (s *RedisStore) Lookup(ctx context.Context, subject string) (*Profile, error) {
	val, err := s.client.Get(ctx, s.key(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) Upsert(ctx context.Context, p *Profile) (*Profile, bool, error) {
	if p == nil || p.Subject == "" {
		return nil, false, ErrInvalidProfile
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal profile: %w", err)
	}

	// No expiry: profiles live as long as the store.
	inserted, err := s.client.SetNX(ctx, s.key(p.Subject), b, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to store profile: %w", err)
	}
	if inserted {
		return p, true, nil
	}

	existing, err := s.Lookup(ctx, p.Subject)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Package receipt records which ledger reservations have already been
// applied, so a retried reserve with the same token is a no-op.
package receipt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store claims reservation tokens.
type Store interface {
	// Claim returns true the first time token is seen within the TTL.
	Claim(ctx context.Context, token string) (bool, error)
	// Forget releases a claim whose reservation did not apply.
	Forget(ctx context.Context, token string) error
}

const keyPrefix = "trove:receipt:"

// RedisStore keeps receipts as expiring keys.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to url (redis://...).
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Claim(ctx context.Context, token string) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+token, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim receipt %s: %w", token, err)
	}
	return ok, nil
}

func (s *RedisStore) Forget(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to forget receipt %s: %w", token, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, claims: make(map[string]time.Time)}
}

func (s *MemoryStore) Claim(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.claims[token]; ok && now.Before(exp) {
		return false, nil
	}
	s.claims[token] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryStore) Forget(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.claims, token)
	s.mu.Unlock()
	return nil
}

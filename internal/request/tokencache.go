package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// RedisTokenCache keys the raw verification token to the request id so the
// gate desk resolves scans without hitting Postgres on the happy path.
type RedisTokenCache struct {
	client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

func tokenKey(token string) string {
	return "gatepass:token:" + token
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, id domain.PassID, ttl time.Duration) error {
	if err := c.client.Set(ctx, tokenKey(token), id.String(), ttl).Err(); err != nil {
		return fmt.Errorf("cache verification token: %w", err)
	}
	return nil
}

func (c *RedisTokenCache) Get(ctx context.Context, token string) (domain.PassID, error) {
	v, err := c.client.Get(ctx, tokenKey(token)).Result()
	if err == redis.Nil {
		return domain.PassID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.PassID{}, fmt.Errorf("look up verification token: %w", err)
	}
	id, err := domain.ParsePassID(v)
	if err != nil {
		return domain.PassID{}, fmt.Errorf("parse cached request id: %w", err)
	}
	return id, nil
}

// InMemoryTokenCache is the test double; entries expire lazily on read.
type InMemoryTokenCache struct {
	mu      sync.RWMutex
	entries map[string]tokenEntry
	clock   func() time.Time
}

type tokenEntry struct {
	id        domain.PassID
	expiresAt time.Time
}

func NewInMemoryTokenCache() *InMemoryTokenCache {
	return &InMemoryTokenCache{
		entries: make(map[string]tokenEntry),
		clock:   time.Now,
	}
}

func (c *InMemoryTokenCache) Set(_ context.Context, token string, id domain.PassID, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = tokenEntry{id: id, expiresAt: c.clock().Add(ttl)}
	return nil
}

func (c *InMemoryTokenCache) Get(_ context.Context, token string) (domain.PassID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[token]
	if !ok || c.clock().After(entry.expiresAt) {
		return domain.PassID{}, sentinel.ErrNotFound
	}
	return entry.id, nil
}

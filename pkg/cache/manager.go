package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles outcome storage in Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves a cached outcome.
// Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Get(ctx context.Context, key Key) (fetch.Outcome, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return fetch.Outcome{}, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return fetch.Outcome{}, fmt.Errorf("redis get: %w", err)
	}

	outcome, err := DecodeEntry(data)
	if err != nil {
		// Drop corrupted entries so the next run refetches.
		_ = m.Delete(ctx, key)
		CacheErrors.WithLabelValues("get").Inc()
		return fetch.Outcome{}, err
	}

	CacheHits.WithLabelValues(outcome.Kind.String()).Inc()
	return outcome, nil
}

// Set stores an outcome. A ttl <= 0 keeps the entry until deleted.
func (m *Manager) Set(ctx context.Context, key Key, outcome fetch.Outcome, ttl time.Duration) error {
	data, err := EncodeEntry(outcome)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStoredBytes.Add(float64(len(data)))
	return nil
}

// Delete removes a cached outcome.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

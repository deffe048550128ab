package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long outcomes stay cached.
const DefaultTTL = 24 * time.Hour

// Config holds the outcome cache configuration.
type Config struct {
	// Prefix namespaces the keys. Defaults to DefaultPrefix.
	Prefix string

	// TTL of stored entries. Zero uses DefaultTTL; negative never expires.
	TTL time.Duration
}

// Fetcher is a fetch.Fetcher that consults Redis before the wrapped fetcher.
type Fetcher struct {
	inner   fetch.Fetcher
	manager *Manager
	config  Config
	logger  zerolog.Logger
}

// NewFetcher wraps inner with an outcome cache.
func NewFetcher(inner fetch.Fetcher, redisClient *redis.Client, config Config) *Fetcher {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}

	return &Fetcher{
		inner:   inner,
		manager: NewManager(redisClient),
		config:  config,
		logger:  logging.NewLogger("outcome-cache"),
	}
}

// Manager returns the underlying cache manager.
func (f *Fetcher) Manager() *Manager {
	return f.manager
}

// Key returns the cache key for id.
func (f *Fetcher) Key(id int) Key {
	return Key{Prefix: f.config.Prefix, ID: id}
}

// Fetch implements fetch.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, id int) (fetch.Record, error) {
	key := f.Key(id)

	cached, err := f.manager.Get(ctx, key)
	switch {
	case err == nil:
		f.logger.Debug().Int("id", id).Str("kind", cached.Kind.String()).Msg("Cache hit")
		if cached.Kind == fetch.Absent {
			return nil, fetch.ErrAbsent
		}
		return cached.Record, nil
	case !errors.Is(err, ErrCacheMiss):
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	record, err := f.inner.Fetch(ctx, id)

	var outcome fetch.Outcome
	switch {
	case err == nil:
		outcome = fetch.FoundOutcome(record)
	case errors.Is(err, fetch.ErrAbsent):
		outcome = fetch.AbsentOutcome()
	default:
		return record, err
	}

	ttl := f.config.TTL
	if ttl < 0 {
		ttl = 0
	}
	if serr := f.manager.Set(ctx, key, outcome, ttl); serr != nil {
		f.logger.Warn().Err(serr).Str("key", key.String()).Msg("Failed to cache outcome")
	}

	return record, err
}

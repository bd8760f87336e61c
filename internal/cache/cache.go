package cache

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is a key/value store with per-entry expiration.
//
// Get misses when the key is absent or its entry has expired. Set inserts only
// when Get would currently miss; a write racing a fresh entry is dropped and
// Set reports false.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, v T, ttl time.Duration) bool
}

// TTL is the in-memory Store. Expiry is evaluated on read; expired entries stay
// in memory unless a sweep interval was given, so with sweep == 0 memory grows
// with every distinct key ever stored.
type TTL[T any] struct {
	c      *gocache.Cache
	logger *slog.Logger
}

func New[T any](sweep time.Duration, logger *slog.Logger) *TTL[T] {
	if logger == nil {
		logger = slog.Default()
	}
	// go-cache starts no janitor for a non-positive cleanup interval
	return &TTL[T]{c: gocache.New(gocache.NoExpiration, sweep), logger: logger}
}

func (s *TTL[T]) Get(_ context.Context, key string) (T, bool) {
	var zero T
	v, ok := s.c.Get(key)
	if !ok {
		s.logger.Debug("cache miss", "key", key)
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	s.logger.Debug("cache hit", "key", key)
	return t, true
}

func (s *TTL[T]) Set(_ context.Context, key string, v T, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	// Add refuses keys holding an unexpired entry, under the write lock.
	if err := s.c.Add(key, v, ttl); err != nil {
		s.logger.Debug("race condition setting key", "key", key)
		return false
	}
	s.logger.Debug("cache set", "key", key, "ttl", ttl)
	return true
}

// Len counts stored entries, expired ones included.
func (s *TTL[T]) Len() int { return s.c.ItemCount() }

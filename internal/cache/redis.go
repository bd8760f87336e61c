package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Redis is a Store shared between processes. SET NX with an expiry gives the
// same insert-on-miss contract as TTL. Values are stored as MessagePack.
// Backend errors degrade to a miss or a dropped write.
type Redis[T any] struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// Dial connects and pings Redis.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedis[T any](rdb *redis.Client, logger *slog.Logger) *Redis[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis[T]{rdb: rdb, logger: logger}
}

func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool) {
	var v T
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("cache miss", "key", key)
		return v, false
	}
	if err != nil {
		r.logger.Warn("redis get failed", "key", key, "err", err)
		return v, false
	}
	if err := msgpack.Unmarshal(b, &v); err != nil {
		r.logger.Warn("redis value undecodable", "key", key, "err", err)
		var zero T
		return zero, false
	}
	r.logger.Debug("cache hit", "key", key)
	return v, true
}

func (r *Redis[T]) Set(ctx context.Context, key string, v T, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		r.logger.Warn("redis value unencodable", "key", key, "err", err)
		return false
	}
	ok, err := r.rdb.SetNX(ctx, key, b, ttl).Result()
	if err != nil {
		r.logger.Warn("redis set failed", "key", key, "err", err)
		return false
	}
	if !ok {
		r.logger.Debug("race condition setting key", "key", key)
	}
	return ok
}

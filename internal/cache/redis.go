package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces council entries in a shared Redis.
	KeyPrefix = "council:audit:"

	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second
)

// redisClient is the subset of go-redis used by the cache, narrowed so
// tests can substitute an in-memory fake.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis stores entries with SETNX and no expiration, so concurrent workers
// across processes still write each key at most once.
type Redis struct {
	client redisClient
	logger *slog.Logger
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: defaultPoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return newRedisWithClient(client), nil
}

func newRedisWithClient(client redisClient) *Redis {
	return &Redis{client: client, logger: slog.Default().With("component", "redis_cache")}
}

// Get fetches the entry for key. Corrupt values are misses.
func (r *Redis) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	data, err := r.client.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	if !validEntry(data) {
		r.logger.Warn("corrupt cache entry treated as miss", "key", key)
		return nil, false, nil
	}
	return data, true, nil
}

// Set stores value with SETNX. An existing entry is left untouched.
func (r *Redis) Set(ctx context.Context, key string, value json.RawMessage) error {
	if !validEntry(value) {
		return ErrInvalidEntry
	}
	stored, err := r.client.SetNX(ctx, KeyPrefix+key, []byte(value), 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !stored {
		r.logger.Debug("cache entry already present", "key", key)
	}
	return nil
}

// Close closes the Redis connection pool.
func (r *Redis) Close() error { return r.client.Close() }

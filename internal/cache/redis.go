package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by github.com/redis/go-redis/v9. Any error
// talking to Redis is logged and treated as unavailable — never returned
// as a hard failure to the caller.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	up     bool
}

func NewRedis(url string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	r := &Redis{client: client, logger: logger.With("component", "cache")}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		r.logger.Warn("redis unreachable at startup, degrading to no-op", "error", err)
		r.up = false
	} else {
		r.up = true
	}
	return r, nil
}

func (r *Redis) Available() bool { return r.up }

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		r.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		r.up = false
		return "", false, nil
	}
	r.up = true
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn("cache set failed, ignoring", "key", key, "error", err)
		r.up = false
		return nil
	}
	r.up = true
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.logger.Warn("cache exists failed, treating as absent", "key", key, "error", err)
		r.up = false
		return false, nil
	}
	r.up = true
	return n > 0, nil
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis implements Store on top of plain GET/SET with expiry, so several
// agents on one host share route and place-name lookups.
type Redis struct {
	client RedisClient
	prefix string
}

func NewRedis(addr, password, prefix string) *Redis {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &Redis{client: c, prefix: prefix}
}

func NewRedisWithClient(c RedisClient, prefix string) *Redis {
	return &Redis{client: c, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Ping checks connectivity when the underlying client supports it.
func (r *Redis) Ping(ctx context.Context) error {
	if p, ok := r.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	}); ok {
		return p.Ping(ctx).Err()
	}
	return nil
}

func (r *Redis) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

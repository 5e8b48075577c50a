package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a string key/value cache. Get returns "" with a nil error on a miss.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GenerateKey(operation, key string) string
}

type redisCache struct {
	client      redis.UniversalClient
	serviceName string
}

// NewRedisCache connects to a single Redis node at addr. Keys are prefixed
// with serviceName.
func NewRedisCache(addr, serviceName string) Cache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: addr}), serviceName)
}

func NewRedisCacheFromClient(client redis.UniversalClient, serviceName string) Cache {
	return &redisCache{client: client, serviceName: serviceName}
}

func (r redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

func (r redisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: get %q: %w", key, err)
	}
	return value, nil
}

func (r redisCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, operation, key)
}

// Package rediscache stores short-lived byte values in Redis.
package rediscache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/redis/go-redis/v9"
)

const (
	errorOperationCache = "cache"
	errorSubjectRedis   = "redis"
	errorCodeConnect    = "connect"
	errorCodeGet        = "get"
	errorCodeSet        = "set"
	defaultKeyPrefix    = "escrow:"
)

var errMissingURL = errors.New("redis url is required")

// Cache implements the bank directory cache on a Redis client.
type Cache struct {
	client *redis.Client
	prefix string
}

// Option configures a Cache.
type Option func(*Cache)

// WithKeyPrefix namespaces every key written by the cache.
func WithKeyPrefix(prefix string) Option {
	return func(cache *Cache) {
		cache.prefix = prefix
	}
}

// New wraps an existing client.
func New(client *redis.Client, options ...Option) *Cache {
	cache := &Cache{client: client, prefix: defaultKeyPrefix}
	for _, option := range options {
		option(cache)
	}
	return cache
}

// Open parses a redis:// URL, connects and verifies the server answers PING.
func Open(ctx context.Context, rawURL string, options ...Option) (*Cache, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ledger.WrapError(errorOperationCache, errorSubjectRedis, errorCodeConnect, errMissingURL)
	}
	parsed, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, ledger.WrapError(errorOperationCache, errorSubjectRedis, errorCodeConnect, err)
	}
	client := redis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ledger.WrapError(errorOperationCache, errorSubjectRedis, errorCodeConnect, err)
	}
	return New(client, options...), nil
}

// Get returns the stored value. A missing key reports found=false without error.
func (cache *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := cache.client.Get(ctx, cache.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ledger.WrapError(errorOperationCache, errorSubjectRedis, errorCodeGet, err)
	}
	return value, true, nil
}

// Set stores value under key for ttl.
func (cache *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.client.Set(ctx, cache.prefix+key, value, ttl).Err(); err != nil {
		return ledger.WrapError(errorOperationCache, errorSubjectRedis, errorCodeSet, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (cache *Cache) Close() error {
	return cache.client.Close()
}

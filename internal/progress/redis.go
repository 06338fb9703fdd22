package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces progress keys.
const DefaultRedisPrefix = "geograpy:progress:"

// RedisBackend stores each record as a JSON string under prefix+userID.
// The client is owned by the caller.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps client. An empty prefix means DefaultRedisPrefix.
func NewRedisBackend(client *redis.Client, prefix string) (*RedisBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

// Key returns the redis key for userID.
func (b *RedisBackend) Key(userID string) string {
	return b.prefix + userID
}

func (b *RedisBackend) Get(ctx context.Context, userID string) (Record, error) {
	data, err := b.client.Get(ctx, b.Key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress record: %w", err)
	}
	return Decode(data)
}

func (b *RedisBackend) Put(ctx context.Context, userID string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.Key(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("set progress record: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error { return nil }

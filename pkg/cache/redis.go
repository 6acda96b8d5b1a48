package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cache entries in Redis under a key prefix.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// RedisOptions selects the Redis server used as the shared cache tier.
type RedisOptions struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis builds a client from opts. It does not contact the server.
func DialRedis(opts RedisOptions) (*redis.Client, *RedisStore) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return client, NewRedisStore(client, opts.Prefix)
}

func (s *RedisStore) key(fingerprint string) string {
	if s.prefix == "" {
		return fingerprint
	}
	return s.prefix + ":" + fingerprint
}

// Get returns the stored bytes. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return raw, true, nil
}

// Set stores value with the given expiry.
func (s *RedisStore) Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(fingerprint), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

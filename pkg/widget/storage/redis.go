package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values in Redis strings. It is meant for hosts where the
// "local" storage of a widget instance lives server side, for example a
// terminal client shared across machines.
type RedisStore struct {
	client *redis.Client
}

var _ Store = &RedisStore{}

func NewRedisStore(addr string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis store: empty addr")
	}
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: addr})), nil
}

// NewRedisStoreFromClient wraps an existing client. Close closes it.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, errors.New("redis store: client is nil")
	}
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis store: get")
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.client == nil {
		return errors.New("redis store: client is nil")
	}
	return errors.Wrap(s.client.Set(ctx, key, value, 0).Err(), "redis store: set")
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return errors.New("redis store: client is nil")
	}
	return errors.Wrap(s.client.Del(ctx, key).Err(), "redis store: remove")
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

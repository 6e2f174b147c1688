package session

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "token:"

// RedisStore keeps the token under token:<profile> with a MaxAge TTL.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, profile string) *RedisStore {
	return &RedisStore{client: client, key: tokenKeyPrefix + profile}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	tok, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return tok, err
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.key, token, MaxAge).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

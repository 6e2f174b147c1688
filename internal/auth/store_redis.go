package auth

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const userKeyPrefix = "user:"

// RedisStore keeps one JSON document per user under user:<email>. SETNX
// makes registration atomic across server replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Create implements UserStore.
func (s *RedisStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	val, err := sonic.Marshal(redisUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(u.Email), val, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// GetByEmail implements UserStore.
func (s *RedisStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	val, err := s.client.Get(ctx, s.key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ru redisUser
	if err := sonic.Unmarshal(val, &ru); err != nil {
		return nil, err
	}
	return &User{
		ID:           ru.ID,
		Email:        ru.Email,
		PasswordHash: ru.PasswordHash,
		CreatedAt:    ru.CreatedAt,
	}, nil
}

// Close implements UserStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(email string) string {
	return userKeyPrefix + email
}

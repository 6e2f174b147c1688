package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxAge bounds how long a persisted token is kept, matching the token's
// own lifetime.
const MaxAge = 7 * 24 * time.Hour

// TokenStore persists the current session token. Load returns "" (not an
// error) when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// StoreType selects a TokenStore driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption configures NewTokenStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	path        string
	redisClient *redis.Client
	profile     string
}

// WithFilePath sets the file used by the file driver.
func WithFilePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.path = path
	}
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithProfile namespaces the redis key, so several clients can share one
// redis without sharing a login.
func WithProfile(profile string) StoreOption {
	return func(c *storeConfig) {
		c.profile = profile
	}
}

// NewTokenStore creates a TokenStore of the given type.
func NewTokenStore(storeType StoreType, opts ...StoreOption) (TokenStore, error) {
	cfg := &storeConfig{profile: "default"}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return &MemoryStore{}, nil

	case StoreTypeFile:
		if cfg.path == "" {
			return nil, ErrInvalidConfig
		}
		return NewFileStore(cfg.path), nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.profile), nil

	default:
		return nil, ErrInvalidStoreType
	}
}

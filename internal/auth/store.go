package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// User is a stored account record. PasswordHash never leaves this package
// through the Service; callers receive PublicUser.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// PublicUser is the sanitized account record returned to callers and sent
// over the wire.
type PublicUser struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips the password hash.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// UserStore persists user records keyed by email.
type UserStore interface {
	// Create inserts u, assigning ID and CreatedAt when empty.
	// Returns ErrAlreadyExists if the email is taken.
	Create(ctx context.Context, u *User) error

	// GetByEmail returns nil (not an error) when no record exists.
	GetByEmail(ctx context.Context, email string) (*User, error)

	Close() error
}

// StoreType selects a UserStore driver.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypePostgres StoreType = "postgres"
)

// StoreOption configures NewUserStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	pgPool      *pgxpool.Pool
	skipMigrate bool
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithPostgresPool sets the pool used by the postgres driver.
func WithPostgresPool(pool *pgxpool.Pool) StoreOption {
	return func(c *storeConfig) {
		c.pgPool = pool
	}
}

// WithoutMigrations skips applying the embedded schema on startup.
func WithoutMigrations() StoreOption {
	return func(c *storeConfig) {
		c.skipMigrate = true
	}
}

// NewUserStore creates a UserStore of the given type. The postgres driver
// applies its embedded migrations before returning.
func NewUserStore(ctx context.Context, storeType StoreType, opts ...StoreOption) (UserStore, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient), nil

	case StoreTypePostgres:
		if cfg.pgPool == nil {
			return nil, ErrInvalidConfig
		}
		if !cfg.skipMigrate {
			if err := Migrate(ctx, cfg.pgPool); err != nil {
				return nil, err
			}
		}
		return NewPostgresStore(cfg.pgPool), nil

	default:
		return nil, ErrInvalidStoreType
	}
}

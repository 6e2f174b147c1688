package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/gita-voice-lab/internal/config"
	"github.com/gita-voice-lab/internal/logging"
)

// ErrNoCredentials is returned by Open when no stored login is usable and
// no identity is configured.
var ErrNoCredentials = errors.New("not logged in and no VOICE_IDENTITY configured")

// Open builds the client session from cfg: it opens the configured token
// store, restores a stored login, and otherwise logs in with the configured
// identity. An identity the server does not know yet is registered.
func Open(ctx context.Context, cfg config.ClientConfig) (*Context, error) {
	opts := []StoreOption{WithFilePath(cfg.TokenFile), WithProfile(cfg.Profile)}
	if StoreType(cfg.TokenStore) == StoreTypeRedis {
		ropt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		opts = append(opts, WithRedisClient(redis.NewClient(ropt)))
	}
	store, err := NewTokenStore(StoreType(cfg.TokenStore), opts...)
	if err != nil {
		return nil, err
	}

	c := New(cfg.APIBaseURL, store, &http.Client{Timeout: cfg.GatewayTimeout})
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	if c.LoggedIn() {
		return c, nil
	}
	if cfg.Identity == "" {
		return nil, ErrNoCredentials
	}

	err = c.Login(ctx, cfg.Identity, cfg.Secret)
	var ae *AuthError
	if errors.As(err, &ae) && ae.Status == http.StatusUnauthorized {
		logging.Infow("session: login rejected; trying registration")
		if rerr := c.Register(ctx, cfg.Identity, cfg.Secret); rerr == nil {
			return c, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

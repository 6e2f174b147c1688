package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gita-voice-lab/internal/auth"
	"github.com/gita-voice-lab/internal/config"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/server"
	"github.com/gita-voice-lab/internal/upstream"
)

func main() {
	logging.Init()
	defer logging.Sync()

	cfg := config.LoadServer()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users, err := openUserStore(ctx, cfg)
	if err != nil {
		logging.FatalExitf("open user store failed", "store", cfg.UserStore, "err", err)
	}
	defer users.Close()

	if cfg.SarvamAPIKey == "" {
		logging.Warnw("SARVAM_API_KEY not set; speech endpoints will fail upstream")
	}
	if cfg.CerebrasAPIKey == "" {
		logging.Warnw("CEREBRAS_API_KEY not set; chat endpoints will fail upstream")
	}

	svc := auth.NewService(users, auth.NewSigner(cfg.JWTSecret))
	api := server.New(svc,
		upstream.NewSarvam(cfg.SarvamBaseURL, cfg.SarvamAPIKey, cfg.UpstreamTimeout),
		upstream.NewChat(cfg.CerebrasBaseURL, cfg.CerebrasAPIKey, cfg.CerebrasModel, cfg.UpstreamTimeout),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Infow("api server listening", "addr", cfg.ListenAddr, "user_store", cfg.UserStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("api server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logging.Infow("shutdown signal received, closing resources")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warnw("api server shutdown error", "err", err)
	}
	logging.Infow("shutdown complete")
}

func openUserStore(ctx context.Context, cfg config.ServerConfig) (auth.UserStore, error) {
	switch auth.StoreType(cfg.UserStore) {
	case auth.StoreTypeRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, err
		}
		return auth.NewUserStore(ctx, auth.StoreTypeRedis, auth.WithRedisClient(client))
	case auth.StoreTypePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store, err := auth.NewUserStore(ctx, auth.StoreTypePostgres, auth.WithPostgresPool(pool))
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return auth.NewUserStore(ctx, auth.StoreType(cfg.UserStore))
	}
}

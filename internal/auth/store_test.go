package auth

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// exerciseStore runs the UserStore contract against s.
func exerciseStore(t *testing.T, s UserStore, email string) {
	t.Helper()
	ctx := context.Background()

	missing, err := s.GetByEmail(ctx, email)
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) before create, got (%+v, %v)", missing, err)
	}

	u := &User{Email: email, PasswordHash: "hash-1"}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("create did not assign id/created_at: %+v", u)
	}

	dup := &User{Email: email, PasswordHash: "hash-2"}
	if err := s.Create(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.GetByEmail(ctx, email)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != u.ID || got.PasswordHash != "hash-1" {
		t.Fatalf("stored record mismatch: %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := NewUserStore(context.Background(), StoreTypeMemory)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s, "memory@example.com")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s, err := NewUserStore(context.Background(), StoreTypeRedis, WithRedisClient(client))
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s, "redis@example.com")

	if !mr.Exists(userKeyPrefix + "redis@example.com") {
		t.Fatalf("expected user key in redis")
	}
}

func TestNewUserStoreValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewUserStore(ctx, StoreTypeRedis); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for redis without client, got %v", err)
	}
	if _, err := NewUserStore(ctx, StoreTypePostgres); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for postgres without pool, got %v", err)
	}
	if _, err := NewUserStore(ctx, StoreType("mongo")); !errors.Is(err, ErrInvalidStoreType) {
		t.Fatalf("expected ErrInvalidStoreType, got %v", err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	s, err := NewUserStore(ctx, StoreTypePostgres, WithPostgresPool(pool))
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}
	defer s.Close()

	email := "pg-" + t.Name() + "@example.com"
	if _, err := pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, NormalizeEmail(email)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	exerciseStore(t, s, NormalizeEmail(email))
}

package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alex-user-go/rates/internal/config"
	"github.com/alex-user-go/rates/internal/ratelimit"
	"github.com/alex-user-go/rates/internal/ratelimit/store"
)

func noClose() error { return nil }

// OpenStore opens the limiter state backend named by cfg. The returned func
// closes any connection the store holds.
func OpenStore(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), noClose, nil

	case config.BackendFile:
		st, err := store.NewFileStore(cfg.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open rate limit file: %w", err)
		}
		return st, noClose, nil

	case config.BackendSQLite:
		st, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open rate limit database: %w", err)
		}
		return st, st.Close, nil

	case config.BackendPostgres:
		st, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to rate limit database: %w", err)
		}
		return st, st.Close, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		// Buckets idle for two windows are garbage anyway.
		st := store.NewRedisStore(rdb, store.WithKey(cfg.RedisKey), store.WithTTL(2*cfg.Window))
		return st, rdb.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
}

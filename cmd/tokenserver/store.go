package main

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goToken/internal/serverconfig"
	"github.com/MrEthical07/goToken/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// openStore connects the configured session backend. The returned func
// releases its connections.
func openStore(ctx context.Context, cfg *serverconfig.Config, log *zap.Logger) (session.Store, func(), error) {
	switch cfg.StoreBackend {
	case serverconfig.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return session.NewRedisStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil

	case serverconfig.BackendMongo:
		client, err := session.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := session.NewMongoStore(client, cfg.MongoDatabase, cfg.MongoCollection)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil

	case serverconfig.BackendPostgres:
		if cfg.AutoMigrate {
			if err := session.Migrate(cfg.PostgresDSN, "up"); err != nil {
				return nil, nil, err
			}
			log.Info("postgres schema migrated")
		}
		pool, err := session.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return session.NewPostgresStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

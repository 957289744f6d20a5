// Command tokenmigrate manages the Postgres token_sessions schema.
//
//	tokenmigrate -direction up
//	tokenmigrate -purge
//
// The DSN comes from -dsn or TOKEN_POSTGRES_DSN.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/goToken/internal/logger"
	"github.com/MrEthical07/goToken/session"
	"go.uber.org/zap"
)

func main() {
	var (
		dsn       = flag.String("dsn", os.Getenv("TOKEN_POSTGRES_DSN"), "postgres DSN")
		direction = flag.String("direction", "up", "migration direction: up or down")
		purge     = flag.Bool("purge", false, "delete expired session rows instead of migrating")
		level     = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log, err := logger.New(*level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	if *dsn == "" {
		log.Fatal("postgres DSN required (-dsn or TOKEN_POSTGRES_DSN)")
	}

	if *purge {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		pool, err := session.NewPostgresPool(ctx, *dsn)
		if err != nil {
			log.Fatal("connect", zap.Error(err))
		}
		defer pool.Close()

		n, err := session.NewPostgresStore(pool).PurgeExpired(ctx, time.Now())
		if err != nil {
			log.Fatal("purge expired sessions", zap.Error(err))
		}
		log.Info("purged expired sessions", zap.Int64("rows", n))
		return
	}

	if err := session.Migrate(*dsn, *direction); err != nil {
		log.Fatal("migrate", zap.String("direction", *direction), zap.Error(err))
	}
	log.Info("migration complete", zap.String("direction", *direction))
}

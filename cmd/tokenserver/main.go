// Command tokenserver serves the token engine over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/internal/directory"
	"github.com/MrEthical07/goToken/internal/httpapi"
	"github.com/MrEthical07/goToken/internal/logger"
	"github.com/MrEthical07/goToken/internal/serverconfig"
	"github.com/MrEthical07/goToken/metrics/export/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := serverconfig.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("tokenserver stopped", zap.Error(err))
	}
}

func run(cfg *serverconfig.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	dir, err := loadDirectory(cfg)
	if err != nil {
		return err
	}
	log.Info("user directory loaded", zap.Int("users", dir.Len()))

	engineCfg := goToken.DefaultConfig()
	engineCfg.JWT.Secret = []byte(cfg.JWTSecret)
	engineCfg.JWT.SigningMethod = cfg.JWTAlgorithm
	engineCfg.JWT.AccessTTL = cfg.JWTAccessTTL
	engineCfg.JWT.RefreshTTL = cfg.JWTRefreshTTL
	engineCfg.JWT.Issuer = cfg.JWTIssuer
	engineCfg.JWT.Audience = cfg.JWTAudience
	engineCfg.JWT.Leeway = cfg.JWTLeeway
	engineCfg.Audit.Enabled = cfg.AuditEnabled
	engineCfg.Metrics.Enabled = cfg.MetricsEnabled
	engineCfg.Metrics.EnableLatencyHistograms = cfg.MetricsEnabled

	engine, err := goToken.New().
		WithConfig(engineCfg).
		WithSessionStore(store).
		WithUserProvider(dir).
		WithLogger(log.Named("engine")).
		WithAuditSink(goToken.NewZapSink(log)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	deps := httpapi.Dependencies{
		Engine:        engine,
		Authenticator: dir,
		Logger:        log.Named("http"),
	}
	if cfg.MetricsEnabled {
		deps.Metrics = prometheus.NewExporter(engine).Handler()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadDirectory(cfg *serverconfig.Config) (*directory.Directory, error) {
	dir := directory.New(0)
	for _, u := range cfg.Users {
		user := goToken.UserRecord{
			UserID:  u.ID,
			Email:   u.Email,
			Roles:   u.Roles,
			Groups:  u.Groups,
			Domains: u.Domains,
		}
		if err := dir.AddHashed(user, u.PasswordHash); err != nil {
			return nil, err
		}
	}
	if cfg.DemoEmail != "" {
		demo := goToken.UserRecord{UserID: "demo", Email: cfg.DemoEmail, Roles: []string{"user"}}
		if err := dir.Add(demo, cfg.DemoPassword); err != nil {
			return nil, err
		}
	}
	return dir, nil
}

package serverconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOKEN_JWT_SECRET", secret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StoreBackend != BackendRedis || cfg.RedisPrefix != "gts" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JWTAccessTTL != 15*time.Minute || cfg.JWTRefreshTTL != 24*time.Hour {
		t.Fatalf("unexpected TTLs: %v / %v", cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOKEN_JWT_SECRET", secret)
	t.Setenv("TOKEN_HTTP_ADDR", ":9090")
	t.Setenv("TOKEN_JWT_ACCESS_TTL", "5m")
	t.Setenv("TOKEN_STORE_BACKEND", "postgres")
	t.Setenv("TOKEN_POSTGRES_DSN", "postgres://u:p@localhost/db")
	t.Setenv("TOKEN_AUTO_MIGRATE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.JWTAccessTTL != 5*time.Minute {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.StoreBackend != BackendPostgres || !cfg.AutoMigrate {
		t.Fatalf("backend settings not applied: %+v", cfg)
	}
}

func TestLoadYAMLFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
jwt_secret: ` + secret + `
store_backend: mongo
mongo_uri: mongodb://localhost:27017
users:
  - id: u1
    email: a@b.com
    password_hash: "$2a$10$abcdefghijklmnopqrstuv"
    roles: [user]
`
	path := filepath.Join(dir, "token.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("TOKEN_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendMongo || cfg.MongoURI == "" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Email != "a@b.com" || cfg.Users[0].Roles[0] != "user" {
		t.Fatalf("users = %+v", cfg.Users)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf(".env not applied, log level %q", cfg.LogLevel)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOKEN_JWT_SECRET", secret)
	t.Setenv("TOKEN_CONFIG", "/does/not/exist.yaml")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsUnreadableDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("TOKEN_JWT_SECRET", secret)
	if err := os.Mkdir(filepath.Join(dir, ".env"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), ".env") {
		t.Fatalf("expected .env read error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			HTTPAddr:      ":8080",
			JWTSecret:     secret,
			JWTAccessTTL:  time.Minute,
			JWTRefreshTTL: time.Hour,
			StoreBackend:  BackendRedis,
			RedisAddr:     "localhost:6379",
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.JWTSecret = "x" }, "JWT_SECRET"},
		{"ttl order", func(c *Config) { c.JWTAccessTTL = 2 * time.Hour }, "ACCESS_TTL"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "etcd" }, "STORE_BACKEND"},
		{"mongo uri", func(c *Config) { c.StoreBackend = BackendMongo }, "MONGO_URI"},
		{"postgres dsn", func(c *Config) { c.StoreBackend = BackendPostgres }, "POSTGRES_DSN"},
		{"demo half set", func(c *Config) { c.DemoEmail = "a@b.com" }, "DEMO"},
		{"bad user", func(c *Config) { c.Users = []User{{ID: "u1"}} }, "users[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected base config to validate: %v", err)
	}
}

// Package serverconfig loads tokenserver and tokenmigrate settings with Viper.
//
// Sources, lowest precedence first: defaults, an optional YAML file named by
// TOKEN_CONFIG, an optional .env file, then TOKEN_* environment variables.
package serverconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// User is one demo directory entry. PasswordHash is a bcrypt hash.
type User struct {
	ID           string   `mapstructure:"id"`
	Email        string   `mapstructure:"email"`
	PasswordHash string   `mapstructure:"password_hash"`
	Roles        []string `mapstructure:"roles"`
	Groups       []string `mapstructure:"groups"`
	Domains      []string `mapstructure:"domains"`
}

type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTAlgorithm  string        `mapstructure:"jwt_algorithm"`
	JWTAccessTTL  time.Duration `mapstructure:"jwt_access_ttl"`
	JWTRefreshTTL time.Duration `mapstructure:"jwt_refresh_ttl"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTAudience   string        `mapstructure:"jwt_audience"`
	JWTLeeway     time.Duration `mapstructure:"jwt_leeway"`

	// StoreBackend is one of redis, mongo or postgres.
	StoreBackend string `mapstructure:"store_backend"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	AuditEnabled   bool `mapstructure:"audit_enabled"`

	// DemoEmail and DemoPassword seed one directory user at startup when set.
	DemoEmail    string `mapstructure:"demo_email"`
	DemoPassword string `mapstructure:"demo_password"`
	Users        []User `mapstructure:"users"`
}

var defaults = map[string]any{
	"http_addr":        ":8080",
	"log_level":        "info",
	"log_format":       "json",
	"jwt_secret":       "",
	"jwt_algorithm":    "hs256",
	"jwt_access_ttl":   "15m",
	"jwt_refresh_ttl":  "24h",
	"jwt_issuer":       "",
	"jwt_audience":     "",
	"jwt_leeway":       "0s",
	"store_backend":    BackendRedis,
	"redis_addr":       "localhost:6379",
	"redis_password":   "",
	"redis_db":         0,
	"redis_prefix":     "gts",
	"mongo_uri":        "",
	"mongo_database":   "gotoken",
	"mongo_collection": "token_sessions",
	"postgres_dsn":     "",
	"auto_migrate":     false,
	"metrics_enabled":  true,
	"audit_enabled":    false,
	"demo_email":       "",
	"demo_password":    "",
}

// Load reads the configuration. Keys in the YAML file and in .env are the
// unprefixed snake_case names (jwt_secret, JWT_SECRET); environment
// variables carry the TOKEN_ prefix and take precedence over both.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("TOKEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read .env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: TOKEN_HTTP_ADDR must be set")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("config: TOKEN_JWT_SECRET must be at least 32 bytes")
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 || c.JWTAccessTTL >= c.JWTRefreshTTL {
		return errors.New("config: TOKEN_JWT_ACCESS_TTL must be positive and shorter than TOKEN_JWT_REFRESH_TTL")
	}

	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: TOKEN_REDIS_ADDR must be set for the redis backend")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("config: TOKEN_MONGO_URI must be set for the mongo backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: TOKEN_POSTGRES_DSN must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown TOKEN_STORE_BACKEND %q", c.StoreBackend)
	}

	if (c.DemoEmail == "") != (c.DemoPassword == "") {
		return errors.New("config: TOKEN_DEMO_EMAIL and TOKEN_DEMO_PASSWORD must be set together")
	}
	for i, u := range c.Users {
		if u.ID == "" || u.Email == "" || u.PasswordHash == "" {
			return fmt.Errorf("config: users[%d] needs id, email and password_hash", i)
		}
	}
	return nil
}

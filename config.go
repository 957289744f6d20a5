package goToken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goToken/jwt"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and set at least JWT.Secret.
type Config struct {
	JWT     JWTConfig
	Session SessionConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls signing and local verification.
type JWTConfig struct {
	Secret        []byte
	SigningMethod string // "hs256" (default), "hs384" or "hs512"
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	// Leeway tolerates clock drift on exp checks. At most 2 minutes.
	Leeway time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig applies to the Redis store built by [Builder.WithRedis].
type SessionConfig struct {
	RedisPrefix string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the engine defaults: HS256, 15 minute access tokens,
// 24 hour refresh tokens, audit and metrics off. The secret is left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodHS256),
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix: "gts",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < jwt.MinSecretLength {
		return fmt.Errorf("JWT Secret must be at least %d bytes", jwt.MinSecretLength)
	}
	switch jwt.SigningMethod(strings.ToLower(c.JWT.SigningMethod)) {
	case jwt.MethodHS256, jwt.MethodHS384, jwt.MethodHS512:
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}

	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes the two halves of a token pair. It is embedded in
// every claim set and checked on every parse.
type TokenType string

const (
	// TypeAccess marks short-lived tokens presented on protected routes.
	TypeAccess TokenType = "access"
	// TypeRefresh marks long-lived tokens that may only be exchanged for a new pair.
	TypeRefresh TokenType = "refresh"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	return t == TypeAccess || t == TypeRefresh
}

// SigningMethod selects the symmetric algorithm used for both halves of the pair.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256. It is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"
)

// MinSecretLength is the smallest shared secret NewManager accepts.
const MinSecretLength = 32

var (
	// ErrTokenMalformed is returned when a token cannot be decoded or its
	// claims are missing required identity fields.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalid is returned for bad signatures, elapsed expiry, and
	// issuer/audience mismatches.
	ErrTokenInvalid = errors.New("token invalid or expired")
	// ErrTokenTypeMismatch is returned when a valid token of the other type is presented.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// Config is the signing state owned by one Manager. Nothing in this package
// keeps process-wide signing state.
type Config struct {
	Secret        []byte
	SigningMethod SigningMethod
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration

	// Now overrides the clock used for issuance and expiry checks. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and verifies access and refresh tokens.
//
// Manager is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// Claims is the signed payload carried by both token types.
type Claims struct {
	UserID  string    `json:"uid"`
	Email   string    `json:"email"`
	Roles   []string  `json:"roles"`
	Groups  []string  `json:"groups"`
	Domains []string  `json:"domains"`
	Type    TokenType `json:"type"`
	jwt.RegisteredClaims
}

// IssuedAtTime returns the iat claim, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c == nil || c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the exp claim, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Subject is the identity a token pair is issued for.
type Subject struct {
	UserID  string
	Email   string
	Roles   []string
	Groups  []string
	Domains []string
}

// NewManager validates cfg and returns a Manager bound to it.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	method, err := resolveMethod(cfg.SigningMethod)
	if err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg, method: method}, nil
}

func resolveMethod(m SigningMethod) (jwt.SigningMethod, error) {
	switch SigningMethod(strings.ToLower(string(m))) {
	case MethodHS256:
		return jwt.SigningMethodHS256, nil
	case MethodHS384:
		return jwt.SigningMethodHS384, nil
	case MethodHS512:
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing method %q", m)
	}
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.config.Now() }

// Issue signs a new claim set of the given type for sub. Each call produces a
// distinct token (fresh jti) even within the same second.
func (m *Manager) Issue(sub Subject, typ TokenType) (string, *Claims, error) {
	if !typ.Valid() {
		return "", nil, fmt.Errorf("unknown token type %q", typ)
	}

	ttl := m.config.AccessTTL
	if typ == TypeRefresh {
		ttl = m.config.RefreshTTL
	}

	now := m.config.Now().UTC()
	claims := &Claims{
		UserID:  sub.UserID,
		Email:   sub.Email,
		Roles:   normalizeList(sub.Roles),
		Groups:  normalizeList(sub.Groups),
		Domains: normalizeList(sub.Domains),
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.UserID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies the signature, expiry, issuer and audience of tokenStr and
// checks that it carries the expected type. It performs no I/O.
func (m *Manager) Parse(tokenStr string, expected TokenType) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrTokenMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == "" || claims.Email == "" || !claims.Type.Valid() {
		return nil, ErrTokenMalformed
	}
	if claims.IssuedAt != nil && m.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
		}
	}
	if claims.Type != expected {
		return nil, ErrTokenTypeMismatch
	}

	return claims, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

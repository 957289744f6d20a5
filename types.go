package goToken

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"go.uber.org/zap"
)

// Identity is the subject a token pair is issued for.
type Identity struct {
	UserID  string
	Email   string
	Roles   []string
	Groups  []string
	Domains []string
}

// TokenPair is returned by GenerateTokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access-token lifetime in whole seconds.
	ExpiresIn        int64     `json:"expires_in"`
	TokenType        string    `json:"token_type"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RefreshResult is a rotated pair plus the identity it was issued for, as
// re-read from the [UserProvider].
type RefreshResult struct {
	TokenPair
	UserID  string   `json:"user_id"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	Groups  []string `json:"groups"`
	Domains []string `json:"domains"`
}

// SessionInfo is a read-only view of a stored session record. Token hashes
// are never exposed.
type SessionInfo struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"`
	Active    bool      `json:"active"`
}

// HealthStatus reports session store availability.
type HealthStatus struct {
	Available bool
	Latency   time.Duration
}

// UserRecord is the identity a [UserProvider] returns.
type UserRecord struct {
	UserID  string
	Email   string
	Roles   []string
	Groups  []string
	Domains []string
}

// UserProvider resolves the current identity of a user during refresh.
// GetUser must return an error matching [ErrUserNotFound] (errors.Is) when the
// user no longer exists.
type UserProvider interface {
	GetUser(ctx context.Context, userID string) (UserRecord, error)
}

// UserProviderFunc adapts a function to [UserProvider].
type UserProviderFunc func(ctx context.Context, userID string) (UserRecord, error)

func (f UserProviderFunc) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	return f(ctx, userID)
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that logs events through zap.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging under the "audit" name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

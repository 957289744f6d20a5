package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/session"
)

// SyncFailureKind classifies session upsert failures.
type SyncFailureKind int

const (
	SyncFailureNone SyncFailureKind = iota
	SyncFailureInvalidInput
	SyncFailureStore
)

// SyncInput is the pair to persist for one user. A zero ExpiresAt is derived
// from the refresh token.
type SyncInput struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SyncResult carries the stored record or failure metadata.
type SyncResult struct {
	Failure SyncFailureKind
	Err     error
	Record  *session.Record
}

type SyncSessionStore interface {
	Upsert(ctx context.Context, rec *session.Record) (*session.Record, error)
}

// SyncDeps captures upsert dependencies.
type SyncDeps struct {
	Now           func() time.Time
	RefreshTTL    func() time.Duration
	RefreshExpiry func(token string) (time.Time, bool)
	SessionStore  SyncSessionStore
}

// RunSync writes the record for in.UserID, replacing any previous pair.
// Repeating it with the same input leaves one record holding that input.
func RunSync(ctx context.Context, in SyncInput, deps SyncDeps) SyncResult {
	if in.UserID == "" || in.Email == "" {
		return SyncResult{Failure: SyncFailureInvalidInput, Err: errors.New("user id and email are required")}
	}
	if in.AccessToken == "" || in.RefreshToken == "" {
		return SyncResult{Failure: SyncFailureInvalidInput, Err: errors.New("access and refresh tokens are required")}
	}

	now := deps.Now().UTC()
	expiresAt := in.ExpiresAt
	if expiresAt.IsZero() && deps.RefreshExpiry != nil {
		if exp, ok := deps.RefreshExpiry(in.RefreshToken); ok {
			expiresAt = exp
		}
	}
	if expiresAt.IsZero() {
		expiresAt = now.Add(deps.RefreshTTL())
	}

	rec := &session.Record{
		UserID:      in.UserID,
		Email:       in.Email,
		AccessHash:  session.HashToken(in.AccessToken),
		RefreshHash: session.HashToken(in.RefreshToken),
		ExpiresAt:   expiresAt.UTC(),
		UpdatedAt:   now,
	}

	stored, err := deps.SessionStore.Upsert(ctx, rec)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRecord) {
			return SyncResult{Failure: SyncFailureInvalidInput, Err: err}
		}
		return SyncResult{Failure: SyncFailureStore, Err: err}
	}
	return SyncResult{Record: stored}
}

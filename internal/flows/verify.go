package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// VerifyFailureKind classifies verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureMalformed
	VerifyFailureToken
	VerifyFailureTypeMismatch
	VerifyFailureNoSession
	VerifyFailureEmailMismatch
	VerifyFailureHashMismatch
	VerifyFailureSessionExpired
	VerifyFailureStore
)

// VerifyResult returns either claims or a classified failure.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.Claims
	Record  *session.Record
}

// BackendPhase reports whether the failure happened after the token passed
// local checks.
func (r VerifyResult) BackendPhase() bool {
	return r.Failure >= VerifyFailureNoSession
}

type VerifySessionStore interface {
	Get(ctx context.Context, userID string) (*session.Record, error)
}

// VerifyDeps captures verification dependencies.
type VerifyDeps struct {
	ParseToken   func(string, jwt.TokenType) (*jwt.Claims, error)
	Now          func() time.Time
	SessionStore VerifySessionStore
}

// RunVerify checks tokenStr locally (signature, expiry, type) and then against
// the user's stored session. Any store error rejects the token.
func RunVerify(ctx context.Context, tokenStr string, expected jwt.TokenType, deps VerifyDeps) VerifyResult {
	claims, err := deps.ParseToken(tokenStr, expected)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return VerifyResult{Failure: VerifyFailureMalformed, Err: err}
		case errors.Is(err, jwt.ErrTokenTypeMismatch):
			return VerifyResult{Failure: VerifyFailureTypeMismatch, Err: err}
		default:
			return VerifyResult{Failure: VerifyFailureToken, Err: err}
		}
	}

	rec, err := deps.SessionStore.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return VerifyResult{Failure: VerifyFailureNoSession, Err: err, Claims: claims}
		}
		return VerifyResult{Failure: VerifyFailureStore, Err: err, Claims: claims}
	}

	if rec.Expired(deps.Now()) {
		return VerifyResult{Failure: VerifyFailureSessionExpired, Claims: claims, Record: rec}
	}
	if rec.Email != claims.Email {
		return VerifyResult{Failure: VerifyFailureEmailMismatch, Claims: claims, Record: rec}
	}

	stored := rec.AccessHash
	if expected == jwt.TypeRefresh {
		stored = rec.RefreshHash
	}
	if !stored.Matches(tokenStr) {
		return VerifyResult{Failure: VerifyFailureHashMismatch, Claims: claims, Record: rec}
	}

	return VerifyResult{Claims: claims, Record: rec}
}

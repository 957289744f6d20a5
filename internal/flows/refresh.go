package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureUserNotFound
	RefreshFailureUserLookup
	RefreshFailureSign
	RefreshFailureConflict
	RefreshFailureSessionNotFound
	RefreshFailureStore
)

// RefreshResult carries the rotated pair or failure metadata. Verify holds
// the verification outcome when Failure is RefreshFailureVerify. CleanupErr
// is set when the session of a missing user could not be deleted.
type RefreshResult struct {
	Failure       RefreshFailureKind
	Verify        VerifyResult
	Err           error
	CleanupErr    error
	UserID        string
	Subject       jwt.Subject
	AccessToken   string
	RefreshToken  string
	AccessClaims  *jwt.Claims
	RefreshClaims *jwt.Claims
	Record        *session.Record
}

type RefreshSessionStore interface {
	Rotate(ctx context.Context, rec *session.Record, expectedRefresh session.TokenHash) (*session.Record, error)
	Delete(ctx context.Context, userID string) (bool, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Verify       VerifyDeps
	LoadUser     func(ctx context.Context, userID string) (jwt.Subject, error)
	UserNotFound error
	IssueToken   func(jwt.Subject, jwt.TokenType) (string, *jwt.Claims, error)
	Now          func() time.Time
	SessionStore RefreshSessionStore
}

// RunRefresh verifies refreshToken, reloads the user and swaps the stored pair
// for a new one. The swap only succeeds while the store still holds the hash
// of refreshToken, so one of several concurrent refreshes wins.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	verified := RunVerify(ctx, refreshToken, jwt.TypeRefresh, deps.Verify)
	if verified.Failure != VerifyFailureNone {
		result := RefreshResult{Failure: RefreshFailureVerify, Verify: verified, Err: verified.Err}
		if verified.Claims != nil {
			result.UserID = verified.Claims.UserID
		}
		return result
	}
	userID := verified.Claims.UserID

	sub, err := deps.LoadUser(ctx, userID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			_, delErr := deps.SessionStore.Delete(ctx, userID)
			return RefreshResult{Failure: RefreshFailureUserNotFound, Err: err, CleanupErr: delErr, UserID: userID}
		}
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, UserID: userID}
	}
	sub.UserID = userID
	if sub.Email == "" {
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: errors.New("user record has no email"), UserID: userID}
	}

	access, accessClaims, refresh, refreshClaims, err := signPair(sub, deps.IssueToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSign, Err: err, UserID: userID}
	}

	next := &session.Record{
		UserID:      userID,
		Email:       sub.Email,
		AccessHash:  session.HashToken(access),
		RefreshHash: session.HashToken(refresh),
		ExpiresAt:   refreshClaims.ExpiresAtTime().UTC(),
		UpdatedAt:   deps.Now().UTC(),
	}
	stored, err := deps.SessionStore.Rotate(ctx, next, session.HashToken(refreshToken))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRotateConflict):
			return RefreshResult{Failure: RefreshFailureConflict, Err: err, UserID: userID}
		case errors.Is(err, session.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, UserID: userID}
		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID}
		}
	}

	return RefreshResult{
		UserID:        userID,
		Subject:       sub,
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
		Record:        stored,
	}
}

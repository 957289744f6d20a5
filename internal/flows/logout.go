package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goToken/jwt"
)

type LogoutSessionStore interface {
	Delete(ctx context.Context, userID string) (bool, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Verify       VerifyDeps
	SessionStore LogoutSessionStore
}

type LogoutByAccessResult struct {
	Verify  VerifyResult
	UserID  string
	Existed bool
	Err     error
}

// RunLogout deletes the user's session. Deleting an absent session succeeds.
func RunLogout(ctx context.Context, userID string, deps LogoutDeps) (bool, error) {
	if userID == "" {
		return false, errors.New("user id is required")
	}
	return deps.SessionStore.Delete(ctx, userID)
}

// RunLogoutByAccessToken verifies accessToken and deletes the session it belongs to.
func RunLogoutByAccessToken(ctx context.Context, accessToken string, deps LogoutDeps) LogoutByAccessResult {
	verified := RunVerify(ctx, accessToken, jwt.TypeAccess, deps.Verify)
	if verified.Failure != VerifyFailureNone {
		return LogoutByAccessResult{Verify: verified, Err: verified.Err}
	}

	userID := verified.Claims.UserID
	existed, err := deps.SessionStore.Delete(ctx, userID)
	return LogoutByAccessResult{
		Verify:  verified,
		UserID:  userID,
		Existed: existed,
		Err:     err,
	}
}

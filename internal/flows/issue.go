package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// IssueFailureKind classifies token generation failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidIdentity
	IssueFailureSign
	IssueFailureStore
)

// IssueResult carries a freshly stored pair or failure metadata.
type IssueResult struct {
	Failure       IssueFailureKind
	Err           error
	AccessToken   string
	RefreshToken  string
	AccessClaims  *jwt.Claims
	RefreshClaims *jwt.Claims
	Record        *session.Record
}

// IssueDeps captures generation dependencies. Persistence goes through the
// sync flow so there is one mutation point for unconditional writes.
type IssueDeps struct {
	IssueToken func(jwt.Subject, jwt.TokenType) (string, *jwt.Claims, error)
	Sync       SyncDeps
}

// RunIssue signs a new access/refresh pair for sub and persists it,
// replacing whatever session the user had.
func RunIssue(ctx context.Context, sub jwt.Subject, deps IssueDeps) IssueResult {
	if sub.UserID == "" || sub.Email == "" {
		return IssueResult{Failure: IssueFailureInvalidIdentity, Err: errors.New("user id and email are required")}
	}

	access, accessClaims, refresh, refreshClaims, err := signPair(sub, deps.IssueToken)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}

	synced := RunSync(ctx, SyncInput{
		UserID:       sub.UserID,
		Email:        sub.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    refreshClaims.ExpiresAtTime(),
	}, deps.Sync)
	switch synced.Failure {
	case SyncFailureNone:
	case SyncFailureInvalidInput:
		return IssueResult{Failure: IssueFailureInvalidIdentity, Err: synced.Err}
	default:
		return IssueResult{Failure: IssueFailureStore, Err: synced.Err}
	}

	return IssueResult{
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
		Record:        synced.Record,
	}
}

func signPair(
	sub jwt.Subject,
	issue func(jwt.Subject, jwt.TokenType) (string, *jwt.Claims, error),
) (string, *jwt.Claims, string, *jwt.Claims, error) {
	access, accessClaims, err := issue(sub, jwt.TypeAccess)
	if err != nil {
		return "", nil, "", nil, err
	}
	refresh, refreshClaims, err := issue(sub, jwt.TypeRefresh)
	if err != nil {
		return "", nil, "", nil, err
	}
	return access, accessClaims, refresh, refreshClaims, nil
}

package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
)

// Service is the flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.ParseToken != nil && s.deps.Verify.SessionStore != nil
}

func (s Service) Issue(ctx context.Context, sub jwt.Subject) IssueResult {
	return RunIssue(ctx, sub, s.deps.Issue)
}

func (s Service) Sync(ctx context.Context, in SyncInput) SyncResult {
	return RunSync(ctx, in, s.deps.Issue.Sync)
}

func (s Service) Verify(ctx context.Context, token string, expected jwt.TokenType) VerifyResult {
	return RunVerify(ctx, token, expected, s.deps.Verify)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, userID string) (bool, error) {
	return RunLogout(ctx, userID, s.deps.Logout)
}

func (s Service) LogoutByAccessToken(ctx context.Context, accessToken string) LogoutByAccessResult {
	return RunLogoutByAccessToken(ctx, accessToken, s.deps.Logout)
}

func (s Service) SessionInfo(ctx context.Context, userID string) (SessionInfoResult, error) {
	return RunGetSessionInfo(ctx, userID, s.deps.Introspection)
}

func (s Service) Health(ctx context.Context) HealthResult {
	return RunHealth(ctx, s.deps.Introspection)
}

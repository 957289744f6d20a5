package goToken

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
	"go.uber.org/zap"
)

// Engine issues, verifies, rotates and revokes access/refresh token pairs.
// Each user has at most one live pair, recorded by hash in a [session.Store].
//
// Engine is immutable after Build and safe for concurrent use.
type Engine struct {
	config       Config
	sessionStore session.Store
	jwtManager   *jwt.Manager
	userProvider UserProvider
	logger       *zap.Logger
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	flows        flows.Service
	now          func() time.Time
}

// Close flushes pending audit events and stops the dispatcher. The session
// store is owned by the caller and is not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters. It is empty when
// metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.jwtManager != nil && e.flows.Initialized()
}

// GenerateTokens signs a new access/refresh pair for id and stores it as the
// user's only session, replacing any previous pair.
//
// Empty UserID or Email fails with ErrInvalidIdentity. Store failures are
// returned wrapped, so errors.Is(err, ErrStoreUnavailable) holds for outages.
func (e *Engine) GenerateTokens(ctx context.Context, id Identity) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	result := e.flows.Issue(ctx, jwt.Subject{
		UserID:  id.UserID,
		Email:   id.Email,
		Roles:   id.Roles,
		Groups:  id.Groups,
		Domains: id.Domains,
	})

	var err error
	switch result.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureInvalidIdentity:
		err = fmt.Errorf("%w: %v", ErrInvalidIdentity, result.Err)
	case flows.IssueFailureStore:
		e.metricInc(MetricStoreFailure)
		e.logger.Warn("session upsert failed", zap.String("user_id", id.UserID), zap.Error(result.Err))
		err = fmt.Errorf("store session: %w", result.Err)
	default:
		err = fmt.Errorf("sign token pair: %w", result.Err)
	}
	if err != nil {
		e.emitAudit(ctx, auditEventTokensIssued, false, id.UserID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricTokensIssued)
	e.emitAudit(ctx, auditEventTokensIssued, true, id.UserID, "", nil, func() map[string]string {
		return map[string]string{"version": strconv.FormatInt(result.Record.Version, 10)}
	})

	return e.tokenPair(result.AccessToken, result.RefreshToken, result.RefreshClaims), nil
}

func (e *Engine) tokenPair(access, refresh string, refreshClaims *jwt.Claims) *TokenPair {
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(e.jwtManager.AccessTTL() / time.Second),
		TokenType:        "Bearer",
		RefreshExpiresAt: refreshClaims.ExpiresAtTime().UTC(),
	}
}

// VerifyToken checks token locally (signature, expiry, type) and then
// confirms it is still the pair recorded for its user. Claims are returned
// only when both phases pass.
//
// Every failure is an *AuthError. A session store error also rejects the
// token; the store error stays reachable through errors.Is.
func (e *Engine) VerifyToken(ctx context.Context, token string, expected jwt.TokenType) (*jwt.Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !expected.Valid() {
		return nil, fmt.Errorf("unknown token type %q", expected)
	}

	start := time.Now()
	result := e.flows.Verify(ctx, token, expected)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	if result.Failure != flows.VerifyFailureNone {
		err := e.verifyError(result)
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, claimsUserID(result.Claims), string(expected), err, nil)
		return nil, err
	}

	e.metricInc(MetricVerifySuccess)
	return result.Claims, nil
}

// verifyError maps a failed verification to an *AuthError and records the
// backend-phase metrics and logs.
func (e *Engine) verifyError(result flows.VerifyResult) *AuthError {
	if result.BackendPhase() {
		e.metricInc(MetricVerifyBackendMismatch)
	}

	var authErr *AuthError
	switch result.Failure {
	case flows.VerifyFailureMalformed:
		authErr = newAuthError(KindMalformedClaims, "malformed token", result.Err)
	case flows.VerifyFailureTypeMismatch:
		authErr = newAuthError(KindInvalidOrExpired, "wrong token type", result.Err)
	case flows.VerifyFailureNoSession:
		authErr = newAuthError(KindInvalidOrExpired, "no active session", result.Err)
	case flows.VerifyFailureEmailMismatch:
		authErr = newAuthError(KindInvalidOrExpired, "session identity mismatch", result.Err)
	case flows.VerifyFailureHashMismatch:
		authErr = newAuthError(KindInvalidOrExpired, "token superseded or revoked", result.Err)
	case flows.VerifyFailureSessionExpired:
		authErr = newAuthError(KindInvalidOrExpired, "session expired", result.Err)
	case flows.VerifyFailureStore:
		e.metricInc(MetricStoreFailure)
		e.logger.Warn("session lookup failed", zap.String("user_id", claimsUserID(result.Claims)), zap.Error(result.Err))
		authErr = newAuthError(KindInvalidOrExpired, "session store unavailable", result.Err)
	default:
		authErr = newAuthError(KindInvalidOrExpired, "token invalid or expired", result.Err)
	}

	if result.Failure != flows.VerifyFailureStore {
		e.logger.Debug("token rejected",
			zap.String("reason", authErr.Reason),
			zap.String("user_id", claimsUserID(result.Claims)),
		)
	}
	return authErr
}

// RefreshAccessToken exchanges a valid refresh token for a new pair. The user
// is re-read so role, group and domain changes take effect, and the stored
// record is replaced only while it still holds refreshToken. Of several
// concurrent refreshes with one token exactly one succeeds.
//
// A user that no longer exists yields a 404 *AuthError of KindUserNotFound and
// the orphaned session is removed.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	result := e.flows.Refresh(ctx, refreshToken)
	if result.Failure != flows.RefreshFailureNone {
		err := e.refreshError(result)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, result.UserID, string(jwt.TypeRefresh), err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventTokensRefreshed, true, result.UserID, string(jwt.TypeRefresh), nil, func() map[string]string {
		return map[string]string{"version": strconv.FormatInt(result.Record.Version, 10)}
	})

	return &RefreshResult{
		TokenPair: *e.tokenPair(result.AccessToken, result.RefreshToken, result.RefreshClaims),
		UserID:    result.UserID,
		Email:     result.Subject.Email,
		Roles:     result.AccessClaims.Roles,
		Groups:    result.AccessClaims.Groups,
		Domains:   result.AccessClaims.Domains,
	}, nil
}

func (e *Engine) refreshError(result flows.RefreshResult) error {
	switch result.Failure {
	case flows.RefreshFailureVerify:
		e.metricInc(MetricVerifyFailure)
		return e.verifyError(result.Verify)
	case flows.RefreshFailureUserNotFound:
		e.metricInc(MetricRefreshUserMissing)
		if result.CleanupErr != nil {
			e.metricInc(MetricStoreFailure)
			e.logger.Warn("delete session of missing user failed", zap.String("user_id", result.UserID), zap.Error(result.CleanupErr))
			return newAuthError(KindUserNotFound, "user no longer exists", errors.Join(result.Err, result.CleanupErr))
		}
		e.logger.Info("session revoked for missing user", zap.String("user_id", result.UserID))
		return newAuthError(KindUserNotFound, "user no longer exists", result.Err)
	case flows.RefreshFailureConflict:
		e.metricInc(MetricRefreshConflict)
		e.logger.Debug("refresh lost rotation", zap.String("user_id", result.UserID))
		return newAuthError(KindInvalidOrExpired, "refresh token already used", result.Err)
	case flows.RefreshFailureSessionNotFound:
		return newAuthError(KindInvalidOrExpired, "no active session", result.Err)
	case flows.RefreshFailureStore:
		e.metricInc(MetricStoreFailure)
		e.logger.Warn("session rotate failed", zap.String("user_id", result.UserID), zap.Error(result.Err))
		return fmt.Errorf("rotate session: %w", result.Err)
	case flows.RefreshFailureUserLookup:
		return fmt.Errorf("load user: %w", result.Err)
	default:
		return fmt.Errorf("sign token pair: %w", result.Err)
	}
}

// SyncAccessToken records accessToken and refreshToken as the current pair of
// userID, inserting or replacing the record. Calling it twice with the same
// arguments leaves one record holding them. The expiry comes from the refresh
// token's exp claim, or now plus the refresh TTL when it cannot be read.
func (e *Engine) SyncAccessToken(ctx context.Context, userID, email, accessToken, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	result := e.flows.Sync(ctx, flows.SyncInput{
		UserID:       userID,
		Email:        email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})

	var err error
	switch result.Failure {
	case flows.SyncFailureNone:
	case flows.SyncFailureInvalidInput:
		err = fmt.Errorf("%w: %v", ErrInvalidIdentity, result.Err)
	default:
		e.metricInc(MetricStoreFailure)
		e.logger.Warn("session upsert failed", zap.String("user_id", userID), zap.Error(result.Err))
		err = fmt.Errorf("store session: %w", result.Err)
	}

	e.emitAudit(ctx, auditEventTokensSynced, err == nil, userID, "", err, nil)
	return err
}

// DecodeTokenUnsafe returns the claims of token WITHOUT verifying its
// signature, expiry or session. It never fails: undecodable input yields an
// empty map. Use it for diagnostics only, never for authorization.
func (e *Engine) DecodeTokenUnsafe(token string) jwt.Introspection {
	return jwt.DecodeUnverified(token)
}

// Logout deletes the session of userID. Deleting an absent session succeeds.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidIdentity)
	}

	existed, err := e.flows.Logout(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			e.metricInc(MetricStoreFailure)
		}
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, "", err, nil)
		return fmt.Errorf("delete session: %w", err)
	}

	e.recordRevocation(ctx, userID, existed)
	return nil
}

// LogoutByAccessToken verifies accessToken and deletes its user's session.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	result := e.flows.LogoutByAccessToken(ctx, accessToken)
	if result.Verify.Failure != flows.VerifyFailureNone {
		err := e.verifyError(result.Verify)
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, claimsUserID(result.Verify.Claims), string(jwt.TypeAccess), err, nil)
		return err
	}
	if result.Err != nil {
		e.metricInc(MetricStoreFailure)
		e.emitAudit(ctx, auditEventSessionRevoked, false, result.UserID, string(jwt.TypeAccess), result.Err, nil)
		return fmt.Errorf("delete session: %w", result.Err)
	}

	e.recordRevocation(ctx, result.UserID, result.Existed)
	return nil
}

func (e *Engine) recordRevocation(ctx context.Context, userID string, existed bool) {
	e.metricInc(MetricLogout)
	e.logger.Info("session revoked", zap.String("user_id", userID), zap.Bool("existed", existed))
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"existed": strconv.FormatBool(existed)}
	})
}

// GetSessionInfo returns a read-only view of the stored session of userID.
// It returns ErrSessionNotFound when there is none.
func (e *Engine) GetSessionInfo(ctx context.Context, userID string) (*SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	result, err := e.flows.SessionInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec := result.Record
	return &SessionInfo{
		UserID:    rec.UserID,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		ExpiresAt: rec.ExpiresAt,
		Version:   rec.Version,
		Active:    result.Active,
	}, nil
}

// Health pings the session store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}
	result := e.flows.Health(ctx)
	if result.Err != nil {
		e.logger.Warn("session store ping failed", zap.Error(result.Err))
	}
	return HealthStatus{Available: result.Available, Latency: result.Latency}
}

func claimsUserID(claims *jwt.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}

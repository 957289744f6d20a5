package goToken

import (
	"context"
	"errors"
)

const (
	auditEventTokensIssued    = "tokens_issued"
	auditEventTokensSynced    = "tokens_synced"
	auditEventTokenRejected   = "token_rejected"
	auditEventTokensRefreshed = "tokens_refreshed"
	auditEventRefreshRejected = "refresh_rejected"
	auditEventSessionRevoked  = "session_revoked"
)

// AuditErrorCode is the stable error vocabulary written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrMalformedClaims AuditErrorCode = "malformed_claims"
	auditErrUserNotFound    AuditErrorCode = "user_not_found"
	auditErrInvalidIdentity AuditErrorCode = "invalid_identity"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tokenType string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TokenType: tokenType,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	// Store outages surface as 401s on the verify path; report the cause.
	switch {
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	case errors.Is(err, ErrMalformedClaims):
		return auditErrMalformedClaims
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidOrExpiredToken), errors.Is(err, ErrSessionNotFound):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidIdentity):
		return auditErrInvalidIdentity
	default:
		return auditErrInternal
	}
}

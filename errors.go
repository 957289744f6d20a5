package goToken

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goToken/session"
)

// ErrorKind classifies an [AuthError].
type ErrorKind int

const (
	// KindInvalidOrExpired covers bad signatures, elapsed expiry, wrong token
	// type, and any backend mismatch or outage.
	KindInvalidOrExpired ErrorKind = iota + 1
	// KindMalformedClaims covers undecodable tokens and claims missing uid, email or type.
	KindMalformedClaims
	// KindUserNotFound is returned by refresh when the token's user no longer exists.
	KindUserNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidOrExpired:
		return "invalid_or_expired_token"
	case KindMalformedClaims:
		return "malformed_claims"
	case KindUserNotFound:
		return "user_not_found"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidOrExpiredToken matches every *AuthError of KindInvalidOrExpired.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrMalformedClaims matches every *AuthError of KindMalformedClaims.
	ErrMalformedClaims = errors.New("malformed token claims")
	// ErrUserNotFound matches every *AuthError of KindUserNotFound. UserProvider
	// implementations return it to signal a missing user.
	ErrUserNotFound = errors.New("user not found")

	ErrInvalidIdentity  = errors.New("invalid identity: user id and email are required")
	ErrSessionNotFound  = errors.New("session not found")
	ErrEngineNotReady   = errors.New("engine not initialized")
	ErrStoreUnavailable = session.ErrStoreUnavailable
)

// AuthError is the typed failure returned by verification and refresh.
// Status is the HTTP status a server should answer with.
type AuthError struct {
	Kind   ErrorKind
	Status int
	Reason string
	Err    error
}

func newAuthError(kind ErrorKind, reason string, err error) *AuthError {
	status := http.StatusUnauthorized
	if kind == KindUserNotFound {
		status = http.StatusNotFound
	}
	return &AuthError{Kind: kind, Status: status, Reason: reason, Err: err}
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %s", e.sentinel(), e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches the kind sentinels so callers can write errors.Is(err, ErrUserNotFound).
func (e *AuthError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *AuthError) sentinel() error {
	switch e.Kind {
	case KindMalformedClaims:
		return ErrMalformedClaims
	case KindUserNotFound:
		return ErrUserNotFound
	default:
		return ErrInvalidOrExpiredToken
	}
}

// Challenge returns the WWW-Authenticate value for 401 errors and "" otherwise.
func (e *AuthError) Challenge() string {
	if e.Status != http.StatusUnauthorized {
		return ""
	}
	return fmt.Sprintf(`Bearer error="invalid_token", error_description=%q`, e.Reason)
}

// StatusCode maps err to the HTTP status a server should answer with.
func StatusCode(err error) int {
	var authErr *AuthError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &authErr):
		return authErr.Status
	case errors.Is(err, ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the ErrorKind of the first *AuthError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}

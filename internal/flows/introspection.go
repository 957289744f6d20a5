package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/session"
)

type IntrospectionSessionStore interface {
	Get(ctx context.Context, userID string) (*session.Record, error)
	Ping(ctx context.Context) (time.Duration, error)
}

type IntrospectionDeps struct {
	SessionStore       IntrospectionSessionStore
	Now                func() time.Time
	EngineNotReadyErr  error
	SessionNotFoundErr error
}

// SessionInfoResult is a read-only view of a stored record.
type SessionInfoResult struct {
	Record *session.Record
	Active bool
}

func RunGetSessionInfo(ctx context.Context, userID string, deps IntrospectionDeps) (SessionInfoResult, error) {
	if deps.SessionStore == nil {
		return SessionInfoResult{}, deps.EngineNotReadyErr
	}
	if userID == "" {
		return SessionInfoResult{}, deps.SessionNotFoundErr
	}

	rec, err := deps.SessionStore.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return SessionInfoResult{}, deps.SessionNotFoundErr
		}
		return SessionInfoResult{}, err
	}
	return SessionInfoResult{Record: rec, Active: !rec.Expired(deps.Now())}, nil
}

// HealthResult reports store reachability.
type HealthResult struct {
	Available bool
	Latency   time.Duration
	Err       error
}

func RunHealth(ctx context.Context, deps IntrospectionDeps) HealthResult {
	if deps.SessionStore == nil {
		return HealthResult{Err: deps.EngineNotReadyErr}
	}
	latency, err := deps.SessionStore.Ping(ctx)
	return HealthResult{Available: err == nil, Latency: latency, Err: err}
}

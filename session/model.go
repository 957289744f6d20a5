package session

import (
	"errors"
	"time"
)

const maxIdentifierLength = 255

// Record is the single persisted "current session" of one user. It holds
// hashes of the live access/refresh pair, never the raw tokens.
//
// Records are always written whole. CreatedAt survives replacement;
// UpdatedAt and Version advance on every write.
type Record struct {
	UserID      string
	Email       string
	AccessHash  TokenHash
	RefreshHash TokenHash

	// ExpiresAt is the refresh-token expiry and the outer bound of the session.
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Expired reports whether the session's outer bound has passed at now.
func (r *Record) Expired(now time.Time) bool {
	return r == nil || !now.Before(r.ExpiresAt)
}

// Validate checks the fields every store requires before a write.
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("nil session record")
	}
	if r.UserID == "" || len(r.UserID) > maxIdentifierLength {
		return errors.Join(ErrInvalidRecord, errors.New("user id empty or too long"))
	}
	if r.Email == "" || len(r.Email) > maxIdentifierLength {
		return errors.Join(ErrInvalidRecord, errors.New("email empty or too long"))
	}
	if r.ExpiresAt.IsZero() {
		return errors.Join(ErrInvalidRecord, errors.New("missing expiry"))
	}
	if r.AccessHash.IsZero() || r.RefreshHash.IsZero() {
		return errors.Join(ErrInvalidRecord, errors.New("missing token hash"))
	}
	return nil
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the user.
	ErrNotFound = errors.New("session record not found")

	// ErrStoreUnavailable wraps every backend I/O failure. Callers on the
	// verification path must treat it as a rejection, never as success.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrRotateConflict is returned by Rotate when the stored refresh hash no
	// longer matches the presented one: another refresh, a new login, or a
	// logout won the race.
	ErrRotateConflict = errors.New("session record rotated concurrently")

	// ErrRecordCorrupt is returned when a stored record cannot be decoded.
	ErrRecordCorrupt = errors.New("session record corrupt")

	// ErrInvalidRecord is returned when a record fails Validate before a write.
	ErrInvalidRecord = errors.New("invalid session record")
)

// minTTL bounds the backend expiry of records written with an already
// elapsed ExpiresAt so they still age out promptly.
const minTTL = time.Second

// Store persists at most one Record per user id.
//
// Upsert and Rotate are single atomic operations on the backend: a reader
// never observes an access hash from one pair next to a refresh hash from
// another.
type Store interface {
	// Get returns the current record, or ErrNotFound.
	Get(ctx context.Context, userID string) (*Record, error)

	// Upsert inserts rec or replaces the existing record for rec.UserID.
	// rec.UpdatedAt is the write time; the returned record carries the
	// preserved CreatedAt and the new Version.
	Upsert(ctx context.Context, rec *Record) (*Record, error)

	// Rotate replaces the record for rec.UserID only while its refresh hash
	// still equals expectedRefresh. It returns ErrNotFound when no record
	// exists and ErrRotateConflict when the hash differs.
	Rotate(ctx context.Context, rec *Record, expectedRefresh TokenHash) (*Record, error)

	// Delete removes the record. It reports whether one existed; deleting an
	// absent record is not an error.
	Delete(ctx context.Context, userID string) (bool, error)

	// Ping checks backend reachability and returns the round-trip latency.
	Ping(ctx context.Context) (time.Duration, error)
}

func ttlUntil(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

func writeTime(rec *Record) time.Time {
	if rec.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return rec.UpdatedAt.UTC()
}

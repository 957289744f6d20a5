package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgQuerier is the subset of *pgxpool.Pool used by PostgresStore.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore keeps one row per user in the token_sessions table created by
// the embedded migrations.
type PostgresStore struct {
	pool pgQuerier
}

// NewPostgresStore wraps an existing pool. Run [Migrate] before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgresPool parses dsn and opens a pgx pool.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MinConns = 0
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return pool, nil
}

const pgSelectRecord = `
SELECT user_id, email, access_hash, refresh_hash, expires_at, created_at, updated_at, version
FROM token_sessions
WHERE user_id = $1`

const pgUpsertRecord = `
INSERT INTO token_sessions (user_id, email, access_hash, refresh_hash, expires_at, created_at, updated_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $6, 1)
ON CONFLICT (user_id) DO UPDATE SET
	email = EXCLUDED.email,
	access_hash = EXCLUDED.access_hash,
	refresh_hash = EXCLUDED.refresh_hash,
	expires_at = EXCLUDED.expires_at,
	updated_at = EXCLUDED.updated_at,
	version = token_sessions.version + 1
RETURNING created_at, version`

const pgRotateRecord = `
UPDATE token_sessions SET
	email = $2,
	access_hash = $3,
	refresh_hash = $4,
	expires_at = $5,
	updated_at = $6,
	version = version + 1
WHERE user_id = $1 AND refresh_hash = $7
RETURNING created_at, version`

// Get loads the record for userID. Rows past expires_at are returned until
// PurgeExpired removes them.
//
//	Performance: 1 indexed SELECT.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Record, error) {
	var (
		rec             Record
		access, refresh []byte
	)
	err := s.pool.QueryRow(ctx, pgSelectRecord, userID).Scan(
		&rec.UserID,
		&rec.Email,
		&access,
		&refresh,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rec.AccessHash, err = tokenHashFromBytes(access); err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	if rec.RefreshHash, err = tokenHashFromBytes(refresh); err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// Upsert writes rec with INSERT ... ON CONFLICT so concurrent writers never
// produce a second row.
func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	now := writeTime(rec)

	out := rec.clone()
	err := s.pool.QueryRow(ctx, pgUpsertRecord,
		rec.UserID,
		rec.Email,
		rec.AccessHash[:],
		rec.RefreshHash[:],
		rec.ExpiresAt.UTC(),
		now,
	).Scan(&out.CreatedAt, &out.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = now
	return out, nil
}

// Rotate updates the row only while refresh_hash still equals expectedRefresh.
func (s *PostgresStore) Rotate(ctx context.Context, rec *Record, expectedRefresh TokenHash) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	now := writeTime(rec)

	out := rec.clone()
	err := s.pool.QueryRow(ctx, pgRotateRecord,
		rec.UserID,
		rec.Email,
		rec.AccessHash[:],
		rec.RefreshHash[:],
		rec.ExpiresAt.UTC(),
		now,
		expectedRefresh[:],
	).Scan(&out.CreatedAt, &out.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.rotateMissReason(ctx, rec.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = now
	return out, nil
}

func (s *PostgresStore) rotateMissReason(ctx context.Context, userID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM token_sessions WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrRotateConflict
}

// Delete removes the row for userID.
func (s *PostgresStore) Delete(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM token_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeExpired deletes rows whose expires_at is before now and returns how
// many were removed. Postgres has no native row TTL, so servers call this
// periodically.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM token_sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks Postgres reachability.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound = "0"
	rotateStatusMismatch = "1"
	rotateStatusRotated  = "2"
)

// writeRecordLua replaces the hash at KEYS[1] in one step, carrying
// created_at over from the previous record and bumping version.
//
// ARGV: user_id, email, access_hash, refresh_hash, expires_at_ms, now_ms, ttl_ms
const writeRecordLua = `
local created = redis.call("HGET", KEYS[1], "created_at")
if not created then
  created = ARGV[6]
end
local version = tonumber(redis.call("HGET", KEYS[1], "version") or "0") + 1
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "user_id", ARGV[1],
  "email", ARGV[2],
  "access_hash", ARGV[3],
  "refresh_hash", ARGV[4],
  "expires_at", ARGV[5],
  "created_at", created,
  "updated_at", ARGV[6],
  "version", tostring(version))
redis.call("PEXPIRE", KEYS[1], ARGV[7])
`

const upsertScript = writeRecordLua + `
return {created, tostring(version)}
`

// ARGV[8] is the refresh hash the caller presented.
const rotateScript = `
local current = redis.call("HGET", KEYS[1], "refresh_hash")
if not current then
  return {"0"}
end
if current ~= ARGV[8] then
  return {"1"}
end
` + writeRecordLua + `
return {"2", created, tostring(version)}
`

var (
	upsertLua = redis.NewScript(upsertScript)
	rotateLua = redis.NewScript(rotateScript)
)

// RedisStore keeps each record in a Redis hash under prefix:userID with a TTL
// matching the record's ExpiresAt. Writes run as Lua scripts so replacement
// is atomic.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "gts".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gts"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Get loads the record for userID.
//
//	Performance: 1 Redis HGETALL.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Record, error) {
	values, err := s.redis.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisRecord(values)
}

// Upsert writes rec, replacing any previous record for the user.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	now := writeTime(rec)

	result, err := upsertLua.Run(ctx, s.redis, []string{s.key(rec.UserID)}, s.writeArgs(rec, now)...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	parts, err := scriptParts(result, 2)
	if err != nil {
		return nil, err
	}
	return applyWriteResult(rec, now, parts[0], parts[1])
}

// Rotate replaces the record only while it still holds expectedRefresh.
//
//	Performance: 1 Lua EVALSHA (compare-and-replace).
func (s *RedisStore) Rotate(ctx context.Context, rec *Record, expectedRefresh TokenHash) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	now := writeTime(rec)

	args := append(s.writeArgs(rec, now), expectedRefresh.String())
	result, err := rotateLua.Run(ctx, s.redis, []string{s.key(rec.UserID)}, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	parts, err := scriptParts(result, 1)
	if err != nil {
		return nil, err
	}

	switch parts[0] {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusMismatch:
		return nil, ErrRotateConflict
	case rotateStatusRotated:
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: short rotate script response", ErrStoreUnavailable)
		}
		return applyWriteResult(rec, now, parts[1], parts[2])
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status %q", ErrStoreUnavailable, parts[0])
	}
}

// Delete removes the record for userID.
//
//	Performance: 1 Redis DEL.
func (s *RedisStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) writeArgs(rec *Record, now time.Time) []interface{} {
	return []interface{}{
		rec.UserID,
		rec.Email,
		rec.AccessHash.String(),
		rec.RefreshHash.String(),
		rec.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		ttlUntil(rec.ExpiresAt, now).Milliseconds(),
	}
}

func scriptParts(result interface{}, min int) ([]string, error) {
	raw, ok := result.([]interface{})
	if !ok || len(raw) < min {
		return nil, fmt.Errorf("%w: invalid script response", ErrStoreUnavailable)
	}
	parts := make([]string, len(raw))
	for i, v := range raw {
		switch tv := v.(type) {
		case string:
			parts[i] = tv
		case int64:
			parts[i] = strconv.FormatInt(tv, 10)
		default:
			return nil, fmt.Errorf("%w: invalid script response element %T", ErrStoreUnavailable, v)
		}
	}
	return parts, nil
}

func applyWriteResult(rec *Record, now time.Time, createdMS, version string) (*Record, error) {
	created, err := strconv.ParseInt(createdMS, 10, 64)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	v, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}

	out := rec.clone()
	out.ExpiresAt = time.UnixMilli(rec.ExpiresAt.UnixMilli()).UTC()
	out.CreatedAt = time.UnixMilli(created).UTC()
	out.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	out.Version = v
	return out, nil
}

func decodeRedisRecord(values map[string]string) (*Record, error) {
	rec := &Record{
		UserID: values["user_id"],
		Email:  values["email"],
	}

	var err error
	if rec.AccessHash, err = ParseTokenHash(values["access_hash"]); err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	if rec.RefreshHash, err = ParseTokenHash(values["refresh_hash"]); err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}

	times := []struct {
		field string
		dst   *time.Time
	}{
		{"expires_at", &rec.ExpiresAt},
		{"created_at", &rec.CreatedAt},
		{"updated_at", &rec.UpdatedAt},
	}
	for _, ts := range times {
		ms, parseErr := strconv.ParseInt(values[ts.field], 10, 64)
		if parseErr != nil {
			return nil, errors.Join(ErrRecordCorrupt, fmt.Errorf("field %s: %w", ts.field, parseErr))
		}
		*ts.dst = time.UnixMilli(ms).UTC()
	}

	if rec.Version, err = strconv.ParseInt(values["version"], 10, 64); err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	if rec.UserID == "" {
		return nil, ErrRecordCorrupt
	}
	return rec, nil
}

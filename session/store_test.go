package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testRecord(userID string, access, refresh string, now time.Time) *Record {
	return &Record{
		UserID:      userID,
		Email:       userID + "@example.com",
		AccessHash:  HashToken(access),
		RefreshHash: HashToken(refresh),
		ExpiresAt:   now.Add(time.Hour),
		UpdatedAt:   now,
	}
}

// runStoreConformance exercises the Store contract shared by every backend.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("upsert keeps one record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		first, err := store.Upsert(ctx, testRecord("u1", "a1", "r1", now))
		if err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		if first.Version != 1 {
			t.Fatalf("first version = %d", first.Version)
		}

		second, err := store.Upsert(ctx, testRecord("u1", "a2", "r2", now.Add(time.Second)))
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if second.Version != 2 {
			t.Fatalf("second version = %d", second.Version)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Fatalf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
		}

		got, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.AccessHash.Matches("a2") || !got.RefreshHash.Matches("r2") {
			t.Fatal("expected latest hashes to be stored")
		}
		if got.AccessHash.Matches("a1") {
			t.Fatal("old access hash still present")
		}
		if got.Email != "u1@example.com" || got.Version != 2 {
			t.Fatalf("unexpected record: %+v", got)
		}
	})

	t.Run("upsert same pair is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		for i := 0; i < 3; i++ {
			if _, err := store.Upsert(ctx, testRecord("u1", "a", "r", now)); err != nil {
				t.Fatalf("upsert %d: %v", i, err)
			}
		}
		got, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.AccessHash.Matches("a") || !got.RefreshHash.Matches("r") {
			t.Fatal("unexpected hashes after repeated upsert")
		}
	})

	t.Run("rotate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		if _, err := store.Rotate(ctx, testRecord("u1", "a2", "r2", now), HashToken("r1")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("rotate missing: expected ErrNotFound, got %v", err)
		}
		if _, err := store.Upsert(ctx, testRecord("u1", "a1", "r1", now)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		rotated, err := store.Rotate(ctx, testRecord("u1", "a2", "r2", now), HashToken("r1"))
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		if rotated.Version != 2 {
			t.Fatalf("rotated version = %d", rotated.Version)
		}
		if _, err := store.Rotate(ctx, testRecord("u1", "a3", "r3", now), HashToken("r1")); !errors.Is(err, ErrRotateConflict) {
			t.Fatalf("stale rotate: expected ErrRotateConflict, got %v", err)
		}
		got, _ := store.Get(ctx, "u1")
		if got == nil || !got.RefreshHash.Matches("r2") {
			t.Fatal("stale rotate must not overwrite the record")
		}
	})

	t.Run("rotate single winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		if _, err := store.Upsert(ctx, testRecord("u1", "a0", "r0", now)); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		const n = 16
		var wg sync.WaitGroup
		results := make(chan error, n)
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(i int) {
				defer wg.Done()
				next := testRecord("u1", "a-next", "r-next-"+string(rune('a'+i)), now)
				_, err := store.Rotate(ctx, next, HashToken("r0"))
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		success := 0
		for err := range results {
			if err == nil {
				success++
				continue
			}
			if !errors.Is(err, ErrRotateConflict) {
				t.Fatalf("unexpected rotate error: %v", err)
			}
		}
		if success != 1 {
			t.Fatalf("expected exactly one rotate winner, got %d", success)
		}
	})

	t.Run("get returns expired record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		rec := testRecord("u1", "a", "r", now)
		rec.ExpiresAt = now.Add(-time.Minute)
		if _, err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		got, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.Expired(now) {
			t.Fatalf("expected an expired record, expires_at=%v", got.ExpiresAt)
		}
		if !got.ExpiresAt.Equal(rec.ExpiresAt) {
			t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, rec.ExpiresAt)
		}
	})

	t.Run("delete idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if _, err := store.Upsert(ctx, testRecord("u1", "a", "r", time.Now().UTC())); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		existed, err := store.Delete(ctx, "u1")
		if err != nil || !existed {
			t.Fatalf("first delete: existed=%v err=%v", existed, err)
		}
		existed, err = store.Delete(ctx, "u1")
		if err != nil || existed {
			t.Fatalf("second delete: existed=%v err=%v", existed, err)
		}
		if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("invalid record", func(t *testing.T) {
		store := newStore(t)
		rec := testRecord("u1", "a", "r", time.Now())
		rec.Email = ""
		if _, err := store.Upsert(context.Background(), rec); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("expected ErrInvalidRecord, got %v", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}

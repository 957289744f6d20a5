package goToken

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goToken/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]UserRecord
	calls int
}

func newFakeUsers(users ...UserRecord) *fakeUsers {
	f := &fakeUsers{users: map[string]UserRecord{}}
	for _, u := range users {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	u, ok := f.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) put(u UserRecord) {
	f.mu.Lock()
	f.users[u.UserID] = u
	f.mu.Unlock()
}

func (f *fakeUsers) remove(userID string) {
	f.mu.Lock()
	delete(f.users, userID)
	f.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	return cfg
}

func aliceRecord() UserRecord {
	return UserRecord{UserID: "u1", Email: "a@b.com", Roles: []string{"user"}}
}

func aliceIdentity() Identity {
	return Identity{UserID: "u1", Email: "a@b.com", Roles: []string{"user"}}
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	users  *fakeUsers
}

func newTestEnv(t *testing.T, mutate func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &testEnv{
		mr:    mr,
		rdb:   rdb,
		clock: newTestClock(),
		users: newFakeUsers(aliceRecord()),
	}

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserProvider(env.users).
		WithClock(env.clock.Now)
	if mutate != nil {
		mutate(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// deleteFailingStore passes everything but Delete through to the wrapped store.
type deleteFailingStore struct {
	session.Store
}

func (s deleteFailingStore) Delete(context.Context, string) (bool, error) {
	return false, fmt.Errorf("%w: connection reset", session.ErrStoreUnavailable)
}

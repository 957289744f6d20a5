package goToken

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.GenerateTokens(ctx, Identity{
		UserID:  "u1",
		Email:   "a@b.com",
		Roles:   []string{"user", "admin"},
		Groups:  []string{"ops"},
		Domains: []string{"example.com"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != int64((15*time.Minute)/time.Second) {
		t.Fatalf("unexpected pair metadata: %+v", pair)
	}
	if !pair.RefreshExpiresAt.Equal(env.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("refresh expiry = %v", pair.RefreshExpiresAt)
	}

	claims, err := env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "a@b.com" {
		t.Fatalf("unexpected identity: %+v", claims)
	}
	if !reflect.DeepEqual(claims.Roles, []string{"user", "admin"}) {
		t.Fatalf("roles = %v", claims.Roles)
	}
	if !reflect.DeepEqual(claims.Groups, []string{"ops"}) || !reflect.DeepEqual(claims.Domains, []string{"example.com"}) {
		t.Fatalf("groups/domains = %v / %v", claims.Groups, claims.Domains)
	}

	if _, err := env.engine.VerifyToken(ctx, pair.RefreshToken, jwt.TypeRefresh); err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
}

func TestWalkthroughSingleUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.GenerateTokens(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "a@b.com" || !reflect.DeepEqual(claims.Roles, []string{"user"}) {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	env.clock.Advance(time.Minute)
	refreshed, err := env.engine.RefreshAccessToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.UserID != "u1" || refreshed.Email != "a@b.com" || !reflect.DeepEqual(refreshed.Roles, []string{"user"}) {
		t.Fatalf("unexpected refresh result: %+v", refreshed)
	}

	if _, err := env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected old access token to be rejected, got %v", err)
	}
	if _, err := env.engine.VerifyToken(ctx, refreshed.AccessToken, jwt.TypeAccess); err != nil {
		t.Fatalf("expected new access token to pass: %v", err)
	}

	if err := env.engine.Logout(ctx, "u1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.engine.VerifyToken(ctx, refreshed.AccessToken, jwt.TypeAccess); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected access token to be rejected after logout, got %v", err)
	}
}

func TestVerifyEnforcesTokenType(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.GenerateTokens(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name     string
		token    string
		expected jwt.TokenType
	}{
		{"access as refresh", pair.AccessToken, jwt.TypeRefresh},
		{"refresh as access", pair.RefreshToken, jwt.TypeAccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.VerifyToken(ctx, tc.token, tc.expected)
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthError, got %v", err)
			}
			if authErr.Kind != KindInvalidOrExpired || authErr.Status != http.StatusUnauthorized {
				t.Fatalf("unexpected auth error: %+v", authErr)
			}
			if authErr.Challenge() == "" {
				t.Fatal("expected WWW-Authenticate challenge")
			}
		})
	}

	if _, err := env.engine.RefreshAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected access token to be refused by refresh, got %v", err)
	}
}

func TestVerifyRejectsUnknownExpectedType(t *testing.T) {
	env := newTestEnv(t, nil)

	pair, _ := env.engine.GenerateTokens(context.Background(), aliceIdentity())
	if _, err := env.engine.VerifyToken(context.Background(), pair.AccessToken, jwt.TokenType("id")); err == nil {
		t.Fatal("expected unknown token type to be rejected")
	}
}

func TestRevocationByDeletion(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.GenerateTokens(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	env.mr.Del("gts:u1")

	_, err = env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess)
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}
	if !strings.Contains(err.Error(), "no active session") {
		t.Fatalf("unexpected reason: %v", err)
	}
}

func TestLogoutByAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, _ := env.engine.GenerateTokens(ctx, aliceIdentity())

	if err := env.engine.LogoutByAccessToken(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected refresh token to be refused for logout, got %v", err)
	}
	if err := env.engine.LogoutByAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if env.mr.Exists("gts:u1") {
		t.Fatal("expected session key to be deleted")
	}
	if err := env.engine.LogoutByAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected second logout with same token to fail verification, got %v", err)
	}
	if err := env.engine.Logout(ctx, "u1"); err != nil {
		t.Fatalf("expected logout of absent session to succeed: %v", err)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, _ := env.engine.GenerateTokens(ctx, aliceIdentity())

	refreshed, err := env.engine.RefreshAccessToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == pair.AccessToken || refreshed.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a brand new pair")
	}

	if _, err := env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected predecessor access token to fail, got %v", err)
	}
	if _, err := env.engine.RefreshAccessToken(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected predecessor refresh token to fail, got %v", err)
	}
	if _, err := env.engine.VerifyToken(ctx, refreshed.AccessToken, jwt.TypeAccess); err != nil {
		t.Fatalf("expected new access token to pass: %v", err)
	}

	info, err := env.engine.GetSessionInfo(ctx, "u1")
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if info.Version != 2 {
		t.Fatalf("expected version 2 after one refresh, got %d", info.Version)
	}
}

func TestRefreshPicksUpIdentityChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, _ := env.engine.GenerateTokens(ctx, aliceIdentity())

	env.users.put(UserRecord{
		UserID:  "u1",
		Email:   "a@b.com",
		Roles:   []string{"user", "admin"},
		Groups:  []string{"ops"},
		Domains: []string{"example.com"},
	})

	refreshed, err := env.engine.RefreshAccessToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !reflect.DeepEqual(refreshed.Roles, []string{"user", "admin"}) || !reflect.DeepEqual(refreshed.Groups, []string{"ops"}) {
		t.Fatalf("expected fresh identity, got %+v", refreshed)
	}

	claims, err := env.engine.VerifyToken(ctx, refreshed.AccessToken, jwt.TypeAccess)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !reflect.DeepEqual(claims.Domains, []string{"example.com"}) {
		t.Fatalf("domains = %v", claims.Domains)
	}
}

func TestRefreshUserDeleted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, _ := env.engine.GenerateTokens(ctx, aliceIdentity())
	env.users.remove("u1")

	_, err := env.engine.RefreshAccessToken(ctx, pair.RefreshToken)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if authErr.Kind != KindUserNotFound || authErr.Status != http.StatusNotFound {
		t.Fatalf("unexpected auth error: %+v", authErr)
	}
	if !errors.Is(err, ErrUserNotFound) || StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected user-not-found mapping, got %v", err)
	}
	if authErr.Challenge() != "" {
		t.Fatal("404 errors carry no challenge")
	}

	if _, err := env.engine.GetSessionInfo(ctx, "u1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected orphaned session to be removed, got %v", err)
	}
}

func TestRefreshUserDeletedReportsCleanupFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := newFakeUsers(aliceRecord())
	core, logs := observer.New(zap.WarnLevel)
	engine, err := New().
		WithConfig(testConfig()).
		WithSessionStore(deleteFailingStore{Store: session.NewRedisStore(rdb, "gts")}).
		WithUserProvider(users).
		WithLogger(zap.New(core)).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	pair, err := engine.GenerateTokens(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	users.remove("u1")

	_, err = engine.RefreshAccessToken(ctx, pair.RefreshToken)
	if StatusCode(err) != http.StatusNotFound || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected 404 user-not-found, got %v", err)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected the delete failure in the error chain, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricStoreFailure]; got != 1 {
		t.Fatalf("store failure counter = %d, want 1", got)
	}
	if n := logs.FilterMessage("delete session of missing user failed").Len(); n != 1 {
		t.Fatalf("expected one warn entry, got %d", n)
	}
	if !mr.Exists("gts:u1") {
		t.Fatal("session should remain when the delete fails")
	}
}

func TestLogoutRequiresUserID(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.engine.Logout(context.Background(), "")
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", StatusCode(err))
	}
}

func TestSyncAccessTokenIsIdempotentUpsert(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	mgr, err := jwt.NewManager(jwt.Config{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Now:        env.clock.Now,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	sub := jwt.Subject{UserID: "u1", Email: "a@b.com", Roles: []string{"user"}}

	access1, _, _ := mgr.Issue(sub, jwt.TypeAccess)
	refresh1, _, _ := mgr.Issue(sub, jwt.TypeRefresh)
	created := env.clock.Now()
	if err := env.engine.SyncAccessToken(ctx, "u1", "a@b.com", access1, refresh1); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	env.clock.Advance(time.Minute)
	access2, _, _ := mgr.Issue(sub, jwt.TypeAccess)
	refresh2, refreshClaims, _ := mgr.Issue(sub, jwt.TypeRefresh)
	if err := env.engine.SyncAccessToken(ctx, "u1", "a@b.com", access2, refresh2); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if keys := env.mr.Keys(); len(keys) != 1 {
		t.Fatalf("expected exactly one record, got keys %v", keys)
	}

	info, err := env.engine.GetSessionInfo(ctx, "u1")
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if info.Version != 2 {
		t.Fatalf("version = %d", info.Version)
	}
	if !info.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed: %v vs %v", info.CreatedAt, created)
	}
	if !info.UpdatedAt.Equal(env.clock.Now()) {
		t.Fatalf("updated_at = %v", info.UpdatedAt)
	}
	if !info.ExpiresAt.Equal(refreshClaims.ExpiresAtTime()) {
		t.Fatalf("expires_at = %v, want refresh exp %v", info.ExpiresAt, refreshClaims.ExpiresAtTime())
	}

	if _, err := env.engine.VerifyToken(ctx, access1, jwt.TypeAccess); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected first pair to be superseded, got %v", err)
	}
	if _, err := env.engine.VerifyToken(ctx, access2, jwt.TypeAccess); err != nil {
		t.Fatalf("expected second pair to pass: %v", err)
	}

	// Same input again keeps one record holding that input.
	if err := env.engine.SyncAccessToken(ctx, "u1", "a@b.com", access2, refresh2); err != nil {
		t.Fatalf("repeat sync: %v", err)
	}
	if _, err := env.engine.VerifyToken(ctx, access2, jwt.TypeAccess); err != nil {
		t.Fatalf("expected repeated sync to keep pair valid: %v", err)
	}
}

func TestSyncAccessTokenValidatesInput(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.engine.SyncAccessToken(context.Background(), "", "a@b.com", "a", "b")
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("status = %d", StatusCode(err))
	}
}

func TestGenerateRejectsMissingIdentity(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, id := range []Identity{{Email: "a@b.com"}, {UserID: "u1"}} {
		if _, err := env.engine.GenerateTokens(context.Background(), id); !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("identity %+v: expected ErrInvalidIdentity, got %v", id, err)
		}
	}
	if len(env.mr.Keys()) != 0 {
		t.Fatal("expected no record to be written")
	}
}

func TestVerifyExpiredTokenWithMatchingRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, _ := env.engine.GenerateTokens(ctx, aliceIdentity())
	env.clock.Advance(16 * time.Minute)

	_, err := env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess)
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected expired access token to fail, got %v", err)
	}
	if _, err := env.engine.VerifyToken(ctx, pair.RefreshToken, jwt.TypeRefresh); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}

func TestVerifyRejectsExpiredSession(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) {
		cfg := testConfig()
		cfg.JWT.Leeway = time.Minute
		b.WithConfig(cfg)
	})
	ctx := context.Background()

	pair, _ := env.engine.GenerateTokens(ctx, aliceIdentity())
	env.clock.Advance(24*time.Hour + 30*time.Second)

	_, err := env.engine.VerifyToken(ctx, pair.RefreshToken, jwt.TypeRefresh)
	if !errors.Is(err, ErrInvalidOrExpiredToken) || !strings.Contains(err.Error(), "session expired") {
		t.Fatalf("expected session expiry rejection, got %v", err)
	}

	info, err := env.engine.GetSessionInfo(ctx, "u1")
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if info.Active {
		t.Fatal("expected inactive session")
	}
}

func TestVerifyRejectsEmailMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, _ := env.engine.GenerateTokens(ctx, aliceIdentity())
	env.mr.HSet("gts:u1", "email", "other@b.com")

	_, err := env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess)
	if !errors.Is(err, ErrInvalidOrExpiredToken) || !strings.Contains(err.Error(), "identity mismatch") {
		t.Fatalf("expected identity mismatch, got %v", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.VerifyToken(context.Background(), "not-a-jwt", jwt.TypeAccess)
	if !errors.Is(err, ErrMalformedClaims) {
		t.Fatalf("expected malformed claims, got %v", err)
	}
	if KindOf(err) != KindMalformedClaims || StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("unexpected mapping: kind=%v status=%d", KindOf(err), StatusCode(err))
	}
}

func TestStoreOutageFailsClosed(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) { b.WithMetricsEnabled(true) })
	ctx := context.Background()

	pair, err := env.engine.GenerateTokens(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	env.mr.Close()

	_, err = env.engine.VerifyToken(ctx, pair.AccessToken, jwt.TypeAccess)
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 AuthError on outage, got %v", err)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store cause to be preserved, got %v", err)
	}

	if _, err := env.engine.RefreshAccessToken(ctx, pair.RefreshToken); err == nil {
		t.Fatal("expected refresh to fail during outage")
	}
	if _, err := env.engine.GenerateTokens(ctx, aliceIdentity()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected generate to surface store error, got %v", err)
	}
	if env.engine.Health(ctx).Available {
		t.Fatal("expected health to report unavailable")
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricVerifySuccess] != 0 {
		t.Fatal("no verification may succeed during an outage")
	}
	if snap.Counters[MetricStoreFailure] == 0 {
		t.Fatal("expected store failures to be counted")
	}
}

func TestDecodeTokenUnsafe(t *testing.T) {
	env := newTestEnv(t, nil)

	pair, _ := env.engine.GenerateTokens(context.Background(), aliceIdentity())
	env.clock.Advance(48 * time.Hour)

	claims := env.engine.DecodeTokenUnsafe(pair.AccessToken)
	if claims.UserID() != "u1" || claims.Type() != jwt.TypeAccess {
		t.Fatalf("unexpected introspection: %v", claims)
	}

	for _, garbage := range []string{"", "garbage", "a.b.c"} {
		got := env.engine.DecodeTokenUnsafe(garbage)
		if got == nil || len(got) != 0 {
			t.Fatalf("input %q: expected empty map, got %#v", garbage, got)
		}
	}
}

func TestGetSessionInfoAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.GetSessionInfo(ctx, "u1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	_, _ = env.engine.GenerateTokens(ctx, aliceIdentity())
	info, err := env.engine.GetSessionInfo(ctx, "u1")
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if !info.Active || info.Email != "a@b.com" || info.Version != 1 {
		t.Fatalf("unexpected session info: %+v", info)
	}
	if !info.CreatedAt.Equal(env.clock.Now()) || !info.ExpiresAt.Equal(env.clock.Now().Add(24*time.Hour)) {
		t.Fatalf("unexpected timestamps: %+v", info)
	}

	if !env.engine.Health(ctx).Available {
		t.Fatal("expected healthy store")
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.VerifyToken(context.Background(), "x", jwt.TypeAccess); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.GenerateTokens(context.Background(), aliceIdentity()); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.AuditDropped() != 0 || len(e.MetricsSnapshot().Counters) != 0 {
		t.Fatal("nil engine should report empty observability state")
	}
	e.Close()
}

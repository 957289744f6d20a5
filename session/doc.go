// Package session persists the single "current session" record kept for each
// user and exposes it through the [Store] interface.
//
// # Record model
//
// A [Record] stores SHA-256 hashes of the live access and refresh tokens,
// never the tokens themselves. Every write replaces the whole record in one
// backend operation; CreatedAt is preserved across replacement while
// UpdatedAt and Version advance.
//
// # Backends
//
//   - [RedisStore]: one hash per user, written through Lua scripts, TTL bound
//     to the refresh expiry.
//   - [MongoStore]: one document per user, unique index on user_id, TTL index
//     on expires_at.
//   - [PostgresStore]: one row per user in token_sessions, schema managed by
//     the embedded migrations (see [Migrate]).
//
// # Architecture boundaries
//
// This package does not parse JWTs or decide whether a token is acceptable.
// It must not import the root module package or jwt.
package session

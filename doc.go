// Package goToken issues, verifies, refreshes and revokes paired access/refresh
// JWTs backed by a single stored session record per user.
//
// Verification is two-phase: the token is checked locally (signature, expiry,
// type) and then matched against the user's stored record, so deleting or
// replacing the record revokes every token issued before it. Engine methods are
// safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// goToken is the public surface: [Engine], [Builder], [Config], [AuthError] and
// value types. Flow orchestration, audit dispatch and metric storage live
// under internal/. Persistence is the [session.Store] interface with Redis,
// MongoDB and Postgres implementations.
//
// # What this package must NOT do
//
//   - Persist raw tokens. Stores only ever see SHA-256 hashes.
//   - Treat a store error as a successful verification.
//   - Hold signing state in package-level variables.
//
// # Performance contract
//
// VerifyToken costs one local parse plus one store read. GenerateTokens and
// RefreshAccessToken each cost one atomic store write; refresh adds one
// UserProvider lookup.
package goToken

// Package jwt issues and verifies the signed claim sets behind access and
// refresh tokens, using one injected shared secret per Manager.
//
// Parse is the authoritative local check (signature, expiry, issuer, audience,
// token type). DecodeUnverified is a lenient introspection helper with its own
// return type so that it cannot be mistaken for verification.
//
// This package performs no I/O. Whether a token is still the current one for
// its user is decided by the session store, not here.
package jwt

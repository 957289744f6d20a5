// Package middleware adapts token verification to net/http.
//
// [Guard] reads the Authorization header, calls VerifyToken with the access
// type, and injects the verified claims into the request context. Rejections
// are answered with the status carried by the engine error; 401 responses
// include a WWW-Authenticate challenge.
//
// This package holds no authentication logic of its own. Every decision is
// delegated to the [Verifier].
package middleware

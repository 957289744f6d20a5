package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Introspection is the claim map read from a token WITHOUT verifying its
// signature or expiry. It is a diagnostics view only: nothing in it may be
// trusted for authorization. Use Manager.Parse for that.
type Introspection map[string]any

// DecodeUnverified reads the claims of tokenStr without any verification.
// It never fails: an undecodable token yields an empty, non-nil map.
func DecodeUnverified(tokenStr string) Introspection {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return Introspection{}
	}
	return Introspection(claims)
}

// UserID returns the uid claim, or "".
func (i Introspection) UserID() string {
	return i.str("uid")
}

// Email returns the email claim, or "".
func (i Introspection) Email() string {
	return i.str("email")
}

// Type returns the type claim, or "".
func (i Introspection) Type() TokenType {
	return TokenType(i.str("type"))
}

// ExpiresAt returns the exp claim when it is present and numeric.
func (i Introspection) ExpiresAt() (time.Time, bool) {
	exp, err := jwt.MapClaims(i).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (i Introspection) str(key string) string {
	v, _ := i[key].(string)
	return v
}

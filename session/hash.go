package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// TokenHash is the SHA-256 digest of a signed token.
type TokenHash [32]byte

// HashToken returns the digest stored in place of token.
func HashToken(token string) TokenHash {
	return TokenHash(sha256.Sum256([]byte(token)))
}

// Matches compares h against the digest of token in constant time.
func (h TokenHash) Matches(token string) bool {
	provided := HashToken(token)
	return subtle.ConstantTimeCompare(h[:], provided[:]) == 1
}

// Equal compares two digests in constant time.
func (h TokenHash) Equal(other TokenHash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// IsZero reports whether h was never set.
func (h TokenHash) IsZero() bool {
	return h == TokenHash{}
}

// String returns the lowercase hex form used by the Redis and Mongo stores.
func (h TokenHash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseTokenHash decodes the hex form produced by String.
func ParseTokenHash(s string) (TokenHash, error) {
	var out TokenHash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, errors.New("token hash must be 32 bytes")
	}
	copy(out[:], raw)
	return out, nil
}

func tokenHashFromBytes(b []byte) (TokenHash, error) {
	var out TokenHash
	if len(b) != len(out) {
		return out, errors.New("token hash must be 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}

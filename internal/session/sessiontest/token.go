// Package sessiontest issues identity tokens for tests of code behind session.JWTProvider.
package sessiontest

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken signs an HS256 token for principal with secret, expiring after ttl.
// A negative ttl yields an already expired token.
func IssueToken(secret, principal string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": principal,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

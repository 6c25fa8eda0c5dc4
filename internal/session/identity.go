package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTProvider delegates login to an external identity service that returns an
// HS256-signed token whose subject is the user's principal.
type JWTProvider struct {
	providerURL string
	secret      []byte
}

// NewJWTProvider creates a provider for the identity service at providerURL.
func NewJWTProvider(providerURL, secret string) *JWTProvider {
	return &JWTProvider{providerURL: providerURL, secret: []byte(secret)}
}

// LoginURL implements IdentityProvider.
func (p *JWTProvider) LoginURL(callbackURL string) string {
	sep := "?"
	if strings.Contains(p.providerURL, "?") {
		sep = "&"
	}
	return p.providerURL + sep + url.Values{"callback": {callbackURL}}.Encode()
}

// Verify implements IdentityProvider.
func (p *JWTProvider) Verify(_ context.Context, token string) (string, error) {
	if len(p.secret) == 0 {
		return "", errors.New("identity secret not configured")
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	principal, _ := claims["sub"].(string)
	if principal == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return principal, nil
}

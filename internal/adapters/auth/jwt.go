// Package auth implements the identity collaborator over HMAC-signed JWTs.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// Claims are the token claims issued by the account service.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the token signature and claims and returns the identity
// it carries. Any failure maps to ErrUnauthenticated: the gateway is
// fail-closed and never admits a partially-authenticated connection.
func (v *Verifier) Verify(token string) (domain.UserID, error) {
	if token == "" {
		return "", fmt.Errorf("empty token: %w", core.ErrUnauthenticated)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", core.ErrUnauthenticated)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return "", fmt.Errorf("invalid claims: %w", core.ErrUnauthenticated)
	}
	return domain.UserID(claims.UserID), nil
}

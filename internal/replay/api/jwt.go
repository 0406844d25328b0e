package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the bearer of an operator token. There is no notion of
// player accounts in this service — only a coarse admin/viewer role gating
// mutating control-surface endpoints (play/pause/seek/...) from read-only
// ones (state/range queries).
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// GenerateToken issues a signed operator token for role, valid for ttl.
func GenerateToken(secret []byte, role string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "replaycore",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and verifies tokenString, returning its role.
func ValidateToken(secret []byte, tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	return claims.Role, nil
}

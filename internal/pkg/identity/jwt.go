package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates identity-provider access tokens locally using the
// project's HS256 JWT secret.
type TokenVerifier struct {
	secret []byte
	leeway time.Duration
}

func NewTokenVerifier(secret string) *TokenVerifier {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(s), leeway: 30 * time.Second}
}

// Subject returns the sub claim of a valid, unexpired token.
// Every failure wraps ErrInvalidSession.
func (v *TokenVerifier) Subject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", ErrInvalidSession)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidSession)
	}
	return claims.Subject, nil
}

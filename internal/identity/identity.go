// Package identity is the boundary to the external identity provider.
// Cadenza never issues credentials; it only verifies tokens the provider
// signed and maps them to a local directory user.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a verified token asserts about the caller.
type Identity struct {
	UserID int64
	Role   string
}

// Provider resolves a bearer credential to an identity.
type Provider interface {
	CurrentUser(token string) (Identity, error)
}

// TokenVerifier verifies HS256 tokens issued by the external identity
// service with a shared secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) CurrentUser(tokenStr string) (Identity, error) {
	t, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !t.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	// MapClaims numbers decode as float64.
	sub, ok := claims["sub"].(float64)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UserID: int64(sub)}
	if role, ok := claims["role"].(string); ok {
		id.Role = role
	}
	return id, nil
}

// SignForTest issues a token the verifier accepts. Only tests and local
// tooling should call this; production tokens come from the identity
// service.
func (v *TokenVerifier) SignForTest(userID int64, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(v.secret)
}

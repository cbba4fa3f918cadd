package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthenticated = errors.New("no authenticated identity")
	ErrInvalidToken    = errors.New("invalid bearer token")
)

// Identity is the authenticated principal for the current call. The engine
// only needs who is acting; roles and phone ride along for notifications.
type Identity struct {
	UserID string
	Role   string
	Phone  string
}

type contextKey struct{}

// WithIdentity returns a context carrying the identity. The HTTP layer (or
// a test) installs it; services read it back via FromContext.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the authenticated identity, or ErrUnauthenticated.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

type claims struct {
	Role  string `json:"role,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 bearer token and returns the identity it
// asserts. The subject claim is the user id.
func ParseToken(tokenString string, secret []byte) (Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Role: c.Role, Phone: c.Phone}, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken     = errors.New("auth: empty token")
	ErrEmptySecret    = errors.New("auth: empty secret")
	ErrInvalidRole    = errors.New("auth: invalid role")
	ErrMissingAccount = errors.New("auth: member token without account_id")
)

// Claims carried by club tokens. Members are bound to one billing account.
type Claims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the request identity.
func (c *Claims) Identity() Identity {
	role, _ := NormalizeRole(c.Role)
	return Identity{Subject: c.Subject, AccountID: c.AccountID, Role: role}
}

func (c *Claims) check() error {
	role, ok := NormalizeRole(c.Role)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRole, c.Role)
	}
	if role == RoleMember && c.AccountID == "" {
		return ErrMissingAccount
	}
	return nil
}

var tokenParser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithLeeway(30*time.Second),
)

// ParseJWT verifies an HS256 token and its billing claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	claims := &Claims{}
	_, err := tokenParser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if err := claims.check(); err != nil {
		return nil, err
	}
	return claims, nil
}

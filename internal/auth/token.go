package auth

import (
	"errors"
	"fmt"
	"time"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultLifetime = time.Hour

// Claims is the verified content of a session token. Times have second
// precision, matching the encoding.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenAuthority signs and verifies HS256 session tokens. It keeps no
// state besides the secret, so verification never touches the store.
type TokenAuthority struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenAuthority returns an authority issuing tokens valid for lifetime.
// A nil now uses time.Now.
func NewTokenAuthority(secret string, lifetime time.Duration, now func() time.Time) *TokenAuthority {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if now == nil {
		now = time.Now
	}
	return &TokenAuthority{secret: []byte(secret), lifetime: lifetime, now: now}
}

func (a *TokenAuthority) Issue(subject string) (string, Claims, error) {
	now := a.now()
	// The random ID keeps two tokens minted in the same second for the same
	// subject distinct, so revoking one never revokes the other.
	registered := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.lifetime)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, registered).SignedString(a.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}

	return token, claimsFrom(&registered), nil
}

func (a *TokenAuthority) Verify(tokenString string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)

	var registered jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(tokenString, &registered, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, fmt.Errorf("%w: %w", appErrors.ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("%w: %w", appErrors.ErrTokenExpired, err)
	default:
		return Claims{}, fmt.Errorf("%w: %w", appErrors.ErrMalformedToken, err)
	}

	if registered.Subject == "" {
		return Claims{}, fmt.Errorf("%w: subject not found in token", appErrors.ErrMalformedToken)
	}

	return claimsFrom(&registered), nil
}

func claimsFrom(registered *jwt.RegisteredClaims) Claims {
	claims := Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims
}

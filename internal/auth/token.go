// Package auth holds the bearer-credential contract shared by the server's
// upgrade path and the client. Credential issuance itself (login) lives in an
// external service; both sides only agree on the claim shape here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mfglink/realtime/internal/domain"
)

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrExpiredToken = errors.New("auth: expired token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the identity payload carried by the bearer credential.
type Claims struct {
	UserID      domain.UserID `json:"uid"`
	FullName    string        `json:"full_name"`
	CompanyName string        `json:"company_name"`
	jwt.RegisteredClaims
}

// Mint signs a credential for the given user. Used by tests and by deploys
// that co-host the issuer; production issuance is external.
func Mint(secret string, user domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      user.ID,
		FullName:    user.FullName,
		CompanyName: user.CompanyName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}

// Verify checks the signature and expiry and returns the bound identity.
func Verify(secret, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// Peek decodes the claims without verifying the signature. The client uses it
// to learn its own identity and reject an already-expired credential before
// dialing; the server always goes through Verify.
func Peek(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	var claims Claims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredToken
	}
	return &claims, nil
}

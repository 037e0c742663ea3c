package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "launchlog"
	tokenAudience = "launchlog-api"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the user context carried inside a session token.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
}

// Claims represents the JWT claims for LaunchLog sessions.
type Claims struct {
	jwt.RegisteredClaims
	Identity
}

// TokenIssuer signs and verifies session tokens with a shared HMAC secret.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. Tokens expire after expiry.
func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Issue creates a signed token for id.
func (i *TokenIssuer) Issue(id Identity) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.UserID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Identity: id,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates a token string, returning the embedded identity.
func (i *TokenIssuer) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithAudience(tokenAudience), jwt.WithTimeFunc(i.now))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}

	return claims.Identity, nil
}

package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dailyalchemy/internal/apperr"
)

// Claims identify a player and their entitlements.
type Claims struct {
	Admin   bool `json:"admin,omitempty"`
	Archive bool `json:"archive,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  string
	Admin   bool
	Archive bool
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. An empty secret is rejected.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	return &TokenIssuer{secret: []byte(secret), issuer: "dailyalchemy", now: time.Now}, nil
}

// Issue signs a token for p valid for ttl.
func (t *TokenIssuer) Issue(p Principal, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Admin:   p.Admin,
		Archive: p.Archive,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a raw token and returns its principal.
func (t *TokenIssuer) Verify(raw string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "token has no subject")
	}
	return &Principal{UserID: claims.Subject, Admin: claims.Admin, Archive: claims.Archive}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

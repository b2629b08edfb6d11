// Package token is the C4 component: signs and verifies the two token
// types the Session Manager issues, sharing one claim envelope. Grounded
// on internal/usecase/auth.go (jwt.MapClaims shape,
// NewWithClaims/SignedString) generalized from a single magic-link JWT to
// an access/refresh pair, with type-mismatch and expiry turned into
// domain.Kind values instead of a single ErrTokenInvalid.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

// Authority signs and verifies HMAC-signed tokens. A temporary secret may
// only be synthesised by the caller when ENV=local — this package never
// makes that decision itself.
type Authority struct {
	secret        []byte
	clock         clock.Clock
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

func New(secret []byte, clk clock.Clock, accessTTL, refreshTTL time.Duration, issuer string) *Authority {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Authority{secret: secret, clock: clk, accessTTL: accessTTL, refreshTTL: refreshTTL, issuer: issuer}
}

type jwtClaims struct {
	UserID  string             `json:"user_id"`
	Scopes  []string           `json:"scopes,omitempty"`
	Roles   []string           `json:"roles,omitempty"`
	Locale  string             `json:"locale,omitempty"`
	Type    domain.TokenType   `json:"type"`
	jwt.RegisteredClaims
}

// Issue mints a signed token of the given type for claims. Claims.JTI is
// filled with a fresh uuid if not already set, and Claims.Expiry is always
// set to clk's now plus the type's TTL, so callers only need to supply
// Subject/UserID/Scopes/Roles/Locale.
func (a *Authority) Issue(c domain.Claims) (string, domain.Claims, error) {
	now := a.clock.Now()
	ttl := a.accessTTL
	if c.Type == domain.TokenTypeRefresh {
		ttl = a.refreshTTL
	}
	if c.JTI == "" {
		c.JTI = clock.NewID()
	}
	c.Expiry = now.Add(ttl)

	claims := jwtClaims{
		UserID: c.UserID,
		Scopes: c.Scopes,
		Roles:  c.Roles,
		Locale: c.Locale,
		Type:   c.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			ID:        c.JTI,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(c.Expiry),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", domain.Claims{}, domain.Wrap(domain.KindInvalidToken, "sign token", err)
	}
	return signed, c, nil
}

// Verify parses raw and requires its type to equal want — a refresh token
// presented where an access token is expected (or vice versa) is rejected
// exactly like a bad signature.
func (a *Authority) Verify(raw string, want domain.TokenType) (domain.Claims, error) {
	var claims jwtClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(a.clock.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Claims{}, domain.ErrExpiredToken
		}
		return domain.Claims{}, domain.Wrap(domain.KindInvalidToken, "parse token", err)
	}
	if !tok.Valid {
		return domain.Claims{}, domain.ErrInvalidToken
	}
	if claims.Type != want {
		return domain.Claims{}, domain.ErrInvalidToken
	}

	return domain.Claims{
		Subject: claims.Subject,
		UserID:  claims.UserID,
		Scopes:  claims.Scopes,
		Roles:   claims.Roles,
		Locale:  claims.Locale,
		Type:    claims.Type,
		JTI:     claims.ID,
		Expiry:  claims.ExpiresAt.Time,
	}, nil
}

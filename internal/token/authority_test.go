package token_test

import (
	"errors"
	"testing"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/token"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

const testSecret = "test-hmac-secret-at-least-32-bytes!!"

func newAuthority(now time.Time, accessTTL, refreshTTL time.Duration) *token.Authority {
	return token.New([]byte(testSecret), fakeClock{now: now}, accessTTL, refreshTTL, "meal-request-backend")
}

func TestIssueThenVerify_AccessToken_RoundTrips(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := newAuthority(now, time.Hour, 24*time.Hour)

	signed, claims, err := a.Issue(domain.Claims{Subject: "user-1", UserID: "user-1", Type: domain.TokenTypeAccess})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if claims.JTI == "" {
		t.Error("Issue did not fill in a JTI")
	}
	if !claims.Expiry.Equal(now.Add(time.Hour)) {
		t.Errorf("Expiry = %v, want %v", claims.Expiry, now.Add(time.Hour))
	}

	got, err := a.Verify(signed, domain.TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.UserID != "user-1" || got.Type != domain.TokenTypeAccess {
		t.Errorf("Verify returned %+v", got)
	}
}

func TestVerify_WrongTokenType_IsRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := newAuthority(now, time.Hour, 24*time.Hour)

	signed, _, err := a.Issue(domain.Claims{Subject: "user-1", UserID: "user-1", Type: domain.TokenTypeRefresh})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = a.Verify(signed, domain.TokenTypeAccess)
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("want ErrInvalidToken for a refresh token presented as access, got %v", err)
	}
}

func TestVerify_ExpiredToken_ReturnsErrExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := newAuthority(issuedAt, time.Minute, time.Minute)

	signed, _, err := a.Issue(domain.Claims{Subject: "user-1", UserID: "user-1", Type: domain.TokenTypeAccess})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later := newAuthority(issuedAt.Add(2*time.Minute), time.Minute, time.Minute)
	_, err = later.Verify(signed, domain.TokenTypeAccess)
	if !errors.Is(err, domain.ErrExpiredToken) {
		t.Errorf("want ErrExpiredToken, got %v", err)
	}
}

func TestVerify_TamperedSignature_ReturnsInvalidTokenKind(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := newAuthority(now, time.Hour, 24*time.Hour)

	signed, _, err := a.Issue(domain.Claims{Subject: "user-1", UserID: "user-1", Type: domain.TokenTypeAccess})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tampered := signed[:len(signed)-1] + "x"
	_, err = a.Verify(tampered, domain.TokenTypeAccess)
	if domain.KindOf(err) != domain.KindInvalidToken {
		t.Errorf("Kind = %v, want KindInvalidToken", domain.KindOf(err))
	}
}

func TestVerify_WrongSecret_IsRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := newAuthority(now, time.Hour, 24*time.Hour)
	other := token.New([]byte("a-completely-different-secret-32b"), fakeClock{now: now}, time.Hour, 24*time.Hour, "meal-request-backend")

	signed, _, err := a.Issue(domain.Claims{Subject: "user-1", UserID: "user-1", Type: domain.TokenTypeAccess})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = other.Verify(signed, domain.TokenTypeAccess)
	if err == nil {
		t.Fatal("expected verification to fail against a different secret")
	}
}

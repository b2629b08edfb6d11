package domain

import "time"

// TokenType distinguishes access from refresh tokens so a token minted for
// one purpose can never be accepted at a verification call site for the
// other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the envelope every signed token carries.
type Claims struct {
	Subject string    // user id
	UserID  string
	Scopes  []string
	Roles   []string
	Locale  string
	Type    TokenType
	JTI     string
	Expiry  time.Time
}

type Session struct {
	ID             string
	UserID         string
	RefreshTokenID string
	CreatedAt      time.Time
	LastSeenAt     time.Time
	ExpiresAt      time.Time
	Revoked        bool
	DeviceInfo     *string
	IPAddress      *string
	Fingerprint    *string
	Metadata       map[string]any // preserves "locale"
}

// Valid reports whether the session may still be used to mint claims.
func (s *Session) Valid(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}

// Locale reads the locale preserved in Metadata, defaulting to "".
func (s *Session) Locale() string {
	if s.Metadata == nil {
		return ""
	}
	if v, ok := s.Metadata["locale"].(string); ok {
		return v
	}
	return ""
}

type RevokedToken struct {
	JTI       string
	TokenType TokenType
	UserID    string
	RevokedAt time.Time
	ExpiresAt time.Time
}

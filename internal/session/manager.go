// Package session is the C5 component. Grounded on the
// usecase/auth.go for the overall shape (usecase wraps a repository and a
// token signer) generalized from a single magic-link issuance to the full
// login/refresh/validate/revoke/enforce-limit surface.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/cache"
	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// DomainAuthenticator validates credentials for HRIS-sourced users against
// an external identity source (e.g. LDAP/AD). No example in the retrieved
// pack wires a concrete client for this, so only a Noop implementation
// ships; deployments that need it plug in their own.
type DomainAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) error
}

// NoopDomainAuthenticator always rejects — HRIS users cannot log in with a
// local password by default.
type NoopDomainAuthenticator struct{}

func (NoopDomainAuthenticator) Authenticate(context.Context, string, string) error {
	return domain.ErrInvalidCredentials
}

// Issuer is the subset of token.Authority the manager depends on.
type Issuer interface {
	Issue(c domain.Claims) (string, domain.Claims, error)
	Verify(raw string, want domain.TokenType) (domain.Claims, error)
}

type Manager struct {
	store   store.Store
	users   store.UserRepository
	sess    store.SessionRepository
	tokens  Issuer
	cache   cache.Cache
	clock   clock.Clock
	hasher  Hasher
	authn   DomainAuthenticator
	logger  *slog.Logger

	maxConcurrentSessions int
	sessionTTL            time.Duration
	snapshotTTL           time.Duration
	defaultLocale         string
	supportedLocales      map[string]bool
}

type Config struct {
	MaxConcurrentSessions int
	SessionTTL            time.Duration
	SnapshotTTL           time.Duration
	DefaultLocale         string
	SupportedLocales      []string
}

func NewManager(st store.Store, users store.UserRepository, sess store.SessionRepository,
	tokens Issuer, c cache.Cache, clk clock.Clock, hasher Hasher, domainAuth DomainAuthenticator,
	logger *slog.Logger, cfg Config) *Manager {

	if domainAuth == nil {
		domainAuth = NoopDomainAuthenticator{}
	}
	supported := make(map[string]bool, len(cfg.SupportedLocales))
	for _, l := range cfg.SupportedLocales {
		supported[l] = true
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = 5
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.SnapshotTTL <= 0 || cfg.SnapshotTTL > 5*time.Minute {
		cfg.SnapshotTTL = 5 * time.Minute
	}
	return &Manager{
		store: st, users: users, sess: sess, tokens: tokens, cache: c, clock: clk,
		hasher: hasher, authn: domainAuth, logger: logger.With("component", "session"),
		maxConcurrentSessions: cfg.MaxConcurrentSessions, sessionTTL: cfg.SessionTTL,
		snapshotTTL: cfg.SnapshotTTL, defaultLocale: cfg.DefaultLocale, supportedLocales: supported,
	}
}

type LoginInput struct {
	Username      string
	Password      string
	DeviceInfo    string
	IPAddress     string
	QueryLocale   string
	CookieLocale  string
	AcceptLang    string
}

type LoginResult struct {
	Access    string
	Refresh   string
	SessionID string
	Locale    string
}

// Login validates credentials, resolves the effective locale, creates a
// session row, and enforces the concurrent-session limit against every
// OTHER active session for the user.
func (m *Manager) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	u, err := m.users.GetByUsername(ctx, m.store, in.Username)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if u.IsBlocked {
		return nil, domain.Wrap(domain.KindAuthorization, "account blocked", nil)
	}
	if !u.IsActive {
		return nil, domain.Wrap(domain.KindAuthorization, "account inactive", nil)
	}

	switch u.UserSource {
	case domain.UserSourceHRIS:
		if err := m.authn.Authenticate(ctx, in.Username, in.Password); err != nil {
			return nil, domain.ErrInvalidCredentials
		}
	default:
		if u.PasswordHash == nil || !m.hasher.Verify(*u.PasswordHash, in.Password) {
			return nil, domain.ErrInvalidCredentials
		}
	}

	locale := m.effectiveLocale(in.QueryLocale, in.CookieLocale, "", in.AcceptLang)

	roles, err := m.users.ListRolesForUser(ctx, m.store, u.ID)
	if err != nil {
		return nil, err
	}
	roleNames := make([]string, len(roles))
	for i, r := range roles {
		roleNames[i] = r.NameEN
	}

	now := m.clock.Now()
	sessionID := clock.NewID()
	refreshJTI := clock.NewID()

	access, _, err := m.tokens.Issue(domain.Claims{
		Subject: u.ID, UserID: u.ID, Roles: roleNames, Locale: locale, Type: domain.TokenTypeAccess,
	})
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := m.tokens.Issue(domain.Claims{
		Subject: u.ID, UserID: u.ID, Roles: roleNames, Locale: locale, Type: domain.TokenTypeRefresh, JTI: refreshJTI,
	})
	if err != nil {
		return nil, err
	}

	s := &domain.Session{
		ID: sessionID, UserID: u.ID, RefreshTokenID: refreshClaims.JTI,
		CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(m.sessionTTL),
		DeviceInfo: strPtr(in.DeviceInfo), IPAddress: strPtr(in.IPAddress),
		Metadata: map[string]any{"locale": locale},
	}
	if err := m.sess.Create(ctx, m.store, s); err != nil {
		return nil, err
	}

	if err := m.EnforceLimit(ctx, u.ID, m.maxConcurrentSessions, sessionID); err != nil {
		m.logger.Warn("enforce session limit after login failed", "user_id", u.ID, "error", err)
	}

	return &LoginResult{Access: access, Refresh: refresh, SessionID: sessionID, Locale: locale}, nil
}

// Refresh rotates the refresh token inside a single transaction, guarded
// by a row lock on the Session — the sole mechanism preventing replay of a
// stolen refresh token.
func (m *Manager) Refresh(ctx context.Context, refreshTok string) (access, newRefresh string, err error) {
	claims, err := m.tokens.Verify(refreshTok, domain.TokenTypeRefresh)
	if err != nil {
		return "", "", err
	}

	revoked, err := m.sess.IsTokenRevoked(ctx, m.store, claims.JTI)
	if err != nil {
		return "", "", err
	}
	if revoked {
		return "", "", domain.ErrRevokedToken
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return "", "", domain.Wrap(domain.KindDatabase, "begin refresh tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The refresh token only carries a user id, not a session id, so the
	// session row is found by matching its current refresh_token_id — then
	// locked for the remainder of this transaction.
	sess, err := m.findSessionByRefreshJTI(ctx, tx, claims.UserID, claims.JTI)
	if err != nil {
		return "", "", err
	}
	if sess.RefreshTokenID != claims.JTI {
		return "", "", domain.ErrRevokedToken // already rotated past this token: replay attempt
	}
	now := m.clock.Now()
	if !sess.Valid(now) {
		return "", "", domain.ErrExpiredToken
	}

	roles, err := m.users.ListRolesForUser(ctx, tx, sess.UserID)
	if err != nil {
		return "", "", err
	}
	roleNames := make([]string, len(roles))
	for i, r := range roles {
		roleNames[i] = r.NameEN
	}
	locale := sess.Locale()

	newAccess, _, err := m.tokens.Issue(domain.Claims{
		Subject: sess.UserID, UserID: sess.UserID, Roles: roleNames, Locale: locale, Type: domain.TokenTypeAccess,
	})
	if err != nil {
		return "", "", err
	}
	newRefreshTok, newClaims, err := m.tokens.Issue(domain.Claims{
		Subject: sess.UserID, UserID: sess.UserID, Roles: roleNames, Locale: locale, Type: domain.TokenTypeRefresh,
	})
	if err != nil {
		return "", "", err
	}

	if err := m.sess.AddRevokedToken(ctx, tx, &domain.RevokedToken{
		JTI: claims.JTI, TokenType: domain.TokenTypeRefresh, UserID: sess.UserID,
		RevokedAt: now, ExpiresAt: claims.Expiry,
	}); err != nil {
		return "", "", err
	}

	sess.RefreshTokenID = newClaims.JTI
	sess.LastSeenAt = now
	if err := m.sess.Touch(ctx, tx, sess.ID, now); err != nil {
		return "", "", err
	}
	if err := m.rotateRefreshTokenID(ctx, tx, sess.ID, newClaims.JTI); err != nil {
		return "", "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", "", domain.Wrap(domain.KindDatabase, "commit refresh tx", err)
	}
	return newAccess, newRefreshTok, nil
}

func (m *Manager) rotateRefreshTokenID(ctx context.Context, q store.Querier, sessionID, newJTI string) error {
	_, err := q.Exec(ctx, `UPDATE sessions SET refresh_token_id = $2 WHERE id = $1`, sessionID, newJTI)
	if err != nil {
		return domain.Wrap(domain.KindDatabase, "rotate refresh token", err)
	}
	return nil
}

func (m *Manager) findSessionByRefreshJTI(ctx context.Context, q store.Querier, userID, jti string) (*domain.Session, error) {
	sessions, err := m.sess.ListActiveByUser(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].RefreshTokenID == jti {
			return m.sess.GetForUpdate(ctx, q, sessions[i].ID)
		}
	}
	return nil, domain.ErrInvalidToken
}

type snapshot struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	Locale string   `json:"locale"`
}

// Validate is the read-only path: it never rotates tokens and prefers a
// short-TTL snapshot cache over a database round trip.
func (m *Manager) Validate(ctx context.Context, accessTok string) (domain.Claims, error) {
	claims, err := m.tokens.Verify(accessTok, domain.TokenTypeAccess)
	if err != nil {
		return domain.Claims{}, err
	}

	revokedKey := cache.KeyRevokedJTI + claims.JTI
	if m.cache.Available() {
		if _, hit, _ := m.cache.Get(ctx, revokedKey); hit {
			return domain.Claims{}, domain.ErrRevokedToken
		}
	}
	revoked, err := m.sess.IsTokenRevoked(ctx, m.store, claims.JTI)
	if err != nil {
		return domain.Claims{}, err
	}
	if revoked {
		_ = m.cache.Set(ctx, revokedKey, "1", claims.Expiry.Sub(m.clock.Now()))
		return domain.Claims{}, domain.ErrRevokedToken
	}

	snapKey := fmt.Sprintf("%s%s:%s", cache.KeySnapshot, claims.UserID, claims.Locale)
	if raw, hit, _ := m.cache.Get(ctx, snapKey); hit {
		var snap snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			claims.Roles = snap.Roles
			return claims, nil
		}
	}

	roles, err := m.users.ListRolesForUser(ctx, m.store, claims.UserID)
	if err != nil {
		return domain.Claims{}, err
	}
	roleNames := make([]string, len(roles))
	for i, r := range roles {
		roleNames[i] = r.NameEN
	}
	claims.Roles = roleNames

	if raw, err := json.Marshal(snapshot{UserID: claims.UserID, Roles: roleNames, Locale: claims.Locale}); err == nil {
		_ = m.cache.Set(ctx, snapKey, string(raw), m.snapshotTTL)
	}
	return claims, nil
}

func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	s, err := m.sess.GetByID(ctx, m.store, sessionID)
	if err != nil {
		return err
	}
	if err := m.sess.Revoke(ctx, m.store, sessionID); err != nil {
		return err
	}
	_ = m.cache.Set(ctx, cache.KeyInvalidSession+sessionID, "1", 24*time.Hour)
	_ = s
	return nil
}

// RevokeByRefreshToken resolves the session currently holding refreshTok
// and revokes it — the logout path, which only has the cookie, not a
// session id.
func (m *Manager) RevokeByRefreshToken(ctx context.Context, refreshTok string) error {
	claims, err := m.tokens.Verify(refreshTok, domain.TokenTypeRefresh)
	if err != nil {
		return err
	}
	sess, err := m.findSessionByRefreshJTI(ctx, m.store, claims.UserID, claims.JTI)
	if err != nil {
		return err
	}
	return m.Revoke(ctx, sess.ID)
}

func (m *Manager) RevokeAllForUser(ctx context.Context, userID string, except string) error {
	sessions, err := m.sess.ListActiveByUser(ctx, m.store, userID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.ID == except {
			continue
		}
		if err := m.sess.Revoke(ctx, m.store, s.ID); err != nil {
			return err
		}
		_ = m.cache.Set(ctx, cache.KeyInvalidSession+s.ID, "1", 24*time.Hour)
	}
	return nil
}

// EnforceLimit revokes the oldest active sessions beyond max, excluding
// exclude (typically the session just created by Login).
func (m *Manager) EnforceLimit(ctx context.Context, userID string, max int, exclude string) error {
	sessions, err := m.sess.ListActiveByUser(ctx, m.store, userID)
	if err != nil {
		return err
	}
	var others []domain.Session
	for _, s := range sessions {
		if s.ID != exclude {
			others = append(others, s)
		}
	}
	if len(others)+1 <= max {
		return nil
	}
	overflow := len(others) + 1 - max
	for i := 0; i < overflow && i < len(others); i++ {
		if err := m.sess.Revoke(ctx, m.store, others[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// effectiveLocale applies the precedence order:
// query param > cookie > user preference > Accept-Language > default.
func (m *Manager) effectiveLocale(query, cookie, userPref, acceptLang string) string {
	for _, candidate := range []string{query, cookie, userPref} {
		if m.isSupported(candidate) {
			return candidate
		}
	}
	for _, part := range strings.Split(acceptLang, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if m.isSupported(tag) {
			return tag
		}
	}
	return m.defaultLocale
}

func (m *Manager) isSupported(locale string) bool {
	if locale == "" {
		return false
	}
	if len(m.supportedLocales) == 0 {
		return true
	}
	return m.supportedLocales[locale]
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

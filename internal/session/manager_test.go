package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/cache"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/session"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeStore struct{}

func (s *fakeStore) Begin(ctx context.Context) (store.Tx, error) { return &fakeTx{}, nil }
func (s *fakeStore) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	return nil, nil
}
func (s *fakeStore) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	panic("not used by these fakes")
}
func (s *fakeStore) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	panic("not used by these fakes")
}

type fakeTx struct{}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	return nil, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	panic("not used by these fakes")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	panic("not used by these fakes")
}
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeIssuer struct {
	issue  func(c domain.Claims) (string, domain.Claims, error)
	verify func(raw string, want domain.TokenType) (domain.Claims, error)
}

func (i *fakeIssuer) Issue(c domain.Claims) (string, domain.Claims, error) {
	return i.issue(c)
}

func (i *fakeIssuer) Verify(raw string, want domain.TokenType) (domain.Claims, error) {
	return i.verify(raw, want)
}

func defaultIssuer() *fakeIssuer {
	return &fakeIssuer{
		issue: func(c domain.Claims) (string, domain.Claims, error) {
			if c.JTI == "" {
				c.JTI = "jti-" + string(c.Type)
			}
			c.Expiry = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
			return "signed-" + string(c.Type), c, nil
		},
	}
}

type fakeCache struct {
	available bool
	data      map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{available: true, data: map[string]string{}} }

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.data[key] = value
	return nil
}
func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.data[key]
	return ok, nil
}
func (c *fakeCache) Available() bool { return c.available }

type fakeUserRepo struct {
	store.UserRepository
	byUsername map[string]*domain.User
	roles      map[string][]domain.Role
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, q store.Querier, username string) (*domain.User, error) {
	if u, ok := r.byUsername[username]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeUserRepo) ListRolesForUser(ctx context.Context, q store.Querier, userID string) ([]domain.Role, error) {
	return r.roles[userID], nil
}

type fakeSessionRepo struct {
	store.SessionRepository
	created        []*domain.Session
	byID           map[string]*domain.Session
	active         map[string][]domain.Session
	revokedJTIs    map[string]bool
	revokedSession []string
}

func (r *fakeSessionRepo) Create(ctx context.Context, q store.Querier, s *domain.Session) error {
	r.created = append(r.created, s)
	if r.byID == nil {
		r.byID = map[string]*domain.Session{}
	}
	r.byID[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, q store.Querier, id string) (*domain.Session, error) {
	if s, ok := r.byID[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeSessionRepo) GetForUpdate(ctx context.Context, q store.Querier, id string) (*domain.Session, error) {
	return r.GetByID(ctx, q, id)
}

func (r *fakeSessionRepo) ListActiveByUser(ctx context.Context, q store.Querier, userID string) ([]domain.Session, error) {
	return r.active[userID], nil
}

func (r *fakeSessionRepo) Revoke(ctx context.Context, q store.Querier, id string) error {
	r.revokedSession = append(r.revokedSession, id)
	if s, ok := r.byID[id]; ok {
		s.Revoked = true
	}
	return nil
}

func (r *fakeSessionRepo) Touch(ctx context.Context, q store.Querier, id string, lastSeenAt time.Time) error {
	return nil
}

func (r *fakeSessionRepo) AddRevokedToken(ctx context.Context, q store.Querier, rt *domain.RevokedToken) error {
	return nil
}

func (r *fakeSessionRepo) IsTokenRevoked(ctx context.Context, q store.Querier, jti string) (bool, error) {
	return r.revokedJTIs[jti], nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogin_UnknownUsername_ReturnsInvalidCredentials(t *testing.T) {
	users := &fakeUserRepo{byUsername: map[string]*domain.User{}}
	sess := &fakeSessionRepo{active: map[string][]domain.Session{}}
	m := session.NewManager(&fakeStore{}, users, sess, defaultIssuer(), newFakeCache(),
		fixedClock{now: time.Now()}, session.NewHasher(4), nil, newTestLogger(), session.Config{})

	_, err := m.Login(context.Background(), session.LoginInput{Username: "ghost", Password: "x"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_BlockedAccount_IsRejected(t *testing.T) {
	users := &fakeUserRepo{byUsername: map[string]*domain.User{
		"jdoe": {ID: "u1", Username: "jdoe", IsBlocked: true, IsActive: true},
	}}
	sess := &fakeSessionRepo{active: map[string][]domain.Session{}}
	m := session.NewManager(&fakeStore{}, users, sess, defaultIssuer(), newFakeCache(),
		fixedClock{now: time.Now()}, session.NewHasher(4), nil, newTestLogger(), session.Config{})

	_, err := m.Login(context.Background(), session.LoginInput{Username: "jdoe", Password: "x"})
	if domain.KindOf(err) != domain.KindAuthorization {
		t.Errorf("Kind = %v, want KindAuthorization", domain.KindOf(err))
	}
}

func TestLogin_LocalUser_WrongPassword_IsRejected(t *testing.T) {
	hasher := session.NewHasher(4)
	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	users := &fakeUserRepo{byUsername: map[string]*domain.User{
		"jdoe": {ID: "u1", Username: "jdoe", IsActive: true, PasswordHash: &hash, UserSource: domain.UserSourceManual},
	}}
	sess := &fakeSessionRepo{active: map[string][]domain.Session{}}
	m := session.NewManager(&fakeStore{}, users, sess, defaultIssuer(), newFakeCache(),
		fixedClock{now: time.Now()}, hasher, nil, newTestLogger(), session.Config{})

	_, err = m.Login(context.Background(), session.LoginInput{Username: "jdoe", Password: "wrong-password"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_Success_CreatesSessionAndIssuesTokens(t *testing.T) {
	hasher := session.NewHasher(4)
	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := &fakeUserRepo{
		byUsername: map[string]*domain.User{
			"jdoe": {ID: "u1", Username: "jdoe", IsActive: true, PasswordHash: &hash, UserSource: domain.UserSourceManual},
		},
		roles: map[string][]domain.Role{"u1": {{ID: "r1", NameEN: "admin"}}},
	}
	sess := &fakeSessionRepo{active: map[string][]domain.Session{}}
	m := session.NewManager(&fakeStore{}, users, sess, defaultIssuer(), newFakeCache(),
		fixedClock{now: now}, hasher, nil, newTestLogger(), session.Config{})

	res, err := m.Login(context.Background(), session.LoginInput{Username: "jdoe", Password: "correct-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Access == "" || res.Refresh == "" || res.SessionID == "" {
		t.Errorf("result = %+v", res)
	}
	if len(sess.created) != 1 || sess.created[0].UserID != "u1" {
		t.Errorf("created sessions = %+v", sess.created)
	}
}

func TestLogin_HRISUser_DelegatesToDomainAuthenticator(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := &fakeUserRepo{byUsername: map[string]*domain.User{
		"jdoe": {ID: "u1", Username: "jdoe", IsActive: true, UserSource: domain.UserSourceHRIS},
	}}
	sess := &fakeSessionRepo{active: map[string][]domain.Session{}}
	m := session.NewManager(&fakeStore{}, users, sess, defaultIssuer(), newFakeCache(),
		fixedClock{now: now}, session.NewHasher(4), session.NoopDomainAuthenticator{}, newTestLogger(), session.Config{})

	_, err := m.Login(context.Background(), session.LoginInput{Username: "jdoe", Password: "anything"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("NoopDomainAuthenticator should always reject, got %v", err)
	}
}

func TestLogin_EnforcesConcurrentSessionLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hasher := session.NewHasher(4)
	hash, _ := hasher.Hash("pw")
	users := &fakeUserRepo{byUsername: map[string]*domain.User{
		"jdoe": {ID: "u1", Username: "jdoe", IsActive: true, PasswordHash: &hash, UserSource: domain.UserSourceManual},
	}}
	existing := []domain.Session{
		{ID: "s1", UserID: "u1", ExpiresAt: now.Add(time.Hour)},
		{ID: "s2", UserID: "u1", ExpiresAt: now.Add(time.Hour)},
	}
	sess := &fakeSessionRepo{active: map[string][]domain.Session{"u1": existing}, byID: map[string]*domain.Session{
		"s1": &existing[0], "s2": &existing[1],
	}}
	m := session.NewManager(&fakeStore{}, users, sess, defaultIssuer(), newFakeCache(),
		fixedClock{now: now}, hasher, nil, newTestLogger(), session.Config{MaxConcurrentSessions: 2})

	if _, err := m.Login(context.Background(), session.LoginInput{Username: "jdoe", Password: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	// 2 existing + the new one = 3, max is 2, so exactly one of the two
	// pre-existing sessions must have been revoked.
	if len(sess.revokedSession) != 1 {
		t.Errorf("revoked sessions = %v, want exactly 1", sess.revokedSession)
	}
}

func TestValidate_RevokedJTI_CachedHit_ReturnsRevokedWithoutDBCall(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newFakeCache()
	c.data[cache.KeyRevokedJTI+"jti-access"] = "1"
	issuer := &fakeIssuer{
		verify: func(raw string, want domain.TokenType) (domain.Claims, error) {
			return domain.Claims{UserID: "u1", JTI: "jti-access", Type: domain.TokenTypeAccess}, nil
		},
	}
	sess := &fakeSessionRepo{}
	m := session.NewManager(&fakeStore{}, &fakeUserRepo{}, sess, issuer, c,
		fixedClock{now: now}, session.NewHasher(4), nil, newTestLogger(), session.Config{})

	_, err := m.Validate(context.Background(), "signed-access")
	if !errors.Is(err, domain.ErrRevokedToken) {
		t.Errorf("want ErrRevokedToken, got %v", err)
	}
}

func TestValidate_ValidToken_CachesSnapshot(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newFakeCache()
	issuer := &fakeIssuer{
		verify: func(raw string, want domain.TokenType) (domain.Claims, error) {
			return domain.Claims{UserID: "u1", JTI: "jti-access", Type: domain.TokenTypeAccess, Locale: "en"}, nil
		},
	}
	users := &fakeUserRepo{roles: map[string][]domain.Role{"u1": {{ID: "r1", NameEN: "admin"}}}}
	sess := &fakeSessionRepo{}
	m := session.NewManager(&fakeStore{}, users, sess, issuer, c,
		fixedClock{now: now}, session.NewHasher(4), nil, newTestLogger(), session.Config{})

	claims, err := m.Validate(context.Background(), "signed-access")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("Roles = %v", claims.Roles)
	}
	if _, hit, _ := c.Get(context.Background(), cache.KeySnapshot+"u1:en"); !hit {
		t.Error("expected Validate to populate the snapshot cache")
	}
}

func TestRevoke_MarksSessionRevokedAndCachesInvalidation(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := domain.Session{ID: "s1", UserID: "u1"}
	sess := &fakeSessionRepo{byID: map[string]*domain.Session{"s1": &existing}}
	c := newFakeCache()
	m := session.NewManager(&fakeStore{}, &fakeUserRepo{}, sess, defaultIssuer(), c,
		fixedClock{now: now}, session.NewHasher(4), nil, newTestLogger(), session.Config{})

	if err := m.Revoke(context.Background(), "s1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !existing.Revoked {
		t.Error("session should be marked revoked")
	}
	if _, hit, _ := c.Get(context.Background(), cache.KeyInvalidSession+"s1"); !hit {
		t.Error("expected Revoke to populate the invalid-session cache key")
	}
}

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// SessionRepo implements store.SessionRepository, grounded on the
// internal/infrastructure/postgres/user_repo.go scan-via-interface idiom.
type SessionRepo struct{}

func NewSessionRepo() *SessionRepo { return &SessionRepo{} }

func (r *SessionRepo) Create(ctx context.Context, q store.Querier, s *domain.Session) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return domain.Wrap(domain.KindValidation, "session metadata", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_id, created_at, last_seen_at,
			expires_at, revoked, device_info, ip_address, fingerprint, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.UserID, s.RefreshTokenID, s.CreatedAt, s.LastSeenAt,
		s.ExpiresAt, s.Revoked, s.DeviceInfo, s.IPAddress, s.Fingerprint, meta)
	return translateErr(err)
}

func scanSession(row store.Row) (*domain.Session, error) {
	var s domain.Session
	var meta []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenID, &s.CreatedAt, &s.LastSeenAt,
		&s.ExpiresAt, &s.Revoked, &s.DeviceInfo, &s.IPAddress, &s.Fingerprint, &meta); err != nil {
		return nil, translateErr(err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, domain.Wrap(domain.KindDatabase, "session metadata unmarshal", err)
		}
	}
	return &s, nil
}

const sessionColumns = `id, user_id, refresh_token_id, created_at, last_seen_at,
	expires_at, revoked, device_info, ip_address, fingerprint, metadata`

func (r *SessionRepo) GetByID(ctx context.Context, q store.Querier, id string) (*domain.Session, error) {
	row := q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, q store.Querier, id string) (*domain.Session, error) {
	row := q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	return scanSession(row)
}

func (r *SessionRepo) ListActiveByUser(ctx context.Context, q store.Querier, userID string) ([]domain.Session, error) {
	rows, err := q.Query(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND revoked = false AND expires_at > now()
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, translateErr(rows.Err())
}

func (r *SessionRepo) CountActiveByUser(ctx context.Context, q store.Querier, userID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT count(*) FROM sessions
		WHERE user_id = $1 AND revoked = false AND expires_at > now()`, userID).Scan(&n)
	return n, translateErr(err)
}

func (r *SessionRepo) Revoke(ctx context.Context, q store.Querier, id string) error {
	_, err := q.Exec(ctx, `UPDATE sessions SET revoked = true WHERE id = $1`, id)
	return translateErr(err)
}

func (r *SessionRepo) RevokeAllForUser(ctx context.Context, q store.Querier, userID string) error {
	_, err := q.Exec(ctx, `UPDATE sessions SET revoked = true WHERE user_id = $1 AND revoked = false`, userID)
	return translateErr(err)
}

func (r *SessionRepo) Touch(ctx context.Context, q store.Querier, id string, lastSeenAt time.Time) error {
	_, err := q.Exec(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, lastSeenAt)
	return translateErr(err)
}

func (r *SessionRepo) AddRevokedToken(ctx context.Context, q store.Querier, rt *domain.RevokedToken) error {
	_, err := q.Exec(ctx, `
		INSERT INTO revoked_tokens (jti, token_type, user_id, revoked_at, expires_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (jti) DO NOTHING`,
		rt.JTI, rt.TokenType, rt.UserID, rt.RevokedAt, rt.ExpiresAt)
	return translateErr(err)
}

func (r *SessionRepo) IsTokenRevoked(ctx context.Context, q store.Querier, jti string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&exists)
	return exists, translateErr(err)
}

func (r *SessionRepo) PurgeExpiredRevocations(ctx context.Context, q store.Querier, before time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, translateErr(err)
	}
	return tag.RowsAffected(), nil
}

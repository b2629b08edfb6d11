package postgres

import (
	"context"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// UserRepo implements store.UserRepository, grounded on the
// internal/infrastructure/postgres/user_repo.go.
type UserRepo struct{}

func NewUserRepo() *UserRepo { return &UserRepo{} }

const userColumns = `id, username, password_hash, is_super_admin, is_active, is_blocked,
	user_source, status_override, override_reason, override_set_by, override_set_at,
	employee_id, created_at, updated_at`

func scanUser(row store.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsSuperAdmin, &u.IsActive, &u.IsBlocked,
		&u.UserSource, &u.StatusOverride, &u.OverrideReason, &u.OverrideSetBy, &u.OverrideSetAt,
		&u.EmployeeID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, q store.Querier, id string) (*domain.User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByUsername(ctx context.Context, q store.Querier, username string) (*domain.User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (r *UserRepo) GetByEmployeeID(ctx context.Context, q store.Querier, employeeID string) (*domain.User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE employee_id = $1`, employeeID))
}

func (r *UserRepo) Create(ctx context.Context, q store.Querier, u *domain.User) error {
	_, err := q.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, is_super_admin, is_active, is_blocked,
			user_source, status_override, override_reason, override_set_by, override_set_at,
			employee_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		u.ID, u.Username, u.PasswordHash, u.IsSuperAdmin, u.IsActive, u.IsBlocked,
		u.UserSource, u.StatusOverride, u.OverrideReason, u.OverrideSetBy, u.OverrideSetAt,
		u.EmployeeID, u.CreatedAt, u.UpdatedAt)
	return translateErr(err)
}

func (r *UserRepo) Update(ctx context.Context, q store.Querier, u *domain.User) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET username=$2, password_hash=$3, is_super_admin=$4, is_active=$5,
			is_blocked=$6, user_source=$7, status_override=$8, override_reason=$9,
			override_set_by=$10, override_set_at=$11, employee_id=$12, updated_at=$13
		WHERE id = $1`,
		u.ID, u.Username, u.PasswordHash, u.IsSuperAdmin, u.IsActive, u.IsBlocked,
		u.UserSource, u.StatusOverride, u.OverrideReason, u.OverrideSetBy, u.OverrideSetAt,
		u.EmployeeID, u.UpdatedAt)
	return translateErr(err)
}

func (r *UserRepo) SetActive(ctx context.Context, q store.Querier, id string, active bool) error {
	_, err := q.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	return translateErr(err)
}

func (r *UserRepo) ListRolesForUser(ctx context.Context, q store.Querier, userID string) ([]domain.Role, error) {
	rows, err := q.Query(ctx, `
		SELECT r.id, r.name_en, r.name_ar, r.desc_en, r.desc_ar, r.is_active, r.created_at, r.updated_at
		FROM roles r JOIN role_permissions rp ON rp.role_id = r.id
		WHERE rp.user_id = $1 AND r.is_active = true`, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.NameEN, &role.NameAR, &role.DescEN, &role.DescAR,
			&role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, role)
	}
	return out, translateErr(rows.Err())
}

func (r *UserRepo) ListPermissionsForRole(ctx context.Context, q store.Querier, roleID string) ([]domain.PagePermission, error) {
	rows, err := q.Query(ctx, `
		SELECT id, role_id, page_id, created_by FROM page_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.PagePermission
	for rows.Next() {
		var p domain.PagePermission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.PageID, &p.CreatedBy); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, p)
	}
	return out, translateErr(rows.Err())
}

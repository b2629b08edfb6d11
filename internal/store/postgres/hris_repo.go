package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// HRISRepo implements store.HRISRepository. Bulk upserts build one
// multi-row INSERT ... VALUES (...),(...) ON CONFLICT statement per chunk,
// the same batching shape as attempt_repo.go's bulk insert,
// scaled here to feeds of 10,000+ employee rows.
type HRISRepo struct{}

func NewHRISRepo() *HRISRepo { return &HRISRepo{} }

const hrisChunkSize = 2000

func (r *HRISRepo) GetEmployeeByID(ctx context.Context, q store.Querier, id string) (*domain.Employee, error) {
	var e domain.Employee
	err := q.QueryRow(ctx, `
		SELECT id, code, name_en, name_ar, title, is_active, department_id, created_at, updated_at
		FROM employees WHERE id = $1`, id).
		Scan(&e.ID, &e.Code, &e.NameEN, &e.NameAR, &e.Title, &e.IsActive, &e.DepartmentID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &e, nil
}

func (r *HRISRepo) ListEmployees(ctx context.Context, q store.Querier) ([]domain.Employee, error) {
	rows, err := q.Query(ctx, `
		SELECT id, code, name_en, name_ar, title, is_active, department_id, created_at, updated_at
		FROM employees`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.Employee
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.Code, &e.NameEN, &e.NameAR, &e.Title, &e.IsActive,
			&e.DepartmentID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, e)
	}
	return out, translateErr(rows.Err())
}

// ListEmployeesByCodes resolves a batch of Employee.code values to their
// rows, chunked the same way DeactivateEmployeesNotIn chunks its IN (...)
// so an attendance sync batch of 10,000+ codes never exceeds Postgres's
// parameter limit.
func (r *HRISRepo) ListEmployeesByCodes(ctx context.Context, q store.Querier, codes []string) ([]domain.Employee, error) {
	var out []domain.Employee
	for _, chunk := range store.ChunkIDs(codes, hrisChunkSize) {
		placeholders, args := idPlaceholders(chunk)
		rows, err := q.Query(ctx, `
			SELECT id, code, name_en, name_ar, title, is_active, department_id, created_at, updated_at
			FROM employees WHERE code IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, translateErr(err)
		}
		for rows.Next() {
			var e domain.Employee
			if err := rows.Scan(&e.ID, &e.Code, &e.NameEN, &e.NameAR, &e.Title, &e.IsActive,
				&e.DepartmentID, &e.CreatedAt, &e.UpdatedAt); err != nil {
				rows.Close()
				return nil, translateErr(err)
			}
			out = append(out, e)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, translateErr(err)
		}
	}
	return out, nil
}

// UpsertEmployees writes in chunks of hrisChunkSize rows per statement so a
// full-company feed never exceeds Postgres's parameter limit.
func (r *HRISRepo) UpsertEmployees(ctx context.Context, q store.Querier, employees []domain.Employee) (int, int, error) {
	var created, updated int
	for _, chunk := range chunkEmployees(employees, hrisChunkSize) {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO employees (id, code, name_en, name_ar, title, is_active, department_id, created_at, updated_at) VALUES `)
		args := make([]any, 0, len(chunk)*9)
		for i, e := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			base := len(args)
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
			args = append(args, e.ID, e.Code, e.NameEN, e.NameAR, e.Title, e.IsActive, e.DepartmentID, e.CreatedAt, e.UpdatedAt)
		}
		sb.WriteString(` ON CONFLICT (id) DO UPDATE SET code=excluded.code, name_en=excluded.name_en,
			name_ar=excluded.name_ar, title=excluded.title, is_active=excluded.is_active,
			department_id=excluded.department_id, updated_at=excluded.updated_at
			RETURNING (xmax = 0) AS inserted`)

		rows, err := q.Query(ctx, sb.String(), args...)
		if err != nil {
			return created, updated, translateErr(err)
		}
		for rows.Next() {
			var inserted bool
			if err := rows.Scan(&inserted); err != nil {
				rows.Close()
				return created, updated, translateErr(err)
			}
			if inserted {
				created++
			} else {
				updated++
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return created, updated, translateErr(err)
		}
	}
	return created, updated, nil
}

func chunkEmployees(employees []domain.Employee, size int) [][]domain.Employee {
	var chunks [][]domain.Employee
	for len(employees) > 0 {
		n := size
		if n > len(employees) {
			n = len(employees)
		}
		chunks = append(chunks, employees[:n])
		employees = employees[n:]
	}
	return chunks
}

func (r *HRISRepo) DeactivateEmployeesNotIn(ctx context.Context, q store.Querier, liveIDs []string) (int64, error) {
	var total int64
	for _, chunk := range store.ChunkIDs(liveIDs, hrisChunkSize) {
		placeholders, args := idPlaceholders(chunk)
		tag, err := q.Exec(ctx, `UPDATE employees SET is_active = false, updated_at = now()
			WHERE is_active = true AND id NOT IN (`+placeholders+`)`, args...)
		if err != nil {
			return total, translateErr(err)
		}
		total += tag.RowsAffected()
	}
	if len(liveIDs) == 0 {
		tag, err := q.Exec(ctx, `UPDATE employees SET is_active = false, updated_at = now() WHERE is_active = true`)
		if err != nil {
			return total, translateErr(err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func idPlaceholders(ids []string) (string, []any) {
	parts := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(parts, ","), args
}

func (r *HRISRepo) ListDepartments(ctx context.Context, q store.Querier) ([]domain.Department, error) {
	rows, err := q.Query(ctx, `SELECT id, name_en, name_ar, parent_id, created_at, updated_at FROM departments`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.Department
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.NameEN, &d.NameAR, &d.ParentID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, d)
	}
	return out, translateErr(rows.Err())
}

// UpsertDepartments is called twice per replication pass:
// once with ParentID nil so every row exists before any FK is set, once
// more with ParentID populated.
func (r *HRISRepo) UpsertDepartments(ctx context.Context, q store.Querier, departments []domain.Department) (int, int, error) {
	var created, updated int
	for _, d := range departments {
		var inserted bool
		err := q.QueryRow(ctx, `
			INSERT INTO departments (id, name_en, name_ar, parent_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO UPDATE SET name_en=$2, name_ar=$3, parent_id=$4, updated_at=$6
			RETURNING (xmax = 0)`,
			d.ID, d.NameEN, d.NameAR, d.ParentID, d.CreatedAt, d.UpdatedAt).Scan(&inserted)
		if err != nil {
			return created, updated, translateErr(err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

func (r *HRISRepo) ListSecurityUsers(ctx context.Context, q store.Querier) ([]domain.SecurityUser, error) {
	rows, err := q.Query(ctx, `SELECT external_id, username, employee_id, is_deleted, is_locked FROM security_users`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.SecurityUser
	for rows.Next() {
		var s domain.SecurityUser
		if err := rows.Scan(&s.ExternalID, &s.Username, &s.EmployeeID, &s.IsDeleted, &s.IsLocked); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, s)
	}
	return out, translateErr(rows.Err())
}

// UpsertSecurityUsers mirrors the external security/account feed one row
// at a time — this table is small relative to employees, so it skips the
// chunked multi-row INSERT UpsertEmployees uses.
func (r *HRISRepo) UpsertSecurityUsers(ctx context.Context, q store.Querier, users []domain.SecurityUser) (int, int, error) {
	var created, updated int
	for _, su := range users {
		var inserted bool
		err := q.QueryRow(ctx, `
			INSERT INTO security_users (external_id, username, employee_id, is_deleted, is_locked)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (external_id) DO UPDATE SET
				username=$2, employee_id=$3, is_deleted=$4, is_locked=$5
			RETURNING (xmax = 0)`,
			su.ExternalID, su.Username, su.EmployeeID, su.IsDeleted, su.IsLocked).Scan(&inserted)
		if err != nil {
			return created, updated, translateErr(err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

func (r *HRISRepo) DeactivateSecurityUsersNotIn(ctx context.Context, q store.Querier, liveExternalIDs []string) (int64, error) {
	if len(liveExternalIDs) == 0 {
		tag, err := q.Exec(ctx, `UPDATE security_users SET is_deleted = true WHERE is_deleted = false`)
		if err != nil {
			return 0, translateErr(err)
		}
		return tag.RowsAffected(), nil
	}
	placeholders, args := idPlaceholders(liveExternalIDs)
	tag, err := q.Exec(ctx, `UPDATE security_users SET is_deleted = true
		WHERE is_deleted = false AND external_id NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, translateErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *HRISRepo) DeactivateAllHRISAssignments(ctx context.Context, q store.Querier) (int64, error) {
	tag, err := q.Exec(ctx, `UPDATE department_assignments SET is_active = false, updated_at = now()
		WHERE is_synced_from_hris = true AND is_active = true`)
	if err != nil {
		return 0, translateErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *HRISRepo) ListAssignments(ctx context.Context, q store.Querier, userID string) ([]domain.DepartmentAssignment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, department_id, user_id, is_synced_from_hris, is_active, created_at, updated_at
		FROM department_assignments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.DepartmentAssignment
	for rows.Next() {
		var a domain.DepartmentAssignment
		if err := rows.Scan(&a.ID, &a.DepartmentID, &a.UserID, &a.IsSyncedFromHRIS, &a.IsActive,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, a)
	}
	return out, translateErr(rows.Err())
}

func (r *HRISRepo) UpsertAssignment(ctx context.Context, q store.Querier, a *domain.DepartmentAssignment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO department_assignments (id, department_id, user_id, is_synced_from_hris, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id, department_id) DO UPDATE SET
			is_synced_from_hris = $4, is_active = $5, updated_at = $7`,
		a.ID, a.DepartmentID, a.UserID, a.IsSyncedFromHRIS, a.IsActive, a.CreatedAt, a.UpdatedAt)
	return translateErr(err)
}

// DeactivateHRISAssignmentsNotIn only ever touches rows with
// is_synced_from_hris = true — a manually-granted assignment is never
// revoked by a replication pass.
func (r *HRISRepo) DeactivateHRISAssignmentsNotIn(ctx context.Context, q store.Querier, userID string, liveDeptIDs []string) (int64, error) {
	args := make([]any, 0, len(liveDeptIDs)+1)
	args = append(args, userID)
	clause := "false"
	if len(liveDeptIDs) > 0 {
		placeholders := make([]string, len(liveDeptIDs))
		for i, id := range liveDeptIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, id)
		}
		clause = "department_id NOT IN (" + strings.Join(placeholders, ",") + ")"
	}
	tag, err := q.Exec(ctx, `
		UPDATE department_assignments SET is_active = false, updated_at = now()
		WHERE user_id = $1 AND is_synced_from_hris = true AND is_active = true AND `+clause, args...)
	if err != nil {
		return 0, translateErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *HRISRepo) RecordReplicationSummary(ctx context.Context, q store.Querier, s *domain.ReplicationSummary) error {
	_, err := q.Exec(ctx, `
		INSERT INTO replication_log (phase, records_processed, records_created, records_updated,
			records_skipped, records_failed, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7, now())`,
		s.Phase, s.RecordsProcessed, s.RecordsCreated, s.RecordsUpdated, s.RecordsSkipped, s.RecordsFailed, s.DurationMS)
	return translateErr(err)
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// MealRequestRepo implements store.MealRequestRepository, grounded on the
// teacher's internal/infrastructure/postgres/job_repo.go for the
// optimistic-concurrency UPDATE ... WHERE status = $expected idiom.
type MealRequestRepo struct{}

func NewMealRequestRepo() *MealRequestRepo { return &MealRequestRepo{} }

const mealRequestColumns = `id, requester_id, status_id, meal_type_id, request_time, notes,
	closed_by_id, closed_time, is_deleted, original_request_id, created_at, updated_at`

func scanMealRequest(row store.Row) (*domain.MealRequest, error) {
	var m domain.MealRequest
	if err := row.Scan(&m.ID, &m.RequesterID, &m.StatusID, &m.MealTypeID, &m.RequestTime, &m.Notes,
		&m.ClosedByID, &m.ClosedTime, &m.IsDeleted, &m.OriginalRequestID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	return &m, nil
}

func (r *MealRequestRepo) Create(ctx context.Context, q store.Querier, m *domain.MealRequest) error {
	_, err := q.Exec(ctx, `
		INSERT INTO meal_requests (id, requester_id, status_id, meal_type_id, request_time, notes,
			closed_by_id, closed_time, is_deleted, original_request_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		m.ID, m.RequesterID, m.StatusID, m.MealTypeID, m.RequestTime, m.Notes,
		m.ClosedByID, m.ClosedTime, m.IsDeleted, m.OriginalRequestID, m.CreatedAt, m.UpdatedAt)
	return translateErr(err)
}

func (r *MealRequestRepo) GetByID(ctx context.Context, q store.Querier, id string) (*domain.MealRequest, error) {
	return scanMealRequest(q.QueryRow(ctx, `SELECT `+mealRequestColumns+` FROM meal_requests WHERE id = $1 AND is_deleted = false`, id))
}

func (r *MealRequestRepo) GetForUpdate(ctx context.Context, q store.Querier, id string) (*domain.MealRequest, error) {
	return scanMealRequest(q.QueryRow(ctx, `SELECT `+mealRequestColumns+` FROM meal_requests WHERE id = $1 FOR UPDATE`, id))
}

// UpdateStatus is the optimistic-concurrency transition: it only applies
// when the row's current status still matches expected, so two concurrent
// approvals of the same request cannot both succeed.
func (r *MealRequestRepo) UpdateStatus(ctx context.Context, q store.Querier, id string, expected, next domain.MealRequestStatus, closedByID *string, closedAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE meal_requests
		SET status_id = $3, closed_by_id = $4, closed_time = $5, updated_at = $5
		WHERE id = $1 AND status_id = $2 AND is_deleted = false`,
		id, expected, next, closedByID, closedAt)
	if err != nil {
		return false, translateErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindPendingByChainRoot matches either the request itself being the chain
// root, or any copy whose original_request_id points at it.
func (r *MealRequestRepo) FindPendingByChainRoot(ctx context.Context, q store.Querier, requesterID, chainRootID string) (*domain.MealRequest, error) {
	return scanMealRequest(q.QueryRow(ctx, `
		SELECT `+mealRequestColumns+` FROM meal_requests
		WHERE requester_id = $1 AND is_deleted = false AND status_id = $2
		AND (id = $3 OR original_request_id = $3)
		LIMIT 1`, requesterID, domain.MealRequestPending, chainRootID))
}

func (r *MealRequestRepo) SoftDelete(ctx context.Context, q store.Querier, id string) error {
	_, err := q.Exec(ctx, `UPDATE meal_requests SET is_deleted = true, updated_at = now() WHERE id = $1`, id)
	return translateErr(err)
}

// ListSummaries is the bilingual listing join: requester username and
// meal-type bilingual name joined onto each request, with per-request line
// counts, excluding any request left with zero active lines — grounded on
// original_source's read_meal_request_for_request_details_page, which joins
// User/MealType/MealRequestLine the same way and applies the same
// HAVING count(lines) > 0 exclusion.
func (r *MealRequestRepo) ListSummaries(ctx context.Context, q store.Querier, f store.MealRequestFilter) ([]domain.MealRequestSummary, error) {
	sql := `
		SELECT m.id, m.status_id, m.requester_id, u.username, m.meal_type_id,
			mt.name_en, mt.name_ar, m.request_time, m.notes, m.closed_time,
			COUNT(l.id) AS total_lines,
			COALESCE(SUM(CASE WHEN l.is_accepted THEN 1 ELSE 0 END), 0) AS accepted_lines
		FROM meal_requests m
		JOIN users u ON u.id = m.requester_id
		JOIN meal_types mt ON mt.id = m.meal_type_id
		LEFT JOIN meal_request_lines l ON l.meal_request_id = m.id AND l.is_deleted = false
		WHERE m.is_deleted = false`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		sql += ` AND m.status_id = ` + arg(*f.Status)
	}
	// Requester filter, per spec.md §4.9: a UUID is matched exactly
	// against requester_id (the "my requests" case); anything else is a
	// case-insensitive substring search against the requester's username
	// (the admin search-by-name case).
	if f.RequesterFilter != nil {
		if v := strings.TrimSpace(*f.RequesterFilter); v != "" {
			if _, err := uuid.Parse(v); err == nil {
				sql += ` AND m.requester_id = ` + arg(v)
			} else {
				sql += ` AND u.username ILIKE ` + arg("%"+v+"%")
			}
		}
	}
	if f.From != nil {
		sql += ` AND m.request_time >= ` + arg(*f.From)
	}
	if f.To != nil {
		sql += ` AND m.request_time < ` + arg(*f.To)
	}
	if f.VisibleDepartments != nil {
		placeholders := make([]string, 0, len(f.VisibleDepartments))
		for _, d := range f.VisibleDepartments {
			placeholders = append(placeholders, arg(d))
		}
		if len(placeholders) == 0 {
			// explicit empty scope: caller may see nothing
			sql += ` AND false`
		} else {
			// Visibility is keyed on the employee of each line, not the
			// requester: a manager submitting requests for employees
			// across departments must see/hide per-line, not per-submitter.
			sql += ` AND EXISTS (
				SELECT 1 FROM meal_request_lines vl
				JOIN employees ve ON ve.id = vl.employee_id
				WHERE vl.meal_request_id = m.id AND vl.is_deleted = false
				AND ve.department_id IN (` + strings.Join(placeholders, ",") + `))`
		}
	}
	sql += `
		GROUP BY m.id, u.id, mt.id
		HAVING COUNT(l.id) > 0
		ORDER BY m.request_time DESC`
	if f.Limit > 0 {
		sql += ` LIMIT ` + arg(f.Limit)
	}
	if f.Offset > 0 {
		sql += ` OFFSET ` + arg(f.Offset)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.MealRequestSummary
	for rows.Next() {
		var s domain.MealRequestSummary
		if err := rows.Scan(&s.MealRequestID, &s.StatusID, &s.RequesterID, &s.RequesterName, &s.MealTypeID,
			&s.MealTypeNameEN, &s.MealTypeNameAR, &s.RequestTime, &s.Notes, &s.ClosedTime,
			&s.TotalLines, &s.AcceptedLines); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, s)
	}
	return out, translateErr(rows.Err())
}

func (r *MealRequestRepo) CreateLine(ctx context.Context, q store.Querier, l *domain.MealRequestLine) error {
	_, err := q.Exec(ctx, `
		INSERT INTO meal_request_lines (id, meal_request_id, employee_id, employee_code,
			attendance_time, shift_hours, notes, is_accepted, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		l.ID, l.MealRequestID, l.EmployeeID, l.EmployeeCode, l.AttendanceTime, l.ShiftHours,
		l.Notes, l.IsAccepted, l.IsDeleted, l.CreatedAt, l.UpdatedAt)
	return translateErr(err)
}

func (r *MealRequestRepo) ListLines(ctx context.Context, q store.Querier, mealRequestID string) ([]domain.MealRequestLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, meal_request_id, employee_id, employee_code, attendance_time, shift_hours,
			notes, is_accepted, is_deleted, created_at, updated_at
		FROM meal_request_lines WHERE meal_request_id = $1 AND is_deleted = false`, mealRequestID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.MealRequestLine
	for rows.Next() {
		var l domain.MealRequestLine
		if err := rows.Scan(&l.ID, &l.MealRequestID, &l.EmployeeID, &l.EmployeeCode, &l.AttendanceTime,
			&l.ShiftHours, &l.Notes, &l.IsAccepted, &l.IsDeleted, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, l)
	}
	return out, translateErr(rows.Err())
}

func (r *MealRequestRepo) SoftDeleteLines(ctx context.Context, q store.Querier, mealRequestID string) error {
	_, err := q.Exec(ctx, `UPDATE meal_request_lines SET is_deleted = true, updated_at = now() WHERE meal_request_id = $1`, mealRequestID)
	return translateErr(err)
}

func (r *MealRequestRepo) SetLineAccepted(ctx context.Context, q store.Querier, lineID string, accepted bool) error {
	_, err := q.Exec(ctx, `UPDATE meal_request_lines SET is_accepted = $2, updated_at = now() WHERE id = $1`, lineID, accepted)
	return translateErr(err)
}

// UpsertLineAttendance writes only when the computed values actually
// differ from what is stored, matching the Python original's
// write-only-when-changed idempotency.
func (r *MealRequestRepo) UpsertLineAttendance(ctx context.Context, q store.Querier, a *domain.MealRequestLineAttendance) (bool, error) {
	var existingIn, existingOut *time.Time
	var existingHours *float64
	err := q.QueryRow(ctx, `
		SELECT attendance_in, attendance_out, working_hours
		FROM meal_request_line_attendance WHERE meal_request_line_id = $1`, a.MealRequestLineID).
		Scan(&existingIn, &existingOut, &existingHours)

	unchanged := err == nil &&
		timePtrEqual(existingIn, a.AttendanceIn) &&
		timePtrEqual(existingOut, a.AttendanceOut) &&
		floatPtrEqual(existingHours, a.WorkingHours)
	if unchanged {
		return false, nil
	}

	_, execErr := q.Exec(ctx, `
		INSERT INTO meal_request_line_attendance (id, meal_request_line_id, employee_code,
			attendance_date, attendance_in, attendance_out, working_hours, attendance_synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (meal_request_line_id) DO UPDATE SET
			attendance_in = $5, attendance_out = $6, working_hours = $7, attendance_synced_at = now()`,
		a.ID, a.MealRequestLineID, a.EmployeeCode, a.AttendanceDate, a.AttendanceIn, a.AttendanceOut, a.WorkingHours)
	if execErr != nil {
		return false, translateErr(execErr)
	}
	return true, nil
}

func (r *MealRequestRepo) ListLinesMissingAttendance(ctx context.Context, q store.Querier, since time.Time) ([]store.LineForAttendance, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.meal_request_id, l.employee_id, l.employee_code, l.attendance_time,
			l.shift_hours, l.notes, l.is_accepted, l.is_deleted, l.created_at, l.updated_at, m.request_time
		FROM meal_request_lines l
		JOIN meal_requests m ON m.id = l.meal_request_id
		LEFT JOIN meal_request_line_attendance a ON a.meal_request_line_id = l.id
		WHERE l.is_deleted = false AND m.is_deleted = false AND m.request_time >= $1
		AND (a.id IS NULL OR a.attendance_synced_at < l.updated_at)`, since)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []store.LineForAttendance
	for rows.Next() {
		var l store.LineForAttendance
		if err := rows.Scan(&l.ID, &l.MealRequestID, &l.EmployeeID, &l.EmployeeCode, &l.AttendanceTime,
			&l.ShiftHours, &l.Notes, &l.IsAccepted, &l.IsDeleted, &l.CreatedAt, &l.UpdatedAt, &l.RequestTime); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, l)
	}
	return out, translateErr(rows.Err())
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package postgres

import (
	"context"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// SchedulerRepo implements store.SchedulerRepository. The lock-claim query
// is adapted directly from job_repo.go's ClaimAndFire: a FOR UPDATE SKIP
// LOCKED probe of the job's lock row followed by an insert that only
// succeeds when no unreleased lock row exists, so competing schedulers never
// block on each other, they just lose the race silently.
type SchedulerRepo struct{}

func NewSchedulerRepo() *SchedulerRepo { return &SchedulerRepo{} }

func scanJob(row store.Row) (*domain.ScheduledJob, error) {
	var j domain.ScheduledJob
	var seconds, minutes, hours, days *int
	if err := row.Scan(&j.ID, &j.TaskFunctionID, &j.JobTypeID, &seconds, &minutes, &hours, &days,
		&j.CronExpr, &j.Priority, &j.MaxInstances, &j.MisfireGraceTime, &j.Coalesce,
		&j.IsEnabled, &j.IsActive, &j.IsPrimary, &j.LastRunAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	if seconds != nil {
		j.Interval = &domain.Interval{Seconds: *seconds, Minutes: deref(minutes), Hours: deref(hours), Days: deref(days)}
	}
	return &j, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

const jobColumns = `id, task_function_id, job_type_id, interval_seconds, interval_minutes,
	interval_hours, interval_days, cron_expr, priority, max_instances, misfire_grace_time,
	coalesce, is_enabled, is_active, is_primary, last_run_at, created_at, updated_at`

func (r *SchedulerRepo) ListEnabledJobs(ctx context.Context, q store.Querier) ([]domain.ScheduledJob, error) {
	rows, err := q.Query(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs
		WHERE is_enabled = true AND is_active = true ORDER BY priority DESC`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, translateErr(rows.Err())
}

func (r *SchedulerRepo) GetJob(ctx context.Context, q store.Querier, id string) (*domain.ScheduledJob, error) {
	return scanJob(q.QueryRow(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = $1`, id))
}

func (r *SchedulerRepo) GetJobForUpdate(ctx context.Context, q store.Querier, id string) (*domain.ScheduledJob, error) {
	return scanJob(q.QueryRow(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = $1 FOR UPDATE`, id))
}

func (r *SchedulerRepo) UpdateLastRun(ctx context.Context, q store.Querier, id string, at time.Time) error {
	_, err := q.Exec(ctx, `UPDATE scheduled_jobs SET last_run_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	return translateErr(err)
}

func (r *SchedulerRepo) CreateExecution(ctx context.Context, q store.Querier, e *domain.ScheduledJobExecution) error {
	_, err := q.Exec(ctx, `
		INSERT INTO scheduled_job_executions (id, job_id, execution_id, scheduled_at, started_at,
			completed_at, duration_ms, status_id, error_message, error_traceback, result_summary,
			executor_id, host_name, triggered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.JobID, e.ExecutionID, e.ScheduledAt, e.StartedAt, e.CompletedAt, e.DurationMS,
		e.StatusID, e.ErrorMessage, e.ErrorTraceback, e.ResultSummary, e.ExecutorID, e.HostName, e.TriggeredBy)
	return translateErr(err)
}

func (r *SchedulerRepo) MarkExecutionStarted(ctx context.Context, q store.Querier, id string, startedAt time.Time) error {
	_, err := q.Exec(ctx, `UPDATE scheduled_job_executions SET started_at = $2 WHERE id = $1`, id, startedAt)
	return translateErr(err)
}

func (r *SchedulerRepo) AppendExecutionSummary(ctx context.Context, q store.Querier, id string, note string) error {
	_, err := q.Exec(ctx, `
		UPDATE scheduled_job_executions
		SET result_summary = COALESCE(result_summary || E'\n', '') || $2
		WHERE id = $1`, id, note)
	return translateErr(err)
}

func (r *SchedulerRepo) GetActiveExecutionForJob(ctx context.Context, q store.Querier, jobID string) (*domain.ScheduledJobExecution, error) {
	row := q.QueryRow(ctx, `
		SELECT id, job_id, execution_id, scheduled_at, started_at, completed_at, duration_ms,
			status_id, error_message, error_traceback, result_summary, executor_id, host_name, triggered_by
		FROM scheduled_job_executions
		WHERE job_id = $1 AND status_id IN ('pending','running') LIMIT 1`, jobID)
	var e domain.ScheduledJobExecution
	err := row.Scan(&e.ID, &e.JobID, &e.ExecutionID, &e.ScheduledAt, &e.StartedAt, &e.CompletedAt,
		&e.DurationMS, &e.StatusID, &e.ErrorMessage, &e.ErrorTraceback, &e.ResultSummary,
		&e.ExecutorID, &e.HostName, &e.TriggeredBy)
	if err != nil {
		return nil, translateErr(err)
	}
	return &e, nil
}

func (r *SchedulerRepo) CompleteExecution(ctx context.Context, q store.Querier, id string, status domain.ExecutionStatus, summary, errMsg *string, durationMS int64) error {
	_, err := q.Exec(ctx, `
		UPDATE scheduled_job_executions
		SET status_id = $2, result_summary = $3, error_message = $4, completed_at = now(), duration_ms = $5
		WHERE id = $1`, id, status, summary, errMsg, durationMS)
	return translateErr(err)
}

func (r *SchedulerRepo) ListExecutions(ctx context.Context, q store.Querier, jobID string, limit int) ([]domain.ScheduledJobExecution, error) {
	rows, err := q.Query(ctx, `
		SELECT id, job_id, execution_id, scheduled_at, started_at, completed_at, duration_ms,
			status_id, error_message, error_traceback, result_summary, executor_id, host_name, triggered_by
		FROM scheduled_job_executions WHERE job_id = $1 ORDER BY scheduled_at DESC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.ScheduledJobExecution
	for rows.Next() {
		var e domain.ScheduledJobExecution
		if err := rows.Scan(&e.ID, &e.JobID, &e.ExecutionID, &e.ScheduledAt, &e.StartedAt, &e.CompletedAt,
			&e.DurationMS, &e.StatusID, &e.ErrorMessage, &e.ErrorTraceback, &e.ResultSummary,
			&e.ExecutorID, &e.HostName, &e.TriggeredBy); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, e)
	}
	return out, translateErr(rows.Err())
}

func (r *SchedulerRepo) PurgeOldExecutions(ctx context.Context, q store.Querier, before time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM scheduled_job_executions WHERE scheduled_at < $1`, before)
	if err != nil {
		return 0, translateErr(err)
	}
	return tag.RowsAffected(), nil
}

// AcquireLock mirrors job_repo.go's ClaimAndFire: lock the candidate row
// (if any) with FOR UPDATE SKIP LOCKED; a row past its expiry is released,
// then a fresh lock is inserted if no unreleased row remains. Losing the SKIP LOCKED race, or finding a
// live row held by someone else, both return ok=false with no error —
// exactly the periodic "another instance is running this job" path that
// must not persist a failed execution row.
func (r *SchedulerRepo) AcquireLock(ctx context.Context, q store.Querier, jobID, executionID, executorID, hostName string, ttl time.Duration) (bool, error) {
	var existingExpiresAt *time.Time
	err := q.QueryRow(ctx, `
		SELECT expires_at FROM scheduled_job_locks
		WHERE job_id = $1 AND released_at IS NULL
		FOR UPDATE SKIP LOCKED`, jobID).Scan(&existingExpiresAt)

	switch {
	case err == nil:
		if existingExpiresAt != nil && existingExpiresAt.After(timeNow()) {
			return false, nil // live lock held by someone else
		}
		// expired but unreleased: release it so the insert below can claim the job
		if _, err := q.Exec(ctx, `
			UPDATE scheduled_job_locks SET released_at = now()
			WHERE job_id = $1 AND released_at IS NULL`, jobID); err != nil {
			return false, translateErr(err)
		}
	case isNoRows(err):
		// no lock row at all, fall through to insert
	default:
		return false, translateErr(err)
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO scheduled_job_locks (id, job_id, execution_id, executor_id, host_name, acquired_at, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, now(), now() + $5::interval)
		ON CONFLICT (job_id) WHERE released_at IS NULL DO NOTHING`,
		jobID, executionID, executorID, hostName, ttl.String())
	if err != nil {
		return false, translateErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SchedulerRepo) ReleaseLock(ctx context.Context, q store.Querier, jobID, executorID string) error {
	_, err := q.Exec(ctx, `
		UPDATE scheduled_job_locks SET released_at = now()
		WHERE job_id = $1 AND executor_id = $2 AND released_at IS NULL`, jobID, executorID)
	return translateErr(err)
}

func (r *SchedulerRepo) ReapExpiredLocks(ctx context.Context, q store.Querier, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE scheduled_job_locks SET released_at = $1
		WHERE released_at IS NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, translateErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *SchedulerRepo) UpsertInstance(ctx context.Context, q store.Querier, inst *domain.SchedulerInstance) error {
	_, err := q.Exec(ctx, `
		INSERT INTO scheduler_instances (id, instance_name, host_name, process_id, mode, status,
			last_heartbeat, started_at, stopped_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET status = $6, last_heartbeat = $7, stopped_at = $9`,
		inst.ID, inst.InstanceName, inst.HostName, inst.ProcessID, inst.Mode, inst.Status,
		inst.LastHeartbeat, inst.StartedAt, inst.StoppedAt)
	return translateErr(err)
}

func (r *SchedulerRepo) Heartbeat(ctx context.Context, q store.Querier, instanceID string, at time.Time) error {
	_, err := q.Exec(ctx, `UPDATE scheduler_instances SET last_heartbeat = $2 WHERE id = $1`, instanceID, at)
	return translateErr(err)
}

func (r *SchedulerRepo) ListStaleInstances(ctx context.Context, q store.Querier, staleBefore time.Time) ([]domain.SchedulerInstance, error) {
	rows, err := q.Query(ctx, `
		SELECT id, instance_name, host_name, process_id, mode, status, last_heartbeat, started_at, stopped_at
		FROM scheduler_instances WHERE status = 'running' AND last_heartbeat < $1`, staleBefore)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.SchedulerInstance
	for rows.Next() {
		var si domain.SchedulerInstance
		if err := rows.Scan(&si.ID, &si.InstanceName, &si.HostName, &si.ProcessID, &si.Mode, &si.Status,
			&si.LastHeartbeat, &si.StartedAt, &si.StoppedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, si)
	}
	return out, translateErr(rows.Err())
}

func (r *SchedulerRepo) MarkInstanceStopped(ctx context.Context, q store.Querier, instanceID string, at time.Time) error {
	_, err := q.Exec(ctx, `UPDATE scheduler_instances SET status = 'stopped', stopped_at = $2 WHERE id = $1`, instanceID, at)
	return translateErr(err)
}

func (r *SchedulerRepo) ListTaskFunctions(ctx context.Context, q store.Querier) ([]domain.TaskFunction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, key, function_path, name_en, name_ar, desc_en, desc_ar, is_active
		FROM task_functions WHERE is_active = true`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []domain.TaskFunction
	for rows.Next() {
		var t domain.TaskFunction
		if err := rows.Scan(&t.ID, &t.Key, &t.FunctionPath, &t.NameEN, &t.NameAR, &t.DescEN, &t.DescAR, &t.IsActive); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, t)
	}
	return out, translateErr(rows.Err())
}

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

// pollOnce evaluates every enabled job for due-ness and fires each due job
// in (priority DESC, created_at DESC) order.
func (s *Scheduler) pollOnce(ctx context.Context) {
	jobs, err := s.repo.ListEnabledJobs(ctx, s.store)
	if err != nil {
		s.logger.Error("list enabled jobs failed", "error", err)
		return
	}
	now := s.clk.Now()

	var due []domain.ScheduledJob
	for _, j := range jobs {
		if _, ok := s.taskFuncByID[j.TaskFunctionID]; !ok {
			s.logger.Warn("job references unknown or inactive task function, skipping", "job_id", j.ID)
			continue
		}
		isDue, skippedFireTime := s.evaluateDue(&j, now)
		if isDue {
			due = append(due, j)
			continue
		}
		if !skippedFireTime.IsZero() {
			// Past misfire_grace_time with coalesce off: drop only this
			// missed occurrence by advancing last_run_at to it, so
			// nextFireTime moves on to the following slot instead of
			// recomputing the same missed one forever.
			s.logger.Warn("firing missed past misfire grace, advancing past it", "job_id", j.ID, "missed_fire_time", skippedFireTime)
			if err := s.repo.UpdateLastRun(ctx, s.store, j.ID, skippedFireTime); err != nil {
				s.logger.Error("advance last run past missed firing failed", "job_id", j.ID, "error", err)
			}
		}
	}
	sort.SliceStable(due, func(i, k int) bool {
		if due[i].Priority != due[k].Priority {
			return due[i].Priority > due[k].Priority
		}
		return due[i].CreatedAt.After(due[k].CreatedAt)
	})

	// Each due job fires in its own goroutine so a long-running periodic
	// job never delays the next poll tick or a sibling job's dispatch —
	// the lock, not this loop, is what bounds per-job concurrency.
	for i := range due {
		job := due[i]
		go func() {
			if err := s.fireJob(ctx, &job, nil); err != nil {
				s.logger.Error("fire job failed", "job_id", job.ID, "error", err)
			}
		}()
	}
}

// TriggerManual fires a job immediately, bypassing the due-ness check, but
// still subject to the duplicate-guard and lock. Manual triggers reject
// outright if an execution is already pending|running.
func (s *Scheduler) TriggerManual(ctx context.Context, jobID, triggeredBy string) (string, error) {
	if _, err := s.repo.GetActiveExecutionForJob(ctx, s.store, jobID); err == nil {
		return "", domain.Wrap(domain.KindValidation, "an execution for this job is already pending or running", nil)
	} else if domain.KindOf(err) != domain.KindNotFound {
		return "", err
	}

	job, err := s.repo.GetJob(ctx, s.store, jobID)
	if err != nil {
		return "", err
	}
	by := triggeredBy
	return job.ID, s.fireJob(ctx, job, &by)
}

// fireJob is the dispatch loop step by step: insert the
// execution row, attempt the lock, dispatch, then record the terminal
// outcome. A lock-acquisition failure for a periodic firing rolls back the
// whole transaction so nothing is ever persisted for it; for a manual
// trigger the execution row survives, marked failed, since the caller is
// waiting on a concrete answer.
func (s *Scheduler) fireJob(ctx context.Context, job *domain.ScheduledJob, triggeredBy *string) error {
	executionID := clock.NewID()
	now := s.clk.Now()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	exec := &domain.ScheduledJobExecution{
		ID: executionID, JobID: job.ID, ExecutionID: executionID, ScheduledAt: now,
		StatusID: domain.ExecutionRunning, ExecutorID: s.executorID, HostName: s.hostName, TriggeredBy: triggeredBy,
	}
	if err := s.repo.CreateExecution(ctx, tx, exec); err != nil {
		return err
	}

	ok, err := s.repo.AcquireLock(ctx, tx, job.ID, executionID, s.executorID, s.hostName, s.cfg.LockDuration)
	if err != nil {
		return err
	}
	if !ok {
		if triggeredBy == nil {
			return nil // periodic firing: rollback discards the execution row entirely
		}
		msg := "lock held"
		if err := s.repo.CompleteExecution(ctx, tx, executionID, domain.ExecutionFailed, nil, &msg, 0); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		committed = true
		return domain.Wrap(domain.KindLockHeld, msg, nil)
	}

	if err := s.repo.MarkExecutionStarted(ctx, tx, executionID, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true

	s.runAndComplete(ctx, job, executionID, triggeredBy, now)
	return nil
}

func (s *Scheduler) runAndComplete(ctx context.Context, job *domain.ScheduledJob, executionID string, triggeredBy *string, startedAt time.Time) {
	timeout := time.Duration(0) // periodic jobs run unbounded
	if triggeredBy != nil {
		timeout = s.cfg.ManualTimeout
	}

	key := s.taskFuncByID[job.TaskFunctionID]
	res := s.disp.Dispatch(ctx, key, executionID, triggeredBy, timeout)

	if res.HandedOff {
		note := "dispatched to queue (id=" + res.TaskID + ")"
		if err := s.repo.AppendExecutionSummary(ctx, s.store, executionID, note); err != nil {
			s.logger.Error("append execution summary failed", "execution_id", executionID, "error", err)
		}
		return // external worker writes the terminal status via the same update path
	}

	durationMS := s.clk.Now().Sub(startedAt).Milliseconds()
	if err := s.repo.CompleteExecution(ctx, s.store, executionID, res.Status, res.Summary, res.ErrMsg, durationMS); err != nil {
		s.logger.Error("complete execution failed", "execution_id", executionID, "error", err)
	}
	if err := s.repo.ReleaseLock(ctx, s.store, job.ID, s.executorID); err != nil {
		s.logger.Error("release lock failed", "job_id", job.ID, "error", err)
	}
	if err := s.repo.UpdateLastRun(ctx, s.store, job.ID, s.clk.Now()); err != nil {
		s.logger.Error("update last run failed", "job_id", job.ID, "error", err)
	}
}

// Package scheduler is the C6 component — the hardest subsystem in this
// backend. Grounded on internal/scheduler/{dispatcher,
// worker,reaper}.go for the overall "ticker loop drives a repository
// method" shape; the claim/fire/heartbeat/reap pattern is kept, the
// webhook-specific HTTP semantics are replaced with a cron/interval
// trigger evaluation and lease-lock dispatch loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/dispatcher"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

type Config struct {
	PollInterval      time.Duration
	LockDuration      time.Duration
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
	ManualTimeout     time.Duration // wall clock bound for a manually triggered run
	InstanceName      string
	Mode              domain.InstanceMode
}

type Scheduler struct {
	repo   store.SchedulerRepository
	store  store.Store
	disp   *dispatcher.Dispatcher
	clk    clock.Clock
	logger *slog.Logger

	instanceID string
	executorID string
	hostName   string

	cfg           Config
	taskFuncByID  map[string]string // task_function_id -> key
	taskFuncByKey map[string]string // key -> task_function_id, inverse for lookups
}

func New(repo store.SchedulerRepository, st store.Store, disp *dispatcher.Dispatcher, clk clock.Clock, logger *slog.Logger, cfg Config) *Scheduler {
	hostname, _ := os.Hostname()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 5 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 5 * time.Minute
	}
	if cfg.ManualTimeout <= 0 {
		cfg.ManualTimeout = 15 * time.Second
	}
	return &Scheduler{
		repo: repo, store: st, disp: disp, clk: clk, logger: logger.With("component", "scheduler"),
		instanceID: clock.NewID(), executorID: fmt.Sprintf("%s-%d", hostname, os.Getpid()), hostName: hostname,
		cfg: cfg, taskFuncByID: map[string]string{}, taskFuncByKey: map[string]string{},
	}
}

// RegisterJobFunction forwards to the Dispatcher's in-process registry —
// the Scheduler is the public surface, the Dispatcher is what actually
// runs the function.
func (s *Scheduler) RegisterJobFunction(key string, fn dispatcher.TaskFunc) {
	s.disp.Register(key, fn)
}

// Init resolves the task-function registry without starting the
// heartbeat/poll/reap loops — the HTTP server uses this so a manual
// trigger can map a job's TaskFunctionID before the dedicated scheduler
// process's Start has even run.
func (s *Scheduler) Init(ctx context.Context) error {
	return s.loadRegistry(ctx)
}

// loadRegistry resolves every active TaskFunction's key so fireJob can map
// a ScheduledJob's task_function_id to the dispatcher's lookup key. A
// ScheduledJob whose TaskFunction is inactive or missing is unschedulable
// and is logged and skipped, never causing the whole poll to fail.
func (s *Scheduler) loadRegistry(ctx context.Context) error {
	funcs, err := s.repo.ListTaskFunctions(ctx, s.store)
	if err != nil {
		return err
	}
	for _, f := range funcs {
		s.taskFuncByID[f.ID] = f.Key
		s.taskFuncByKey[f.Key] = f.ID
	}
	return nil
}

// Start runs the dispatch, heartbeat, and lock-reaper loops until ctx is
// cancelled. It blocks — callers run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.loadRegistry(ctx); err != nil {
		return fmt.Errorf("load task function registry: %w", err)
	}

	now := s.clk.Now()
	inst := &domain.SchedulerInstance{
		ID: s.instanceID, InstanceName: s.cfg.InstanceName, HostName: s.hostName,
		ProcessID: os.Getpid(), Mode: s.cfg.Mode, Status: domain.InstanceRunning,
		LastHeartbeat: now, StartedAt: now,
	}
	if err := s.repo.UpsertInstance(ctx, s.store, inst); err != nil {
		return fmt.Errorf("register scheduler instance: %w", err)
	}
	s.logger.Info("scheduler started", "instance_id", s.instanceID, "poll_interval", s.cfg.PollInterval)

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()
	heartbeatTicker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	reapTicker := time.NewTicker(s.cfg.StaleThreshold / 2)
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.repo.MarkInstanceStopped(context.Background(), s.store, s.instanceID, s.clk.Now())
			s.logger.Info("scheduler shut down", "instance_id", s.instanceID)
			return nil
		case <-pollTicker.C:
			s.pollOnce(ctx)
		case <-heartbeatTicker.C:
			if err := s.repo.Heartbeat(ctx, s.store, s.instanceID, s.clk.Now()); err != nil {
				s.logger.Error("heartbeat failed", "error", err)
			}
		case <-reapTicker.C:
			s.reap(ctx)
		}
	}
}

func (s *Scheduler) reap(ctx context.Context) {
	now := s.clk.Now()
	if n, err := s.repo.ReapExpiredLocks(ctx, s.store, now); err != nil {
		s.logger.Error("reap expired locks failed", "error", err)
	} else if n > 0 {
		s.logger.Info("reaped expired locks", "count", n)
	}

	stale, err := s.repo.ListStaleInstances(ctx, s.store, now.Add(-s.cfg.StaleThreshold))
	if err != nil {
		s.logger.Error("list stale instances failed", "error", err)
		return
	}
	for _, inst := range stale {
		if err := s.repo.MarkInstanceStopped(ctx, s.store, inst.ID, now); err != nil {
			s.logger.Error("mark instance stopped failed", "instance_id", inst.ID, "error", err)
		}
	}
}

// nextFireTime implements the trigger evaluation: interval jobs
// add their configured duration to the last fire time; cron jobs use a
// standard five-field expression. Invalid cron expressions were validated
// at job-creation time, so a parse failure here is logged and the job is
// pushed an hour out rather than firing every poll.
func (s *Scheduler) nextFireTime(job *domain.ScheduledJob) time.Time {
	last := job.CreatedAt
	if job.LastRunAt != nil {
		last = *job.LastRunAt
	}
	if job.JobTypeID == domain.JobTypeInterval && job.Interval != nil {
		return last.Add(job.Interval.Duration())
	}
	if job.JobTypeID == domain.JobTypeCron && job.CronExpr != nil {
		sched, err := cron.ParseStandard(*job.CronExpr)
		if err != nil {
			s.logger.Error("invalid cron expression", "job_id", job.ID, "cron_expr", *job.CronExpr, "error", err)
			return s.clk.Now().Add(time.Hour)
		}
		return sched.Next(last)
	}
	return s.clk.Now().Add(time.Hour)
}

// evaluateDue applies coalesce/misfire_grace_time: a job is due once its
// next fire time has passed; coalesce just means a single catch-up firing
// happens instead of one per missed tick, which falls out naturally from
// recomputing nextFireTime off last_run_at rather than queueing every
// missed slot. misfire_grace_time bounds how late a firing is still
// honored. When a firing is skipped for being past its grace window,
// skippedFireTime carries the missed slot so the caller can advance the
// job's last_run_at past it — otherwise nextFireTime keeps recomputing the
// same missed slot forever and the job never becomes due again.
func (s *Scheduler) evaluateDue(job *domain.ScheduledJob, now time.Time) (due bool, skippedFireTime time.Time) {
	next := s.nextFireTime(job)
	if next.After(now) {
		return false, time.Time{}
	}
	grace := time.Duration(job.MisfireGraceTime) * time.Second
	if grace > 0 && now.Sub(next) > grace && !job.Coalesce {
		return false, next
	}
	return true, time.Time{}
}

func (s *Scheduler) isDue(job *domain.ScheduledJob, now time.Time) bool {
	due, _ := s.evaluateDue(job, now)
	return due
}

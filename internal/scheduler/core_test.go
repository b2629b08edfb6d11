package scheduler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestScheduler(now time.Time) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, nil, nil, fixedClock{now: now}, logger, Config{})
}

func TestNextFireTime_IntervalJob_AddsDurationToLastRun(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(now)

	lastRun := now.Add(-10 * time.Minute)
	job := &domain.ScheduledJob{
		JobTypeID: domain.JobTypeInterval,
		Interval:  &domain.Interval{Minutes: 15},
		LastRunAt: &lastRun,
	}

	got := s.nextFireTime(job)
	want := lastRun.Add(15 * time.Minute)
	if !got.Equal(want) {
		t.Errorf("nextFireTime = %v, want %v", got, want)
	}
}

func TestNextFireTime_CronJob_UsesStandardExpression(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(now)

	lastRun := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expr := "0 6 * * *" // every day at 06:00
	job := &domain.ScheduledJob{
		JobTypeID: domain.JobTypeCron,
		CronExpr:  &expr,
		LastRunAt: &lastRun,
	}

	got := s.nextFireTime(job)
	want := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("nextFireTime = %v, want %v", got, want)
	}
}

func TestNextFireTime_InvalidCronExpr_PushesAnHourOut(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(now)

	bad := "not a cron expression"
	job := &domain.ScheduledJob{JobTypeID: domain.JobTypeCron, CronExpr: &bad}

	got := s.nextFireTime(job)
	want := now.Add(time.Hour)
	if !got.Equal(want) {
		t.Errorf("nextFireTime = %v, want %v (fell back to now+1h)", got, want)
	}
}

func TestIsDue_PastFireTime_IsTrue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(now)

	lastRun := now.Add(-20 * time.Minute)
	job := &domain.ScheduledJob{
		JobTypeID: domain.JobTypeInterval,
		Interval:  &domain.Interval{Minutes: 15},
		LastRunAt: &lastRun,
	}

	if !s.isDue(job, now) {
		t.Error("isDue = false, want true (fire time has passed)")
	}
}

func TestIsDue_FutureFireTime_IsFalse(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(now)

	lastRun := now.Add(-5 * time.Minute)
	job := &domain.ScheduledJob{
		JobTypeID: domain.JobTypeInterval,
		Interval:  &domain.Interval{Minutes: 15},
		LastRunAt: &lastRun,
	}

	if s.isDue(job, now) {
		t.Error("isDue = true, want false (fire time is still in the future)")
	}
}

func TestIsDue_PastMisfireGrace_NoCoalesce_IsFalse(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(now)

	lastRun := now.Add(-1 * time.Hour)
	job := &domain.ScheduledJob{
		JobTypeID:        domain.JobTypeInterval,
		Interval:         &domain.Interval{Minutes: 15},
		LastRunAt:        &lastRun,
		MisfireGraceTime: 60, // 1 minute grace
		Coalesce:         false,
	}

	if s.isDue(job, now) {
		t.Error("isDue = true, want false (missed firing is well past its misfire grace)")
	}
}

func TestIsDue_PastMisfireGrace_WithCoalesce_IsTrue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(now)

	lastRun := now.Add(-1 * time.Hour)
	job := &domain.ScheduledJob{
		JobTypeID:        domain.JobTypeInterval,
		Interval:         &domain.Interval{Minutes: 15},
		LastRunAt:        &lastRun,
		MisfireGraceTime: 60,
		Coalesce:         true,
	}

	if !s.isDue(job, now) {
		t.Error("isDue = false, want true (coalesce collapses the missed firings into one catch-up run)")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adelabdelgawad/meal-request-backend/config"
	"github.com/adelabdelgawad/meal-request-backend/internal/attendance"
	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/dispatcher"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/health"
	"github.com/adelabdelgawad/meal-request-backend/internal/hris"
	ctxlog "github.com/adelabdelgawad/meal-request-backend/internal/log"
	"github.com/adelabdelgawad/meal-request-backend/internal/metrics"
	"github.com/adelabdelgawad/meal-request-backend/internal/scheduler"
	"github.com/adelabdelgawad/meal-request-backend/internal/store/postgres"

	"github.com/lmittmann/tint"
)

// main runs the standalone scheduler process: the dispatch/heartbeat/reap
// loops from internal/scheduler driven by rows in scheduled_jobs, firing
// the HRIS replication and attendance sync task functions registered
// below. A second instance of cmd/server may also
// register the same keys for its own manual-trigger path; AcquireLock's
// SELECT ... FOR UPDATE SKIP LOCKED is what keeps the two from double-firing.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns,
		MaxConnLifetime: time.Hour, MaxConnIdleTime: 30 * time.Minute,
	})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	clk := clock.Real{}
	schedulerRepo := postgres.NewSchedulerRepo()
	hrisRepo := postgres.NewHRISRepo()
	userRepo := postgres.NewUserRepo()
	mealRequestRepo := postgres.NewMealRequestRepo()

	hrisSource := hris.NewHTTPSource(cfg.HRISBaseURL, cfg.HRISRequestTimeout())
	replicator := hris.New(hrisSource, hrisRepo, userRepo, pool, clk, logger)

	attendanceSource := attendance.NewHTTPSource(cfg.AttendanceBaseURL, cfg.AttendanceRequestTimeout())
	syncer := attendance.New(attendanceSource, mealRequestRepo, hrisRepo, clk, logger, cfg.AttendanceMonthsBack)

	disp := dispatcher.New(logger, nil, false)
	disp.Register("hris_replication", func(taskCtx context.Context) (string, error) {
		summary, err := replicator.Run(taskCtx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("processed %d records", summary.RecordsProcessed), nil
	})
	disp.Register("attendance_sync", func(taskCtx context.Context) (string, error) {
		summary, err := syncer.Run(taskCtx, pool, nil)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("synced %d, unchanged %d, errors %d", summary.Synced, summary.Unchanged, summary.Errors), nil
	})

	sched := scheduler.New(schedulerRepo, pool, disp, clk, logger, scheduler.Config{
		PollInterval:      cfg.SchedulerPollInterval(),
		LockDuration:      cfg.SchedulerLockDuration(),
		HeartbeatInterval: cfg.SchedulerHeartbeatInterval(),
		StaleThreshold:    cfg.SchedulerStaleThreshold(),
		ManualTimeout:     cfg.SchedulerManualTimeout(),
		InstanceName:      "scheduler",
		Mode:              domain.InstanceModeStandalone,
	})

	if cfg.SchedulerEnabled {
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
	} else {
		logger.Info("scheduler disabled via config")
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	metricsSrv.Handler.(*http.ServeMux).HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if result := checker.Readiness(r.Context()); result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}

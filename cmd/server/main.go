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
	"github.com/adelabdelgawad/meal-request-backend/internal/cache"
	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/dispatcher"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/health"
	"github.com/adelabdelgawad/meal-request-backend/internal/hris"
	"github.com/adelabdelgawad/meal-request-backend/internal/httpapi"
	"github.com/adelabdelgawad/meal-request-backend/internal/httpapi/handler"
	ctxlog "github.com/adelabdelgawad/meal-request-backend/internal/log"
	"github.com/adelabdelgawad/meal-request-backend/internal/mealrequest"
	"github.com/adelabdelgawad/meal-request-backend/internal/metrics"
	"github.com/adelabdelgawad/meal-request-backend/internal/scheduler"
	"github.com/adelabdelgawad/meal-request-backend/internal/session"
	"github.com/adelabdelgawad/meal-request-backend/internal/store/postgres"
	"github.com/adelabdelgawad/meal-request-backend/internal/token"

	"github.com/lmittmann/tint"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
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

	var ch cache.Cache = cache.NoOp{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			ch = redisCache
		}
	}

	clk := clock.Real{}

	userRepo := postgres.NewUserRepo()
	sessionRepo := postgres.NewSessionRepo()
	hrisRepo := postgres.NewHRISRepo()
	mealRequestRepo := postgres.NewMealRequestRepo()
	schedulerRepo := postgres.NewSchedulerRepo()

	authority := token.New([]byte(cfg.JWTSecret), clk, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL(), "meal-request-backend")
	hasher := session.NewHasher(12)

	sessionMgr := session.NewManager(pool, userRepo, sessionRepo, authority, ch, clk, hasher, nil, logger, session.Config{
		MaxConcurrentSessions: cfg.SessionMaxConcurrent,
		SessionTTL:            cfg.RefreshTokenTTL(),
		SnapshotTTL:           cfg.SessionCacheTTL(),
		DefaultLocale:         cfg.LocaleDefault,
		SupportedLocales:      cfg.LocaleSupportedTrimmed(),
	})

	hrisSource := hris.NewHTTPSource(cfg.HRISBaseURL, cfg.HRISRequestTimeout())
	replicator := hris.New(hrisSource, hrisRepo, userRepo, pool, clk, logger)

	attendanceSource := attendance.NewHTTPSource(cfg.AttendanceBaseURL, cfg.AttendanceRequestTimeout())
	syncer := attendance.New(attendanceSource, mealRequestRepo, hrisRepo, clk, logger, cfg.AttendanceMonthsBack)

	engine := mealrequest.New(pool, mealRequestRepo, hrisRepo, syncer, clk, logger, mealrequest.Config{
		AttendanceTimeout: cfg.SchedulerManualTimeout(),
	})

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
		LockDuration: cfg.SchedulerLockDuration(), ManualTimeout: cfg.SchedulerManualTimeout(),
		InstanceName: "api", Mode: domain.InstanceModeEmbedded,
	})
	if err := sched.Init(ctx); err != nil {
		logger.Warn("scheduler registry init failed, manual triggers unavailable until retried", "error", err)
	}

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	handlers := httpapi.Handlers{
		Session: handler.NewSessionHandler(sessionMgr, handler.CookieConfig{
			Name: cfg.SessionCookieName, Path: "/", Secure: cfg.SessionCookieSecure,
			MaxAgeS: cfg.SessionCookieMaxAge(), SameSite: sameSite(cfg.SessionCookieSameSite),
		}),
		MealRequest: handler.NewMealRequestHandler(engine),
		Scheduler:   handler.NewSchedulerHandler(sched, schedulerRepo, pool),
		HRIS:        handler.NewHRISHandler(replicator),
		Attendance:  handler.NewAttendanceHandler(syncer, pool),
		Health:      handler.NewHealthHandler(checker),
	}

	router := httpapi.NewRouter(logger, handlers, sessionMgr, cfg.ClerkJWKSURL)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func sameSite(v string) http.SameSite {
	switch v {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}

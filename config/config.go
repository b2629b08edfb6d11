// Package config loads the process configuration, grounded on the
// teacher's config/config.go: one struct, env-tag driven, validated once
// at boot with github.com/caarlos0/env/v11 and
// github.com/go-playground/validator/v10.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL     string `env:"DATABASE_URL,required" validate:"required"`
	DBMaxConns      int32  `env:"DB_MAX_CONNS" envDefault:"25" validate:"min=1,max=500"`
	DBMinConns      int32  `env:"DB_MIN_CONNS" envDefault:"5" validate:"min=0,max=500"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// --- Token Authority (C4) ---
	JWTSecret     string `env:"JWT_SECRET"`
	JWTAlgorithm  string `env:"JWT_ALGORITHM" envDefault:"HS256" validate:"required,oneof=HS256 RS256"`
	ClerkJWKSURL  string `env:"JWKS_URL"` // optional RS256 verification path alongside HMAC
	AccessTokenMinutes  int `env:"ACCESS_TOKEN_MINUTES" envDefault:"15" validate:"min=1"`
	RefreshTokenDays    int `env:"REFRESH_TOKEN_DAYS" envDefault:"7" validate:"min=1"`

	// --- Session Manager (C5) ---
	SessionCookieName    string `env:"SESSION_COOKIE_NAME" envDefault:"refresh_token"`
	SessionCookieSecure  bool   `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
	SessionCookieSameSite string `env:"SESSION_COOKIE_SAMESITE" envDefault:"lax" validate:"required,oneof=strict lax none"`
	SessionMaxConcurrent int    `env:"SESSION_MAX_CONCURRENT" envDefault:"5" validate:"min=1"`

	// --- Locale resolution ---
	LocaleDefault       string   `env:"LOCALE_DEFAULT" envDefault:"en"`
	LocaleSupported     []string `env:"LOCALE_SUPPORTED" envSeparator:"," envDefault:"en,ar"`
	LocaleCookieName    string   `env:"LOCALE_COOKIE_NAME" envDefault:"locale"`
	LocaleCookieMaxAgeDays int   `env:"LOCALE_COOKIE_MAX_AGE_DAYS" envDefault:"365" validate:"min=1"`

	// --- Scheduler Core (C6) ---
	SchedulerEnabled             bool `env:"SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerPollIntervalSec     int  `env:"SCHEDULER_POLL_INTERVAL_SEC" envDefault:"15" validate:"min=1"`
	SchedulerHeartbeatIntervalSec int `env:"SCHEDULER_HEARTBEAT_INTERVAL_SEC" envDefault:"30" validate:"min=1"`
	SchedulerStaleThresholdSec   int  `env:"SCHEDULER_STALE_THRESHOLD_SEC" envDefault:"300" validate:"min=1"`
	SchedulerLockDurationSec     int  `env:"SCHEDULER_LOCK_DURATION_SEC" envDefault:"300" validate:"min=1"`
	SchedulerManualTimeoutSec    int  `env:"SCHEDULER_MANUAL_TIMEOUT_SEC" envDefault:"15" validate:"min=1"`
	SchedulerHistoryRetentionDays int `env:"SCHEDULER_HISTORY_RETENTION_DAYS" envDefault:"90" validate:"min=1"`

	// --- Attendance Sync (C9) ---
	AttendanceSyncEnabled      bool `env:"ATTENDANCE_SYNC_ENABLED" envDefault:"true"`
	AttendanceIntervalMinutes  int  `env:"ATTENDANCE_INTERVAL_MINUTES" envDefault:"30" validate:"min=1"`
	AttendanceMonthsBack       int  `env:"ATTENDANCE_MONTHS_BACK" envDefault:"3" validate:"min=1"`
	AttendanceMinShiftHours    float64 `env:"ATTENDANCE_MIN_SHIFT_HOURS" envDefault:"0"`

	// --- Dispatcher (C7) ---
	QueueEnabled bool `env:"QUEUE_ENABLED" envDefault:"false"`

	// --- Cache (C2) ---
	RedisURL          string `env:"REDIS_URL"`
	RevokedTokenTTLMin int   `env:"REVOKED_TOKEN_TTL_MINUTES" envDefault:"15" validate:"min=1"`
	SessionCacheTTLMin int   `env:"SESSION_CACHE_TTL_MINUTES" envDefault:"5" validate:"min=1,max=5"`

	// --- Rate limiting ---
	LoginRateLimit string `env:"LOGIN_RATE_LIMIT" envDefault:"10/min"`

	// --- HRIS Replicator (C8) ---
	HRISSyncEnabled         bool   `env:"HRIS_SYNC_ENABLED" envDefault:"true"`
	HRISSyncIntervalMinutes int    `env:"HRIS_SYNC_INTERVAL_MINUTES" envDefault:"60" validate:"min=1"`
	HRISBaseURL             string `env:"HRIS_BASE_URL"`
	HRISRequestTimeoutSec   int    `env:"HRIS_REQUEST_TIMEOUT_SEC" envDefault:"30" validate:"min=1"`

	// --- Attendance external source (C9) ---
	AttendanceBaseURL           string `env:"ATTENDANCE_BASE_URL"`
	AttendanceRequestTimeoutSec int    `env:"ATTENDANCE_REQUEST_TIMEOUT_SEC" envDefault:"30" validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.JWTSecret == "" {
		if cfg.Env != "local" {
			return nil, fmt.Errorf("invalid config: JWT_SECRET is required outside of ENV=local")
		}
		// A temporary secret may be synthesised only when the environment
		// is explicitly declared as local development.
		cfg.JWTSecret = "local-dev-insecure-secret-do-not-use-in-production"
	}
	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

func (c *Config) SessionCookieMaxAge() int {
	return c.RefreshTokenDays * 86400
}

func (c *Config) SchedulerPollInterval() time.Duration {
	return time.Duration(c.SchedulerPollIntervalSec) * time.Second
}

func (c *Config) SchedulerHeartbeatInterval() time.Duration {
	return time.Duration(c.SchedulerHeartbeatIntervalSec) * time.Second
}

func (c *Config) SchedulerStaleThreshold() time.Duration {
	return time.Duration(c.SchedulerStaleThresholdSec) * time.Second
}

func (c *Config) SchedulerLockDuration() time.Duration {
	return time.Duration(c.SchedulerLockDurationSec) * time.Second
}

func (c *Config) SchedulerManualTimeout() time.Duration {
	return time.Duration(c.SchedulerManualTimeoutSec) * time.Second
}

func (c *Config) RevokedTokenTTL() time.Duration {
	return time.Duration(c.RevokedTokenTTLMin) * time.Minute
}

func (c *Config) SessionCacheTTL() time.Duration {
	return time.Duration(c.SessionCacheTTLMin) * time.Minute
}

func (c *Config) HRISRequestTimeout() time.Duration {
	return time.Duration(c.HRISRequestTimeoutSec) * time.Second
}

func (c *Config) AttendanceRequestTimeout() time.Duration {
	return time.Duration(c.AttendanceRequestTimeoutSec) * time.Second
}

func (c *Config) AttendanceSyncInterval() time.Duration {
	return time.Duration(c.AttendanceIntervalMinutes) * time.Minute
}

func (c *Config) HRISSyncInterval() time.Duration {
	return time.Duration(c.HRISSyncIntervalMinutes) * time.Minute
}

// LocaleSupportedTrimmed strips whitespace callers may have left in a
// comma-separated LOCALE_SUPPORTED env value.
func (c *Config) LocaleSupportedTrimmed() []string {
	out := make([]string, 0, len(c.LocaleSupported))
	for _, l := range c.LocaleSupported {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return out
}

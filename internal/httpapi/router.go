// Package httpapi wires the gin transport for the meal-request backend,
// grounded on the internal/http (router.go, middleware/*) —
// the newer of its two transport generations, the one built around a
// JWKS-capable Auth middleware rather than a raw HMAC-only parse.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/httpapi/handler"
	"github.com/adelabdelgawad/meal-request-backend/internal/httpapi/middleware"
)

// Handlers bundles every handler the router mounts, so NewRouter itself
// stays a pure wiring function.
type Handlers struct {
	Session     *handler.SessionHandler
	MealRequest *handler.MealRequestHandler
	Scheduler   *handler.SchedulerHandler
	HRIS        *handler.HRISHandler
	Attendance  *handler.AttendanceHandler
	Health      *handler.HealthHandler
}

// NewRouter assembles the gin engine: global middleware first, then the
// auth-protected route groups.
func NewRouter(logger *slog.Logger, h Handlers, validator middleware.Validator, jwksURL string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", h.Health.Liveness)
	r.GET("/readyz", h.Health.Readiness)

	auth := r.Group("/auth")
	auth.POST("/login", h.Session.Login)
	auth.POST("/refresh", h.Session.Refresh)

	authMW := middleware.Auth(validator, jwksURL)

	authProtected := r.Group("/auth", authMW)
	authProtected.POST("/logout", h.Session.Logout)

	mealRequests := r.Group("/meal-requests", authMW)
	mealRequests.GET("", h.MealRequest.List)
	mealRequests.POST("", h.MealRequest.Create)
	mealRequests.POST("/:id/status", h.MealRequest.UpdateStatus)
	mealRequests.POST("/:id/copy", h.MealRequest.Copy)
	mealRequests.DELETE("/:id", h.MealRequest.Delete)

	jobs := r.Group("/scheduler/jobs", authMW)
	jobs.POST("/:id/trigger", h.Scheduler.TriggerManual)
	jobs.GET("/:id/executions", h.Scheduler.ListExecutions)

	admin := r.Group("/admin", authMW)
	admin.POST("/hris/replicate", h.HRIS.TriggerReplication)
	admin.POST("/attendance/sync", h.Attendance.TriggerSync)

	return r
}

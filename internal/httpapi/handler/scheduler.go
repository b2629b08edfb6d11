package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/scheduler"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

type SchedulerHandler struct {
	sched *scheduler.Scheduler
	repo  store.SchedulerRepository
	db    store.Store
}

func NewSchedulerHandler(sched *scheduler.Scheduler, repo store.SchedulerRepository, db store.Store) *SchedulerHandler {
	return &SchedulerHandler{sched: sched, repo: repo, db: db}
}

// TriggerManual fires a job out-of-band, rejecting the request if an
// execution is already pending or running.
func (h *SchedulerHandler) TriggerManual(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := h.sched.TriggerManual(c.Request.Context(), jobID, userID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ListExecutions returns the most recent executions for a job.
func (h *SchedulerHandler) ListExecutions(c *gin.Context) {
	jobID := c.Param("id")
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	executions, err := h.repo.ListExecutions(c.Request.Context(), h.db, jobID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": executions})
}

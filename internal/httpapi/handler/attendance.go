package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/attendance"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

type AttendanceHandler struct {
	syncer *attendance.Syncer
	db     store.Store
}

func NewAttendanceHandler(syncer *attendance.Syncer, db store.Store) *AttendanceHandler {
	return &AttendanceHandler{syncer: syncer, db: db}
}

// TriggerSync runs the sliding-window attendance sweep across every line
// missing attendance within the configured lookback.
func (h *AttendanceHandler) TriggerSync(c *gin.Context) {
	summary, err := h.syncer.Run(c.Request.Context(), h.db, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

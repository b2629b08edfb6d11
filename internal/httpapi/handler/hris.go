package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/hris"
)

type HRISHandler struct {
	replicator *hris.Replicator
}

func NewHRISHandler(replicator *hris.Replicator) *HRISHandler {
	return &HRISHandler{replicator: replicator}
}

// TriggerReplication runs a full HRIS replication pass synchronously and
// returns the per-phase summary. Operator-triggered, so a
// blocking call is acceptable here unlike the scheduler's own firing path.
func (h *HRISHandler) TriggerReplication(c *gin.Context) {
	summary, err := h.replicator.Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

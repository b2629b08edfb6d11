package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/mealrequest"
	"github.com/adelabdelgawad/meal-request-backend/internal/metrics"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

type MealRequestHandler struct {
	engine *mealrequest.Engine
}

func NewMealRequestHandler(engine *mealrequest.Engine) *MealRequestHandler {
	return &MealRequestHandler{engine: engine}
}

type createLineRequest struct {
	EmployeeID string  `json:"employee_id" binding:"required"`
	Notes      *string `json:"notes"`
}

type createMealRequestRequest struct {
	MealTypeID string              `json:"meal_type_id" binding:"required"`
	Notes      *string             `json:"notes"`
	Lines      []createLineRequest `json:"lines" binding:"required,min=1"`
}

func userID(c *gin.Context) string {
	v, _ := c.Get("userID")
	id, _ := v.(string)
	return id
}

// Create starts a meal request at OnProgress and kicks the attendance
// fetch in the background.
func (h *MealRequestHandler) Create(c *gin.Context) {
	var req createMealRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines := make([]mealrequest.LineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = mealrequest.LineInput{EmployeeID: l.EmployeeID, Notes: l.Notes}
	}

	res, err := h.engine.Create(c.Request.Context(), mealrequest.CreateInput{
		RequesterID: userID(c), MealTypeID: req.MealTypeID, Notes: req.Notes, Lines: lines,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.MealRequestTransitionsTotal.WithLabelValues(res.Request.StatusID.String()).Inc()
	c.JSON(http.StatusCreated, gin.H{
		"request":        res.Request,
		"lines_created":  res.LinesCreated,
		"lines_rejected": res.LinesRejected,
	})
}

type updateStatusRequest struct {
	Expected *int `json:"expected_status"`
	Next     int  `json:"next_status" binding:"required"`
}

// UpdateStatus applies the optimistic-concurrency status transition,
// keyed by the caller-supplied expected current status.
func (h *MealRequestHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expected *domain.MealRequestStatus
	if req.Expected != nil {
		s := domain.MealRequestStatus(*req.Expected)
		expected = &s
	}
	next := domain.MealRequestStatus(req.Next)

	if err := h.engine.UpdateStatus(c.Request.Context(), id, expected, next, userID(c)); err != nil {
		writeError(c, err)
		return
	}
	metrics.MealRequestTransitionsTotal.WithLabelValues(next.String()).Inc()
	c.Status(http.StatusNoContent)
}

// Copy duplicates a finished request's lines into a fresh Pending request
// chained to the same root.
func (h *MealRequestHandler) Copy(c *gin.Context) {
	sourceID := c.Param("id")
	res, err := h.engine.Copy(c.Request.Context(), sourceID, userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.MealRequestTransitionsTotal.WithLabelValues(res.Request.StatusID.String()).Inc()
	c.JSON(http.StatusCreated, gin.H{"request": res.Request, "lines_copied": res.LinesCopied})
}

func (h *MealRequestHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Delete(c.Request.Context(), id, userID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List applies the visibility-filtered listing — the caller's department
// scope and optional status/date-range query params.
func (h *MealRequestHandler) List(c *gin.Context) {
	f := store.MealRequestFilter{Limit: 50}

	if requesterFilter := c.Query("requester"); requesterFilter != "" {
		f.RequesterFilter = &requesterFilter
	}
	if depts := c.QueryArray("department"); len(depts) > 0 {
		f.VisibleDepartments = depts
	}
	if s := c.Query("status"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			status := domain.MealRequestStatus(n)
			f.Status = &status
		}
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			f.From = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			f.To = &t
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	includeOnProgress := c.Query("include_on_progress") == "true"

	requests, err := h.engine.List(c.Request.Context(), f, includeOnProgress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestWriteError_NotFound_Maps404(t *testing.T) {
	c, w := newTestContext()
	writeError(c, domain.ErrNotFound)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWriteError_Conflict_Maps409(t *testing.T) {
	c, w := newTestContext()
	writeError(c, domain.ErrConflict)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestWriteError_StatusAlreadyChanged_Maps409(t *testing.T) {
	c, w := newTestContext()
	writeError(c, domain.Wrap(domain.KindStatusAlreadyChanged, "already changed", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestWriteError_InvalidToken_Maps401(t *testing.T) {
	c, w := newTestContext()
	writeError(c, domain.ErrInvalidToken)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWriteError_ExternalUnavailable_Maps502(t *testing.T) {
	c, w := newTestContext()
	writeError(c, domain.Wrap(domain.KindExternalUnavailable, "hris down", nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestWriteError_UnknownKind_Maps500AndHidesDetail(t *testing.T) {
	c, w := newTestContext()
	writeError(c, domain.Wrap(domain.KindDatabase, "leaked connection string detail", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, errInternalServer) || strings.Contains(body, "connection string") {
		t.Errorf("body = %q, want generic message without internal detail", body)
	}
}

func TestOutcomeForMetric_InvalidCredentials(t *testing.T) {
	if got := outcomeForMetric(domain.ErrInvalidCredentials); got != "invalid_credentials" {
		t.Errorf("outcomeForMetric = %q, want invalid_credentials", got)
	}
}

func TestOutcomeForMetric_RevokedToken(t *testing.T) {
	if got := outcomeForMetric(domain.ErrRevokedToken); got != "reuse_detected" {
		t.Errorf("outcomeForMetric = %q, want reuse_detected", got)
	}
}

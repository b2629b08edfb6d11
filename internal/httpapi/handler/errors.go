package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

const errInternalServer = "Internal server error"
const errUnauthorized = "Unauthorized"

// writeError translates a domain.Error's Kind into the HTTP response:
// adapters at the boundary translate to protocol-specific responses,
// without a long errors.Is chain.
func writeError(c *gin.Context, err error) {
	status := statusForKind(domain.KindOf(err))
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = errInternalServer
	}
	c.JSON(status, gin.H{"error": msg})
}

func statusForKind(k domain.Kind) int {
	switch k {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict, domain.KindStatusAlreadyChanged, domain.KindLockHeld:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindAuthentication, domain.KindInvalidToken, domain.KindExpiredToken, domain.KindRevokedToken:
		return http.StatusUnauthorized
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindExternalUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// outcomeForMetric is the label value attached to login/refresh counters —
// coarser than the full Kind set, just enough to tell success from the
// handful of outcomes an operator would alert on.
func outcomeForMetric(err error) string {
	switch domain.KindOf(err) {
	case domain.KindAuthentication:
		return "invalid_credentials"
	case domain.KindAuthorization:
		return "locked"
	case domain.KindRevokedToken:
		return "reuse_detected"
	case domain.KindExpiredToken:
		return "expired"
	default:
		return "error"
	}
}

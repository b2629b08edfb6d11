package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adelabdelgawad/meal-request-backend/internal/metrics"
	"github.com/adelabdelgawad/meal-request-backend/internal/session"
)

// CookieConfig controls how the refresh token is set as an HttpOnly cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	MaxAgeS  int
	SameSite http.SameSite
}

type SessionHandler struct {
	mgr    *session.Manager
	cookie CookieConfig
}

func NewSessionHandler(mgr *session.Manager, cookie CookieConfig) *SessionHandler {
	return &SessionHandler{mgr: mgr, cookie: cookie}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates against the Session Manager and sets the refresh
// token as an HttpOnly cookie, returning only the access token in the body.
func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.mgr.Login(c.Request.Context(), session.LoginInput{
		Username:     req.Username,
		Password:     req.Password,
		DeviceInfo:   c.Request.UserAgent(),
		IPAddress:    c.ClientIP(),
		QueryLocale:  c.Query("locale"),
		CookieLocale: cookieValue(c, "locale"),
		AcceptLang:   c.GetHeader("Accept-Language"),
	})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(outcomeForMetric(err)).Inc()
		writeError(c, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	h.setRefreshCookie(c, res.Refresh)
	c.JSON(http.StatusOK, gin.H{
		"access_token": res.Access,
		"session_id":   res.SessionID,
		"locale":       res.Locale,
	})
}

func (h *SessionHandler) Refresh(c *gin.Context) {
	refreshTok, err := c.Cookie(h.cookie.Name)
	if err != nil || refreshTok == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
		return
	}

	access, newRefresh, err := h.mgr.Refresh(c.Request.Context(), refreshTok)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues(outcomeForMetric(err)).Inc()
		h.clearRefreshCookie(c)
		writeError(c, err)
		return
	}
	metrics.RefreshesTotal.WithLabelValues("success").Inc()

	h.setRefreshCookie(c, newRefresh)
	c.JSON(http.StatusOK, gin.H{"access_token": access})
}

func (h *SessionHandler) Logout(c *gin.Context) {
	refreshTok, err := c.Cookie(h.cookie.Name)
	if err == nil && refreshTok != "" {
		if err := h.mgr.RevokeByRefreshToken(c.Request.Context(), refreshTok); err != nil {
			h.clearRefreshCookie(c)
			writeError(c, err)
			return
		}
		metrics.RevocationsTotal.WithLabelValues("logout").Inc()
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, token, h.cookie.MaxAgeS, h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}

func (h *SessionHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, "", -1, h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}

func cookieValue(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}

package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/game/player"
	mw "github.com/kasuganosora/farmquest/middleware"
)

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	sessions *player.SessionStore
	roster   *player.Roster
	audit    auditor
}

// NewAuthHandler creates a new AuthHandler. auditSvc may be nil.
func NewAuthHandler(sessions *player.SessionStore, roster *player.Roster, auditSvc *audit.Service) *AuthHandler {
	return &AuthHandler{sessions: sessions, roster: roster, audit: auditor{auditSvc}}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,max=32"`
	Password string `json:"password" binding:"required,max=64"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, u, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if h.audit.svc != nil {
		entry := audit.AuditEntry{
			TraceID:    mw.GetTraceID(c),
			UserID:     u.ID,
			Username:   req.Username,
			Role:       string(u.Role),
			Action:     audit.ActionLogin,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		h.audit.svc.Log(entry)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	start := time.Now()
	err := h.sessions.Logout(c.Request.Context(), mw.GetToken(c))
	h.audit.record(c, start, audit.ActionLogout, "", nil, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh. The old token stops working.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, u, err := h.sessions.Refresh(c.Request.Context(), mw.GetToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.roster.Get(mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

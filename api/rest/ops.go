package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/game/ranking"
	"github.com/kasuganosora/farmquest/scheduler"
	"go.uber.org/zap"
)

// Announcer broadcasts a system announcement to connected clients.
type Announcer interface {
	Announce(ctx context.Context, message string) error
}

// Gauge reports the number of live connections of one kind.
type Gauge interface {
	Count() int
}

// OpsHandler serves operator endpoints guarded by OpsAuth.
type OpsHandler struct {
	quests    *quest.Store
	feed      *community.Feed
	quizzes   *quiz.Service
	ranks     *ranking.Service
	sched     *scheduler.Scheduler
	announcer Announcer
	gauges    map[string]Gauge
	audit     auditor
	logger    *zap.Logger
}

// NewOpsHandler creates an OpsHandler. gauges are reported by Metrics under
// their map key; auditSvc may be nil.
func NewOpsHandler(
	quests *quest.Store,
	feed *community.Feed,
	quizzes *quiz.Service,
	ranks *ranking.Service,
	sched *scheduler.Scheduler,
	announcer Announcer,
	gauges map[string]Gauge,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *OpsHandler {
	return &OpsHandler{
		quests:    quests,
		feed:      feed,
		quizzes:   quizzes,
		ranks:     ranks,
		sched:     sched,
		announcer: announcer,
		gauges:    gauges,
		audit:     auditor{auditSvc},
		logger:    logger,
	}
}

// Metrics returns server health metrics.
// GET /api/ops/metrics
func (h *OpsHandler) Metrics(c *gin.Context) {
	resp := gin.H{
		"quests":          h.quests.CountByStatus(),
		"posts":           h.feed.Count(),
		"live_attempts":   h.quizzes.Live(),
		"scheduler_tasks": h.sched.ListTickers(),
	}
	for name, g := range h.gauges {
		resp[name] = g.Count()
	}
	c.JSON(http.StatusOK, resp)
}

// ListSchedulerTasks returns every registered ticker and pending delay.
// GET /api/ops/scheduler
func (h *OpsHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

type announceRequest struct {
	Message string `json:"message" binding:"required,max=500"`
}

// Announce pushes a message to every SSE subscriber.
// POST /api/ops/announce
func (h *OpsHandler) Announce(c *gin.Context) {
	start := time.Now()
	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.announcer.Announce(c.Request.Context(), req.Message)
	h.audit.record(c, start, audit.ActionAnnounce, "", req, err)
	if err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RefreshRanking rebuilds the leaderboard cache.
// POST /api/ops/ranking/refresh
func (h *OpsHandler) RefreshRanking(c *gin.Context) {
	if err := h.ranks.Refresh(c.Request.Context()); err != nil {
		h.logger.Error("ranking refresh failed", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// OpsAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all ops endpoints are disabled (503) so the server
// cannot be deployed without protection.
func OpsAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "ops endpoints disabled: set server.admin_key in config"})
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/ranking"
	"github.com/kasuganosora/farmquest/game/reward"
	mw "github.com/kasuganosora/farmquest/middleware"
	"github.com/kasuganosora/farmquest/resource"
	"go.uber.org/zap"
)

const adminRecentPosts = 5

// AdminHandler handles administrator REST endpoints. Routes sit behind
// Auth and RequireRole("admin").
type AdminHandler struct {
	quests  *quest.Store
	roster  *player.Roster
	feed    *community.Feed
	ranks   *ranking.Service
	rewards *reward.Service
	auditS  *audit.Service
	audit   auditor
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler. auditSvc may be nil.
func NewAdminHandler(
	quests *quest.Store,
	roster *player.Roster,
	feed *community.Feed,
	ranks *ranking.Service,
	rewards *reward.Service,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		quests:  quests,
		roster:  roster,
		feed:    feed,
		ranks:   ranks,
		rewards: rewards,
		auditS:  auditSvc,
		audit:   auditor{auditSvc},
		logger:  logger,
	}
}

type approval struct {
	Quest      quest.Quest `json:"quest"`
	FarmerName string      `json:"farmer_name"`
	Panchayat  string      `json:"panchayat"`
}

// Approvals lists quests waiting for sign-off.
// GET /api/admin/approvals
func (h *AdminHandler) Approvals(c *gin.Context) {
	pending := h.quests.Pending()
	out := make([]approval, 0, len(pending))
	for _, q := range pending {
		a := approval{Quest: q}
		if u, err := h.roster.Get(q.FarmerID); err == nil {
			a.FarmerName, a.Panchayat = u.Name, u.Panchayat
		}
		out = append(out, a)
	}
	c.JSON(http.StatusOK, gin.H{"approvals": out, "count": len(out)})
}

// Approve completes a quest and pays its reward.
// POST /api/admin/quests/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	q, err := h.quests.Approve(c.Request.Context(), id, mw.GetUserID(c))
	h.audit.record(c, start, audit.ActionQuestApprove, id, nil, err)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"quest": q}
	if u, err := h.roster.Get(q.FarmerID); err == nil {
		resp["farmer"] = u
	}
	c.JSON(http.StatusOK, resp)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Reject sends a submission back with a reason. The quest stays pending.
// POST /api/admin/quests/:id/reject
func (h *AdminHandler) Reject(c *gin.Context) {
	start := time.Now()
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	id := c.Param("id")
	q, err := h.quests.Reject(c.Request.Context(), id, mw.GetUserID(c), req.Reason)
	h.audit.record(c, start, audit.ActionQuestReject, id, req, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest": q})
}

// Complete forces a quest to completed, bypassing approval.
// POST /api/admin/quests/:id/complete
func (h *AdminHandler) Complete(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	q, err := h.quests.Complete(c.Request.Context(), id)
	h.audit.record(c, start, audit.ActionQuestApprove, id, gin.H{"forced": true}, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest": q})
}

// Stats summarises the platform.
// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	farmers := h.roster.Farmers()
	points, scoreSum := 0, 0
	for _, u := range farmers {
		points += u.TotalPoints
		scoreSum += u.SustainabilityScore
	}
	avg := 0
	if len(farmers) > 0 {
		avg = (scoreSum + len(farmers)/2) / len(farmers)
	}
	counts := h.quests.CountByStatus()
	c.JSON(http.StatusOK, gin.H{
		"total_farmers":     len(farmers),
		"active_quests":     counts[quest.StatusActive],
		"pending_approvals": counts[quest.StatusPendingApproval],
		"completed_quests":  counts[quest.StatusCompleted],
		"available_quests":  counts[quest.StatusAvailable],
		"total_points":      points,
		"average_score":     avg,
		"total_posts":       h.feed.Count(),
		"panchayats":        h.ranks.Panchayats(),
		"monthly_growth":    monthlyGrowth,
	})
}

// Posts returns recent posts, filtered by ?q= against content and author.
// GET /api/admin/posts
func (h *AdminHandler) Posts(c *gin.Context) {
	limit := queryLimit(c, adminRecentPosts, maxFeedPage)
	c.JSON(http.StatusOK, gin.H{"posts": h.feed.Search(mw.GetUserID(c), c.Query("q"), limit)})
}

// Audit returns recent audit rows.
// GET /api/admin/audit?user_id=&action=&limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	if h.auditS == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []any{}})
		return
	}
	rows, err := h.auditS.Recent(c.Request.Context(), audit.Filter{
		UserID: c.Query("user_id"),
		Action: c.Query("action"),
		Limit:  queryLimit(c, 50, 500),
	})
	if err != nil {
		h.logger.Error("audit read failed", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

// Rewards returns a farmer's reward ledger.
// GET /api/admin/farmers/:id/rewards
func (h *AdminHandler) Rewards(c *gin.Context) {
	u, err := h.roster.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	rows, err := h.rewards.History(c.Request.Context(), u.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"farmer": u, "rewards": rows})
}

// ExportLeaderboard streams the leaderboard as an Excel workbook.
// GET /api/admin/export/leaderboard.xlsx
func (h *AdminHandler) ExportLeaderboard(c *gin.Context) {
	farmers, err := h.ranks.Farmers(c.Request.Context(), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="leaderboard.xlsx"`)
	c.Status(http.StatusOK)
	if err := resource.ExportLeaderboard(c.Writer, farmers, h.ranks.Panchayats()); err != nil {
		h.logger.Error("leaderboard export failed", zap.Error(err))
	}
}

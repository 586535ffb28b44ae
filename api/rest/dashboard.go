package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/ranking"
	mw "github.com/kasuganosora/farmquest/middleware"
)

const dashboardPosts = 3

// DashboardHandler assembles the farmer's landing page.
type DashboardHandler struct {
	roster *player.Roster
	quests *quest.Store
	feed   *community.Feed
	ranks  *ranking.Service
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(roster *player.Roster, quests *quest.Store, feed *community.Feed, ranks *ranking.Service) *DashboardHandler {
	return &DashboardHandler{roster: roster, quests: quests, feed: feed, ranks: ranks}
}

// Get handles GET /api/dashboard.
func (h *DashboardHandler) Get(c *gin.Context) {
	uid := mw.GetUserID(c)
	u, err := h.roster.Get(uid)
	if err != nil {
		writeError(c, err)
		return
	}
	rank, err := h.ranks.RankOf(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":            u,
		"rank":            rank,
		"active_quests":   h.quests.Active(uid),
		"completed_count": len(h.quests.Completed(uid)),
		"available_count": len(h.quests.Available(uid)),
		"recent_posts":    h.feed.List(uid, dashboardPosts),
		"trend":           sustainabilityTrend,
	})
}

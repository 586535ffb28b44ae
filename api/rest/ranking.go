package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/game/ranking"
	mw "github.com/kasuganosora/farmquest/middleware"
	"go.uber.org/zap"
)

const rankingTop = 100

// RankingHandler handles leaderboard REST endpoints.
type RankingHandler struct {
	ranks  *ranking.Service
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(ranks *ranking.Service, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{ranks: ranks, logger: logger}
}

// Farmers returns the farmer leaderboard.
// GET /api/ranking/farmers?limit=20
func (h *RankingHandler) Farmers(c *gin.Context) {
	limit := queryLimit(c, rankingTop, rankingTop)
	entries, err := h.ranks.Farmers(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("ranking read failed", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"farmers": entries})
}

// Panchayats handles GET /api/ranking/panchayats.
func (h *RankingHandler) Panchayats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"panchayats": h.ranks.Panchayats()})
}

// Me returns the caller's rank; 0 for users who are not ranked.
// GET /api/ranking/me
func (h *RankingHandler) Me(c *gin.Context) {
	rank, err := h.ranks.RankOf(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rank": rank})
}
